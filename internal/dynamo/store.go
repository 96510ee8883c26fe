package dynamo

// Store is double-buffered particle storage. A step reads Current and
// writes Next; Swap flips the index. Both slots are owned by the Store,
// callers never hold a slot across a Swap.
type Store struct {
	slots      [2][]Particle
	current    int
	generation uint64
}

func NewStore(ps []Particle) *Store {
	s := &Store{}
	s.Replace(ps)
	return s
}

func (s *Store) Len() int { return len(s.slots[s.current]) }

// Index is 0 or 1, the slot holding the current state.
func (s *Store) Index() int { return s.current }

func (s *Store) Current() []Particle { return s.slots[s.current] }
func (s *Store) Next() []Particle    { return s.slots[1-s.current] }

func (s *Store) Swap() { s.current = 1 - s.current }

// Generation increments whenever the particle set is replaced, so caches
// keyed on it can detect resyncs.
func (s *Store) Generation() uint64 { return s.generation }

// Replace loads a new particle set into both slots.
func (s *Store) Replace(ps []Particle) {
	for i := range s.slots {
		if cap(s.slots[i]) >= len(ps) {
			s.slots[i] = s.slots[i][:len(ps)]
		} else {
			s.slots[i] = make([]Particle, len(ps))
		}
		copy(s.slots[i], ps)
	}
	s.current = 0
	s.generation++
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() []Particle {
	out := make([]Particle, s.Len())
	copy(out, s.Current())
	return out
}
