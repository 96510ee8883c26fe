package gpu

import (
	"fmt"
	"log/slog"
	"time"
)

// Phase is a stage of the GPU step, in submission order.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseClear
	PhaseCount
	PhasePrefix
	PhaseClearForSort
	PhaseSort
	PhaseForces
	PhaseAdvance
	numPhases
)

var phaseNames = [numPhases]string{
	"idle", "clear", "count", "prefix", "clear_for_sort", "sort", "forces", "advance",
}

func (p Phase) String() string {
	if p < 0 || p >= numPhases {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Phases lists the working phases in submission order.
func Phases() []Phase {
	return []Phase{PhaseClear, PhaseCount, PhasePrefix, PhaseClearForSort, PhaseSort, PhaseForces, PhaseAdvance}
}

// PhaseTimings is device time per phase for one step. Prefix passes are
// summed.
type PhaseTimings map[Phase]time.Duration

func (t PhaseTimings) Total() time.Duration {
	var sum time.Duration
	for _, d := range t {
		sum += d
	}
	return sum
}

func (t PhaseTimings) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(t))
	for _, p := range Phases() {
		if d, ok := t[p]; ok {
			attrs = append(attrs, slog.Float64(p.String()+"_ms", float64(d.Microseconds())/1000))
		}
	}
	return slog.GroupValue(attrs...)
}
