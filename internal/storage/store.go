package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/san-kum/partlife/internal/config"
	"github.com/san-kum/partlife/internal/dynamo"
	"github.com/san-kum/partlife/internal/metrics"
	"github.com/san-kum/partlife/internal/sim"
)

// Run directory layout.
const (
	MetadataFile  = "metadata.json"
	ConfigFile    = "config.yaml"
	ParticlesFile = "particles.csv"
	SamplesFile   = "samples.csv"
	PerfFile      = "perf.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir(runID string) string {
	return filepath.Join(s.baseDir, runID)
}

type RunMetadata struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Timestamp     time.Time          `json:"timestamp"`
	Backend       string             `json:"backend"`
	Seed          int64              `json:"seed"`
	Dt            float32            `json:"dt"`
	Steps         int                `json:"steps"`
	Particles     int                `json:"particles"`
	Types         uint32             `json:"types"`
	Boundary      string             `json:"boundary"`
	Spawn         string             `json:"spawn"`
	Rules         string             `json:"rules"`
	CellSize      float32            `json:"cell_size"`
	BudgetHits    uint64             `json:"budget_hits"`
	MillisPerStep float64            `json:"ms_per_step"`
	ElapsedMillis int64              `json:"elapsed_ms"`
	Metrics       map[string]float64 `json:"metrics"`
}

// ParticleRecord is one row of particles.csv.
type ParticleRecord struct {
	Index int     `csv:"index"`
	Type  uint32  `csv:"type"`
	X     float32 `csv:"x"`
	Y     float32 `csv:"y"`
	VX    float32 `csv:"vx"`
	VY    float32 `csv:"vy"`
}

func ToRecords(ps []dynamo.Particle) []ParticleRecord {
	out := make([]ParticleRecord, len(ps))
	for i, p := range ps {
		out[i] = ParticleRecord{Index: i, Type: p.Type, X: p.X, Y: p.Y, VX: p.VX, VY: p.VY}
	}
	return out
}

func FromRecords(rs []ParticleRecord) []dynamo.Particle {
	out := make([]dynamo.Particle, len(rs))
	for i, r := range rs {
		out[i] = dynamo.Particle{X: r.X, Y: r.Y, VX: r.VX, VY: r.VY, Type: r.Type}
	}
	return out
}

// Save writes a run directory and returns its id.
func (s *Store) Save(name string, cfg *config.Config, result *sim.Result) (string, error) {
	now := time.Now()
	runID := fmt.Sprintf("%s_%d", name, now.UnixNano())
	runDir := s.Dir(runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	rules := cfg.Rules.Type
	if cfg.Rules.Matrix != nil {
		rules = "explicit"
	}
	meta := RunMetadata{
		ID:            runID,
		Name:          name,
		Timestamp:     now,
		Backend:       result.Backend,
		Seed:          cfg.Run.Seed,
		Dt:            cfg.Run.Dt,
		Steps:         result.StepsTaken,
		Particles:     len(result.Final),
		Types:         cfg.Simulation.NumTypes,
		Boundary:      cfg.Simulation.Boundary.String(),
		Spawn:         cfg.Spawn.Pattern,
		Rules:         rules,
		CellSize:      result.CellSize,
		BudgetHits:    result.BudgetHits,
		MillisPerStep: result.Perf.MillisPerStep(),
		ElapsedMillis: result.Elapsed.Milliseconds(),
		Metrics:       result.Metrics,
	}

	if err := writeJSON(filepath.Join(runDir, MetadataFile), meta); err != nil {
		return "", err
	}
	if err := config.Save(filepath.Join(runDir, ConfigFile), cfg); err != nil {
		return "", err
	}
	if err := writeCSV(filepath.Join(runDir, ParticlesFile), ToRecords(result.Final)); err != nil {
		return "", err
	}
	if err := writeCSV(filepath.Join(runDir, SamplesFile), result.Samples); err != nil {
		return "", err
	}
	perf := []metrics.PerfStatsCSV{result.Perf.ToCSV(result.StepsTaken, result.Backend)}
	if err := writeCSV(filepath.Join(runDir, PerfFile), perf); err != nil {
		return "", err
	}

	return runID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeCSV(path string, records any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	if err := gocsv.Marshal(records, f); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// List returns all runs, newest first. Directories without readable
// metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir(runID), MetadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadConfig(runID string) (*config.Config, error) {
	return config.Load(filepath.Join(s.Dir(runID), ConfigFile))
}

func (s *Store) LoadParticles(runID string) ([]dynamo.Particle, error) {
	var records []ParticleRecord
	if err := readCSV(filepath.Join(s.Dir(runID), ParticlesFile), &records); err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Index < records[j].Index })
	return FromRecords(records), nil
}

func (s *Store) LoadSamples(runID string) ([]metrics.Sample, error) {
	var samples []metrics.Sample
	if err := readCSV(filepath.Join(s.Dir(runID), SamplesFile), &samples); err != nil {
		return nil, err
	}
	return samples, nil
}

func readCSV(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := gocsv.UnmarshalFile(f, out); err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return nil
}
