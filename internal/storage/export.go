package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/partlife/internal/metrics"
)

type ExportData struct {
	Metadata  RunMetadata      `json:"metadata"`
	Samples   []metrics.Sample `json:"samples"`
	Particles []ParticleRecord `json:"particles,omitempty"`
}

// Export gathers a stored run. Particles are included when withParticles
// is set.
func (s *Store) Export(runID string, withParticles bool) (*ExportData, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	samples, err := s.LoadSamples(runID)
	if err != nil {
		return nil, err
	}
	data := &ExportData{Metadata: *meta, Samples: samples}
	if withParticles {
		ps, err := s.LoadParticles(runID)
		if err != nil {
			return nil, err
		}
		data.Particles = ToRecords(ps)
	}
	return data, nil
}

func WriteJSON(w io.Writer, data *ExportData) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func ExportJSON(path string, data *ExportData) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteJSON(file, data)
}

func ExportJSONStdout(data *ExportData) error {
	return WriteJSON(os.Stdout, data)
}
