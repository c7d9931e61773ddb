package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/mbsolve/internal/sim"
)

type ExportData struct {
	Run   RunMetadata      `json:"run"`
	Steps []sim.StepRecord `json:"steps"`
}

// ExportJSON writes a stored run as one JSON document to path, or to
// stdout when path is empty or "-".
func (s *Store) ExportJSON(runID, path string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	steps, err := s.LoadSteps(runID)
	if err != nil {
		return err
	}
	data := ExportData{Run: *meta, Steps: steps}

	if path == "" || path == "-" {
		return encode(os.Stdout, data)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return encode(file, data)
}

func encode(w io.Writer, data ExportData) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
