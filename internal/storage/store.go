package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/mbsolve/internal/sim"
)

const (
	metadataFile = "metadata.json"
	stepsFile    = "steps.csv"
)

var stepsHeader = []string{"step", "time", "iterations", "residual", "violation", "energy", "converged"}

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Scenario   string             `json:"scenario"`
	Preset     string             `json:"preset,omitempty"`
	Solver     string             `json:"solver"`
	Timestamp  time.Time          `json:"timestamp"`
	Seed       uint64             `json:"seed"`
	Dt         float64            `json:"dt"`
	Steps      int                `json:"steps"`
	SweepOrder string             `json:"sweep_order"`
	Omega      float64            `json:"omega"`
	Dof        int                `json:"dof"`
	Rows       int                `json:"rows"`
	Metrics    map[string]float64 `json:"metrics"`
	Errors     []string           `json:"errors,omitempty"`
}

// Save writes a new run directory named <scenario>_<uuid> and returns its
// ID. The ID, Timestamp, Steps and Errors fields of meta are filled in.
func (s *Store) Save(meta RunMetadata, result *sim.Result) (string, error) {
	runID := fmt.Sprintf("%s_%s", meta.Scenario, uuid.NewString())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta.ID = runID
	meta.Timestamp = time.Now()
	meta.Steps = result.StepsTaken
	meta.Metrics = result.Metrics
	for _, err := range result.Errors {
		meta.Errors = append(meta.Errors, err.Error())
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writeSteps(filepath.Join(runDir, stepsFile), result.Steps); err != nil {
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

func writeSteps(path string, steps []sim.StepRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(stepsHeader); err != nil {
		return err
	}
	for _, rec := range steps {
		row := []string{
			strconv.Itoa(rec.Step),
			strconv.FormatFloat(rec.Time, 'f', 6, 64),
			strconv.Itoa(rec.Iterations),
			strconv.FormatFloat(rec.Residual, 'g', 8, 64),
			strconv.FormatFloat(rec.Violation, 'g', 8, 64),
			strconv.FormatFloat(rec.Energy, 'g', 10, 64),
			strconv.FormatBool(rec.Converged),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns all readable runs, newest first. Directories without valid
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

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadSteps reads the per-step records of a run. Malformed lines are
// skipped.
func (s *Store) LoadSteps(runID string) ([]sim.StepRecord, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, stepsFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []sim.StepRecord{}, nil
	}

	steps := make([]sim.StepRecord, 0, len(records)-1)
	for _, record := range records[1:] {
		rec, ok := parseStep(record)
		if !ok {
			continue
		}
		steps = append(steps, rec)
	}
	return steps, nil
}

func parseStep(record []string) (sim.StepRecord, bool) {
	if len(record) != len(stepsHeader) {
		return sim.StepRecord{}, false
	}
	var rec sim.StepRecord
	var err error
	if rec.Step, err = strconv.Atoi(record[0]); err != nil {
		return rec, false
	}
	if rec.Iterations, err = strconv.Atoi(record[2]); err != nil {
		return rec, false
	}
	floats := []*float64{nil, &rec.Time, nil, &rec.Residual, &rec.Violation, &rec.Energy}
	for i, dst := range floats {
		if dst == nil {
			continue
		}
		if *dst, err = strconv.ParseFloat(record[i], 64); err != nil {
			return rec, false
		}
	}
	if rec.Converged, err = strconv.ParseBool(record[6]); err != nil {
		return rec, false
	}
	return rec, true
}
