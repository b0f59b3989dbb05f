package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/picklr-io/pinmatrix/internal/ir"
)

// ResultDir is the directory, relative to the project, holding run results.
const ResultDir = ".pinmatrix"

// Result is the persisted summary of an evaluation.
type Result struct {
	GeneratedAt time.Time                     `json:"generatedAt"`
	Primary     ir.PlatformID                 `json:"primary,omitempty"`
	Outputs     map[string]*ir.OutputEntry    `json:"outputs"`
	Aliases     map[string]string             `json:"aliases,omitempty"`
	Failures    map[string]string             `json:"failures,omitempty"`
	Sources     map[string]*ir.ResolvedSource `json:"sources"`
}

// NewResult summarizes ev.
func NewResult(ev *Evaluation) *Result {
	r := &Result{
		GeneratedAt: time.Now().UTC(),
		Primary:     ev.Primary,
		Outputs:     ev.Outputs.Entries,
		Aliases:     ev.Outputs.Aliases,
		Sources:     ev.Sources,
	}
	if len(ev.Failures) > 0 {
		r.Failures = make(map[string]string, len(ev.Failures))
		for p, err := range ev.Failures {
			r.Failures[string(p)] = err.Error()
		}
	}
	return r
}

// WriteResult writes ev to <projectDir>/.pinmatrix/result.json atomically
// and returns the file path.
func WriteResult(projectDir string, ev *Evaluation) (string, error) {
	dir := filepath.Join(projectDir, ResultDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create result directory: %w", err)
	}

	data, err := json.MarshalIndent(NewResult(ev), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}

	path := filepath.Join(dir, "result.json")
	tmp, err := os.CreateTemp(dir, ".result-*.json")
	if err != nil {
		return "", fmt.Errorf("failed to create temp result file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write result: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write result: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to write result %s: %w", path, err)
	}
	return path, nil
}
