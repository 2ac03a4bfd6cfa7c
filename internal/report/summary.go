// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/rdm-harvest/pkg/types"
)

const runsDir = "runs"

// RunSummary is the on-disk record of one harvest run.
type RunSummary struct {
	RunID       string            `yaml:"run_id"`
	Source      string            `yaml:"source"`
	Environment types.Environment `yaml:"environment"`
	Policy      types.ErrorPolicy `yaml:"policy"`
	Started     time.Time         `yaml:"started"`
	Finished    time.Time         `yaml:"finished"`
	Totals      Totals            `yaml:"totals"`
	Aborted     bool              `yaml:"aborted,omitempty"`
	Results     []types.DOIResult `yaml:"results"`
}

// Totals counts outcomes.
type Totals struct {
	Written int `yaml:"written"`
	Skipped int `yaml:"skipped"`
	Failed  int `yaml:"failed"`
}

// SummaryPath returns where the summary of runID is stored under dataDir.
func SummaryPath(dataDir, runID string) string {
	return filepath.Join(dataDir, runsDir, runID+".yaml")
}

// WriteRunSummary saves s under dataDir/runs and returns the file path.
func WriteRunSummary(dataDir string, s RunSummary) (string, error) {
	if s.RunID == "" {
		return "", fmt.Errorf("run summary has no run id")
	}
	path := SummaryPath(dataDir, s.RunID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating runs directory: %w", err)
	}
	data, err := yaml.Marshal(&s)
	if err != nil {
		return "", fmt.Errorf("marshaling run summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing run summary: %w", err)
	}
	return path, nil
}

// ReadRunSummary loads a run summary file.
func ReadRunSummary(path string) (RunSummary, error) {
	var s RunSummary
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("reading run summary: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parsing run summary: %w", err)
	}
	return s, nil
}
