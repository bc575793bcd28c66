// Package report serializes derived pipeline entities: a JSON run manifest,
// one CSV artifact per entity, and a markdown report.
package report

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/MothMetrics/respclim-cli/internal/utils"
)

// Manifest records one pipeline run: inputs, row accounting, exclusions and
// every warning the stages surfaced.
type Manifest struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	MeasurementsPath string `json:"measurements_path"`
	ClimatePath      string `json:"climate_path"`
	BoundaryPath     string `json:"boundary_path,omitempty"`

	MeasurementRows     int      `json:"measurement_rows"`
	LongRows            int      `json:"long_rows"`
	ClimateRows         int      `json:"climate_rows"`
	ExcludedMissingRate int      `json:"excluded_missing_rate"`
	UnmatchedPops       []string `json:"unmatched_populations,omitempty"`

	FitConverged bool   `json:"fit_converged"`
	FitBoundary  bool   `json:"fit_boundary"`
	FitMessage   string `json:"fit_message,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
}

// NewManifest starts a manifest for a fresh run.
func NewManifest() *Manifest {
	return &Manifest{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
}

// Warn appends a warning to the manifest.
func (m *Manifest) Warn(msg string) {
	m.Warnings = append(m.Warnings, msg)
}

// Save writes manifest.json into dir using an atomic write.
func (m *Manifest) Save(dir string) error {
	m.FinishedAt = time.Now().UTC()
	if err := utils.EnsureDir(dir); err != nil {
		return err
	}
	data, err := utils.PrettyJSON(m)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(filepath.Join(dir, "manifest.json"), data)
}
