// Package pipeline runs the five analysis stages in sequence: ingestion,
// reshaping/join, mixed-effects fit, dimensionality reduction, and the
// cross-domain regressions.
package pipeline

import (
	"fmt"
	"sort"

	"github.com/MothMetrics/respclim-cli/internal/config"
	"github.com/MothMetrics/respclim-cli/internal/dataset"
	"github.com/MothMetrics/respclim-cli/internal/emmeans"
	"github.com/MothMetrics/respclim-cli/internal/geo"
	"github.com/MothMetrics/respclim-cli/internal/mixedmodel"
	"github.com/MothMetrics/respclim-cli/internal/pca"
	"github.com/MothMetrics/respclim-cli/internal/regress"
	"github.com/MothMetrics/respclim-cli/internal/report"
)

// Results carries every derived entity of one run. Each stage's output is
// immutable once produced; later stages only read.
type Results struct {
	report.Data

	Long   []dataset.LongObservation
	Levels dataset.Levels
}

// Run executes the full pipeline against the configured inputs.
func Run(cfg *config.Global) (*Results, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MeasurementsPath == "" || cfg.ClimatePath == "" {
		return nil, fmt.Errorf("pipeline: measurements and climate paths are required")
	}

	m := report.NewManifest()
	m.MeasurementsPath = cfg.MeasurementsPath
	m.ClimatePath = cfg.ClimatePath
	m.BoundaryPath = cfg.BoundaryPath

	// Stage 1: ingestion.
	obs, err := dataset.LoadMeasurements(cfg.MeasurementsPath)
	if err != nil {
		return nil, err
	}
	climate, err := dataset.LoadClimate(cfg.ClimatePath)
	if err != nil {
		return nil, err
	}
	m.MeasurementRows = len(obs)
	m.ClimateRows = len(climate)

	// Stage 2: reshape and join.
	long := dataset.PivotLong(obs)
	long, unmatched := dataset.JoinLatitude(long, climate)
	sort.Strings(unmatched)
	m.LongRows = len(long)
	m.UnmatchedPops = unmatched
	for _, p := range unmatched {
		m.Warn(fmt.Sprintf("population %q has no climate record; latitude left missing", p))
	}

	res := &Results{Long: long}
	res.Manifest = m
	res.Levels = dataset.BuildLevels(long, cfg.ReferencePolicy)

	// Stage 3: mixed-effects fit and marginal means.
	design, err := mixedmodel.BuildDesign(long, res.Levels)
	if err != nil {
		return nil, err
	}
	m.ExcludedMissingRate = design.NExcluded
	if design.NExcluded > 0 {
		m.Warn(fmt.Sprintf("excluded %d rows with missing rate (complete-case fit)", design.NExcluded))
	}
	for _, p := range res.Levels.Populations {
		for _, tc := range res.Levels.Temps {
			if design.CellCount(p, tc) == 0 {
				m.Warn(fmt.Sprintf("no valid observations for %s at %g °C; cell estimated without its interaction term", p, tc))
			}
		}
	}
	fit, err := mixedmodel.FitREML(design)
	if err != nil {
		return nil, err
	}
	m.FitConverged = fit.Converged
	m.FitBoundary = fit.Boundary
	m.FitMessage = fit.Message
	if !fit.Converged {
		m.Warn("mixed model did not converge: " + fit.Message)
	}
	res.Fit = fit
	if res.Anova, err = fit.Anova(); err != nil {
		return nil, err
	}
	res.Diag = fit.Diagnose()
	if res.Emmeans, err = emmeans.Grid(fit, emmeans.Options{Alpha: cfg.Alpha, Adjust: cfg.Adjust}); err != nil {
		return nil, err
	}

	// Stage 4: climate PCA.
	wide, err := dataset.BuildWideClimate(climate)
	if err != nil {
		return nil, err
	}
	res.Wide = wide
	if res.PCA, err = pca.Fit(wide); err != nil {
		return nil, err
	}

	// Stage 5: cross-domain regressions.
	if res.Regressions, err = regress.FitAll(res.Emmeans, res.PCA, cfg.Components); err != nil {
		return nil, err
	}

	// Optional quarantine classification.
	if cfg.BoundaryPath != "" {
		boundary, err := geo.LoadBoundary(cfg.BoundaryPath)
		if err != nil {
			return nil, err
		}
		res.InQuarantine = classify(boundary, climate)
	}
	return res, nil
}

// classify flags each population's coordinates against the boundary.
func classify(b *geo.Boundary, climate []dataset.ClimateRecord) map[string]bool {
	out := map[string]bool{}
	for _, c := range climate {
		if _, done := out[c.Population]; done {
			continue
		}
		out[c.Population] = b.Contains(c.Lon, c.Lat)
	}
	return out
}
