package pipeline

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MothMetrics/respclim-cli/internal/config"
)

// fixture builds a measurement table for 5 populations (one of which has no
// climate record), a climate table for the 4 matched populations, and a
// boundary polygon enclosing the first two collection sites.
func fixture(t *testing.T) *config.Global {
	t.Helper()
	dir := t.TempDir()

	climatePops := []string{"Alpha", "Beta", "Gamma", "Delta"}
	allPops := append(append([]string(nil), climatePops...), "Zeta")
	temps := []float64{15, 25}
	rng := rand.New(rand.NewSource(9))

	var mb strings.Builder
	mb.WriteString("file,marker,population,temp_C,mass_g,rate_h1,rate_h2,rate_h3\n")
	for pi, p := range allPops {
		for ti, tc := range temps {
			for j := 0; j < 3; j++ {
				mass := 0.3 + 0.2*float64(j)
				rates := make([]string, 3)
				for h := 0; h < 3; h++ {
					y := 2.0*mass + 0.5*float64(pi) + 4.0*float64(ti) +
						0.5*(float64(h)-1) + 0.1*rng.NormFloat64()
					rates[h] = fmt.Sprintf("%.5f", y)
				}
				// One missing response to exercise complete-case exclusion.
				if p == "Alpha" && ti == 0 && j == 0 {
					rates[1] = ""
				}
				fmt.Fprintf(&mb, "%s_%g_%d.txt,co2,%s,%g,%.2f,%s,%s,%s\n",
					p, tc, j, p, tc, mass, rates[0], rates[1], rates[2])
			}
		}
	}
	measurements := filepath.Join(dir, "resp.csv")
	if err := os.WriteFile(measurements, []byte(mb.String()), 0o644); err != nil {
		t.Fatalf("write measurements: %v", err)
	}

	var cb strings.Builder
	cb.WriteString("population,season,elev_m,ppt_mm,tmin_C,tmean_C,tmax_C,trange_C,lat,lon\n")
	for i, p := range climatePops {
		for si, s := range []string{"winter", "spring", "summer", "fall", "Annual"} {
			fmt.Fprintf(&cb, "%s,%s,%d,%d,%d,%d,%d,%d,%d,%d\n",
				p, s,
				100+37*i,      // elev_m
				200+11*i+7*si, // ppt_mm
				-5+2*i+5*si,   // tmin_C
				0+3*i+5*si,    // tmean_C
				8+4*i+5*si,    // tmax_C
				13+2*i,        // trange_C
				40+i, -75-i)
		}
	}
	cb.WriteString("Source: seasonal normals 1991-2020,,,,,,,,,\n")
	climate := filepath.Join(dir, "climate.csv")
	if err := os.WriteFile(climate, []byte(cb.String()), 0o644); err != nil {
		t.Fatalf("write climate: %v", err)
	}

	boundary := filepath.Join(dir, "boundary.geojson")
	geojson := `{"type":"Feature","properties":{},"geometry":{"type":"Polygon",
		"coordinates":[[[-76.5,39.5],[-74.5,39.5],[-74.5,41.5],[-76.5,41.5],[-76.5,39.5]]]}}`
	if err := os.WriteFile(boundary, []byte(geojson), 0o644); err != nil {
		t.Fatalf("write boundary: %v", err)
	}

	return &config.Global{
		MeasurementsPath: measurements,
		ClimatePath:      climate,
		BoundaryPath:     boundary,
		OutputDir:        filepath.Join(dir, "out"),
		Alpha:            0.05,
		Adjust:           "sidak",
		Components:       2,
		ReferencePolicy:  "alphabetical",
	}
}

func TestRunEndToEnd(t *testing.T) {
	cfg := fixture(t)
	res, err := Run(cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	m := res.Manifest
	if m.MeasurementRows != 5*2*3 {
		t.Fatalf("measurement rows = %d, want 30", m.MeasurementRows)
	}
	if m.LongRows != 90 {
		t.Fatalf("long rows = %d, want 90", m.LongRows)
	}
	if m.ExcludedMissingRate != 1 {
		t.Fatalf("excluded = %d, want 1", m.ExcludedMissingRate)
	}
	if len(m.UnmatchedPops) != 1 || m.UnmatchedPops[0] != "Zeta" {
		t.Fatalf("unmatched = %v, want [Zeta]", m.UnmatchedPops)
	}

	if !res.Fit.Converged {
		t.Fatalf("fit did not converge: %s", res.Fit.Message)
	}
	if res.Fit.Design.Names[1] != "mass_g" {
		t.Fatalf("coefficient order: %v", res.Fit.Design.Names)
	}
	if math.Abs(res.Fit.Beta[1]-2.0) > 0.5 {
		t.Fatalf("mass slope = %g, want within 0.5 of 2.0", res.Fit.Beta[1])
	}
	var tempP float64 = -1
	for _, a := range res.Anova {
		if a.Term == "temperature" {
			tempP = a.PValue
		}
	}
	if tempP < 0 || tempP >= 0.01 {
		t.Fatalf("temperature p = %g, want < 0.01", tempP)
	}

	// 5 populations × 2 assay temperatures.
	if len(res.Emmeans) != 10 {
		t.Fatalf("marginal means = %d, want 10", len(res.Emmeans))
	}

	if got := len(res.PCA.Populations); got != 4 {
		t.Fatalf("PCA populations = %d, want 4", got)
	}
	var total float64
	for _, f := range res.PCA.VarFrac {
		total += f
	}
	if math.Abs(total-1) > 1e-9 {
		t.Fatalf("variance fractions sum to %g", total)
	}

	// 2 temperatures × 2 components; the unscored population is skipped.
	if len(res.Regressions) != 4 {
		t.Fatalf("regressions = %d, want 4", len(res.Regressions))
	}
	for _, r := range res.Regressions {
		if r.N != 4 {
			t.Fatalf("regression n = %d, want 4 (Zeta has no score)", r.N)
		}
	}

	want := map[string]bool{"Alpha": true, "Beta": true, "Gamma": false, "Delta": false}
	for p, in := range want {
		if res.InQuarantine[p] != in {
			t.Fatalf("quarantine[%s] = %v, want %v", p, res.InQuarantine[p], in)
		}
	}
}

func TestRunWritesArtifactsAndReport(t *testing.T) {
	cfg := fixture(t)
	res, err := Run(cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := res.WriteArtifacts(cfg.OutputDir); err != nil {
		t.Fatalf("WriteArtifacts: %v", err)
	}
	for _, name := range []string{
		"coefficients.csv", "anova.csv", "emmeans.csv", "pca_scores.csv",
		"pca_loadings.csv", "pca_variance.csv", "regressions.csv", "climate_wide.csv",
	} {
		if _, err := os.Stat(filepath.Join(cfg.OutputDir, name)); err != nil {
			t.Fatalf("artifact %s: %v", name, err)
		}
	}

	md := res.Data.Markdown()
	for _, section := range []string{"[MIXED MODEL]", "[MARGINAL MEANS]", "[PCA]", "[REGRESSIONS]", "[QUARANTINE]"} {
		if !strings.Contains(md, section) {
			t.Fatalf("report missing %s", section)
		}
	}
	if !strings.Contains(md, "Zeta") {
		t.Fatal("report should mention the population without a climate record")
	}
}

func TestRunRequiresInputs(t *testing.T) {
	cfg := fixture(t)
	cfg.MeasurementsPath = ""
	if _, err := Run(cfg); err == nil {
		t.Fatal("expected error without measurements path")
	}
}

func TestRunWithoutBoundarySkipsClassification(t *testing.T) {
	cfg := fixture(t)
	cfg.BoundaryPath = ""
	res, err := Run(cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.InQuarantine != nil {
		t.Fatalf("quarantine map should be nil without a boundary, got %v", res.InQuarantine)
	}
}
