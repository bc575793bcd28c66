package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MothMetrics/respclim-cli/internal/dataset"
	"github.com/MothMetrics/respclim-cli/internal/emmeans"
	"github.com/MothMetrics/respclim-cli/internal/mixedmodel"
	"github.com/MothMetrics/respclim-cli/internal/pca"
	"github.com/MothMetrics/respclim-cli/internal/regress"
)

func sampleWide() *dataset.WideClimate {
	return &dataset.WideClimate{
		Populations: []string{"Alpha", "Beta", "Gamma"},
		Columns:     []string{"lat", "elev_m", "winter_tmean_C"},
		Rows: [][]float64{
			{40.1, 120, -3},
			{42.5, 480, -7},
			{38.9, 60, 1},
		},
	}
}

func sampleData(t *testing.T) *Data {
	t.Helper()
	wide := sampleWide()
	pcaRes, err := pca.Fit(wide)
	if err != nil {
		t.Fatalf("pca.Fit: %v", err)
	}
	m := NewManifest()
	m.MeasurementsPath = "resp.csv"
	m.ClimatePath = "climate.csv"
	m.MeasurementRows = 6
	m.LongRows = 18
	m.ClimateRows = 12
	m.Warn("one non-data row dropped")

	return &Data{
		Fit: &mixedmodel.Fit{
			Design: &mixedmodel.Design{Names: []string{"(Intercept)", "mass_g"}},
			Beta:   []float64{1.5, 2.0},
			SE:     []float64{0.2, 0.3},
			T:      []float64{7.5, 6.7},
			N:      18, DfResid: 16,
			SigmaHour2: 0.4, SigmaResid2: 0.1,
			Converged: true,
		},
		Anova: []mixedmodel.AnovaRow{
			{Term: "mass", F: 44.9, DfNum: 1, DfDen: 16, PValue: 1e-6, PartialEtaSq: 0.74},
		},
		Emmeans: []emmeans.Estimate{
			{Population: "Alpha", TempC: 15, Mean: 3.2, SE: 0.1, CILo: 3.0, CIHi: 3.4, CompLo: 3.05, CompHi: 3.35, CellCount: 15},
		},
		PCA: pcaRes,
		Regressions: []regress.Result{
			{TempC: 15, Component: 1, Slope: 0.8, Intercept: 3.0, R2: 0.9, AdjR2: 0.8, PValue: 0.02, AIC: -4.2, DfResid: 1, N: 3},
		},
		Wide:         wide,
		InQuarantine: map[string]bool{"Alpha": true, "Beta": false, "Gamma": false},
		Manifest:     m,
	}
}

func TestWriteArtifacts(t *testing.T) {
	d := sampleData(t)
	dir := t.TempDir()
	if err := d.WriteArtifacts(dir); err != nil {
		t.Fatalf("WriteArtifacts: %v", err)
	}
	for _, name := range []string{
		"coefficients.csv", "anova.csv", "emmeans.csv",
		"pca_scores.csv", "pca_loadings.csv", "pca_variance.csv",
		"regressions.csv", "climate_wide.csv",
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("artifact %s: %v", name, err)
		}
	}

	f, err := os.Open(filepath.Join(dir, "coefficients.csv"))
	if err != nil {
		t.Fatalf("open coefficients: %v", err)
	}
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read coefficients: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("coefficient rows = %d, want header + 2", len(recs))
	}
	if recs[1][0] != "(Intercept)" || recs[2][0] != "mass_g" {
		t.Fatalf("coefficient names = %v, %v", recs[1], recs[2])
	}
}

func TestWriteArtifactsSkipsAbsentStages(t *testing.T) {
	d := &Data{Regressions: []regress.Result{{TempC: 15, Component: 1, N: 3}}}
	dir := t.TempDir()
	if err := d.WriteArtifacts(dir); err != nil {
		t.Fatalf("WriteArtifacts: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "regressions.csv" {
		t.Fatalf("entries = %v, want only regressions.csv", entries)
	}
}

func TestClimateWideIncludesQuarantineColumn(t *testing.T) {
	d := sampleData(t)
	header, rows := d.climateWideRows()
	if header[len(header)-1] != "in_quarantine" {
		t.Fatalf("header = %v", header)
	}
	if rows[0][len(rows[0])-1] != "true" {
		t.Fatalf("Alpha quarantine flag = %v", rows[0])
	}
	if rows[1][len(rows[1])-1] != "false" {
		t.Fatalf("Beta quarantine flag = %v", rows[1])
	}

	d.InQuarantine = nil
	header, rows = d.climateWideRows()
	if header[len(header)-1] == "in_quarantine" {
		t.Fatalf("quarantine column present without boundary: %v", header)
	}
	if len(rows[0]) != len(header) {
		t.Fatalf("row width %d, header width %d", len(rows[0]), len(header))
	}
}

func TestMarkdownSections(t *testing.T) {
	md := sampleData(t).Markdown()
	for _, want := range []string{
		"[RUN]", "[MIXED MODEL]", "[ANOVA]", "[MARGINAL MEANS]",
		"[PCA]", "[REGRESSIONS]", "[QUARANTINE]", "[WARNINGS]",
		"(1|hour), REML",
		"Inside boundary: Alpha",
		"one non-data row dropped",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q", want)
		}
	}
}

func TestMarkdownSubsetRendersOnlyPresentStages(t *testing.T) {
	d := &Data{Regressions: []regress.Result{{TempC: 15, Component: 1, N: 3}}}
	md := d.Markdown()
	if !strings.Contains(md, "[REGRESSIONS]") {
		t.Fatalf("missing regressions section:\n%s", md)
	}
	for _, absent := range []string{"[MIXED MODEL]", "[ANOVA]", "[PCA]", "[QUARANTINE]"} {
		if strings.Contains(md, absent) {
			t.Fatalf("unexpected section %q:\n%s", absent, md)
		}
	}
}

func TestManifestSave(t *testing.T) {
	dir := t.TempDir()
	m := NewManifest()
	m.MeasurementsPath = "resp.csv"
	m.Warn("example warning")
	if err := m.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var back Manifest
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal manifest: %v", err)
	}
	if back.RunID != m.RunID {
		t.Fatalf("run id = %q, want %q", back.RunID, m.RunID)
	}
	if back.FinishedAt.IsZero() {
		t.Fatal("finished_at not set")
	}
	if len(back.Warnings) != 1 || back.Warnings[0] != "example warning" {
		t.Fatalf("warnings = %v", back.Warnings)
	}
}
