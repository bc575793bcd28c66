package mixedmodel

import (
	"math"
	"math/rand"
	"testing"

	"github.com/MothMetrics/respclim-cli/internal/dataset"
)

// synthLong builds a balanced long table: pops × temps × individuals × 3
// hours, with rate = massSlope*mass + tempOffset*I(temp==temps[1]) +
// hourEffect[h] + noise.
func synthLong(pops []string, temps []float64, individuals int, massSlope, tempOffset, noiseSD float64, hourEffect [3]float64, rng *rand.Rand) []dataset.LongObservation {
	var rows []dataset.LongObservation
	for _, p := range pops {
		for _, tc := range temps {
			for i := 0; i < individuals; i++ {
				mass := 0.8 + 0.1*float64(i%5)
				for h := 1; h <= 3; h++ {
					y := massSlope*mass + hourEffect[h-1] + noiseSD*rng.NormFloat64()
					if tc == temps[1] {
						y += tempOffset
					}
					rows = append(rows, dataset.LongObservation{
						Population: p,
						TempC:      tc,
						MassG:      mass,
						Hour:       h,
						RateULHr:   y,
					})
				}
			}
		}
	}
	return rows
}

func TestCoefficientCount(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pops := []string{"Alpha", "Beta", "Gamma"}
	temps := []float64{15, 25, 30}
	rows := synthLong(pops, temps, 4, 2, 5, 0.1, [3]float64{}, rng)

	d, err := BuildDesign(rows, dataset.BuildLevels(rows, "alphabetical"))
	if err != nil {
		t.Fatalf("BuildDesign: %v", err)
	}
	// 1 + 1 + (P-1) + (T-1) + (P-1)(T-1)
	want := 1 + 1 + 2 + 2 + 4
	if d.NumParams() != want {
		t.Fatalf("params = %d, want %d", d.NumParams(), want)
	}
	if len(d.Terms) != 3+1 {
		t.Fatalf("terms = %d, want 4", len(d.Terms))
	}
}

func TestCoefficientCountAfterExclusion(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	rows := synthLong([]string{"Alpha", "Beta"}, []float64{15, 25}, 5, 2, 5, 0.1, [3]float64{}, rng)
	// Knock out a few responses; levels still all present.
	rows[0].RateULHr = math.NaN()
	rows[7].RateULHr = math.NaN()

	d, err := BuildDesign(rows, dataset.BuildLevels(rows, "alphabetical"))
	if err != nil {
		t.Fatalf("BuildDesign: %v", err)
	}
	if d.NExcluded != 2 {
		t.Fatalf("excluded = %d, want 2", d.NExcluded)
	}
	if d.NumParams() != 1+1+1+1+1 {
		t.Fatalf("params = %d, want 5", d.NumParams())
	}
	if len(d.Y) != 2*2*5*3-2 {
		t.Fatalf("usable rows = %d", len(d.Y))
	}
}

func TestREMLRecoversMassSlopeAndFlagsTemperature(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	// 2 populations × 2 temperatures × 5 individuals × 3 hours, known
	// generating model: rate = 2*mass + 8*I(temp=25) + noise.
	rows := synthLong([]string{"Alpha", "Beta"}, []float64{15, 25}, 5, 2.0, 8.0, 0.2, [3]float64{}, rng)

	d, err := BuildDesign(rows, dataset.BuildLevels(rows, "alphabetical"))
	if err != nil {
		t.Fatalf("BuildDesign: %v", err)
	}
	fit, err := FitREML(d)
	if err != nil {
		t.Fatalf("FitREML: %v", err)
	}
	if !fit.Converged {
		t.Fatalf("fit did not converge: %s", fit.Message)
	}
	massIdx := 1
	if d.Names[massIdx] != "mass_g" {
		t.Fatalf("coefficient order changed: %v", d.Names)
	}
	if math.Abs(fit.Beta[massIdx]-2.0) > 0.5 {
		t.Fatalf("mass slope = %g, want within 0.5 of 2.0", fit.Beta[massIdx])
	}

	rowsA, err := fit.Anova()
	if err != nil {
		t.Fatalf("Anova: %v", err)
	}
	var tempRow *AnovaRow
	for i := range rowsA {
		if rowsA[i].Term == "temperature" {
			tempRow = &rowsA[i]
		}
	}
	if tempRow == nil {
		t.Fatalf("no temperature term in %v", rowsA)
	}
	if tempRow.PValue >= 0.05 {
		t.Fatalf("temperature p = %g, want < 0.05", tempRow.PValue)
	}
	if tempRow.PartialEtaSq <= 0 || tempRow.PartialEtaSq > 1 {
		t.Fatalf("partial eta^2 = %g", tempRow.PartialEtaSq)
	}
}

func TestREMLEstimatesHourVariance(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	// Strong hour effects relative to noise: the random-intercept variance
	// must come out clearly positive.
	rows := synthLong([]string{"Alpha", "Beta", "Gamma"}, []float64{15, 25}, 6, 2.0, 4.0, 0.1, [3]float64{-2, 0, 2}, rng)

	d, err := BuildDesign(rows, dataset.BuildLevels(rows, "alphabetical"))
	if err != nil {
		t.Fatalf("BuildDesign: %v", err)
	}
	fit, err := FitREML(d)
	if err != nil {
		t.Fatalf("FitREML: %v", err)
	}
	if fit.Boundary {
		t.Fatalf("unexpected boundary fit: %s", fit.Message)
	}
	if fit.SigmaHour2 <= 0 {
		t.Fatalf("hour variance = %g, want > 0", fit.SigmaHour2)
	}
	if fit.SigmaResid2 <= 0 {
		t.Fatalf("residual variance = %g", fit.SigmaResid2)
	}
}

func TestREMLBoundaryWhenNoGroupEffect(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	rows := synthLong([]string{"Alpha", "Beta"}, []float64{15, 25}, 8, 2.0, 4.0, 0.3, [3]float64{}, rng)

	d, err := BuildDesign(rows, dataset.BuildLevels(rows, "alphabetical"))
	if err != nil {
		t.Fatalf("BuildDesign: %v", err)
	}
	fit, err := FitREML(d)
	if err != nil {
		t.Fatalf("FitREML: %v", err)
	}
	// With no hour effect in the generator the variance ratio should land at
	// (or next to) the boundary, and the fit must still report cleanly.
	if fit.SigmaHour2 > 0.1 {
		t.Fatalf("hour variance = %g, want near zero", fit.SigmaHour2)
	}
	if !fit.Converged {
		t.Fatalf("boundary case should still converge: %s", fit.Message)
	}
}

func TestFitWithEmptyCell(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	rows := synthLong([]string{"Alpha", "Beta", "Gamma"}, []float64{15, 25}, 4, 2.0, 3.0, 0.2, [3]float64{}, rng)
	// Gamma was never assayed at 25 °C.
	kept := rows[:0]
	for _, r := range rows {
		if r.Population == "Gamma" && r.TempC == 25 {
			continue
		}
		kept = append(kept, r)
	}

	d, err := BuildDesign(kept, dataset.BuildLevels(kept, "alphabetical"))
	if err != nil {
		t.Fatalf("BuildDesign: %v", err)
	}
	// 1 + 1 + (P-1) + (T-1) + interactions for the 2 occupied non-reference
	// cells minus the empty Gamma×25 one.
	if d.NumParams() != 1+1+2+1+1 {
		t.Fatalf("params = %d, want 6: %v", d.NumParams(), d.Names)
	}
	if d.CellCount("Gamma", 25) != 0 {
		t.Fatalf("Gamma×25 count = %d, want 0", d.CellCount("Gamma", 25))
	}
	for _, name := range d.Names {
		if name == "population[Gamma]:temperature[25]" {
			t.Fatalf("inestimable interaction column emitted: %v", d.Names)
		}
	}

	fit, err := FitREML(d)
	if err != nil {
		t.Fatalf("FitREML: %v", err)
	}
	if !fit.Converged {
		t.Fatalf("fit did not converge: %s", fit.Message)
	}
	// The empty cell is still predictable from the additive terms.
	row, err := d.Row("Gamma", 25, 1.0)
	if err != nil {
		t.Fatalf("Row: %v", err)
	}
	if len(row) != d.NumParams() {
		t.Fatalf("row length = %d, want %d", len(row), d.NumParams())
	}
}

func TestFitWhenPopulationRatesAllMissing(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	rows := synthLong([]string{"Alpha", "Beta"}, []float64{15, 25}, 5, 2.0, 4.0, 0.2, [3]float64{}, rng)
	ghost := synthLong([]string{"Gamma"}, []float64{15, 25}, 5, 2.0, 4.0, 0.2, [3]float64{}, rng)
	for i := range ghost {
		ghost[i].RateULHr = math.NaN()
	}
	rows = append(rows, ghost...)

	lv := dataset.BuildLevels(rows, "alphabetical")
	if len(lv.Populations) != 2 {
		t.Fatalf("populations = %v, want Gamma dropped", lv.Populations)
	}
	d, err := BuildDesign(rows, lv)
	if err != nil {
		t.Fatalf("BuildDesign: %v", err)
	}
	if d.NExcluded != len(ghost) {
		t.Fatalf("excluded = %d, want %d", d.NExcluded, len(ghost))
	}
	if _, err := FitREML(d); err != nil {
		t.Fatalf("FitREML: %v", err)
	}
}

func TestDiagnosticsShape(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	rows := synthLong([]string{"Alpha", "Beta"}, []float64{15, 25}, 5, 2.0, 4.0, 0.2, [3]float64{}, rng)

	d, err := BuildDesign(rows, dataset.BuildLevels(rows, "alphabetical"))
	if err != nil {
		t.Fatalf("BuildDesign: %v", err)
	}
	fit, err := FitREML(d)
	if err != nil {
		t.Fatalf("FitREML: %v", err)
	}
	diag := fit.Diagnose()
	if math.Abs(diag.ResidMean) > 0.1 {
		t.Fatalf("residual mean = %g, want near 0", diag.ResidMean)
	}
	if diag.ResidSD <= 0 {
		t.Fatalf("residual sd = %g", diag.ResidSD)
	}
	for i, v := range diag.VarByFittedTercile {
		if v <= 0 {
			t.Fatalf("tercile %d variance = %g", i, v)
		}
	}
}

func TestRowEncoding(t *testing.T) {
	lv := dataset.Levels{Populations: []string{"Alpha", "Beta"}, Temps: []float64{15, 25}}
	d := &Design{Levels: lv, interCols: []int{4}}
	d.Names = []string{"(Intercept)", "mass_g", "population[Beta]", "temperature[25]", "population[Beta]:temperature[25]"}

	ref, err := d.Row("Alpha", 15, 1.0)
	if err != nil {
		t.Fatalf("Row: %v", err)
	}
	want := []float64{1, 1, 0, 0, 0}
	for i := range want {
		if ref[i] != want[i] {
			t.Fatalf("reference row = %v, want %v", ref, want)
		}
	}
	full, err := d.Row("Beta", 25, 2.0)
	if err != nil {
		t.Fatalf("Row: %v", err)
	}
	want = []float64{1, 2, 1, 1, 1}
	for i := range want {
		if full[i] != want[i] {
			t.Fatalf("full row = %v, want %v", full, want)
		}
	}
	if _, err := d.Row("Ghost", 15, 1.0); err == nil {
		t.Fatal("expected error for unknown population")
	}
}
