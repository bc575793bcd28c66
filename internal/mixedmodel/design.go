// Package mixedmodel fits the linear mixed-effects model
// rate ~ mass + population + temperature + population:temperature + (1|hour)
// by restricted maximum likelihood.
package mixedmodel

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/MothMetrics/respclim-cli/internal/dataset"
)

// TermSpan locates one fixed-effect term's columns in the design matrix.
type TermSpan struct {
	Name  string
	Start int
	Len   int
}

// Design holds the complete-case fixed-effect design matrix, the response,
// and the random-effect grouping. Categorical factors are one-hot encoded
// with the first pinned level dropped as the reference.
type Design struct {
	X     [][]float64
	Y     []float64
	Group []int // index into GroupSizes, one entry per row
	Names []string
	Terms []TermSpan

	GroupLabels []int // distinct hour values, sorted
	GroupSizes  []int

	Levels    dataset.Levels
	MassMean  float64
	NExcluded int

	cellCounts map[string]int
	// interaction slot (pi-1)*(T-1)+(ti-1) -> design column, -1 when the cell
	// has no valid observations and the column would be all zero
	interCols []int
}

func cellKey(pop string, temp float64) string {
	return pop + "|" + strconv.FormatFloat(temp, 'g', -1, 64)
}

// CellCount reports valid (non-missing) observations in a population ×
// temperature cell.
func (d *Design) CellCount(pop string, temp float64) int {
	return d.cellCounts[cellKey(pop, temp)]
}

// NumParams is the fixed-effect coefficient count: at most
// 1 + 1 + (P-1) + (T-1) + (P-1)(T-1), less one per empty cell whose
// interaction column is inestimable.
func (d *Design) NumParams() int { return len(d.Names) }

// Row builds one design row for the given cell and mass, using the same
// encoding as the fitted matrix. Used both during fitting and to evaluate
// the reference grid for marginal means.
func (d *Design) Row(pop string, temp float64, mass float64) ([]float64, error) {
	pi := d.Levels.PopIndex(pop)
	if pi < 0 {
		return nil, fmt.Errorf("unknown population %q", pop)
	}
	ti := d.Levels.TempIndex(temp)
	if ti < 0 {
		return nil, fmt.Errorf("unknown temperature %g", temp)
	}
	P := len(d.Levels.Populations)
	T := len(d.Levels.Temps)
	row := make([]float64, d.NumParams())
	row[0] = 1
	row[1] = mass
	if pi > 0 {
		row[2+(pi-1)] = 1
	}
	if ti > 0 {
		row[2+(P-1)+(ti-1)] = 1
	}
	if pi > 0 && ti > 0 {
		if c := d.interCols[(pi-1)*(T-1)+(ti-1)]; c >= 0 {
			row[c] = 1
		}
	}
	return row, nil
}

// BuildDesign encodes the long table. Rows with a missing response are
// excluded (complete-case) and counted in NExcluded.
func BuildDesign(rows []dataset.LongObservation, lv dataset.Levels) (*Design, error) {
	if len(lv.Populations) < 1 || len(lv.Temps) < 1 {
		return nil, fmt.Errorf("design: empty factor levels")
	}
	P := len(lv.Populations)
	T := len(lv.Temps)

	d := &Design{
		Levels:     lv,
		cellCounts: map[string]int{},
	}

	// Cell occupancy over complete-case rows. Interaction columns for empty
	// cells are inestimable and never emitted; the additive terms still
	// predict those cells.
	for _, r := range rows {
		if math.IsNaN(r.RateULHr) {
			continue
		}
		d.cellCounts[cellKey(r.Population, r.TempC)]++
	}

	// Coefficient names and term spans, reference levels dropped.
	d.Names = append(d.Names, "(Intercept)", "mass_g")
	d.Terms = append(d.Terms, TermSpan{Name: "mass_g", Start: 1, Len: 1})
	popStart := len(d.Names)
	for _, p := range lv.Populations[1:] {
		d.Names = append(d.Names, "population["+p+"]")
	}
	if P > 1 {
		d.Terms = append(d.Terms, TermSpan{Name: "population", Start: popStart, Len: P - 1})
	}
	tempStart := len(d.Names)
	for _, t := range lv.Temps[1:] {
		d.Names = append(d.Names, "temperature["+formatTemp(t)+"]")
	}
	if T > 1 {
		d.Terms = append(d.Terms, TermSpan{Name: "temperature", Start: tempStart, Len: T - 1})
	}
	interStart := len(d.Names)
	d.interCols = make([]int, (P-1)*(T-1))
	for pi, p := range lv.Populations[1:] {
		for ti, t := range lv.Temps[1:] {
			slot := pi*(T-1) + ti
			if d.cellCounts[cellKey(p, t)] == 0 {
				d.interCols[slot] = -1
				continue
			}
			d.interCols[slot] = len(d.Names)
			d.Names = append(d.Names, "population["+p+"]:temperature["+formatTemp(t)+"]")
		}
	}
	if n := len(d.Names) - interStart; n > 0 {
		d.Terms = append(d.Terms, TermSpan{Name: "population:temperature", Start: interStart, Len: n})
	}

	// Grouping factor: distinct hour values, sorted.
	hourIdx := map[int]int{}
	var hours []int
	for _, r := range rows {
		if math.IsNaN(r.RateULHr) {
			continue
		}
		if _, ok := hourIdx[r.Hour]; !ok {
			hourIdx[r.Hour] = 0
			hours = append(hours, r.Hour)
		}
	}
	sort.Ints(hours)
	for i, h := range hours {
		hourIdx[h] = i
	}
	d.GroupLabels = hours
	d.GroupSizes = make([]int, len(hours))

	var massSum float64
	for _, r := range rows {
		if math.IsNaN(r.RateULHr) {
			d.NExcluded++
			continue
		}
		x, err := d.Row(r.Population, r.TempC, r.MassG)
		if err != nil {
			return nil, fmt.Errorf("design: %w", err)
		}
		d.X = append(d.X, x)
		d.Y = append(d.Y, r.RateULHr)
		g := hourIdx[r.Hour]
		d.Group = append(d.Group, g)
		d.GroupSizes[g]++
		massSum += r.MassG
	}
	if len(d.Y) <= d.NumParams() {
		return nil, fmt.Errorf("design: %d usable rows for %d parameters", len(d.Y), d.NumParams())
	}
	d.MassMean = massSum / float64(len(d.Y))
	return d, nil
}

func formatTemp(t float64) string {
	return strconv.FormatFloat(t, 'g', -1, 64)
}
