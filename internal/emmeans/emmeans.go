// Package emmeans computes estimated marginal means over a reference grid
// that fixes body mass at its complete-case mean, with multiplicity-adjusted
// comparison intervals for within-temperature population contrasts.
package emmeans

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/MothMetrics/respclim-cli/internal/mixedmodel"
)

// Estimate is one (population, temperature) cell of the reference grid.
// Non-overlap of two cells' comparison intervals within the same temperature
// indicates a detectable difference at the family-wise level.
type Estimate struct {
	Population string
	TempC      float64
	Mean       float64
	SE         float64
	CILo       float64
	CIHi       float64
	// Comparison interval; equal to Mean on both sides when the cell has
	// fewer than two valid observations (degenerate cell rule).
	CompLo    float64
	CompHi    float64
	CellCount int
}

// Options controls interval construction.
type Options struct {
	Alpha  float64
	Adjust string // sidak | bonferroni | none
}

// Grid evaluates the reference grid over every (population, temperature)
// cell present in the pinned levels. Mass is held at the design's global
// mean; intervals use the residual-df t distribution.
func Grid(fit *mixedmodel.Fit, opt Options) ([]Estimate, error) {
	if opt.Alpha <= 0 || opt.Alpha >= 1 {
		return nil, fmt.Errorf("emmeans: alpha must be in (0,1), got %g", opt.Alpha)
	}
	d := fit.Design
	lv := d.Levels
	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(fit.DfResid)}

	tCI := tdist.Quantile(1 - opt.Alpha/2)
	tComp, err := adjustedQuantile(tdist, opt, len(lv.Populations))
	if err != nil {
		return nil, err
	}

	var out []Estimate
	for _, pop := range lv.Populations {
		for _, temp := range lv.Temps {
			x, err := d.Row(pop, temp, d.MassMean)
			if err != nil {
				return nil, fmt.Errorf("emmeans: %w", err)
			}
			mean := dot(x, fit.Beta)
			se := math.Sqrt(quadForm(x, fit))

			e := Estimate{
				Population: pop,
				TempC:      temp,
				Mean:       mean,
				SE:         se,
				CILo:       mean - tCI*se,
				CIHi:       mean + tCI*se,
				CellCount:  d.CellCount(pop, temp),
			}
			if e.CellCount < 2 {
				// Degenerate cell: the comparison bound is undefined, so it
				// collapses to the point estimate (zero-width marker).
				e.CompLo = mean
				e.CompHi = mean
			} else {
				half := tComp / math.Sqrt2 * se
				e.CompLo = mean - half
				e.CompHi = mean + half
			}
			out = append(out, e)
		}
	}
	return out, nil
}

// adjustedQuantile returns the t quantile for the comparison intervals,
// adjusted for the P*(P-1)/2 pairwise population contrasts evaluated within
// each temperature.
func adjustedQuantile(tdist distuv.StudentsT, opt Options, numPops int) (float64, error) {
	m := numPops * (numPops - 1) / 2
	if m < 1 {
		m = 1
	}
	alpha := opt.Alpha
	switch opt.Adjust {
	case "sidak":
		alpha = 1 - math.Pow(1-opt.Alpha, 1/float64(m))
	case "bonferroni":
		alpha = opt.Alpha / float64(m)
	case "none", "":
	default:
		return 0, fmt.Errorf("emmeans: unsupported adjust %q", opt.Adjust)
	}
	return tdist.Quantile(1 - alpha/2), nil
}

func dot(x, y []float64) float64 {
	var v float64
	for i := range x {
		v += x[i] * y[i]
	}
	return v
}

// quadForm computes x' Cov x for the standard error of a grid prediction.
func quadForm(x []float64, fit *mixedmodel.Fit) float64 {
	var v float64
	for i := range x {
		if x[i] == 0 {
			continue
		}
		for j := range x {
			if x[j] == 0 {
				continue
			}
			v += x[i] * fit.Cov.At(i, j) * x[j]
		}
	}
	return v
}
