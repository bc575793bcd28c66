package mixedmodel

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Diagnostics summarizes conditional residuals for visual inspection of the
// usual linear-model assumptions. No automated pass/fail is applied.
type Diagnostics struct {
	ResidMean float64
	ResidSD   float64
	// Shape of the residual distribution (normality).
	Skewness   float64
	ExKurtosis float64
	// Residual variance within fitted-value terciles (homogeneity). A strong
	// trend across terciles suggests heteroscedasticity.
	VarByFittedTercile [3]float64
	// Correlation between fitted values and residuals (linearity); near zero
	// for a well-specified mean structure.
	FittedResidCorr float64
}

// Diagnose computes residual summaries from the fit.
func (f *Fit) Diagnose() Diagnostics {
	resid := f.Residuals()
	fitted := f.FittedValues()

	var d Diagnostics
	d.ResidMean = stat.Mean(resid, nil)
	d.ResidSD = stat.StdDev(resid, nil)
	d.Skewness = stat.Skew(resid, nil)
	d.ExKurtosis = stat.ExKurtosis(resid, nil)
	d.FittedResidCorr = stat.Correlation(fitted, resid, nil)

	// Order residuals by fitted value, split in three, variance per slice.
	idx := make([]int, len(fitted))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return fitted[idx[a]] < fitted[idx[b]] })
	third := len(idx) / 3
	for t := 0; t < 3; t++ {
		lo := t * third
		hi := lo + third
		if t == 2 {
			hi = len(idx)
		}
		if hi-lo < 2 {
			continue
		}
		slice := make([]float64, 0, hi-lo)
		for _, i := range idx[lo:hi] {
			slice = append(slice, resid[i])
		}
		d.VarByFittedTercile[t] = stat.Variance(slice, nil)
	}
	return d
}
