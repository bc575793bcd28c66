// Package regress fits per-temperature ordinary least squares of marginal-mean
// metabolic rate on principal component scores.
package regress

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/MothMetrics/respclim-cli/internal/emmeans"
	"github.com/MothMetrics/respclim-cli/internal/pca"
)

// Result is one (assay temperature, component) regression. N equals the
// population count, so each fit is deliberately low-powered; that limitation
// is reported, not corrected.
type Result struct {
	TempC     float64
	Component int // 1-based
	Slope     float64
	Intercept float64
	R2        float64
	AdjR2     float64
	PValue    float64
	AIC       float64
	DfResid   int
	N         int
}

// FitAll regresses marginal-mean rate on each of the first k components,
// independently per assay temperature. Populations without a PCA score are
// skipped for that pair. No multiplicity correction is applied across pairs.
func FitAll(grid []emmeans.Estimate, scores *pca.Result, k int) ([]Result, error) {
	if k < 1 {
		return nil, fmt.Errorf("regress: need at least one component, got %d", k)
	}
	if avail := scores.Components(); k > avail {
		return nil, fmt.Errorf("regress: requested %d components, PCA produced %d", k, avail)
	}

	byTemp := map[float64][]emmeans.Estimate{}
	var temps []float64
	for _, e := range grid {
		if _, ok := byTemp[e.TempC]; !ok {
			temps = append(temps, e.TempC)
		}
		byTemp[e.TempC] = append(byTemp[e.TempC], e)
	}

	var out []Result
	for _, t := range temps {
		for c := 0; c < k; c++ {
			var xs, ys []float64
			for _, e := range byTemp[t] {
				s, ok := scores.ScoreByPopulation(e.Population)
				if !ok {
					continue
				}
				xs = append(xs, s[c])
				ys = append(ys, e.Mean)
			}
			r, err := fitOne(t, c+1, xs, ys)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
	}
	return out, nil
}

func fitOne(temp float64, component int, xs, ys []float64) (Result, error) {
	n := len(xs)
	if n < 3 {
		return Result{}, fmt.Errorf("regress: temperature %g component %d has %d joined populations, need at least 3", temp, component, n)
	}
	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	r2 := stat.RSquared(xs, ys, nil, alpha, beta)

	var rss, sxx float64
	xbar := stat.Mean(xs, nil)
	for i := range xs {
		resid := ys[i] - (alpha + beta*xs[i])
		rss += resid * resid
		sxx += (xs[i] - xbar) * (xs[i] - xbar)
	}
	dfResid := n - 2

	var p float64
	if rss <= 0 || sxx <= 0 {
		// Perfect fit (or degenerate predictor): slope t-statistic is
		// unbounded, p collapses to zero.
		p = 0
	} else {
		se := math.Sqrt(rss / float64(dfResid) / sxx)
		tstat := math.Abs(beta / se)
		tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(dfResid)}
		p = 2 * (1 - tdist.CDF(tstat))
	}

	// Gaussian log-likelihood AIC with k = 3 (intercept, slope, variance).
	aic := math.Inf(-1)
	if rss > 0 {
		aic = float64(n)*math.Log(rss/float64(n)) + 2*3
	}

	return Result{
		TempC:     temp,
		Component: component,
		Slope:     beta,
		Intercept: alpha,
		R2:        r2,
		AdjR2:     1 - (1-r2)*float64(n-1)/float64(dfResid),
		PValue:    p,
		AIC:       aic,
		DfResid:   dfResid,
		N:         n,
	}, nil
}
