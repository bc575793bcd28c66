// Package pca computes principal components of the standardized per-population
// climate/geography matrix.
package pca

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/MothMetrics/respclim-cli/internal/dataset"
)

// Result holds scores, loadings and explained-variance fractions. Component
// signs are unidentified; consumers must rely on relative magnitudes only.
type Result struct {
	Populations []string
	Columns     []string

	Scores   *mat.Dense // n × k, population scores per component
	Loadings *mat.Dense // d × k, per-variable loadings per component
	VarFrac  []float64  // non-increasing, sums to 1 over all components

	// Standardization parameters (population mean and population std),
	// stored so Project applies the identical transform as the fit.
	Mean []float64
	Std  []float64
}

// Components returns k, the number of computed components.
func (r *Result) Components() int {
	_, k := r.Loadings.Dims()
	return k
}

// Fit standardizes every column to zero mean and unit variance using
// population (not sample) parameters, then decomposes. Constant columns are
// an error since they cannot be standardized.
func Fit(w *dataset.WideClimate) (*Result, error) {
	n := len(w.Rows)
	d := len(w.Columns)
	if n < 2 {
		return nil, fmt.Errorf("pca: need at least 2 populations, got %d", n)
	}

	res := &Result{
		Populations: w.Populations,
		Columns:     w.Columns,
		Mean:        make([]float64, d),
		Std:         make([]float64, d),
	}
	xs := mat.NewDense(n, d, nil)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		for i := 0; i < n; i++ {
			col[i] = w.Rows[i][j]
		}
		m := stat.Mean(col, nil)
		// population variance: divisor n, matching the transform applied at
		// projection time
		var ss float64
		for _, v := range col {
			ss += (v - m) * (v - m)
		}
		sd := math.Sqrt(ss / float64(n))
		if sd == 0 {
			return nil, fmt.Errorf("pca: column %q is constant and cannot be standardized", w.Columns[j])
		}
		res.Mean[j] = m
		res.Std[j] = sd
		for i := 0; i < n; i++ {
			xs.Set(i, j, (col[i]-m)/sd)
		}
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(xs, nil); !ok {
		return nil, fmt.Errorf("pca: decomposition failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)

	res.Loadings = &vecs
	res.Scores = &mat.Dense{}
	res.Scores.Mul(xs, &vecs)

	total := 0.0
	for _, v := range vars {
		total += v
	}
	res.VarFrac = make([]float64, len(vars))
	for i, v := range vars {
		res.VarFrac[i] = v / total
	}
	return res, nil
}

// Project standardizes a raw feature vector with the stored parameters and
// rotates it into component space.
func (r *Result) Project(x []float64) ([]float64, error) {
	d, k := r.Loadings.Dims()
	if len(x) != d {
		return nil, fmt.Errorf("pca: vector length %d, want %d", len(x), d)
	}
	z := make([]float64, d)
	for j := range x {
		z[j] = (x[j] - r.Mean[j]) / r.Std[j]
	}
	out := make([]float64, k)
	for c := 0; c < k; c++ {
		var v float64
		for j := 0; j < d; j++ {
			v += z[j] * r.Loadings.At(j, c)
		}
		out[c] = v
	}
	return out, nil
}

// Reconstruct rebuilds the standardized matrix from scores and loadings
// (scores · loadingsᵀ). With all components retained this reproduces the
// standardized input to numerical tolerance.
func (r *Result) Reconstruct() *mat.Dense {
	var out mat.Dense
	out.Mul(r.Scores, r.Loadings.T())
	return &out
}

// Score returns population i's score on component c.
func (r *Result) Score(i, c int) float64 { return r.Scores.At(i, c) }

// ScoreByPopulation returns the scores row for a named population.
func (r *Result) ScoreByPopulation(pop string) ([]float64, bool) {
	for i, p := range r.Populations {
		if p == pop {
			_, k := r.Scores.Dims()
			row := make([]float64, k)
			for c := 0; c < k; c++ {
				row[c] = r.Scores.At(i, c)
			}
			return row, true
		}
	}
	return nil, false
}
