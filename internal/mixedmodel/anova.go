package mixedmodel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// AnovaRow is one fixed term's Wald F-test with a partial eta squared effect
// size. Denominator degrees of freedom are the residual df n - p.
type AnovaRow struct {
	Term         string
	F            float64
	DfNum        int
	DfDen        int
	PValue       float64
	PartialEtaSq float64
}

// Anova tests every fixed term (mass, population, temperature, interaction)
// against zero using the term's joint Wald statistic.
func (f *Fit) Anova() ([]AnovaRow, error) {
	var out []AnovaRow
	for _, term := range f.Design.Terms {
		q := term.Len
		bt := mat.NewVecDense(q, nil)
		ct := mat.NewSymDense(q, nil)
		for i := 0; i < q; i++ {
			bt.SetVec(i, f.Beta[term.Start+i])
			for j := i; j < q; j++ {
				ct.SetSym(i, j, f.Cov.At(term.Start+i, term.Start+j))
			}
		}
		var chol mat.Cholesky
		if !chol.Factorize(ct) {
			return nil, fmt.Errorf("anova: covariance block for %q is singular", term.Name)
		}
		sol := mat.NewVecDense(q, nil)
		if err := chol.SolveVecTo(sol, bt); err != nil {
			return nil, fmt.Errorf("anova: solve for %q: %w", term.Name, err)
		}
		wald := mat.Dot(bt, sol)
		fstat := wald / float64(q)

		dist := distuv.F{D1: float64(q), D2: float64(f.DfResid)}
		p := 1 - dist.CDF(fstat)
		if math.IsNaN(p) {
			p = 1
		}
		num := float64(q) * fstat
		out = append(out, AnovaRow{
			Term:         term.Name,
			F:            fstat,
			DfNum:        q,
			DfDen:        f.DfResid,
			PValue:       p,
			PartialEtaSq: num / (num + float64(f.DfResid)),
		})
	}
	return out, nil
}
