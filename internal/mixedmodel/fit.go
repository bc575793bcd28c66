package mixedmodel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Fit is the immutable artifact of one REML estimation.
type Fit struct {
	Design *Design

	Beta []float64
	SE   []float64
	T    []float64
	Cov  *mat.SymDense // covariance of Beta

	Lambda      float64 // variance ratio sigma_hour^2 / sigma_resid^2
	SigmaHour2  float64
	SigmaResid2 float64
	REML        float64 // -2 restricted log-likelihood at the optimum

	N       int
	DfResid int

	Converged  bool
	Boundary   bool // optimum at lambda = 0 (grouping variance vanishes)
	Iterations int
	Message    string
}

const (
	logLambdaLo = -12.0
	logLambdaHi = 12.0
	goldenTol   = 1e-8
	goldenMax   = 200
)

// crossProducts precomputes the sufficient statistics the profile likelihood
// needs: X'X, X'y, y'y and per-group sums of x and y. With a single grouping
// factor V^{-1} acts row-wise as v_i - a_g * S_g, so every GLS quantity
// reduces to these.
type crossProducts struct {
	n, p  int
	xtx   *mat.SymDense
	xty   []float64
	yty   float64
	gx    [][]float64 // per-group sum of design rows
	gy    []float64   // per-group sum of responses
	sizes []int
}

func newCrossProducts(d *Design) *crossProducts {
	n := len(d.Y)
	p := d.NumParams()
	cp := &crossProducts{
		n:     n,
		p:     p,
		xtx:   mat.NewSymDense(p, nil),
		xty:   make([]float64, p),
		gx:    make([][]float64, len(d.GroupSizes)),
		gy:    make([]float64, len(d.GroupSizes)),
		sizes: d.GroupSizes,
	}
	for g := range cp.gx {
		cp.gx[g] = make([]float64, p)
	}
	for i := 0; i < n; i++ {
		x := d.X[i]
		y := d.Y[i]
		g := d.Group[i]
		for a := 0; a < p; a++ {
			for b := a; b < p; b++ {
				cp.xtx.SetSym(a, b, cp.xtx.At(a, b)+x[a]*x[b])
			}
			cp.xty[a] += x[a] * y
			cp.gx[g][a] += x[a]
		}
		cp.yty += y * y
		cp.gy[g] += y
	}
	return cp
}

// profile evaluates the REML profile log-likelihood at variance ratio lambda,
// returning the log-likelihood (up to a constant), the GLS solution and the
// profiled residual quadratic form.
func (cp *crossProducts) profile(lambda float64) (ll float64, beta []float64, rss float64, chol *mat.Cholesky, ok bool) {
	a := mat.NewSymDense(cp.p, nil)
	a.CopySym(cp.xtx)
	b := append([]float64(nil), cp.xty...)
	c := cp.yty
	logdetH := 0.0

	for g, ng := range cp.sizes {
		if ng == 0 {
			continue
		}
		w := lambda / (1 + lambda*float64(ng))
		logdetH += math.Log(1 + lambda*float64(ng))
		gx := cp.gx[g]
		gy := cp.gy[g]
		for i := 0; i < cp.p; i++ {
			for j := i; j < cp.p; j++ {
				a.SetSym(i, j, a.At(i, j)-w*gx[i]*gx[j])
			}
			b[i] -= w * gy * gx[i]
		}
		c -= w * gy * gy
	}

	chol = &mat.Cholesky{}
	if !chol.Factorize(a) {
		return math.Inf(-1), nil, 0, nil, false
	}
	betaVec := mat.NewVecDense(cp.p, nil)
	if err := chol.SolveVecTo(betaVec, mat.NewVecDense(cp.p, b)); err != nil {
		return math.Inf(-1), nil, 0, nil, false
	}
	beta = betaVec.RawVector().Data
	rss = c
	for i := 0; i < cp.p; i++ {
		rss -= beta[i] * b[i]
	}
	if rss <= 0 {
		rss = math.SmallestNonzeroFloat64
	}
	nmp := float64(cp.n - cp.p)
	ll = -0.5 * (logdetH + chol.LogDet() + nmp*math.Log(rss))
	return ll, beta, rss, chol, true
}

// FitREML estimates the model. The profile likelihood is one-dimensional in
// the variance ratio, so a golden-section search over log(lambda) suffices;
// lambda = 0 (plain OLS) is always evaluated as the boundary candidate.
func FitREML(d *Design) (*Fit, error) {
	cp := newCrossProducts(d)
	n, p := cp.n, cp.p

	const phi = 0.6180339887498949 // inverse golden ratio

	lo, hi := logLambdaLo, logLambdaHi
	x1 := hi - phi*(hi-lo)
	x2 := lo + phi*(hi-lo)
	f1, _, _, _, ok1 := cp.profile(math.Exp(x1))
	f2, _, _, _, ok2 := cp.profile(math.Exp(x2))
	if !ok1 && !ok2 {
		return nil, fmt.Errorf("mixedmodel: design matrix is singular")
	}

	iter := 0
	for ; iter < goldenMax && hi-lo > goldenTol; iter++ {
		if f1 < f2 {
			lo = x1
			x1, f1 = x2, f2
			x2 = lo + phi*(hi-lo)
			f2, _, _, _, _ = cp.profile(math.Exp(x2))
		} else {
			hi = x2
			x2, f2 = x1, f1
			x1 = hi - phi*(hi-lo)
			f1, _, _, _, _ = cp.profile(math.Exp(x1))
		}
	}
	lambda := math.Exp((lo + hi) / 2)
	llOpt, _, _, _, okOpt := cp.profile(lambda)

	// Boundary candidate: no grouping variance at all.
	llZero, _, _, _, okZero := cp.profile(0)
	boundary := false
	if okZero && (!okOpt || llZero >= llOpt) {
		lambda = 0
		boundary = true
	}
	// The search bracketing the lower edge is the same boundary case.
	if !boundary && lo <= logLambdaLo+goldenTol {
		lambda = 0
		boundary = true
	}

	ll, beta, rss, chol, ok := cp.profile(lambda)
	if !ok {
		return nil, fmt.Errorf("mixedmodel: design matrix is singular")
	}

	sigmaResid2 := rss / float64(n-p)
	fit := &Fit{
		Design:      d,
		Beta:        beta,
		Lambda:      lambda,
		SigmaHour2:  lambda * sigmaResid2,
		SigmaResid2: sigmaResid2,
		N:           n,
		DfResid:     n - p,
		Converged:   true,
		Boundary:    boundary,
		Iterations:  iter,
	}
	// Full -2 restricted log-likelihood for reporting.
	nmp := float64(n - p)
	fit.REML = -2*ll + nmp*(1+math.Log(2*math.Pi/nmp))

	if iter >= goldenMax {
		fit.Converged = false
		fit.Message = fmt.Sprintf("profile search did not converge after %d iterations (bracket %.3g)", iter, hi-lo)
	} else if boundary {
		fit.Message = "variance ratio converged to the lambda=0 boundary; hour variance estimated as zero"
	}

	// Covariance of the fixed effects: sigma^2 * (X'V^{-1}X)^{-1}.
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, fmt.Errorf("mixedmodel: invert information matrix: %w", err)
	}
	fit.Cov = mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			fit.Cov.SetSym(i, j, sigmaResid2*inv.At(i, j))
		}
	}
	fit.SE = make([]float64, p)
	fit.T = make([]float64, p)
	for i := 0; i < p; i++ {
		fit.SE[i] = math.Sqrt(fit.Cov.At(i, i))
		if fit.SE[i] > 0 {
			fit.T[i] = fit.Beta[i] / fit.SE[i]
		}
	}
	return fit, nil
}

// FittedValues returns marginal fitted values X*beta.
func (f *Fit) FittedValues() []float64 {
	out := make([]float64, f.N)
	for i, x := range f.Design.X {
		var v float64
		for j := range x {
			v += x[j] * f.Beta[j]
		}
		out[i] = v
	}
	return out
}

// Residuals returns conditional residuals y - X*beta - u_g, with the BLUP
// u_g = lambda * S_g / (1 + lambda * n_g) for each hour group, where S_g is
// the group sum of marginal residuals.
func (f *Fit) Residuals() []float64 {
	fitted := f.FittedValues()
	marg := make([]float64, f.N)
	sums := make([]float64, len(f.Design.GroupSizes))
	for i := range marg {
		marg[i] = f.Design.Y[i] - fitted[i]
		sums[f.Design.Group[i]] += marg[i]
	}
	out := make([]float64, f.N)
	for i := range marg {
		g := f.Design.Group[i]
		u := f.Lambda * sums[g] / (1 + f.Lambda*float64(f.Design.GroupSizes[g]))
		out[i] = marg[i] - u
	}
	return out
}
