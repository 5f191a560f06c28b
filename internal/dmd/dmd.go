// Package dmd implements optimized dynamic mode decomposition: an exact DMD
// initializer and a variable-projection refinement of the continuous-time
// eigenvalues, with optional bagging over snapshot subsets.
package dmd

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/ndemo/scalesep/internal/linalg"
)

// Constraints restricts the fitted continuous eigenvalues.
type Constraints struct {
	// ConjugatePairs forces the eigenvalues into complex conjugate pairs,
	// which a real-valued signal must produce.
	ConjugatePairs bool
	// Imag zeroes the real parts, removing exponential growth and decay.
	Imag bool
}

// VarProOptions tunes the Levenberg-Marquardt refinement.
type VarProOptions struct {
	MaxIterations int
	// Tol is the relative residual improvement below which the iteration
	// stops.
	Tol        float64
	InitLambda float64
	LambdaUp   float64
	LambdaDown float64
	MaxLambda  float64
}

// Options configures a single optimized DMD fit.
type Options struct {
	// Rank is the number of modes to fit. Must be positive.
	Rank int
	// ProjBasis is an optional POD basis (space x Rank). With UseProj the
	// fit runs in the projected coordinates and modes are lifted back.
	ProjBasis *mat.Dense
	UseProj   bool
	// InitAlpha seeds the eigenvalue refinement. When empty the seed
	// comes from an exact DMD fit.
	InitAlpha   []complex128
	Constraints Constraints
	VarPro      VarProOptions
	// Trials enables bagging: the eigenvalues are refit on Trials random
	// snapshot subsets of TrialFraction of the series and averaged.
	Trials        int
	TrialFraction float64
	Seed          uint64
}

// Result holds a fitted decomposition. Modes has unit-norm columns so the
// amplitudes carry the scale.
type Result struct {
	Modes      *mat.CDense // space x rank
	Eigs       []complex128
	Amplitudes []complex128
	Rank       int
	Iterations int
}

func (o *VarProOptions) setDefaults() {
	if o.MaxIterations == 0 {
		o.MaxIterations = 30
	}
	if o.Tol == 0 {
		o.Tol = 1e-6
	}
	if o.InitLambda == 0 {
		o.InitLambda = 1.0
	}
	if o.LambdaUp == 0 {
		o.LambdaUp = 2.0
	}
	if o.LambdaDown == 0 {
		o.LambdaDown = 0.5
	}
	if o.MaxLambda == 0 {
		o.MaxLambda = 1e12
	}
}

// Exact computes an exact DMD fit of rank r and returns the continuous-time
// eigenvalues and the exact modes. The time vector must be uniformly spaced.
func Exact(data *mat.Dense, t []float64, rank int) ([]complex128, *mat.CDense, error) {
	m, n := data.Dims()
	if n < 2 {
		return nil, nil, fmt.Errorf("need at least 2 snapshots, got %d", n)
	}
	if len(t) != n {
		return nil, nil, fmt.Errorf("time vector length %d does not match %d snapshots", len(t), n)
	}
	if rank <= 0 {
		return nil, nil, fmt.Errorf("rank must be positive, got %d", rank)
	}

	dt := (t[n-1] - t[0]) / float64(n-1)
	if dt <= 0 {
		return nil, nil, fmt.Errorf("time vector must be increasing")
	}

	x1 := mat.DenseCopyOf(data.Slice(0, m, 0, n-1))
	x2 := mat.DenseCopyOf(data.Slice(0, m, 1, n))

	u, s, v, err := linalg.TruncatedSVD(x1, float64(rank))
	if err != nil {
		return nil, nil, err
	}
	r := len(s)
	for _, sv := range s {
		if sv == 0 {
			return nil, nil, fmt.Errorf("singular snapshot matrix: zero singular value at rank %d", r)
		}
	}

	// Atilde = U' X2 V S^-1
	var ux2, ux2v mat.Dense
	ux2.Mul(u.T(), x2)
	ux2v.Mul(&ux2, v)
	atilde := mat.NewDense(r, r, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < r; j++ {
			atilde.Set(i, j, ux2v.At(i, j)/s[j])
		}
	}

	var eig mat.Eigen
	if ok := eig.Factorize(atilde, mat.EigenRight); !ok {
		return nil, nil, fmt.Errorf("eigendecomposition failed for %dx%d operator", r, r)
	}
	lambda := eig.Values(nil)
	var w mat.CDense
	eig.VectorsTo(&w)

	alpha := make([]complex128, r)
	for j, l := range lambda {
		alpha[j] = cmplx.Log(l) / complex(dt, 0)
	}

	// Exact modes: X2 V S^-1 W, lambda-scaled.
	x2vs := mat.NewDense(m, r, nil)
	var x2v mat.Dense
	x2v.Mul(x2, v)
	for i := 0; i < m; i++ {
		for j := 0; j < r; j++ {
			x2vs.Set(i, j, x2v.At(i, j)/s[j])
		}
	}
	modes := mat.NewCDense(m, r, nil)
	proj := linalg.MulC(linalg.RealToCDense(x2vs), &w)
	for j := 0; j < r; j++ {
		scale := complex(1, 0)
		if lambda[j] != 0 {
			scale = 1 / lambda[j]
		}
		norm := 0.0
		for i := 0; i < m; i++ {
			v := proj.At(i, j) * scale
			norm += real(v)*real(v) + imag(v)*imag(v)
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			norm = 1
		}
		for i := 0; i < m; i++ {
			modes.Set(i, j, proj.At(i, j)*scale/complex(norm, 0))
		}
	}

	return alpha, modes, nil
}

// Fit runs the optimized DMD: exact DMD initialization (unless InitAlpha is
// provided) followed by variable-projection refinement of the continuous
// eigenvalues, then a final linear solve for modes and amplitudes.
func Fit(data *mat.Dense, t []float64, opts Options) (*Result, error) {
	m, n := data.Dims()
	if opts.Rank <= 0 {
		return nil, fmt.Errorf("rank must be positive, got %d", opts.Rank)
	}
	if opts.Rank > m {
		return nil, fmt.Errorf("rank %d exceeds the spatial dimension %d", opts.Rank, m)
	}
	if len(t) != n {
		return nil, fmt.Errorf("time vector length %d does not match %d snapshots", len(t), n)
	}
	if n <= opts.Rank {
		return nil, fmt.Errorf("need more than %d snapshots for rank %d, got %d", opts.Rank, opts.Rank, n)
	}
	if !linalg.Finite(data) {
		return nil, fmt.Errorf("data contains non-finite values")
	}
	opts.VarPro.setDefaults()

	// Optionally fit in POD coordinates.
	fitData := data
	if opts.UseProj && opts.ProjBasis != nil {
		var p mat.Dense
		p.Mul(opts.ProjBasis.T(), data)
		fitData = &p
	}

	// Target of the variable projection: snapshots as rows.
	target := transposeToC(fitData)

	alpha := opts.InitAlpha
	if len(alpha) == 0 {
		var err error
		alpha, _, err = Exact(fitData, t, opts.Rank)
		if err != nil {
			return nil, fmt.Errorf("exact DMD initialization failed: %w", err)
		}
	} else if len(alpha) != opts.Rank {
		return nil, fmt.Errorf("init alpha has %d entries, want %d", len(alpha), opts.Rank)
	} else {
		alpha = append([]complex128(nil), alpha...)
	}
	alpha = applyConstraints(alpha, opts.Constraints)

	var iterations int
	if opts.Trials > 1 {
		bagged, iters, err := bagEigs(target, t, alpha, opts)
		if err != nil {
			return nil, err
		}
		alpha = bagged
		iterations = iters
	} else {
		refined, iters, err := varpro(target, t, alpha, opts.Constraints, opts.VarPro)
		if err != nil {
			return nil, err
		}
		alpha = refined
		iterations = iters
	}

	// Final amplitude solve on the full data.
	phi := buildPhi(alpha, t)
	b, err := linalg.SolveCLS(phi, target)
	if err != nil {
		return nil, fmt.Errorf("amplitude solve failed: %w", err)
	}

	modes, amps := modesFromB(b, opts)

	// Order everything by ascending imaginary eigenvalue so conjugate
	// pairs are adjacent.
	idx := linalg.SortByImag(alpha)
	res := &Result{
		Modes:      reorderColumns(modes, idx),
		Eigs:       reorder(alpha, idx),
		Amplitudes: reorder(amps, idx),
		Rank:       opts.Rank,
		Iterations: iterations,
	}
	return res, nil
}

// Reconstruct evaluates Re(W diag(b) exp(eigs t)) over the given times.
func Reconstruct(res *Result, t []float64) *mat.Dense {
	m, r := res.Modes.Dims()
	out := mat.NewDense(m, len(t), nil)
	for k, tv := range t {
		for j := 0; j < r; j++ {
			dyn := res.Amplitudes[j] * cmplx.Exp(res.Eigs[j]*complex(tv, 0))
			for i := 0; i < m; i++ {
				out.Set(i, k, out.At(i, k)+real(res.Modes.At(i, j)*dyn))
			}
		}
	}
	return out
}

// modesFromB splits the linear coefficients into unit-norm spatial modes and
// scalar amplitudes, lifting through the projection basis when one was used.
func modesFromB(b *mat.CDense, opts Options) (*mat.CDense, []complex128) {
	r, m := b.Dims()

	raw := mat.NewCDense(m, r, nil)
	for j := 0; j < r; j++ {
		for i := 0; i < m; i++ {
			raw.Set(i, j, b.At(j, i))
		}
	}
	if opts.UseProj && opts.ProjBasis != nil {
		raw = linalg.MulC(linalg.RealToCDense(opts.ProjBasis), raw)
	}

	space, _ := raw.Dims()
	modes := mat.NewCDense(space, r, nil)
	amps := make([]complex128, r)
	for j := 0; j < r; j++ {
		norm := 0.0
		for i := 0; i < space; i++ {
			v := raw.At(i, j)
			norm += real(v)*real(v) + imag(v)*imag(v)
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			amps[j] = 0
			continue
		}
		amps[j] = complex(norm, 0)
		for i := 0; i < space; i++ {
			modes.Set(i, j, raw.At(i, j)/complex(norm, 0))
		}
	}
	return modes, amps
}

func transposeToC(x *mat.Dense) *mat.CDense {
	m, n := x.Dims()
	c := mat.NewCDense(n, m, nil)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			c.Set(j, i, complex(x.At(i, j), 0))
		}
	}
	return c
}

func reorder(vals []complex128, idx []int) []complex128 {
	out := make([]complex128, len(vals))
	for i, j := range idx {
		out[i] = vals[j]
	}
	return out
}

func reorderColumns(x *mat.CDense, idx []int) *mat.CDense {
	m, n := x.Dims()
	out := mat.NewCDense(m, n, nil)
	for col, j := range idx {
		for i := 0; i < m; i++ {
			out.Set(i, col, x.At(i, j))
		}
	}
	return out
}
