package dmd

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/ndemo/scalesep/internal/linalg"
)

// buildPhi evaluates the time dynamics matrix Phi[i,j] = exp(alpha_j t_i).
func buildPhi(alpha []complex128, t []float64) *mat.CDense {
	phi := mat.NewCDense(len(t), len(alpha), nil)
	for i, tv := range t {
		for j, a := range alpha {
			phi.Set(i, j, cmplx.Exp(a*complex(tv, 0)))
		}
	}
	return phi
}

// residualNorm solves the linear subproblem for the current alpha and
// returns the flattened residual together with its norm. A norm of +Inf
// marks an evaluation that overflowed or failed, which the line search
// treats as a rejected step.
func residualNorm(target *mat.CDense, t []float64, alpha []complex128) ([]float64, float64) {
	n, m := target.Dims()
	phi := buildPhi(alpha, t)
	b, err := linalg.SolveCLS(phi, target)
	if err != nil {
		return nil, math.Inf(1)
	}

	approx := linalg.MulC(phi, b)

	resid := make([]float64, 2*n*m)
	norm := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			d := target.At(i, j) - approx.At(i, j)
			re, im := real(d), imag(d)
			if math.IsNaN(re) || math.IsInf(re, 0) || math.IsNaN(im) || math.IsInf(im, 0) {
				return nil, math.Inf(1)
			}
			resid[2*(i*m+j)] = re
			resid[2*(i*m+j)+1] = im
			norm += re*re + im*im
		}
	}
	return resid, math.Sqrt(norm)
}

// applyConstraints projects the eigenvalues onto the constraint set.
func applyConstraints(alpha []complex128, c Constraints) []complex128 {
	out := append([]complex128(nil), alpha...)

	if c.Imag {
		for i, a := range out {
			out[i] = complex(0, imag(a))
		}
	}
	if c.ConjugatePairs {
		idx := linalg.SortByImag(out)
		sorted := reorder(out, idx)
		// Pair from the outside in: slot k pairs with slot len-1-k. This
		// matches eigenvalues sorted by imaginary part, where a value and
		// its conjugate sit mirrored around the middle.
		for k := 0; k < len(sorted)/2; k++ {
			j := len(sorted) - 1 - k
			avg := (sorted[j] + cmplx.Conj(sorted[k])) / 2
			sorted[j] = avg
			sorted[k] = cmplx.Conj(avg)
		}
		// Odd rank leaves one unpaired eigenvalue; force it real so a
		// real signal can carry it.
		if len(sorted)%2 == 1 {
			mid := len(sorted) / 2
			sorted[mid] = complex(real(sorted[mid]), 0)
		}
		out = sorted
	}
	return out
}

// varpro refines alpha by Levenberg-Marquardt on the projected residual
// ||T - Phi(alpha) B(alpha)||, where B is re-solved at every evaluation.
func varpro(target *mat.CDense, t []float64, alpha0 []complex128, c Constraints, opts VarProOptions) ([]complex128, int, error) {
	r := len(alpha0)
	np := 2 * r

	pack := func(a []complex128) []float64 {
		p := make([]float64, np)
		for i, v := range a {
			p[2*i] = real(v)
			p[2*i+1] = imag(v)
		}
		return p
	}
	unpack := func(p []float64) []complex128 {
		a := make([]complex128, r)
		for i := range a {
			a[i] = complex(p[2*i], p[2*i+1])
		}
		return a
	}

	alpha := applyConstraints(alpha0, c)
	resid, norm := residualNorm(target, t, alpha)
	if math.IsInf(norm, 0) {
		return nil, 0, fmt.Errorf("initial eigenvalues produce a non-finite residual")
	}

	lambda := opts.InitLambda
	params := pack(alpha)
	iterations := 0

	for iter := 0; iter < opts.MaxIterations; iter++ {
		iterations = iter + 1

		// Finite-difference Jacobian of the projected residual. Solving
		// for B inside every evaluation folds the B(alpha) dependence
		// into the derivative.
		jac := mat.NewDense(len(resid), np, nil)
		singular := false
		for pi := 0; pi < np; pi++ {
			h := 1e-6 * math.Max(1, math.Abs(params[pi]))
			perturbed := append([]float64(nil), params...)
			perturbed[pi] += h
			pResid, pNorm := residualNorm(target, t, unpack(perturbed))
			if math.IsInf(pNorm, 0) {
				singular = true
				break
			}
			for k := range resid {
				jac.Set(k, pi, (pResid[k]-resid[k])/h)
			}
		}
		if singular {
			break
		}

		// Normal equations with Marquardt damping.
		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)
		g := make([]float64, np)
		for pi := 0; pi < np; pi++ {
			sum := 0.0
			for k := range resid {
				sum += jac.At(k, pi) * resid[k]
			}
			g[pi] = sum
		}

		improved := false
		for attempt := 0; attempt < 12 && lambda <= opts.MaxLambda; attempt++ {
			lhs := mat.NewDense(np, np, nil)
			lhs.CloneFrom(&jtj)
			for pi := 0; pi < np; pi++ {
				d := jtj.At(pi, pi)
				if d < 1e-12 {
					d = 1e-12
				}
				lhs.Set(pi, pi, jtj.At(pi, pi)+lambda*d)
			}

			var delta mat.VecDense
			if err := delta.SolveVec(lhs, mat.NewVecDense(np, g)); err != nil {
				lambda *= opts.LambdaUp
				continue
			}

			trial := make([]float64, np)
			for pi := range trial {
				trial[pi] = params[pi] - delta.AtVec(pi)
			}
			trialAlpha := applyConstraints(unpack(trial), c)
			trialResid, trialNorm := residualNorm(target, t, trialAlpha)
			if trialNorm < norm {
				rel := (norm - trialNorm) / math.Max(norm, 1e-300)
				params = pack(trialAlpha)
				alpha = trialAlpha
				resid = trialResid
				prev := norm
				norm = trialNorm
				lambda = math.Max(lambda*opts.LambdaDown, 1e-12)
				improved = true
				if rel < opts.Tol || prev == 0 {
					return alpha, iterations, nil
				}
				break
			}
			lambda *= opts.LambdaUp
		}

		if !improved {
			// The initialization is already at (or near) a minimum the
			// damped steps cannot improve.
			break
		}
	}

	return alpha, iterations, nil
}

// bagEigs implements the bagging part of BOP-DMD: the eigenvalues are
// refined on random snapshot subsets and averaged after sorting by
// imaginary part, which aligns conjugate pairs across trials.
func bagEigs(target *mat.CDense, t []float64, alpha0 []complex128, opts Options) ([]complex128, int, error) {
	n, m := target.Dims()
	frac := opts.TrialFraction
	if frac <= 0 || frac > 1 {
		frac = 0.8
	}
	size := int(math.Ceil(frac * float64(n)))
	if size <= len(alpha0) {
		return nil, 0, fmt.Errorf("trial size %d too small for rank %d", size, len(alpha0))
	}

	rng := rand.New(rand.NewSource(int64(opts.Seed)))
	sum := make([]complex128, len(alpha0))
	totalIters := 0

	for trial := 0; trial < opts.Trials; trial++ {
		pick := rng.Perm(n)[:size]
		sort.Ints(pick)

		sub := mat.NewCDense(size, m, nil)
		subT := make([]float64, size)
		for i, row := range pick {
			subT[i] = t[row]
			for j := 0; j < m; j++ {
				sub.Set(i, j, target.At(row, j))
			}
		}

		alpha, iters, err := varpro(sub, subT, alpha0, opts.Constraints, opts.VarPro)
		if err != nil {
			return nil, 0, fmt.Errorf("bagging trial %d failed: %w", trial, err)
		}
		totalIters += iters

		idx := linalg.SortByImag(alpha)
		sorted := reorder(alpha, idx)
		for i, v := range sorted {
			sum[i] += v
		}
	}

	mean := make([]complex128, len(sum))
	for i, v := range sum {
		mean[i] = v / complex(float64(opts.Trials), 0)
	}
	return applyConstraints(mean, opts.Constraints), totalIters, nil
}
