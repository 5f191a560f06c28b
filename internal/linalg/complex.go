package linalg

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// SolveCLS solves the complex least squares problem A X = B for X, where A is
// m x n complex with m >= n and B is m x k complex. gonum only carries real
// factorizations, so the system is solved through the standard real block
// embedding
//
//	[ Re(A) -Im(A) ] [ Re(X) ]   [ Re(B) ]
//	[ Im(A)  Re(A) ] [ Im(X) ] = [ Im(B) ]
func SolveCLS(a *mat.CDense, b *mat.CDense) (*mat.CDense, error) {
	m, n := a.Dims()
	bm, k := b.Dims()
	if bm != m {
		return nil, fmt.Errorf("dimension mismatch: a is %dx%d, b is %dx%d", m, n, bm, k)
	}
	if m < n {
		return nil, fmt.Errorf("underdetermined system: %d equations, %d unknowns", m, n)
	}

	ar := mat.NewDense(2*m, 2*n, nil)
	br := mat.NewDense(2*m, k, nil)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			v := a.At(i, j)
			ar.Set(i, j, real(v))
			ar.Set(i, n+j, -imag(v))
			ar.Set(m+i, j, imag(v))
			ar.Set(m+i, n+j, real(v))
		}
		for j := 0; j < k; j++ {
			v := b.At(i, j)
			br.Set(i, j, real(v))
			br.Set(m+i, j, imag(v))
		}
	}

	var xr mat.Dense
	if err := xr.Solve(ar, br); err != nil {
		return nil, fmt.Errorf("least squares solve failed: %w", err)
	}

	x := mat.NewCDense(n, k, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			x.Set(i, j, complex(xr.At(i, j), xr.At(n+i, j)))
		}
	}
	return x, nil
}

// RealToCDense lifts a real matrix into a complex one.
func RealToCDense(x *mat.Dense) *mat.CDense {
	m, n := x.Dims()
	c := mat.NewCDense(m, n, nil)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			c.Set(i, j, complex(x.At(i, j), 0))
		}
	}
	return c
}

// MulC returns the complex matrix product a b. gonum's CDense carries no
// multiply, so the product is accumulated directly.
func MulC(a, b mat.CMatrix) *mat.CDense {
	m, n := a.Dims()
	bn, k := b.Dims()
	if n != bn {
		panic(mat.ErrShape)
	}

	c := mat.NewCDense(m, k, nil)
	for i := 0; i < m; i++ {
		for j := 0; j < k; j++ {
			sum := complex(0, 0)
			for l := 0; l < n; l++ {
				sum += a.At(i, l) * b.At(l, j)
			}
			c.Set(i, j, sum)
		}
	}
	return c
}

// SortByImag returns the permutation that orders the values by ascending
// imaginary component, breaking ties by real component. This is the "imag"
// eigenvalue sort used throughout the decomposition code so that conjugate
// pairs land in adjacent slots.
func SortByImag(vals []complex128) []int {
	idx := make([]int, len(vals))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		va, vb := vals[idx[a]], vals[idx[b]]
		if imag(va) != imag(vb) {
			return imag(va) < imag(vb)
		}
		return real(va) < real(vb)
	})
	return idx
}
