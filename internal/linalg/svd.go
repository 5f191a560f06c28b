// Package linalg provides the numerical primitives shared by the
// decomposition code: rank selection, truncated SVD, and complex least
// squares on top of gonum's real factorizations.
package linalg

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// ComputeRank selects the truncation rank for a matrix.
//
// The rank parameter follows the usual conventions:
//   - rank == 0 selects the optimal hard threshold of Gavish and Donoho
//   - 0 < rank < 1 selects the smallest rank capturing that fraction of
//     the squared singular value energy
//   - rank >= 1 is an explicit rank, capped at min(m, n)
//   - anything else (negative) keeps the full rank
func ComputeRank(x *mat.Dense, rank float64) (int, error) {
	m, n := x.Dims()
	if m == 0 || n == 0 {
		return 0, fmt.Errorf("cannot compute rank of an empty %dx%d matrix", m, n)
	}

	var svd mat.SVD
	if ok := svd.Factorize(x, mat.SVDNone); !ok {
		return 0, fmt.Errorf("svd failed to converge for %dx%d matrix", m, n)
	}
	s := svd.Values(nil)

	return rankFromValues(s, m, n, rank)
}

// rankFromValues applies the rank selection rule to precomputed singular
// values.
func rankFromValues(s []float64, m, n int, rank float64) (int, error) {
	full := len(s)
	if full == 0 {
		return 0, fmt.Errorf("no singular values")
	}

	switch {
	case rank == 0:
		beta := float64(min(m, n)) / float64(max(m, n))
		omega := 0.56*beta*beta*beta - 0.95*beta*beta + 1.82*beta + 1.43
		tau := median(s) * omega
		r := 0
		for _, v := range s {
			if v > tau {
				r++
			}
		}
		if r == 0 {
			r = 1
		}
		return r, nil

	case rank > 0 && rank < 1:
		total := 0.0
		for _, v := range s {
			total += v * v
		}
		cum := 0.0
		for i, v := range s {
			cum += v * v
			if cum/total >= rank {
				return i + 1, nil
			}
		}
		return full, nil

	case rank >= 1:
		r := int(rank)
		if r > full {
			r = full
		}
		return r, nil

	default:
		return full, nil
	}
}

// TruncatedSVD computes the thin SVD of x truncated to the rank selected by
// ComputeRank. It returns U (m x r), the singular values (r) and V (n x r).
func TruncatedSVD(x *mat.Dense, rank float64) (*mat.Dense, []float64, *mat.Dense, error) {
	m, n := x.Dims()
	if m == 0 || n == 0 {
		return nil, nil, nil, fmt.Errorf("cannot decompose an empty %dx%d matrix", m, n)
	}

	var svd mat.SVD
	if ok := svd.Factorize(x, mat.SVDThin); !ok {
		return nil, nil, nil, fmt.Errorf("svd failed to converge for %dx%d matrix", m, n)
	}
	s := svd.Values(nil)

	r, err := rankFromValues(s, m, n, rank)
	if err != nil {
		return nil, nil, nil, err
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	ur := mat.DenseCopyOf(u.Slice(0, m, 0, r))
	vr := mat.DenseCopyOf(v.Slice(0, n, 0, r))
	sr := append([]float64(nil), s[:r]...)

	return ur, sr, vr, nil
}

// median returns the median of a slice without modifying it.
func median(s []float64) float64 {
	c := append([]float64(nil), s...)
	sort.Float64s(c)
	h := len(c) / 2
	if len(c)%2 == 1 {
		return c[h]
	}
	return (c[h-1] + c[h]) / 2
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Finite reports whether every element of x is finite.
func Finite(x *mat.Dense) bool {
	m, n := x.Dims()
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			if v := x.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
