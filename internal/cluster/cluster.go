// Package cluster separates fitted eigenvalues into frequency bands by
// clustering a transform of their imaginary components.
package cluster

import (
	"fmt"
	"math"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
)

// Transforms of the imaginary eigenvalue component. Transforming omega can
// substantially improve the band separation.
const (
	TransformAbsolute = "absolute"
	TransformSquare   = "square_frequencies"
	TransformLog10    = "log10"
	TransformPeriod   = "period"
)

// Result holds a band separation: centroids sorted ascending and the class
// label of every input value, relabelled so class 0 is the lowest band.
type Result struct {
	Centroids []float64
	Classes   []int
	NumBands  int
	Transform string
}

// TransformOmega maps the imaginary parts of the eigenvalues into the space
// used for clustering.
func TransformOmega(omega []complex128, method string) ([]float64, error) {
	out := make([]float64, len(omega))

	switch method {
	case TransformAbsolute, "":
		for i, w := range omega {
			out[i] = math.Abs(imag(w))
		}
	case TransformSquare:
		for i, w := range omega {
			out[i] = imag(w) * imag(w)
		}
	case TransformLog10:
		smallest := math.Inf(1)
		for i, w := range omega {
			v := math.Log10(math.Abs(imag(w)))
			out[i] = v
			if !math.IsInf(v, 0) && !math.IsNaN(v) && v < smallest {
				smallest = v
			}
		}
		if math.IsInf(smallest, 1) {
			return nil, fmt.Errorf("log10 transform: no finite values to impute from")
		}
		// Impute log10(0) with the smallest finite transform value.
		for i, v := range out {
			if math.IsInf(v, 0) || math.IsNaN(v) {
				out[i] = smallest
			}
		}
	case TransformPeriod:
		for i, w := range omega {
			out[i] = 1 / math.Abs(imag(w))
		}
	default:
		return nil, fmt.Errorf("unsupported omega transform %q", method)
	}

	return out, nil
}

// Bands clusters the transformed values into nBands frequency bands using
// k-means. Centroids come back sorted ascending and the labels are remapped
// through the sort so class 0 is always the lowest frequency band.
func Bands(values []float64, nBands int, transformMethod string) (*Result, error) {
	if nBands < 2 {
		return nil, fmt.Errorf("need at least 2 bands, got %d", nBands)
	}
	if len(values) <= nBands {
		return nil, fmt.Errorf("cannot split %d values into %d bands", len(values), nBands)
	}

	obs := make(clusters.Observations, len(values))
	for i, v := range values {
		obs[i] = clusters.Coordinates{v}
	}

	km := kmeans.New()
	partition, err := km.Partition(obs, nBands)
	if err != nil {
		return nil, fmt.Errorf("kmeans partition failed: %w", err)
	}

	centroids := make([]float64, len(partition))
	for i, c := range partition {
		centroids[i] = c.Center[0]
	}

	// Sort centroids ascending and build the relabelling LUT.
	order := make([]int, len(centroids))
	for i := range order {
		order[i] = i
	}
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && centroids[order[j]] < centroids[order[j-1]]; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
	lut := make([]int, len(order))
	sorted := make([]float64, len(order))
	for newClass, old := range order {
		lut[old] = newClass
		sorted[newClass] = centroids[old]
	}

	// Label every observation by its nearest centroid. Partition's
	// clusters do not preserve input order, so assign directly.
	classes := make([]int, len(values))
	for i, v := range values {
		best, bestDist := 0, math.Inf(1)
		for ci, c := range centroids {
			if d := math.Abs(v - c); d < bestDist {
				best, bestDist = ci, d
			}
		}
		classes[i] = lut[best]
	}

	return &Result{
		Centroids: sorted,
		Classes:   classes,
		NumBands:  nBands,
		Transform: transformMethod,
	}, nil
}

// Silhouette computes the mean silhouette coefficient of a 1D clustering.
// Samples in singleton clusters score zero.
func Silhouette(values []float64, classes []int, nBands int) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	counts := make([]int, nBands)
	for _, c := range classes {
		counts[c]++
	}

	total := 0.0
	for i := 0; i < n; i++ {
		sums := make([]float64, nBands)
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			sums[classes[j]] += math.Abs(values[i] - values[j])
		}

		own := classes[i]
		if counts[own] <= 1 {
			continue
		}
		a := sums[own] / float64(counts[own]-1)

		b := math.Inf(1)
		for c := 0; c < nBands; c++ {
			if c == own || counts[c] == 0 {
				continue
			}
			if m := sums[c] / float64(counts[c]); m < b {
				b = m
			}
		}
		if math.IsInf(b, 0) {
			continue
		}

		if d := math.Max(a, b); d > 0 {
			total += (b - a) / d
		}
	}
	return total / float64(n)
}

// SweepBandCount picks the band count with the best silhouette score from
// the candidate list.
func SweepBandCount(values []float64, candidates []int, transformMethod string) (int, error) {
	if len(candidates) == 0 {
		return 0, fmt.Errorf("no candidate band counts provided")
	}

	best, bestScore := 0, math.Inf(-1)
	for _, n := range candidates {
		res, err := Bands(values, n, transformMethod)
		if err != nil {
			return 0, fmt.Errorf("band sweep failed at n=%d: %w", n, err)
		}
		if score := Silhouette(values, res.Classes, n); score > bestScore {
			best, bestScore = n, score
		}
	}
	return best, nil
}

// CandidateRange returns the default band-count candidates for a given SVD
// rank: max(rank/4, 2) through rank/2.
func CandidateRange(svdRank int) []int {
	lo := svdRank / 4
	if lo < 2 {
		lo = 2
	}
	hi := svdRank / 2
	if hi < lo {
		hi = lo
	}
	out := make([]int, 0, hi-lo+1)
	for n := lo; n <= hi; n++ {
		out = append(out, n)
	}
	return out
}
