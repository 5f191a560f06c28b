package costs

import (
	"fmt"
	"math"
	"math/cmplx"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/ndemo/scalesep/internal/cluster"
	"github.com/ndemo/scalesep/internal/window"
)

// ClusterOmega groups the fitted eigenvalues of every window into nBands
// frequency bands. Band 0 is always the lowest band.
func (c *COSTS) ClusterOmega(nBands int, transformMethod string) error {
	if !c.fitted {
		return fmt.Errorf("decomposition has not been fitted")
	}

	values, err := c.transformedOmega(transformMethod)
	if err != nil {
		return err
	}

	res, err := cluster.Bands(values, nBands, transformMethod)
	if err != nil {
		return err
	}

	c.centroids = res.Centroids
	c.numBands = res.NumBands
	c.transform = res.Transform

	c.classes = make([][]int, c.plan.Slides)
	for k := 0; k < c.plan.Slides; k++ {
		c.classes[k] = res.Classes[k*c.rankPre : (k+1)*c.rankPre]
	}
	c.clustered = true

	c.logger.Info("eigenvalues clustered",
		zap.Int("bands", nBands),
		zap.String("transform", c.transform),
		zap.Float64s("centroids", c.centroids))
	return nil
}

// SuggestBandCount sweeps candidate band counts derived from the fit rank
// and returns the one with the best silhouette score.
func (c *COSTS) SuggestBandCount(transformMethod string) (int, error) {
	if !c.fitted {
		return 0, fmt.Errorf("decomposition has not been fitted")
	}

	values, err := c.transformedOmega(transformMethod)
	if err != nil {
		return 0, err
	}

	candidates := cluster.CandidateRange(c.rankPre)
	n, err := cluster.SweepBandCount(values, candidates, transformMethod)
	if err != nil {
		return 0, err
	}

	c.logger.Info("band count selected",
		zap.Int("bands", n),
		zap.Ints("candidates", candidates))
	return n, nil
}

func (c *COSTS) transformedOmega(transformMethod string) ([]float64, error) {
	flat := make([]complex128, 0, c.plan.Slides*c.rankPre)
	for k := 0; k < c.plan.Slides; k++ {
		flat = append(flat, c.omega[k]...)
	}
	return cluster.TransformOmega(flat, transformMethod)
}

// ScaleReconstruction rebuilds the series band by band. Every window
// contributes its band components weighted by the Gaussian blending filter;
// the first and last windows use the flattened edge variants so the domain
// boundaries stay anchored. includeMeans folds the window means into the
// lowest band.
func (c *COSTS) ScaleReconstruction(includeMeans bool) ([]*mat.Dense, error) {
	if !c.fitted {
		return nil, fmt.Errorf("decomposition has not been fitted")
	}
	if !c.clustered {
		return nil, fmt.Errorf("eigenvalues have not been clustered")
	}

	bands := make([]*mat.Dense, c.numBands)
	for j := range bands {
		bands[j] = mat.NewDense(c.nSpace, c.nTime, nil)
	}
	weight := make([]float64, c.nTime)

	for k := 0; k < c.plan.Slides; k++ {
		direction := window.DirectionNone
		switch {
		case k == 0:
			direction = window.DirectionBackward
		case k == c.plan.Slides-1:
			direction = window.DirectionForward
		}

		filter, err := window.ReconFilter(c.windowLength, c.opts.RelativeFilterLength, direction)
		if err != nil {
			return nil, err
		}

		start, end := c.plan.Indices(k)
		length := end - start

		times := c.timeArray[k]
		t0 := times[0]

		for i := 0; i < c.rankPre; i++ {
			a := c.amplitudes[k][i]
			if a == 0 {
				continue
			}
			band := c.classes[k][i]
			w := c.omega[k][i]

			for col := 0; col < length; col++ {
				dyn := a * cmplx.Exp(w*complex(times[col]-t0, 0))
				f := filter[col]
				for row := 0; row < c.nSpace; row++ {
					cur := bands[band].At(row, start+col)
					bands[band].Set(row, start+col, cur+real(c.modes[k].At(row, i)*dyn)*f)
				}
			}
		}

		if includeMeans {
			for col := 0; col < length; col++ {
				f := filter[col]
				for row := 0; row < c.nSpace; row++ {
					cur := bands[0].At(row, start+col)
					bands[0].Set(row, start+col, cur+c.windowMeans[k][row]*f)
				}
			}
		}

		for col := 0; col < length; col++ {
			weight[start+col] += filter[col]
		}
	}

	// Normalize out the accumulated filter weight.
	for col := 0; col < c.nTime; col++ {
		w := weight[col]
		if w == 0 {
			return nil, fmt.Errorf("no window covers time index %d", col)
		}
		for j := range bands {
			for row := 0; row < c.nSpace; row++ {
				bands[j].Set(row, col, bands[j].At(row, col)/w)
			}
		}
	}

	return bands, nil
}

// ScaleSeparation splits the reconstruction into the lowest band and the
// sum of everything above it.
func (c *COSTS) ScaleSeparation(includeMeans bool) (low, high *mat.Dense, err error) {
	bands, err := c.ScaleReconstruction(includeMeans)
	if err != nil {
		return nil, nil, err
	}

	low = bands[0]
	high = mat.NewDense(c.nSpace, c.nTime, nil)
	for j := 1; j < len(bands); j++ {
		high.Add(high, bands[j])
	}
	return low, high, nil
}

// GlobalReconstruction sums every band back together, including the window
// means. For a well resolved fit this approximates the input data.
func (c *COSTS) GlobalReconstruction() (*mat.Dense, error) {
	bands, err := c.ScaleReconstruction(true)
	if err != nil {
		return nil, err
	}

	out := mat.NewDense(c.nSpace, c.nTime, nil)
	for _, b := range bands {
		out.Add(out, b)
	}
	return out, nil
}

// Periods returns the oscillation periods of every non-trivial fitted
// eigenvalue above the lowest band.
func (c *COSTS) Periods() ([]float64, error) {
	if !c.clustered {
		return nil, fmt.Errorf("eigenvalues have not been clustered")
	}

	var periods []float64
	for k := 0; k < c.plan.Slides; k++ {
		for i := 0; i < c.rankPre; i++ {
			if c.classes[k][i] == 0 {
				continue
			}
			f := math.Abs(imag(c.omega[k][i]))
			if f == 0 {
				continue
			}
			periods = append(periods, 2*math.Pi/f)
		}
	}
	return periods, nil
}

// RelativeError returns ||est - truth||_F / ||truth||_F.
func RelativeError(est, truth *mat.Dense) float64 {
	var diff mat.Dense
	diff.Sub(est, truth)

	den := mat.Norm(truth, 2)
	if den == 0 {
		return math.Inf(1)
	}
	return mat.Norm(&diff, 2) / den
}
