// Package costs implements coherent spatiotemporal scale separation: a
// sliding-window optimized DMD sweep over a time series, frequency-band
// clustering of the fitted eigenvalues, and band-wise reconstruction that
// splits the series into slow and fast components.
package costs

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/ndemo/scalesep/internal/dmd"
	"github.com/ndemo/scalesep/internal/linalg"
	"github.com/ndemo/scalesep/internal/metrics"
	"github.com/ndemo/scalesep/internal/window"
	"github.com/ndemo/scalesep/internal/workerpool"
)

// Options configures a decomposition level.
type Options struct {
	// SVDRank selects the fit rank. Zero picks the optimal hard threshold,
	// a fraction keeps that much singular value energy, an integer is an
	// explicit rank.
	SVDRank float64
	// GlobalSVD resolves the rank once from the full data set and reuses
	// the resulting POD basis for every window. Without it the rank is
	// resolved per window.
	GlobalSVD bool
	// UseProj fits each window in the coordinates of the global POD basis
	// instead of the full spatial dimension. Requires GlobalSVD.
	UseProj bool
	// ForceEvenEigs bumps an odd per-window rank to even so conjugate
	// pairs can form. Only applies when the rank is resolved per window.
	ForceEvenEigs bool
	// MaxRank caps the per-window rank. Zero means no cap.
	MaxRank int

	// InitializeArtificially seeds the eigenvalue refinement instead of
	// using an exact DMD fit of each window. Provide either InitAlpha
	// directly or ClusterCentroids from a previous decomposition.
	InitializeArtificially bool
	InitAlpha              []complex128
	ClusterCentroids       []float64
	// UseLastFreq carries the fitted eigenvalues of each window forward as
	// the seed for the next one. Forces a sequential sweep.
	UseLastFreq bool
	// ResetAlphaInit goes back to the artificial seed for every window
	// instead of chaining through UseLastFreq.
	ResetAlphaInit bool

	// KernMethod and CornerSharpness control the pre-fit edge rounding.
	KernMethod      string
	CornerSharpness float64
	// RelativeFilterLength controls the Gaussian blending filter used
	// during reconstruction.
	RelativeFilterLength float64

	Constraints   dmd.Constraints
	VarPro        dmd.VarProOptions
	Trials        int
	TrialFraction float64
	Seed          uint64

	// Workers bounds the parallel window fits. At most one worker (or
	// UseLastFreq) makes the sweep sequential.
	Workers int
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

func (o *Options) setDefaults() {
	if o.KernMethod == "" {
		o.KernMethod = window.KernMethodKern
	}
	if o.CornerSharpness == 0 {
		o.CornerSharpness = window.DefaultCornerSharpness
	}
	if o.RelativeFilterLength == 0 {
		o.RelativeFilterLength = 2
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// DefaultOptions returns the options used by the service when a request
// leaves them unset.
func DefaultOptions() Options {
	return Options{
		GlobalSVD:            true,
		ForceEvenEigs:        true,
		RelativeFilterLength: 2,
		Constraints:          dmd.Constraints{ConjugatePairs: true, Imag: true},
	}
}

// COSTS is a single decomposition level: a window length, a step size and
// the per-window fit results.
type COSTS struct {
	opts   Options
	logger *zap.Logger

	windowLength int
	stepSize     int

	nSpace int
	nTime  int
	plan   *window.Plan

	rankPre   int
	projBasis *mat.Dense

	timeArray   [][]float64
	windowMeans [][]float64
	modes       []*mat.CDense
	omega       [][]complex128
	amplitudes  [][]complex128
	windowRanks []int

	centroids []float64
	classes   [][]int
	numBands  int
	transform string

	fitted    bool
	clustered bool
}

// New builds a decomposition level. Fit must be called before any of the
// reconstruction methods.
func New(windowLength, stepSize int, opts Options) *COSTS {
	opts.setDefaults()
	return &COSTS{
		opts:         opts,
		logger:       opts.Logger,
		windowLength: windowLength,
		stepSize:     stepSize,
	}
}

// WindowLength returns the configured window length.
func (c *COSTS) WindowLength() int { return c.windowLength }

// StepSize returns the configured step size.
func (c *COSTS) StepSize() int { return c.stepSize }

// Slides returns the number of fitted windows. Zero before Fit.
func (c *COSTS) Slides() int {
	if c.plan == nil {
		return 0
	}
	return c.plan.Slides
}

// Rank returns the pre-allocation rank resolved during Fit.
func (c *COSTS) Rank() int { return c.rankPre }

// Centroids returns the band centroids in transformed frequency space,
// sorted ascending. Nil before ClusterOmega.
func (c *COSTS) Centroids() []float64 { return c.centroids }

// NumBands returns the fitted band count. Zero before ClusterOmega.
func (c *COSTS) NumBands() int { return c.numBands }

// Fit runs the sliding-window decomposition over data (space x time).
func (c *COSTS) Fit(ctx context.Context, data *mat.Dense, t []float64) error {
	nSpace, nTime := data.Dims()
	if len(t) != nTime {
		return fmt.Errorf("time vector length %d does not match %d snapshots", len(t), nTime)
	}
	if !linalg.Finite(data) {
		return fmt.Errorf("data contains non-finite values")
	}

	plan, err := window.NewPlan(nTime, c.windowLength, c.stepSize)
	if err != nil {
		return err
	}

	c.nSpace = nSpace
	c.nTime = nTime
	c.plan = plan

	if err := c.resolveRank(data); err != nil {
		return err
	}

	initAlpha, err := c.buildInitAlpha()
	if err != nil {
		return err
	}

	kern, err := window.LVKern(c.windowLength, c.opts.CornerSharpness, c.opts.KernMethod)
	if err != nil {
		return err
	}
	// Validate the reconstruction filter now so a bad option fails the fit
	// rather than the reconstruction much later.
	if _, err := window.ReconFilter(c.windowLength, c.opts.RelativeFilterLength, window.DirectionNone); err != nil {
		return err
	}

	slides := plan.Slides
	c.timeArray = make([][]float64, slides)
	c.windowMeans = make([][]float64, slides)
	c.modes = make([]*mat.CDense, slides)
	c.omega = make([][]complex128, slides)
	c.amplitudes = make([][]complex128, slides)
	c.windowRanks = make([]int, slides)

	c.logger.Info("starting window sweep",
		zap.Int("slides", slides),
		zap.Int("window_length", c.windowLength),
		zap.Int("step_size", c.stepSize),
		zap.Int("rank", c.rankPre),
		zap.Int("workers", c.opts.Workers))

	sequential := c.opts.UseLastFreq || c.opts.Workers <= 1
	if sequential {
		err = c.fitSequential(ctx, data, t, kern, initAlpha)
	} else {
		err = c.fitParallel(ctx, data, t, kern, initAlpha)
	}
	if err != nil {
		return err
	}

	c.fitted = true
	c.logger.Info("window sweep complete", zap.Int("slides", slides))
	return nil
}

// resolveRank fixes the pre-allocation rank and, for global SVD, the shared
// POD basis.
func (c *COSTS) resolveRank(data *mat.Dense) error {
	if c.opts.GlobalSVD {
		u, _, _, err := linalg.TruncatedSVD(data, c.opts.SVDRank)
		if err != nil {
			return fmt.Errorf("global svd failed: %w", err)
		}
		_, r := u.Dims()
		c.projBasis = u
		c.rankPre = r
		return nil
	}

	if c.opts.UseProj {
		return fmt.Errorf("projected fitting requires a global svd basis")
	}

	if c.opts.SVDRank >= 1 {
		r := int(c.opts.SVDRank)
		if c.opts.ForceEvenEigs && r%2 == 1 {
			r++
		}
		if r > c.nSpace {
			r = c.nSpace
		}
		c.rankPre = r
		return nil
	}

	// Rank is resolved per window; pre-allocate for the worst case.
	c.rankPre = c.nSpace
	if c.opts.MaxRank > 0 && c.opts.MaxRank < c.rankPre {
		c.rankPre = c.opts.MaxRank
	}
	return nil
}

// buildInitAlpha constructs the artificial eigenvalue seed, when requested.
// Centroid seeding places conjugate pairs at sqrt(centroid) on the imaginary
// axis, spreading the rank evenly over the centroids.
func (c *COSTS) buildInitAlpha() ([]complex128, error) {
	if !c.opts.InitializeArtificially {
		return nil, nil
	}
	if len(c.opts.InitAlpha) > 0 && len(c.opts.ClusterCentroids) > 0 {
		return nil, fmt.Errorf("provide either an explicit init alpha or cluster centroids, not both")
	}

	if len(c.opts.InitAlpha) > 0 {
		if len(c.opts.InitAlpha) != c.rankPre {
			return nil, fmt.Errorf("init alpha has %d entries, want rank %d", len(c.opts.InitAlpha), c.rankPre)
		}
		return append([]complex128(nil), c.opts.InitAlpha...), nil
	}

	if len(c.opts.ClusterCentroids) == 0 {
		return nil, fmt.Errorf("artificial initialization needs init alpha or cluster centroids")
	}
	nc := len(c.opts.ClusterCentroids)
	if c.rankPre%nc != 0 {
		return nil, fmt.Errorf("rank %d does not divide evenly over %d centroids", c.rankPre, nc)
	}

	reps := c.rankPre / nc
	alpha := make([]complex128, 0, c.rankPre)
	sign := 1.0
	for _, cen := range c.opts.ClusterCentroids {
		f := math.Sqrt(math.Abs(cen))
		for k := 0; k < reps; k++ {
			alpha = append(alpha, complex(0, sign*f))
			sign = -sign
		}
	}
	return alpha, nil
}

func (c *COSTS) fitSequential(ctx context.Context, data *mat.Dense, t []float64, kern []float64, initAlpha []complex128) error {
	seed := initAlpha
	for k := 0; k < c.plan.Slides; k++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := c.fitWindow(data, t, kern, k, seed)
		if err != nil {
			return fmt.Errorf("window %d fit failed: %w", k, err)
		}
		c.store(k, res, t)

		if c.opts.UseLastFreq {
			if c.opts.ResetAlphaInit {
				seed = initAlpha
			} else {
				seed = res.Eigs
			}
		}
	}
	return nil
}

func (c *COSTS) fitParallel(ctx context.Context, data *mat.Dense, t []float64, kern []float64, initAlpha []complex128) error {
	pool := workerpool.New(workerpool.Config{
		Name:      "window-fit",
		Workers:   c.opts.Workers,
		QueueSize: c.plan.Slides,
		Logger:    c.logger,
	})
	defer pool.Stop(30 * time.Second)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for k := 0; k < c.plan.Slides; k++ {
		k := k
		wg.Add(1)
		task := workerpool.Task{
			ID: fmt.Sprintf("window-%d", k),
			Fn: func(context.Context) error {
				defer wg.Done()
				res, err := c.fitWindow(data, t, kern, k, initAlpha)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("window %d fit failed: %w", k, err)
					}
					mu.Unlock()
					return err
				}
				c.store(k, res, t)
				return nil
			},
		}
		if err := pool.SubmitWait(ctx, task); err != nil {
			wg.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			break
		}
	}

	wg.Wait()
	return firstErr
}

// fitWindow extracts window k, removes the per-channel mean, applies the
// kern and runs the optimized DMD fit on a zero-based time vector.
func (c *COSTS) fitWindow(data *mat.Dense, t []float64, kern []float64, k int, seed []complex128) (*dmd.Result, error) {
	start, end := c.plan.Indices(k)
	length := end - start

	sub := mat.NewDense(c.nSpace, length, nil)
	means := make([]float64, c.nSpace)
	for i := 0; i < c.nSpace; i++ {
		sum := 0.0
		for j := 0; j < length; j++ {
			sum += data.At(i, start+j)
		}
		means[i] = sum / float64(length)
		for j := 0; j < length; j++ {
			sub.Set(i, j, (data.At(i, start+j)-means[i])*kern[j])
		}
	}

	tw := make([]float64, length)
	for j := range tw {
		tw[j] = t[start+j] - t[start]
	}

	rank := c.rankPre
	if !c.opts.GlobalSVD && c.opts.SVDRank < 1 {
		r, err := linalg.ComputeRank(sub, c.opts.SVDRank)
		if err != nil {
			return nil, err
		}
		if c.opts.ForceEvenEigs && r%2 == 1 {
			r++
		}
		if c.opts.MaxRank > 0 && r > c.opts.MaxRank {
			r = c.opts.MaxRank
		}
		if r > c.nSpace {
			r = c.nSpace
		}
		rank = r
	}

	// Seeds from a previous window or from centroids only transfer when
	// the rank matches; otherwise fall back to exact DMD initialization.
	initAlpha := seed
	if len(initAlpha) != rank {
		initAlpha = nil
	}

	dopts := dmd.Options{
		Rank:          rank,
		ProjBasis:     c.projBasis,
		UseProj:       c.opts.UseProj && c.projBasis != nil,
		InitAlpha:     initAlpha,
		Constraints:   c.opts.Constraints,
		VarPro:        c.opts.VarPro,
		Trials:        c.opts.Trials,
		TrialFraction: c.opts.TrialFraction,
		Seed:          c.opts.Seed + uint64(k),
	}

	fitStart := time.Now()
	res, err := dmd.Fit(sub, tw, dopts)
	if err != nil {
		return nil, err
	}
	if c.opts.Metrics != nil {
		c.opts.Metrics.RecordWindowFit(time.Since(fitStart).Seconds(), res.Iterations)
	}

	c.logger.Debug("window fitted",
		zap.Int("window", k),
		zap.Int("rank", res.Rank),
		zap.Int("iterations", res.Iterations))

	// Each window writes only its own slot, so this is safe from the pool
	// workers without locking.
	c.windowMeans[k] = means
	return res, nil
}

// store pads the window result out to the pre-allocation rank so every
// window occupies a uniform slot.
func (c *COSTS) store(k int, res *dmd.Result, t []float64) {
	start, end := c.plan.Indices(k)

	times := make([]float64, end-start)
	copy(times, t[start:end])

	omega := make([]complex128, c.rankPre)
	amps := make([]complex128, c.rankPre)
	modes := mat.NewCDense(c.nSpace, c.rankPre, nil)

	space, _ := res.Modes.Dims()
	for j := 0; j < res.Rank && j < c.rankPre; j++ {
		omega[j] = res.Eigs[j]
		amps[j] = res.Amplitudes[j]
		for i := 0; i < space && i < c.nSpace; i++ {
			modes.Set(i, j, res.Modes.At(i, j))
		}
	}

	c.timeArray[k] = times
	c.omega[k] = omega
	c.amplitudes[k] = amps
	c.modes[k] = modes
	c.windowRanks[k] = res.Rank
}
