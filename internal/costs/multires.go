package costs

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/ndemo/scalesep/internal/errors"
)

// LevelSpec describes one decomposition level of a multi-resolution run.
type LevelSpec struct {
	WindowLength int
	StepSize     int
	// NumBands is the frequency band count for the level. Zero selects it
	// by silhouette sweep.
	NumBands int
	// Transform of the eigenvalues used for clustering. Empty means
	// absolute value.
	Transform string
	// SVDRank overrides the shared options for this level. Each level
	// loses the bands already separated out, so later levels usually fit
	// a lower rank.
	SVDRank float64
}

// MultiRes holds a chained multi-resolution decomposition: each level fits
// the low-frequency remainder of the previous one.
type MultiRes struct {
	Levels []*COSTS
	// Highs is the high-frequency component each level separated out.
	Highs []*mat.Dense
	// Background is the low-frequency remainder after the last level.
	Background *mat.Dense

	nSpace int
	nTime  int
}

// FitLevels runs the decomposition chain. Window lengths must strictly
// increase between levels: each level resolves the fast scales its window
// can see and hands the slower remainder to the next, longer window.
func FitLevels(ctx context.Context, data *mat.Dense, t []float64, specs []LevelSpec, opts Options) (*MultiRes, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("no decomposition levels specified")
	}
	for i := 1; i < len(specs); i++ {
		if specs[i].WindowLength <= specs[i-1].WindowLength {
			return nil, fmt.Errorf("window lengths must increase between levels, got %d after %d",
				specs[i].WindowLength, specs[i-1].WindowLength)
		}
	}
	opts.setDefaults()
	logger := opts.Logger

	nSpace, nTime := data.Dims()
	m := &MultiRes{
		Levels: make([]*COSTS, 0, len(specs)),
		Highs:  make([]*mat.Dense, 0, len(specs)),
		nSpace: nSpace,
		nTime:  nTime,
	}

	current := data
	for li, spec := range specs {
		logger.Info("fitting decomposition level",
			zap.Int("level", li),
			zap.Int("window_length", spec.WindowLength),
			zap.Int("step_size", spec.StepSize))

		levelOpts := opts
		if spec.SVDRank != 0 {
			levelOpts.SVDRank = spec.SVDRank
		}
		level := New(spec.WindowLength, spec.StepSize, levelOpts)
		if err := level.Fit(ctx, current, t); err != nil {
			return nil, fmt.Errorf("level %d fit failed: %w", li, err)
		}

		nBands := spec.NumBands
		if nBands == 0 {
			n, err := level.SuggestBandCount(spec.Transform)
			if err != nil {
				return nil, errors.ClusteringFailed(fmt.Sprintf("level %d band sweep failed", li), err)
			}
			nBands = n
		}
		if err := level.ClusterOmega(nBands, spec.Transform); err != nil {
			return nil, errors.ClusteringFailed(fmt.Sprintf("level %d clustering failed", li), err)
		}

		low, high, err := level.ScaleSeparation(true)
		if err != nil {
			return nil, fmt.Errorf("level %d scale separation failed: %w", li, err)
		}

		m.Levels = append(m.Levels, level)
		m.Highs = append(m.Highs, high)
		current = low
	}
	m.Background = current

	return m, nil
}

// GlobalReconstruction rebuilds the input as the sum of every level's
// high-frequency component plus the final low-frequency background.
func (m *MultiRes) GlobalReconstruction() *mat.Dense {
	out := mat.NewDense(m.nSpace, m.nTime, nil)
	out.Copy(m.Background)
	for _, h := range m.Highs {
		out.Add(out, h)
	}
	return out
}

// Export snapshots every fitted level.
func (m *MultiRes) Export() ([]*LevelData, error) {
	out := make([]*LevelData, len(m.Levels))
	for i, level := range m.Levels {
		d, err := level.Export()
		if err != nil {
			return nil, fmt.Errorf("exporting level %d: %w", i, err)
		}
		out[i] = d
	}
	return out, nil
}
