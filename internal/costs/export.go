package costs

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/ndemo/scalesep/internal/window"
)

// LevelData is the serializable form of a fitted decomposition level. The
// modes are stored row-major, one flattened space x rank matrix per window.
type LevelData struct {
	WindowLength int
	StepSize     int
	NumSpace     int
	NumTime      int
	Rank         int

	Time        [][]float64
	Means       [][]float64
	Omega       [][]complex128
	Amplitudes  [][]complex128
	Modes       [][]complex128
	WindowRanks []int

	NumBands  int
	Transform string
	Centroids []float64
	Classes   [][]int

	KernMethod           string
	CornerSharpness      float64
	RelativeFilterLength float64
}

// Export snapshots the fitted level into its serializable form.
func (c *COSTS) Export() (*LevelData, error) {
	if !c.fitted {
		return nil, fmt.Errorf("decomposition has not been fitted")
	}

	slides := c.plan.Slides
	d := &LevelData{
		WindowLength:         c.windowLength,
		StepSize:             c.stepSize,
		NumSpace:             c.nSpace,
		NumTime:              c.nTime,
		Rank:                 c.rankPre,
		Time:                 make([][]float64, slides),
		Means:                make([][]float64, slides),
		Omega:                make([][]complex128, slides),
		Amplitudes:           make([][]complex128, slides),
		Modes:                make([][]complex128, slides),
		WindowRanks:          append([]int(nil), c.windowRanks...),
		KernMethod:           c.opts.KernMethod,
		CornerSharpness:      c.opts.CornerSharpness,
		RelativeFilterLength: c.opts.RelativeFilterLength,
	}

	for k := 0; k < slides; k++ {
		d.Time[k] = append([]float64(nil), c.timeArray[k]...)
		d.Means[k] = append([]float64(nil), c.windowMeans[k]...)
		d.Omega[k] = append([]complex128(nil), c.omega[k]...)
		d.Amplitudes[k] = append([]complex128(nil), c.amplitudes[k]...)

		flat := make([]complex128, c.nSpace*c.rankPre)
		for i := 0; i < c.nSpace; i++ {
			for j := 0; j < c.rankPre; j++ {
				flat[i*c.rankPre+j] = c.modes[k].At(i, j)
			}
		}
		d.Modes[k] = flat
	}

	if c.clustered {
		d.NumBands = c.numBands
		d.Transform = c.transform
		d.Centroids = append([]float64(nil), c.centroids...)
		d.Classes = make([][]int, slides)
		for k := 0; k < slides; k++ {
			d.Classes[k] = append([]int(nil), c.classes[k]...)
		}
	}

	return d, nil
}

// FromExport rebuilds a level from its serialized form. The result supports
// the reconstruction methods but cannot be refitted.
func FromExport(d *LevelData) (*COSTS, error) {
	if d == nil {
		return nil, fmt.Errorf("nil level data")
	}
	if d.NumSpace <= 0 || d.NumTime <= 0 || d.Rank <= 0 {
		return nil, fmt.Errorf("invalid level dimensions %dx%d rank %d", d.NumSpace, d.NumTime, d.Rank)
	}

	opts := DefaultOptions()
	if d.KernMethod != "" {
		opts.KernMethod = d.KernMethod
	}
	if d.CornerSharpness != 0 {
		opts.CornerSharpness = d.CornerSharpness
	}
	if d.RelativeFilterLength != 0 {
		opts.RelativeFilterLength = d.RelativeFilterLength
	}

	c := New(d.WindowLength, d.StepSize, opts)
	c.nSpace = d.NumSpace
	c.nTime = d.NumTime
	c.rankPre = d.Rank

	plan, err := window.NewPlan(d.NumTime, d.WindowLength, d.StepSize)
	if err != nil {
		return nil, err
	}
	c.plan = plan

	slides := plan.Slides
	if len(d.Time) != slides || len(d.Omega) != slides || len(d.Amplitudes) != slides ||
		len(d.Modes) != slides || len(d.Means) != slides {
		return nil, fmt.Errorf("level data has inconsistent window counts for %d slides", slides)
	}

	c.timeArray = make([][]float64, slides)
	c.windowMeans = make([][]float64, slides)
	c.omega = make([][]complex128, slides)
	c.amplitudes = make([][]complex128, slides)
	c.modes = make([]*mat.CDense, slides)
	c.windowRanks = append([]int(nil), d.WindowRanks...)
	if len(c.windowRanks) != slides {
		return nil, fmt.Errorf("level data has %d window ranks for %d slides", len(c.windowRanks), slides)
	}

	for k := 0; k < slides; k++ {
		if len(d.Omega[k]) != d.Rank || len(d.Amplitudes[k]) != d.Rank {
			return nil, fmt.Errorf("window %d eigenvalue slots do not match rank %d", k, d.Rank)
		}
		if len(d.Modes[k]) != d.NumSpace*d.Rank {
			return nil, fmt.Errorf("window %d has %d mode entries, want %d", k, len(d.Modes[k]), d.NumSpace*d.Rank)
		}
		if len(d.Means[k]) != d.NumSpace {
			return nil, fmt.Errorf("window %d has %d means, want %d", k, len(d.Means[k]), d.NumSpace)
		}

		c.timeArray[k] = append([]float64(nil), d.Time[k]...)
		c.windowMeans[k] = append([]float64(nil), d.Means[k]...)
		c.omega[k] = append([]complex128(nil), d.Omega[k]...)
		c.amplitudes[k] = append([]complex128(nil), d.Amplitudes[k]...)
		c.modes[k] = mat.NewCDense(d.NumSpace, d.Rank, append([]complex128(nil), d.Modes[k]...))
	}
	c.fitted = true

	if d.NumBands > 0 {
		if len(d.Classes) != slides {
			return nil, fmt.Errorf("level data has %d class rows for %d slides", len(d.Classes), slides)
		}
		c.numBands = d.NumBands
		c.transform = d.Transform
		c.centroids = append([]float64(nil), d.Centroids...)
		c.classes = make([][]int, slides)
		for k := 0; k < slides; k++ {
			if len(d.Classes[k]) != d.Rank {
				return nil, fmt.Errorf("window %d has %d classes, want %d", k, len(d.Classes[k]), d.Rank)
			}
			c.classes[k] = append([]int(nil), d.Classes[k]...)
		}
		c.clustered = true
	}

	return c, nil
}
