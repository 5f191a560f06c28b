// Package window implements the sliding-window machinery for the
// decomposition: slide planning, index ranges and the two convolution
// kernels applied before fitting and during reconstruction.
package window

import (
	"fmt"
	"math"
)

// Kern methods for pre-fit corner rounding.
const (
	KernMethodKern = "kern"
	KernMethodFlat = "flat"
)

// DefaultCornerSharpness controls how sharply the tanh kern rounds the
// window edges towards zero.
const DefaultCornerSharpness = 16.0

// Direction selects the edge-of-domain variants of the reconstruction
// filter.
type Direction string

const (
	// DirectionNone applies the full Gaussian filter.
	DirectionNone Direction = ""
	// DirectionBackward leaves the leading half of the filter flat. Used
	// for the first window so errors do not pile up at the start of the
	// time domain.
	DirectionBackward Direction = "backward"
	// DirectionForward leaves the trailing half of the filter flat. Used
	// for the last window.
	DirectionForward Direction = "forward"
)

// Plan describes how sliding windows tile a time series.
type Plan struct {
	NumTime int
	Length  int
	Step    int
	// Slides is the total number of windows, including the trailing
	// window when the slides do not tile the series exactly.
	Slides int
	// Trailing indicates that the last window is anchored to the end of
	// the series rather than stepped from the previous one.
	Trailing bool
}

// NewPlan computes the slide count for a series of nTime steps.
func NewPlan(nTime, length, step int) (*Plan, error) {
	if length <= 0 || step <= 0 {
		return nil, fmt.Errorf("window length (%d) and step (%d) must be positive", length, step)
	}
	if length > nTime {
		return nil, fmt.Errorf("window length (%d) is larger than the time dimension (%d)", length, nTime)
	}

	slides := (nTime-length)/step + 1

	p := &Plan{
		NumTime: nTime,
		Length:  length,
		Step:    step,
		Slides:  slides,
	}

	// If the windows do not span the series in an integer number of
	// slides, add a last window with a smaller step relative to the
	// others.
	if rem := nTime - (step*(slides-1) + length); rem > 0 {
		p.Slides++
		p.Trailing = true
	}

	return p, nil
}

// Indices returns the half-open index range [start, end) of window k. The
// trailing window, when present, always covers the last Length samples.
func (p *Plan) Indices(k int) (start, end int) {
	if p.Trailing && k == p.Slides-1 {
		return p.NumTime - p.Length, p.NumTime
	}
	start = p.Step * k
	return start, start + p.Length
}

// LVKern builds the pre-fit kerning window that shrinks the data towards
// zero at the window edges, suppressing spurious real eigenvalue
// components. method "flat" disables the weighting.
func LVKern(length int, cornerSharpness float64, method string) ([]float64, error) {
	if cornerSharpness <= 0 {
		cornerSharpness = DefaultCornerSharpness
	}

	kern := make([]float64, length)
	switch method {
	case KernMethodKern:
		l := float64(length)
		for i := range kern {
			x := float64(i)
			kern[i] = math.Tanh(cornerSharpness*x/l) -
				math.Tanh(cornerSharpness*(x-l+1)/l) - 1
		}
	case KernMethodFlat:
		for i := range kern {
			kern[i] = 1
		}
	default:
		return nil, fmt.Errorf("unrecognized kern method %q: valid options are %q and %q",
			method, KernMethodFlat, KernMethodKern)
	}

	return kern, nil
}

// ReconFilter builds the Gaussian filter used to blend windowed
// reconstructions. Points in the middle of a window are more reliable than
// its edges, so the filter de-emphasizes the edges. relativeFilterLength
// controls the sharpness: larger values weight the middle more strongly.
func ReconFilter(length int, relativeFilterLength float64, direction Direction) ([]float64, error) {
	if relativeFilterLength <= 0 {
		return nil, fmt.Errorf("relative filter length must be positive, got %g", relativeFilterLength)
	}

	sd := float64(length) / relativeFilterLength
	filter := make([]float64, length)
	for i := range filter {
		d := float64(i) - (float64(length)-1)/2
		filter[i] = math.Exp(-d * d / (sd * sd))
	}

	switch direction {
	case DirectionNone:
	case DirectionForward:
		// Keep the trailing half flat so the last window anchors the end
		// of the time domain.
		for i := length / 2; i < length; i++ {
			filter[i] = 1
		}
	case DirectionBackward:
		// Keep the leading half flat for the first window.
		for i := 0; i < length/2; i++ {
			filter[i] = 1
		}
	default:
		return nil, fmt.Errorf("unrecognized direction %q: valid options are %q, %q and none",
			direction, DirectionForward, DirectionBackward)
	}

	return filter, nil
}
