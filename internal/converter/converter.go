// Package converter maps the in-memory decomposition types to their JSON
// wire form. Complex values are flattened to explicit re/im pairs since
// encoding/json has no complex support.
package converter

import (
	"fmt"

	"github.com/ndemo/scalesep/internal/costs"
)

// Complex is the wire form of a complex number.
type Complex struct {
	Re float64 `json:"re"`
	Im float64 `json:"im"`
}

// LevelPayload is the wire form of a fitted decomposition level.
type LevelPayload struct {
	WindowLength int `json:"window_length"`
	StepSize     int `json:"step_size"`
	NumSpace     int `json:"num_space"`
	NumTime      int `json:"num_time"`
	Rank         int `json:"rank"`

	Time        [][]float64 `json:"time"`
	Means       [][]float64 `json:"means"`
	Omega       [][]Complex `json:"omega"`
	Amplitudes  [][]Complex `json:"amplitudes"`
	Modes       [][]Complex `json:"modes"`
	WindowRanks []int       `json:"window_ranks"`

	NumBands  int       `json:"num_bands,omitempty"`
	Transform string    `json:"transform,omitempty"`
	Centroids []float64 `json:"centroids,omitempty"`
	Classes   [][]int   `json:"classes,omitempty"`

	KernMethod           string  `json:"kern_method,omitempty"`
	CornerSharpness      float64 `json:"corner_sharpness,omitempty"`
	RelativeFilterLength float64 `json:"relative_filter_length,omitempty"`
}

// FromLevel converts a level snapshot to its wire form.
func FromLevel(d *costs.LevelData) *LevelPayload {
	p := &LevelPayload{
		WindowLength:         d.WindowLength,
		StepSize:             d.StepSize,
		NumSpace:             d.NumSpace,
		NumTime:              d.NumTime,
		Rank:                 d.Rank,
		Time:                 d.Time,
		Means:                d.Means,
		Omega:                complexRows(d.Omega),
		Amplitudes:           complexRows(d.Amplitudes),
		Modes:                complexRows(d.Modes),
		WindowRanks:          d.WindowRanks,
		NumBands:             d.NumBands,
		Transform:            d.Transform,
		Centroids:            d.Centroids,
		Classes:              d.Classes,
		KernMethod:           d.KernMethod,
		CornerSharpness:      d.CornerSharpness,
		RelativeFilterLength: d.RelativeFilterLength,
	}
	return p
}

// ToLevel converts a wire payload back to a level snapshot.
func ToLevel(p *LevelPayload) (*costs.LevelData, error) {
	if p == nil {
		return nil, fmt.Errorf("nil level payload")
	}
	d := &costs.LevelData{
		WindowLength:         p.WindowLength,
		StepSize:             p.StepSize,
		NumSpace:             p.NumSpace,
		NumTime:              p.NumTime,
		Rank:                 p.Rank,
		Time:                 p.Time,
		Means:                p.Means,
		Omega:                complexFromRows(p.Omega),
		Amplitudes:           complexFromRows(p.Amplitudes),
		Modes:                complexFromRows(p.Modes),
		WindowRanks:          p.WindowRanks,
		NumBands:             p.NumBands,
		Transform:            p.Transform,
		Centroids:            p.Centroids,
		Classes:              p.Classes,
		KernMethod:           p.KernMethod,
		CornerSharpness:      p.CornerSharpness,
		RelativeFilterLength: p.RelativeFilterLength,
	}
	return d, nil
}

func complexRows(rows [][]complex128) [][]Complex {
	out := make([][]Complex, len(rows))
	for i, row := range rows {
		out[i] = make([]Complex, len(row))
		for j, v := range row {
			out[i][j] = Complex{Re: real(v), Im: imag(v)}
		}
	}
	return out
}

func complexFromRows(rows [][]Complex) [][]complex128 {
	out := make([][]complex128, len(rows))
	for i, row := range rows {
		out[i] = make([]complex128, len(row))
		for j, v := range row {
			out[i][j] = complex(v.Re, v.Im)
		}
	}
	return out
}
