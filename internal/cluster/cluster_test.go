package cluster

import (
	"math"
	"testing"
)

func TestTransformOmega(t *testing.T) {
	omega := []complex128{0.1 - 2i, 0.2 + 3i, 0 - 0.5i}

	tests := []struct {
		name   string
		method string
		want   []float64
	}{
		{"absolute", TransformAbsolute, []float64{2, 3, 0.5}},
		{"default is absolute", "", []float64{2, 3, 0.5}},
		{"square", TransformSquare, []float64{4, 9, 0.25}},
		{"period", TransformPeriod, []float64{0.5, 1.0 / 3.0, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TransformOmega(omega, tt.method)
			if err != nil {
				t.Fatalf("TransformOmega returned error: %v", err)
			}
			for i := range tt.want {
				if math.Abs(got[i]-tt.want[i]) > 1e-12 {
					t.Errorf("transform[%d] = %g, want %g", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestTransformOmegaLog10Imputation(t *testing.T) {
	// A zero imaginary part maps to -Inf under log10 and must be imputed
	// with the smallest finite value.
	omega := []complex128{0 + 10i, 0 + 1i, 0 + 0i}
	got, err := TransformOmega(omega, TransformLog10)
	if err != nil {
		t.Fatalf("TransformOmega returned error: %v", err)
	}
	if got[0] != 1 || got[1] != 0 {
		t.Errorf("log10 transform = %v, want [1 0 ...]", got)
	}
	if got[2] != 0 {
		t.Errorf("zero frequency imputed to %g, want smallest finite value 0", got[2])
	}
}

func TestTransformOmegaUnknown(t *testing.T) {
	if _, err := TransformOmega([]complex128{1i}, "cubed"); err == nil {
		t.Error("expected error for unknown transform")
	}
}

// twoBands builds values tightly grouped around 1.0 and 10.0.
func twoBands() []float64 {
	var values []float64
	for i := 0; i < 20; i++ {
		values = append(values, 1.0+0.01*float64(i%5))
		values = append(values, 10.0+0.01*float64(i%5))
	}
	return values
}

func TestBandsSeparatesGroups(t *testing.T) {
	values := twoBands()

	res, err := Bands(values, 2, TransformAbsolute)
	if err != nil {
		t.Fatalf("Bands returned error: %v", err)
	}

	if len(res.Centroids) != 2 {
		t.Fatalf("got %d centroids, want 2", len(res.Centroids))
	}
	if res.Centroids[0] >= res.Centroids[1] {
		t.Errorf("centroids not sorted ascending: %v", res.Centroids)
	}
	if math.Abs(res.Centroids[0]-1.02) > 0.1 || math.Abs(res.Centroids[1]-10.02) > 0.1 {
		t.Errorf("centroids = %v, want near [1.02 10.02]", res.Centroids)
	}

	// Every low value must land in class 0, every high value in class 1.
	for i, v := range values {
		want := 0
		if v > 5 {
			want = 1
		}
		if res.Classes[i] != want {
			t.Errorf("value %g classified as %d, want %d", v, res.Classes[i], want)
		}
	}
}

func TestBandsArgumentValidation(t *testing.T) {
	if _, err := Bands([]float64{1, 2, 3}, 1, ""); err == nil {
		t.Error("expected error for fewer than 2 bands")
	}
	if _, err := Bands([]float64{1, 2}, 3, ""); err == nil {
		t.Error("expected error when values cannot fill the bands")
	}
}

func TestSilhouettePrefersTrueSplit(t *testing.T) {
	values := twoBands()

	res2, err := Bands(values, 2, "")
	if err != nil {
		t.Fatalf("Bands returned error: %v", err)
	}
	score2 := Silhouette(values, res2.Classes, 2)

	if score2 < 0.9 {
		t.Errorf("silhouette for the true split = %g, want > 0.9", score2)
	}
}

func TestSweepBandCount(t *testing.T) {
	values := twoBands()

	n, err := SweepBandCount(values, []int{2, 3, 4}, "")
	if err != nil {
		t.Fatalf("SweepBandCount returned error: %v", err)
	}
	if n != 2 {
		t.Errorf("sweep selected %d bands, want 2", n)
	}
}

func TestCandidateRange(t *testing.T) {
	tests := []struct {
		rank int
		want []int
	}{
		{16, []int{4, 5, 6, 7, 8}},
		{8, []int{2, 3, 4}},
		{4, []int{2}},
		{2, []int{2}},
	}
	for _, tt := range tests {
		got := CandidateRange(tt.rank)
		if len(got) != len(tt.want) {
			t.Errorf("CandidateRange(%d) = %v, want %v", tt.rank, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("CandidateRange(%d) = %v, want %v", tt.rank, got, tt.want)
				break
			}
		}
	}
}
