package costs

import (
	"context"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/ndemo/scalesep/internal/dmd"
	"github.com/ndemo/scalesep/internal/window"
)

const (
	slowFreq = math.Pi / 2 // period 4s
	fastFreq = 2 * math.Pi // period 1s
)

// twoScale builds a noiseless two-frequency signal whose periods divide the
// 8s fitting window exactly, so window means vanish and a rank-4 fit is
// numerically exact.
func twoScale(nSpace, nTime int, dt float64) (data, slow, fast *mat.Dense, t []float64) {
	t = make([]float64, nTime)
	for i := range t {
		t[i] = float64(i) * dt
	}

	slow = mat.NewDense(nSpace, nTime, nil)
	fast = mat.NewDense(nSpace, nTime, nil)
	data = mat.NewDense(nSpace, nTime, nil)
	for i := 0; i < nSpace; i++ {
		for j, tv := range t {
			s := (1 + 0.1*float64(i)) * math.Cos(slowFreq*tv+0.3*float64(i))
			f := 0.5 * math.Cos(fastFreq*tv+0.5*float64(i))
			slow.Set(i, j, s)
			fast.Set(i, j, f)
			data.Set(i, j, s+f)
		}
	}
	return data, slow, fast, t
}

func exactOptions() Options {
	return Options{
		SVDRank:     4,
		GlobalSVD:   true,
		KernMethod:  window.KernMethodFlat,
		Constraints: dmd.Constraints{ConjugatePairs: true, Imag: true},
	}
}

func fitTwoScale(t *testing.T, opts Options) (*COSTS, *mat.Dense, *mat.Dense, *mat.Dense) {
	t.Helper()
	data, slow, fast, tv := twoScale(6, 480, 0.05)

	c := New(160, 80, opts)
	if err := c.Fit(context.Background(), data, tv); err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}
	return c, data, slow, fast
}

func TestFitRecoversFrequencies(t *testing.T) {
	c, _, _, _ := fitTwoScale(t, exactOptions())

	if c.Slides() != 5 {
		t.Fatalf("got %d slides, want 5", c.Slides())
	}
	if c.Rank() != 4 {
		t.Fatalf("got rank %d, want 4", c.Rank())
	}

	for k := 0; k < c.Slides(); k++ {
		var freqs []float64
		for _, w := range c.omega[k] {
			freqs = append(freqs, math.Abs(imag(w)))
		}
		slowHits, fastHits := 0, 0
		for _, f := range freqs {
			if math.Abs(f-slowFreq) < 1e-6 {
				slowHits++
			}
			if math.Abs(f-fastFreq) < 1e-6 {
				fastHits++
			}
		}
		if slowHits != 2 || fastHits != 2 {
			t.Errorf("window %d frequencies = %v, want two at %g and two at %g",
				k, freqs, slowFreq, fastFreq)
		}
	}
}

func TestClusterOmega(t *testing.T) {
	c, _, _, _ := fitTwoScale(t, exactOptions())

	if err := c.ClusterOmega(2, ""); err != nil {
		t.Fatalf("ClusterOmega returned error: %v", err)
	}

	cen := c.Centroids()
	if len(cen) != 2 {
		t.Fatalf("got %d centroids, want 2", len(cen))
	}
	if math.Abs(cen[0]-slowFreq) > 1e-3 || math.Abs(cen[1]-fastFreq) > 1e-3 {
		t.Errorf("centroids = %v, want near [%g %g]", cen, slowFreq, fastFreq)
	}

	// Every window carries one conjugate pair per band.
	for k := 0; k < c.Slides(); k++ {
		low := 0
		for _, class := range c.classes[k] {
			if class == 0 {
				low++
			}
		}
		if low != 2 {
			t.Errorf("window %d has %d low-band eigenvalues, want 2", k, low)
		}
	}
}

func TestScaleSeparation(t *testing.T) {
	c, _, slow, fast := fitTwoScale(t, exactOptions())
	if err := c.ClusterOmega(2, ""); err != nil {
		t.Fatalf("ClusterOmega returned error: %v", err)
	}

	low, high, err := c.ScaleSeparation(true)
	if err != nil {
		t.Fatalf("ScaleSeparation returned error: %v", err)
	}

	if rel := RelativeError(low, slow); rel > 1e-5 {
		t.Errorf("low band relative error = %g, want < 1e-5", rel)
	}
	if rel := RelativeError(high, fast); rel > 1e-5 {
		t.Errorf("high band relative error = %g, want < 1e-5", rel)
	}
}

func TestGlobalReconstruction(t *testing.T) {
	c, data, _, _ := fitTwoScale(t, exactOptions())
	if err := c.ClusterOmega(2, ""); err != nil {
		t.Fatalf("ClusterOmega returned error: %v", err)
	}

	recon, err := c.GlobalReconstruction()
	if err != nil {
		t.Fatalf("GlobalReconstruction returned error: %v", err)
	}
	if rel := RelativeError(recon, data); rel > 1e-5 {
		t.Errorf("global reconstruction relative error = %g, want < 1e-5", rel)
	}
}

func TestSuggestBandCount(t *testing.T) {
	c, _, _, _ := fitTwoScale(t, exactOptions())

	n, err := c.SuggestBandCount("")
	if err != nil {
		t.Fatalf("SuggestBandCount returned error: %v", err)
	}
	if n != 2 {
		t.Errorf("suggested %d bands, want 2", n)
	}
}

func TestParallelMatchesSequential(t *testing.T) {
	seq, _, _, _ := fitTwoScale(t, exactOptions())

	opts := exactOptions()
	opts.Workers = 4
	par, _, _, _ := fitTwoScale(t, opts)

	for k := 0; k < seq.Slides(); k++ {
		for i := range seq.omega[k] {
			d := seq.omega[k][i] - par.omega[k][i]
			if math.Hypot(real(d), imag(d)) > 1e-9 {
				t.Fatalf("window %d eigenvalue %d differs between sequential and parallel: %v vs %v",
					k, i, seq.omega[k][i], par.omega[k][i])
			}
		}
	}
}

func TestFitValidation(t *testing.T) {
	data, _, _, tv := twoScale(6, 480, 0.05)

	c := New(160, 80, exactOptions())
	if err := c.Fit(context.Background(), data, tv[:100]); err == nil {
		t.Error("expected error for mismatched time vector")
	}

	c = New(1000, 80, exactOptions())
	if err := c.Fit(context.Background(), data, tv); err == nil {
		t.Error("expected error for window longer than the series")
	}

	c = New(160, 80, exactOptions())
	if _, err := c.ScaleReconstruction(true); err == nil {
		t.Error("expected error for reconstruction before fit")
	}
	if err := c.ClusterOmega(2, ""); err == nil {
		t.Error("expected error for clustering before fit")
	}
}

func TestArtificialInitialization(t *testing.T) {
	opts := exactOptions()
	opts.InitializeArtificially = true
	opts.ClusterCentroids = []float64{slowFreq * slowFreq, fastFreq * fastFreq}

	c, _, _, _ := fitTwoScale(t, opts)
	if err := c.ClusterOmega(2, ""); err != nil {
		t.Fatalf("ClusterOmega returned error: %v", err)
	}

	cen := c.Centroids()
	if math.Abs(cen[0]-slowFreq) > 1e-2 || math.Abs(cen[1]-fastFreq) > 1e-2 {
		t.Errorf("centroids = %v, want near [%g %g]", cen, slowFreq, fastFreq)
	}
}

func TestArtificialInitializationValidation(t *testing.T) {
	opts := exactOptions()
	opts.InitializeArtificially = true

	data, _, _, tv := twoScale(6, 480, 0.05)
	c := New(160, 80, opts)
	if err := c.Fit(context.Background(), data, tv); err == nil {
		t.Error("expected error for artificial init without a seed")
	}

	opts.InitAlpha = []complex128{1i}
	c = New(160, 80, opts)
	if err := c.Fit(context.Background(), data, tv); err == nil {
		t.Error("expected error for init alpha shorter than the rank")
	}
}

func TestExportRoundTrip(t *testing.T) {
	c, _, _, _ := fitTwoScale(t, exactOptions())
	if err := c.ClusterOmega(2, ""); err != nil {
		t.Fatalf("ClusterOmega returned error: %v", err)
	}

	d, err := c.Export()
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}

	restored, err := FromExport(d)
	if err != nil {
		t.Fatalf("FromExport returned error: %v", err)
	}

	want, err := c.GlobalReconstruction()
	if err != nil {
		t.Fatalf("GlobalReconstruction returned error: %v", err)
	}
	got, err := restored.GlobalReconstruction()
	if err != nil {
		t.Fatalf("restored GlobalReconstruction returned error: %v", err)
	}

	m, n := want.Dims()
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			if math.Abs(got.At(i, j)-want.At(i, j)) > 1e-12 {
				t.Fatalf("restored reconstruction differs at (%d,%d): %g vs %g",
					i, j, got.At(i, j), want.At(i, j))
			}
		}
	}
}

func TestPeriods(t *testing.T) {
	c, _, _, _ := fitTwoScale(t, exactOptions())
	if err := c.ClusterOmega(2, ""); err != nil {
		t.Fatalf("ClusterOmega returned error: %v", err)
	}

	periods, err := c.Periods()
	if err != nil {
		t.Fatalf("Periods returned error: %v", err)
	}
	if len(periods) == 0 {
		t.Fatal("no periods returned")
	}
	want := 2 * math.Pi / fastFreq
	for _, p := range periods {
		if math.Abs(p-want) > 1e-5 {
			t.Errorf("period = %g, want %g", p, want)
		}
	}
}
