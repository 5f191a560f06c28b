package archive

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ndemo/scalesep/internal/costs"
	"github.com/ndemo/scalesep/internal/errors"
)

func sampleLevel(windowLength int) *costs.LevelData {
	return &costs.LevelData{
		WindowLength: windowLength,
		StepSize:     windowLength / 2,
		NumSpace:     2,
		NumTime:      windowLength * 2,
		Rank:         2,
		Time:         [][]float64{{0, 0.1}, {0.1, 0.2}},
		Means:        [][]float64{{0.5, -0.5}, {0.25, -0.25}},
		Omega:        [][]complex128{{1i, -1i}, {2i, -2i}},
		Amplitudes:   [][]complex128{{1, 1}, {0.5, 0.5}},
		Modes: [][]complex128{
			{1, 0, 0, 1},
			{0.5 + 0.5i, 0, 0, 0.5 - 0.5i},
		},
		WindowRanks: []int{2, 2},
		NumBands:    2,
		Transform:   "absolute",
		Centroids:   []float64{1, 2},
		Classes:     [][]int{{0, 0}, {1, 1}},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decomp.ssa")

	levels := []*costs.LevelData{sampleLevel(16), sampleLevel(32)}
	if err := Write(path, levels); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d levels, want 2", len(got))
	}

	for li, want := range levels {
		g := got[li]
		if g.WindowLength != want.WindowLength || g.StepSize != want.StepSize ||
			g.Rank != want.Rank || g.NumBands != want.NumBands {
			t.Errorf("level %d header mismatch: %+v", li, g)
		}
		for k := range want.Omega {
			for i := range want.Omega[k] {
				if g.Omega[k][i] != want.Omega[k][i] {
					t.Errorf("level %d omega[%d][%d] = %v, want %v",
						li, k, i, g.Omega[k][i], want.Omega[k][i])
				}
			}
		}
		for k := range want.Modes {
			for i := range want.Modes[k] {
				d := g.Modes[k][i] - want.Modes[k][i]
				if math.Hypot(real(d), imag(d)) > 0 {
					t.Errorf("level %d modes[%d][%d] = %v, want %v",
						li, k, i, g.Modes[k][i], want.Modes[k][i])
				}
			}
		}
	}
}

func TestReaderLevelOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decomp.ssa")
	if err := Write(path, []*costs.LevelData{sampleLevel(16)}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader returned error: %v", err)
	}
	defer r.Close()

	if r.NumLevels() != 1 {
		t.Fatalf("got %d levels, want 1", r.NumLevels())
	}
	if _, err := r.Level(1); err == nil {
		t.Error("expected error for out-of-range level")
	}
	if _, err := r.Level(-1); err == nil {
		t.Error("expected error for negative level")
	}
}

func TestReaderDetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decomp.ssa")
	if err := Write(path, []*costs.LevelData{sampleLevel(16)}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	// Flip a byte in the middle of the data block.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}
	raw[len(raw)/2] ^= 0xFF
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("writing corrupted archive: %v", err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader returned error: %v", err)
	}
	defer r.Close()

	_, err = r.Level(0)
	if err == nil {
		t.Fatal("expected checksum error for corrupted block")
	}
	if code := errors.GetCode(err); code != errors.ErrCodeChecksumFailed {
		t.Errorf("error code = %d, want %d", code, errors.ErrCodeChecksumFailed)
	}

	// The convenience loader surfaces the same code through its wrapping.
	if _, err := Read(path); errors.GetCode(err) != errors.ErrCodeChecksumFailed {
		t.Errorf("Read error code = %d, want %d", errors.GetCode(err), errors.ErrCodeChecksumFailed)
	}
}

func TestReaderMissingIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decomp.ssa")
	if err := Write(path, []*costs.LevelData{sampleLevel(16)}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if err := os.Remove(path + ".idx"); err != nil {
		t.Fatalf("removing index: %v", err)
	}

	if _, err := NewReader(path); err == nil {
		t.Error("expected error when the index file is missing")
	}
}
