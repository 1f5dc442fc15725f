package resample

import (
	"math"
	"testing"
)

func TestFastLinearPassesThroughSamples(t *testing.T) {
	positions := []float64{0, 2.5, 5, 7.5}
	values := []float64{1, 4, 2, 8}
	grid := []float64{0, 2.5, 5, 7.5}
	out := make([]float64, len(grid))

	if err := (FastLinear{}).Interpolate(positions, values, grid, out); err != nil {
		t.Fatalf("interpolate failed: %v", err)
	}
	for i := range grid {
		if out[i] != values[i] {
			t.Errorf("grid point %g: got %g, want exactly %g", grid[i], out[i], values[i])
		}
	}
}

func TestFastLinearMidpoints(t *testing.T) {
	positions := []float64{0, 10}
	values := []float64{0, 100}
	grid := []float64{2.5, 5, 7.5}
	out := make([]float64, len(grid))

	if err := (FastLinear{}).Interpolate(positions, values, grid, out); err != nil {
		t.Fatalf("interpolate failed: %v", err)
	}
	want := []float64{25, 50, 75}
	for i := range grid {
		if math.Abs(out[i]-want[i]) > 1e-12 {
			t.Errorf("grid point %g: got %g, want %g", grid[i], out[i], want[i])
		}
	}
}

// Values outside the sampled range clamp to the nearest sample rather than
// extrapolating.
func TestFastLinearClampsAtBoundaries(t *testing.T) {
	positions := []float64{2, 4}
	values := []float64{10, 20}
	grid := []float64{0, 1, 5, 6}
	out := make([]float64, len(grid))

	if err := (FastLinear{}).Interpolate(positions, values, grid, out); err != nil {
		t.Fatalf("interpolate failed: %v", err)
	}
	want := []float64{10, 10, 20, 20}
	for i := range grid {
		if out[i] != want[i] {
			t.Errorf("grid point %g: got %g, want clamp to %g", grid[i], out[i], want[i])
		}
	}
}

func TestFastLinearAveragesDuplicatePositions(t *testing.T) {
	positions := []float64{0, 5, 5, 10}
	values := []float64{0, 2, 4, 10}
	grid := []float64{5}
	out := make([]float64, 1)

	if err := (FastLinear{}).Interpolate(positions, values, grid, out); err != nil {
		t.Fatalf("interpolate failed: %v", err)
	}
	if out[0] != 3 {
		t.Errorf("duplicate samples at 5 should average to 3, got %g", out[0])
	}
}

func TestFastLinearSingleSample(t *testing.T) {
	grid := []float64{0, 1, 2}
	out := make([]float64, len(grid))

	if err := (FastLinear{}).Interpolate([]float64{1}, []float64{7}, grid, out); err != nil {
		t.Fatalf("interpolate failed: %v", err)
	}
	for i := range out {
		if out[i] != 7 {
			t.Errorf("single sample should fill grid with 7, got %g at %g", out[i], grid[i])
		}
	}
}

func TestFastLinearNoSamples(t *testing.T) {
	out := make([]float64, 1)
	if err := (FastLinear{}).Interpolate(nil, nil, []float64{0}, out); err == nil {
		t.Fatal("expected error for empty sample set")
	}
}
