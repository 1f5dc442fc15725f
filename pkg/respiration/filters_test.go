package respiration

import (
	"math"
	"testing"
)

func TestMedianFilterRemovesSpike(t *testing.T) {
	const w, h = 8, 8
	data := make([]float64, w*h)
	data[3*w+4] = 1000 // isolated hot pixel

	out := medianFilter2D(data, w, h, 3)
	for i, v := range out {
		if v != 0 {
			t.Errorf("pixel %d: spike survived median filtering, got %g", i, v)
		}
	}
}

func TestMedianFilterPreservesConstant(t *testing.T) {
	const w, h = 6, 5
	data := make([]float64, w*h)
	for i := range data {
		data[i] = 7
	}
	out := medianFilter2D(data, w, h, 5)
	for i, v := range out {
		if v != 7 {
			t.Errorf("pixel %d: constant image changed to %g", i, v)
		}
	}
}

func TestMedian(t *testing.T) {
	if got := median([]float64{3, 1, 2}); got != 2 {
		t.Errorf("odd-length median: got %g, want 2", got)
	}
	if got := median([]float64{4, 1, 3, 2}); got != 2.5 {
		t.Errorf("even-length median: got %g, want 2.5", got)
	}
	if got := median(nil); got != 0 {
		t.Errorf("empty median: got %g, want 0", got)
	}
}

func TestMovingAveragePreservesConstant(t *testing.T) {
	trace := []float64{5, 5, 5, 5, 5}
	for _, window := range []int{1, 3, 4, 99} {
		out := movingAverage(trace, window)
		for i, v := range out {
			if math.Abs(v-5) > 1e-12 {
				t.Errorf("window %d, sample %d: got %g, want 5", window, i, v)
			}
		}
	}
}

func TestGaussianSmoothPreservesConstant(t *testing.T) {
	trace := []float64{2, 2, 2, 2, 2, 2}
	out := gaussianSmooth(trace, 2)
	for i, v := range out {
		if math.Abs(v-2) > 1e-12 {
			t.Errorf("sample %d: got %g, want 2", i, v)
		}
	}
}

func TestGaussianSmoothZeroRadiusIsIdentity(t *testing.T) {
	trace := []float64{1, -3, 8, 0.5}
	out := gaussianSmooth(trace, 0)
	for i := range trace {
		if out[i] != trace[i] {
			t.Errorf("sample %d: got %g, want %g", i, out[i], trace[i])
		}
	}
}

func TestNormalizeAmplitude(t *testing.T) {
	trace := []float64{2, 4, 6}
	normalizeAmplitude(trace)
	want := []float64{-1, 0, 1}
	for i := range trace {
		if math.Abs(trace[i]-want[i]) > 1e-12 {
			t.Errorf("sample %d: got %g, want %g", i, trace[i], want[i])
		}
	}
}

func TestNormalizeAmplitudeFlatTrace(t *testing.T) {
	trace := []float64{3, 3, 3}
	normalizeAmplitude(trace)
	for i, v := range trace {
		if v != 0 {
			t.Errorf("sample %d: flat trace should normalize to 0, got %g", i, v)
		}
	}
}
