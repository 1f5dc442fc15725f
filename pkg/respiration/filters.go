package respiration

import (
	"math"
	"sort"
)

// medianFilter2D applies an in-plane median filter with the given odd kernel
// size. Borders use the truncated neighborhood. The raw surrogate is robust
// to banding artifacts in balanced sequences when fed median-filtered slices.
func medianFilter2D(data []float64, width, height, kernel int) []float64 {
	if kernel < 3 {
		out := make([]float64, len(data))
		copy(out, data)
		return out
	}
	radius := kernel / 2
	out := make([]float64, len(data))
	window := make([]float64, 0, kernel*kernel)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			window = window[:0]
			for dy := -radius; dy <= radius; dy++ {
				ny := y + dy
				if ny < 0 || ny >= height {
					continue
				}
				for dx := -radius; dx <= radius; dx++ {
					nx := x + dx
					if nx < 0 || nx >= width {
						continue
					}
					window = append(window, data[ny*width+nx])
				}
			}
			out[y*width+x] = median(window)
		}
	}
	return out
}

// median returns the median of values. The slice is sorted in place.
func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sort.Float64s(values)
	if n%2 == 0 {
		return (values[n/2-1] + values[n/2]) / 2
	}
	return values[n/2]
}

// movingAverage computes a centered moving average with the given odd window
// length, shrinking the window near the ends of the trace.
func movingAverage(trace []float64, window int) []float64 {
	if window < 1 {
		window = 1
	}
	if window%2 == 0 {
		window++
	}
	radius := window / 2
	out := make([]float64, len(trace))
	for i := range trace {
		lo := i - radius
		if lo < 0 {
			lo = 0
		}
		hi := i + radius
		if hi >= len(trace) {
			hi = len(trace) - 1
		}
		sum := 0.0
		for j := lo; j <= hi; j++ {
			sum += trace[j]
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}

// gaussianSmooth applies a centered Gaussian-weighted filter with bounded lag
// radius. The kernel shrinks near trace boundaries so the output stays total.
func gaussianSmooth(trace []float64, radius int) []float64 {
	if radius < 1 {
		out := make([]float64, len(trace))
		copy(out, trace)
		return out
	}
	sigma := float64(radius) / 2.0
	kernel := make([]float64, 2*radius+1)
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
	}

	out := make([]float64, len(trace))
	for i := range trace {
		sum, wsum := 0.0, 0.0
		for j := -radius; j <= radius; j++ {
			k := i + j
			if k < 0 || k >= len(trace) {
				continue
			}
			w := kernel[j+radius]
			sum += w * trace[k]
			wsum += w
		}
		out[i] = sum / wsum
	}
	return out
}

// normalizeAmplitude rescales a trace to [-1, 1] in place. A flat trace maps
// to all zeros.
func normalizeAmplitude(trace []float64) {
	if len(trace) == 0 {
		return
	}
	lo, hi := trace[0], trace[0]
	for _, v := range trace {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	if span <= 0 {
		for i := range trace {
			trace[i] = 0
		}
		return
	}
	for i := range trace {
		trace[i] = 2*(trace[i]-lo)/span - 1
	}
}
