package resample

import (
	"fmt"
	"sort"
)

// FastLinear interpolates linearly along the slice axis. Outside the sampled
// position range the value clamps to the nearest sample; clamping was chosen
// over linear extrapolation because sparse extreme-phase states would
// otherwise amplify noise at the volume boundaries.
type FastLinear struct{}

// Name returns the configuration name of the method.
func (FastLinear) Name() string { return "fast_linear" }

// Interpolate fills out with values of the piecewise-linear interpolant of
// (positions, values) evaluated at grid points. Duplicate positions are
// treated as repeated samples and averaged.
func (FastLinear) Interpolate(positions, values, grid, out []float64) error {
	xs, ys, err := dedupeSamples(positions, values)
	if err != nil {
		return err
	}

	if len(xs) == 1 {
		for k := range grid {
			out[k] = ys[0]
		}
		return nil
	}

	for k, g := range grid {
		switch {
		case g <= xs[0]:
			out[k] = ys[0]
		case g >= xs[len(xs)-1]:
			out[k] = ys[len(ys)-1]
		default:
			j := sort.SearchFloat64s(xs, g)
			if xs[j] == g {
				out[k] = ys[j]
				continue
			}
			t := (g - xs[j-1]) / (xs[j] - xs[j-1])
			out[k] = ys[j-1]*(1-t) + ys[j]*t
		}
	}
	return nil
}

// dedupeSamples sorts samples by position and averages values sharing the
// same position, returning strictly increasing abscissae.
func dedupeSamples(positions, values []float64) (xs, ys []float64, err error) {
	if len(positions) == 0 {
		return nil, nil, fmt.Errorf("no samples to interpolate")
	}
	if len(positions) != len(values) {
		return nil, nil, fmt.Errorf("sample count mismatch: %d positions, %d values", len(positions), len(values))
	}

	order := make([]int, len(positions))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return positions[order[a]] < positions[order[b]] })

	xs = make([]float64, 0, len(positions))
	ys = make([]float64, 0, len(positions))
	i := 0
	for i < len(order) {
		p := positions[order[i]]
		sum, count := 0.0, 0
		for i < len(order) && positions[order[i]] == p {
			sum += values[order[i]]
			count++
			i++
		}
		xs = append(xs, p)
		ys = append(ys, sum/float64(count))
	}
	return xs, ys, nil
}
