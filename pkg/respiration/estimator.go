// Package respiration derives a per-slice breathing surrogate from image
// content and quantizes it into discrete respiration states.
package respiration

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"sweepvol/internal/models"
	"sweepvol/pkg/sequence"
)

// Respiration frequency band in Hz used for the stable-breathing diagnostic.
const (
	respBandMin = 0.15
	respBandMax = 0.40
)

// EstimatorOptions control surrogate extraction.
type EstimatorOptions struct {
	// SmoothingRadius is the bounded-lag half-width, in samples, of the
	// Gaussian filter applied to the raw trace.
	SmoothingRadius int

	// SampleIntervalSec is the acquisition interval, used only for the
	// respiration-band diagnostic.
	SampleIntervalSec float64

	// MinVisits is the minimum number of temporal samples a slice-axis
	// position needs to contribute its own detrended trace. Positions below
	// this are filled by interpolation from temporal neighbors.
	MinVisits int
}

// Estimator derives a respiration surrogate for every slice of a sweep from
// image content alone, without an external physiological sensor.
//
// The surrogate is the body area of each slice: the count of foreground
// pixels after median filtering and background thresholding. Per-position
// traces are detrended against their own moving average so anatomy-dependent
// baseline differences between positions do not leak into the global trace.
type Estimator struct {
	opts EstimatorOptions
	log  *zap.Logger
}

// NewEstimator creates an estimator. A nil logger disables logging.
func NewEstimator(opts EstimatorOptions, log *zap.Logger) *Estimator {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MinVisits < 3 {
		opts.MinVisits = 3
	}
	return &Estimator{opts: opts, log: log}
}

// Estimate produces the respiration signal for a slice sequence. The output
// is total: every slice receives a surrogate value, with sparsely visited
// positions filled from temporally adjacent slices. The sequence's slices
// are annotated with their filtered surrogate as a side effect.
func (e *Estimator) Estimate(seq *models.SliceSequence) (*models.RespirationSignal, error) {
	n := len(seq.Slices)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty slice sequence", models.ErrInput)
	}

	// Raw per-slice feature.
	area := make([]float64, n)
	for i := range seq.Slices {
		area[i] = bodyArea(seq.Slices[i].Data, seq.Width, seq.Height)
	}

	// Detrend each position's time series against its own baseline. The
	// explicit position grouping is built once from the sorted input.
	detrended := make([]float64, n)
	defined := make([]bool, n)
	groups := sequence.PositionGroups(seq)
	gaps := 0
	for _, idxs := range groups {
		if len(idxs) < e.opts.MinVisits {
			gaps += len(idxs)
			continue
		}
		trace := make([]float64, len(idxs))
		for j, i := range idxs {
			trace[j] = area[i]
		}
		window := len(trace) / 3
		if window < 3 {
			window = 3
		}
		trend := movingAverage(trace, window)
		for j, i := range idxs {
			detrended[i] = trace[j] - trend[j]
			defined[i] = true
		}
	}
	if gaps > 0 {
		e.log.Info("filling estimation gaps from temporal neighbors",
			zap.Int("slices", gaps),
			zap.Int("minVisits", e.opts.MinVisits))
		fillGaps(detrended, defined)
	}

	filtered := gaussianSmooth(detrended, e.opts.SmoothingRadius)
	normalizeAmplitude(filtered)

	sig := &models.RespirationSignal{Points: make([]models.SignalPoint, n)}
	for i := range seq.Slices {
		sig.Points[i] = models.SignalPoint{
			AcqIndex: seq.Slices[i].AcqIndex,
			Raw:      area[i],
			Filtered: filtered[i],
		}
		seq.Slices[i].Surrogate = filtered[i]
		seq.Slices[i].HasSurrogate = true
	}

	if e.opts.SampleIntervalSec > 0 {
		frac := BandFraction(filtered, e.opts.SampleIntervalSec)
		e.log.Info("respiration band diagnostic",
			zap.Float64("bandFraction", frac),
			zap.Float64("bandMinHz", respBandMin),
			zap.Float64("bandMaxHz", respBandMax))
	}

	return sig, nil
}

// bodyArea counts foreground pixels in a slice. The background level is
// estimated from the top and bottom image rows, which lie outside the body
// for sagittal sweep acquisitions.
func bodyArea(data []float64, width, height int) float64 {
	filtered := medianFilter2D(data, width, height, 5)

	border := make([]float64, 0, 2*width)
	border = append(border, filtered[:width]...)
	border = append(border, filtered[(height-1)*width:]...)
	mean, std := stat.MeanStdDev(border, nil)
	if math.IsNaN(std) {
		std = 0
	}
	thresh := mean + 0.5*std

	count := 0.0
	for _, v := range filtered {
		if v > thresh {
			count++
		}
	}
	return count
}

// fillGaps linearly interpolates undefined samples from the nearest defined
// neighbors in acquisition order, clamping at the trace ends.
func fillGaps(trace []float64, defined []bool) {
	n := len(trace)
	prev := -1
	for i := 0; i < n; i++ {
		if defined[i] {
			prev = i
			continue
		}
		next := -1
		for j := i + 1; j < n; j++ {
			if defined[j] {
				next = j
				break
			}
		}
		switch {
		case prev < 0 && next < 0:
			trace[i] = 0
		case prev < 0:
			trace[i] = trace[next]
		case next < 0:
			trace[i] = trace[prev]
		default:
			t := float64(i-prev) / float64(next-prev)
			trace[i] = trace[prev]*(1-t) + trace[next]*t
		}
	}
}

// BandFraction returns the fraction of spectral power that falls inside the
// respiration frequency band for a trace sampled at dtSec intervals. Values
// near 1 indicate regular breathing dominating the surrogate.
func BandFraction(trace []float64, dtSec float64) float64 {
	n := len(trace)
	if n < 4 || dtSec <= 0 {
		return 0
	}
	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, trace)

	total, band := 0.0, 0.0
	for i := 1; i < len(coeffs); i++ {
		p := real(coeffs[i])*real(coeffs[i]) + imag(coeffs[i])*imag(coeffs[i])
		total += p
		freq := fft.Freq(i) / dtSec
		if freq >= respBandMin && freq <= respBandMax {
			band += p
		}
	}
	if total == 0 {
		return 0
	}
	return band / total
}
