package respiration

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"sweepvol/internal/models"
)

// ClassifierOptions control state quantization.
type ClassifierOptions struct {
	// NStates is the number of discrete respiration states to produce.
	NStates int

	// DisableCrop turns off the data-driven stable-range crop.
	DisableCrop bool

	// CropPercentile is the surrogate tail fraction (per side, percent)
	// discarded when cropping is enabled.
	CropPercentile float64

	// Region optionally restricts classification to a contiguous slice-axis
	// position range. Nil means the full range.
	Region *models.CropRegion
}

// Classifier partitions slices into balanced respiration states by
// equal-occupancy quantization of the surrogate signal.
type Classifier struct {
	opts ClassifierOptions
	log  *zap.Logger
}

// NewClassifier creates a classifier. A nil logger disables logging.
func NewClassifier(opts ClassifierOptions, log *zap.Logger) *Classifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{opts: opts, log: log}
}

// Classify assigns every retained slice to exactly one state. Equal-occupancy
// binning keeps per-state counts within one of each other, so extreme-phase
// states that are visited less often are never starved. Ties at bin
// boundaries break by acquisition index, making repeated runs on identical
// input bit-identical.
//
// Fails with a configuration error when a state would receive zero slices.
// The sequence's slices are annotated with their state as a side effect.
func (c *Classifier) Classify(seq *models.SliceSequence, sig *models.RespirationSignal) (*models.StateAssignment, error) {
	n := len(seq.Slices)
	if sig.Len() != n {
		return nil, fmt.Errorf("%w: signal length %d does not match slice count %d", models.ErrInput, sig.Len(), n)
	}
	if c.opts.NStates < 1 {
		return nil, fmt.Errorf("%w: n_states must be at least 1, got %d", models.ErrConfig, c.opts.NStates)
	}

	retained := make([]int, 0, n)
	for i := range seq.Slices {
		if c.opts.Region != nil && !c.opts.Region.Contains(seq.Slices[i].Position) {
			continue
		}
		retained = append(retained, i)
	}

	if !c.opts.DisableCrop && len(retained) > 0 {
		lo, hi := c.stableRange(sig, retained)
		pre := len(retained)
		kept := retained[:0]
		for _, i := range retained {
			v := sig.Points[i].Filtered
			if v >= lo && v <= hi {
				kept = append(kept, i)
			}
		}
		c.log.Info("stable-range crop",
			zap.Float64("low", lo),
			zap.Float64("high", hi),
			zap.Int("before", pre),
			zap.Int("after", len(kept)))
		retained = kept
	}

	if len(retained) < c.opts.NStates {
		return nil, fmt.Errorf("%w: %d states requested but only %d slices retained; every state needs at least one slice",
			models.ErrConfig, c.opts.NStates, len(retained))
	}

	// Equal-occupancy binning: stable order by surrogate, acquisition index
	// breaking ties, then contiguous runs whose sizes differ by at most one.
	sort.SliceStable(retained, func(a, b int) bool {
		va, vb := sig.Points[retained[a]].Filtered, sig.Points[retained[b]].Filtered
		if va != vb {
			return va < vb
		}
		return seq.Slices[retained[a]].AcqIndex < seq.Slices[retained[b]].AcqIndex
	})

	asg := &models.StateAssignment{
		NStates: c.opts.NStates,
		States:  make([]int, n),
	}
	for i := range asg.States {
		asg.States[i] = models.StateUnset
	}

	base := len(retained) / c.opts.NStates
	rem := len(retained) % c.opts.NStates
	pos := 0
	for s := 0; s < c.opts.NStates; s++ {
		count := base
		if s < rem {
			count++
		}
		for j := 0; j < count; j++ {
			idx := retained[pos]
			asg.States[idx] = s
			seq.Slices[idx].State = s
			pos++
		}
	}

	c.log.Info("state assignment complete",
		zap.Int("nStates", c.opts.NStates),
		zap.Ints("occupancy", asg.Counts()))

	return asg, nil
}

// stableRange returns the surrogate interval kept by the crop: the central
// [p, 100-p] percentile band of the retained samples.
func (c *Classifier) stableRange(sig *models.RespirationSignal, retained []int) (lo, hi float64) {
	values := make([]float64, len(retained))
	for j, i := range retained {
		values[j] = sig.Points[i].Filtered
	}
	sort.Float64s(values)
	p := c.opts.CropPercentile / 100
	lo = stat.Quantile(p, stat.Empirical, values, nil)
	hi = stat.Quantile(1-p, stat.Empirical, values, nil)
	return lo, hi
}
