// Package resample reconstructs one isotropic 3D volume per respiration
// state from the sparse, irregularly spaced slices assigned to that state.
package resample

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"sweepvol/internal/models"
)

// Method is the per-pixel resampling contract: irregular slice-axis samples
// in, values on the regular output grid out. Implementations must be safe
// for concurrent use.
type Method interface {
	Name() string
	Interpolate(positions, values, grid, out []float64) error
}

// NewMethod returns the method registered under the given configuration
// name: "fast_linear" or "rbf".
func NewMethod(name string) (Method, error) {
	switch name {
	case "fast_linear":
		return FastLinear{}, nil
	case "rbf":
		return RBF{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown interpolation method %q", models.ErrConfig, name)
	}
}

// Options configure a Resampler.
type Options struct {
	// Thickness is the output grid spacing along the slice axis in mm,
	// which is also the isotropic voxel spacing of the output volumes.
	Thickness float64

	// Method selects the interpolation strategy by name.
	Method string

	// Workers is the size of the worker pool. Values below 1 fall back to
	// cpu_count-1.
	Workers int
}

// Stats reports recovered numerical conditions of a resampling run.
type Stats struct {
	// RBFFallbacks counts pixels whose RBF system stayed unsolvable after
	// regularization and were filled by the fast_linear fallback.
	RBFFallbacks int64

	// HardFailures counts pixels that could not be resampled at all and
	// were zero-filled. Always zero for well-formed inputs.
	HardFailures int64
}

// Resampler reconstructs per-state isotropic volumes.
type Resampler struct {
	opts   Options
	method Method
	log    *zap.Logger
}

// New validates the options and creates a resampler. A nil logger disables
// logging.
func New(opts Options, log *zap.Logger) (*Resampler, error) {
	if opts.Thickness <= 0 {
		return nil, fmt.Errorf("%w: output thickness must be positive, got %g", models.ErrConfig, opts.Thickness)
	}
	method, err := NewMethod(opts.Method)
	if err != nil {
		return nil, err
	}
	if opts.Workers < 1 {
		opts.Workers = runtime.NumCPU() - 1
		if opts.Workers < 1 {
			opts.Workers = 1
		}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Resampler{opts: opts, method: method, log: log}, nil
}

// Resample builds one volume per state. All volumes share a single output
// grid spanning the retained position range, so their slice-axis voxel
// counts are identical and state-to-state comparison is direct.
//
// Work is partitioned by (state, in-plane row); every worker writes a
// disjoint region of the output, so results are deterministic and
// independent of worker completion order. Per-pixel failures are contained:
// they fall back or zero-fill without corrupting sibling partitions.
func (r *Resampler) Resample(seq *models.SliceSequence, asg *models.StateAssignment) ([]*models.Volume, Stats, error) {
	if len(asg.States) != len(seq.Slices) {
		return nil, Stats{}, fmt.Errorf("%w: assignment length %d does not match slice count %d",
			models.ErrInput, len(asg.States), len(seq.Slices))
	}

	stateSlices := make([][]int, asg.NStates)
	zmin, zmax := math.Inf(1), math.Inf(-1)
	for i, s := range asg.States {
		if s == models.StateUnset {
			continue
		}
		stateSlices[s] = append(stateSlices[s], i)
		p := seq.Slices[i].Position
		if p < zmin {
			zmin = p
		}
		if p > zmax {
			zmax = p
		}
	}
	for s, idxs := range stateSlices {
		if len(idxs) == 0 {
			return nil, Stats{}, fmt.Errorf("%w: state %d has no slices; cannot resample", models.ErrConfig, s)
		}
	}

	grid := buildGrid(zmin, zmax, r.opts.Thickness)
	nz := len(grid)

	volumes := make([]*models.Volume, asg.NStates)
	statePositions := make([][]float64, asg.NStates)
	for s := range volumes {
		volumes[s] = &models.Volume{
			Data: make([]float64, seq.Width*seq.Height*nz),
			Nx:   seq.Width,
			Ny:   seq.Height,
			Nz:   nz,
			Geom: models.Geometry{
				Origin:  [3]float64{seq.Geom.Origin[0], seq.Geom.Origin[1], zmin},
				Spacing: [3]float64{seq.Geom.Spacing[0], seq.Geom.Spacing[1], r.opts.Thickness},
			},
			State: s,
		}
		positions := make([]float64, len(stateSlices[s]))
		for j, idx := range stateSlices[s] {
			positions[j] = seq.Slices[idx].Position
		}
		statePositions[s] = positions
	}

	r.log.Info("resampling states",
		zap.String("method", r.method.Name()),
		zap.Int("states", asg.NStates),
		zap.Int("gridSlices", nz),
		zap.Float64("thickness", r.opts.Thickness),
		zap.Int("workers", r.opts.Workers))

	type job struct{ state, row int }
	jobs := make(chan job)

	var fallbacks, hardFailures atomic.Int64
	var wg sync.WaitGroup
	fallback := FastLinear{}

	for w := 0; w < r.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := make([]float64, nz)
			var values []float64

			for jb := range jobs {
				idxs := stateSlices[jb.state]
				positions := statePositions[jb.state]
				vol := volumes[jb.state]
				if cap(values) < len(idxs) {
					values = make([]float64, len(idxs))
				}
				values = values[:len(idxs)]

				rowOffset := jb.row * seq.Width
				for x := 0; x < seq.Width; x++ {
					for j, idx := range idxs {
						values[j] = seq.Slices[idx].Data[rowOffset+x]
					}

					err := r.method.Interpolate(positions, values, grid, out)
					if err != nil {
						err = fallback.Interpolate(positions, values, grid, out)
						if err == nil {
							fallbacks.Add(1)
						}
					}
					if err != nil {
						for k := range out {
							out[k] = 0
						}
						hardFailures.Add(1)
					}

					for k := 0; k < nz; k++ {
						vol.Data[k*seq.Width*seq.Height+rowOffset+x] = out[k]
					}
				}
			}
		}()
	}

	for s := 0; s < asg.NStates; s++ {
		for y := 0; y < seq.Height; y++ {
			jobs <- job{state: s, row: y}
		}
	}
	close(jobs)
	wg.Wait()

	stats := Stats{RBFFallbacks: fallbacks.Load(), HardFailures: hardFailures.Load()}
	if stats.RBFFallbacks > 0 {
		r.log.Warn("rbf systems fell back to linear interpolation",
			zap.Int64("pixels", stats.RBFFallbacks))
	}
	if stats.HardFailures > 0 {
		r.log.Warn("pixels zero-filled after interpolation failure",
			zap.Int64("pixels", stats.HardFailures))
	}

	return volumes, stats, nil
}

// buildGrid returns the regular slice-axis grid spanning [zmin, zmax] at the
// given spacing. The last grid point never exceeds zmax.
func buildGrid(zmin, zmax, spacing float64) []float64 {
	n := int(math.Floor((zmax-zmin)/spacing+1e-9)) + 1
	if n < 1 {
		n = 1
	}
	grid := make([]float64, n)
	for k := range grid {
		grid[k] = zmin + float64(k)*spacing
	}
	return grid
}
