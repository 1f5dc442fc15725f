// Package models defines the data types shared by the sweepvol pipeline stages.
package models

// StateUnset marks a slice that has not been assigned a respiration state,
// either because classification has not run yet or because the slice was
// discarded by the stable-range crop.
const StateUnset = -1

// Slice is a single 2D image acquired at one point of the sweep.
// Position and Data are immutable once the slice is created; Surrogate and
// State are filled in by the respiration stages.
type Slice struct {
	// Position is the slice-axis coordinate in mm.
	Position float64

	// AcqIndex is the acquisition index in time order.
	AcqIndex int

	// Data holds the 2D image in row-major order (Width*Height values).
	Data []float64

	// Surrogate is the respiration surrogate value, valid once HasSurrogate
	// is true.
	Surrogate    float64
	HasSurrogate bool

	// State is the respiration state index, or StateUnset.
	State int
}

// Geometry carries the spatial metadata of an acquisition: the scanner-space
// origin and the voxel spacing per axis in mm. Orientation beyond a single
// slice axis is out of scope; axes are assumed scanner-aligned.
type Geometry struct {
	Origin  [3]float64
	Spacing [3]float64
}

// SliceSequence is a time-ordered sequence of slices sharing one in-plane
// grid, produced by the sort stage.
type SliceSequence struct {
	Width  int
	Height int

	// Geom is the geometry of the source acquisition. Spacing[2] is the
	// native slice step of the sweep, not the output thickness.
	Geom Geometry

	Slices []Slice
}

// PixelCount returns the number of in-plane pixels per slice.
func (s *SliceSequence) PixelCount() int { return s.Width * s.Height }

// SignalPoint is one sample of the respiration surrogate signal.
type SignalPoint struct {
	AcqIndex int
	Raw      float64
	Filtered float64
}

// RespirationSignal is the per-slice surrogate trace, ordered by acquisition
// index and aligned 1:1 with the slice sequence it was derived from.
type RespirationSignal struct {
	Points []SignalPoint
}

// Len returns the number of samples in the signal.
func (r *RespirationSignal) Len() int { return len(r.Points) }

// Filtered returns the filtered surrogate values in acquisition order.
func (r *RespirationSignal) Filtered() []float64 {
	out := make([]float64, len(r.Points))
	for i, p := range r.Points {
		out[i] = p.Filtered
	}
	return out
}

// StateAssignment maps every slice of a sequence to a respiration state.
// States[i] corresponds to Slices[i] of the originating sequence and is
// StateUnset for slices discarded by cropping.
type StateAssignment struct {
	NStates int
	States  []int
}

// Counts returns the number of slices assigned to each state.
func (a *StateAssignment) Counts() []int {
	counts := make([]int, a.NStates)
	for _, s := range a.States {
		if s != StateUnset {
			counts[s]++
		}
	}
	return counts
}

// Retained returns the number of slices that survived cropping.
func (a *StateAssignment) Retained() int {
	n := 0
	for _, s := range a.States {
		if s != StateUnset {
			n++
		}
	}
	return n
}

// Volume is a reconstructed 3D volume with isotropic voxel spacing.
// Immutable after creation.
type Volume struct {
	// Data holds voxels in row-major order: index = z*Nx*Ny + y*Nx + x.
	Data []float64

	Nx, Ny, Nz int

	Geom Geometry

	// State is the respiration state this volume was reconstructed for.
	State int
}

// At returns the voxel value at (x, y, z).
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[z*v.Nx*v.Ny+y*v.Nx+x]
}

// CropRegion is a contiguous slice-axis position range retained before
// classification and resampling.
type CropRegion struct {
	Min, Max float64
}

// Contains reports whether a position falls inside the region.
func (c CropRegion) Contains(pos float64) bool {
	return pos >= c.Min && pos <= c.Max
}
