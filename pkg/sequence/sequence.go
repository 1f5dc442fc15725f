// Package sequence converts a 4D sweep acquisition (slice position x dynamic
// repetition) into the time-ordered slice sequence consumed by the
// respiration and resampling stages.
package sequence

import (
	"fmt"

	"sweepvol/internal/models"
	"sweepvol/pkg/nifti"
)

// ReshapeSweep orders the slices of a 4D acquisition by acquisition time.
// The sweep protocol acquires every dynamic of a slice position before
// stepping to the next position, so acquisition index z*nt + t reproduces
// the scanner ordering. The native slice step comes from the z pixdim.
func ReshapeSweep(img *nifti.Image) (*models.SliceSequence, error) {
	if img.Nt < 2 {
		return nil, fmt.Errorf("%w: sweep reshaping needs at least 2 dynamics, got %d", models.ErrInput, img.Nt)
	}
	if img.Nz < 2 {
		return nil, fmt.Errorf("%w: sweep reshaping needs at least 2 slice positions, got %d", models.ErrInput, img.Nz)
	}
	step := img.Spacing[2]
	if step <= 0 {
		return nil, fmt.Errorf("%w: non-positive slice step %g mm; the sweep must progress linearly", models.ErrInput, step)
	}

	seq := &models.SliceSequence{
		Width:  img.Nx,
		Height: img.Ny,
		Geom: models.Geometry{
			Origin:  img.Origin,
			Spacing: [3]float64{img.Spacing[0], img.Spacing[1], step},
		},
		Slices: make([]models.Slice, 0, img.Nz*img.Nt),
	}

	pixels := img.Nx * img.Ny
	sliceSize := pixels * img.Nz
	for z := 0; z < img.Nz; z++ {
		pos := img.Origin[2] + float64(z)*step
		for t := 0; t < img.Nt; t++ {
			data := make([]float64, pixels)
			base := t*sliceSize + z*pixels
			copy(data, img.Data[base:base+pixels])

			seq.Slices = append(seq.Slices, models.Slice{
				Position: pos,
				AcqIndex: z*img.Nt + t,
				Data:     data,
				State:    models.StateUnset,
			})
		}
	}

	return seq, nil
}

// PositionGroups maps each distinct slice-axis position to the indices of
// its slices in acquisition order. Built once from the sorted input so later
// stages never depend on incidental run ordering.
func PositionGroups(seq *models.SliceSequence) map[float64][]int {
	groups := make(map[float64][]int)
	for i, s := range seq.Slices {
		groups[s.Position] = append(groups[s.Position], i)
	}
	return groups
}
