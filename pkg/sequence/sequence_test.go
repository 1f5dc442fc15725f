package sequence

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"sweepvol/internal/models"
	"sweepvol/pkg/nifti"
)

// sweepImage builds a 4D acquisition whose voxel values encode their
// (z, t, pixel) coordinates, so ordering mistakes surface as value mismatches.
func sweepImage(nx, ny, nz, nt int) *nifti.Image {
	img := &nifti.Image{
		Nx:      nx,
		Ny:      ny,
		Nz:      nz,
		Nt:      nt,
		Spacing: [4]float64{1.5, 1.5, 5, 0.5},
		Origin:  [3]float64{0, 0, 7},
		Data:    make([]float64, nx*ny*nz*nt),
	}
	pixels := nx * ny
	for t := 0; t < nt; t++ {
		for z := 0; z < nz; z++ {
			for p := 0; p < pixels; p++ {
				img.Data[t*pixels*nz+z*pixels+p] = float64(z*100 + t*10 + p)
			}
		}
	}
	return img
}

func TestReshapeSweepOrdering(t *testing.T) {
	img := sweepImage(2, 2, 3, 2)
	seq, err := ReshapeSweep(img)
	require.NoError(t, err)

	require.Equal(t, 2, seq.Width)
	require.Equal(t, 2, seq.Height)
	require.Equal(t, [3]float64{1.5, 1.5, 5}, seq.Geom.Spacing)
	require.Len(t, seq.Slices, 6)

	// Every dynamic of a position precedes the next position.
	i := 0
	for z := 0; z < 3; z++ {
		for dyn := 0; dyn < 2; dyn++ {
			s := seq.Slices[i]
			require.Equal(t, i, s.AcqIndex)
			require.Equal(t, 7+float64(z)*5, s.Position)
			for p, v := range s.Data {
				require.Equal(t, float64(z*100+dyn*10+p), v, "slice %d pixel %d", i, p)
			}
			i++
		}
	}
}

func TestReshapeSweepRejectsDegenerateInput(t *testing.T) {
	single := sweepImage(2, 2, 3, 1)
	_, err := ReshapeSweep(single)
	require.True(t, errors.Is(err, models.ErrInput), "single dynamic: %v", err)

	flat := sweepImage(2, 2, 1, 4)
	_, err = ReshapeSweep(flat)
	require.True(t, errors.Is(err, models.ErrInput), "single position: %v", err)

	noStep := sweepImage(2, 2, 3, 2)
	noStep.Spacing[2] = 0
	_, err = ReshapeSweep(noStep)
	require.True(t, errors.Is(err, models.ErrInput), "zero slice step: %v", err)
}

func TestPositionGroups(t *testing.T) {
	seq, err := ReshapeSweep(sweepImage(2, 2, 3, 4))
	require.NoError(t, err)

	groups := PositionGroups(seq)
	require.Len(t, groups, 3)
	for pos, idxs := range groups {
		require.Len(t, idxs, 4, "position %g", pos)
		for _, i := range idxs {
			require.Equal(t, pos, seq.Slices[i].Position)
		}
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	dir := t.TempDir()
	niiPath := filepath.Join(dir, "sequence.nii")
	csvPath := filepath.Join(dir, "sequence.csv")

	seq, err := ReshapeSweep(sweepImage(2, 2, 3, 2))
	require.NoError(t, err)
	require.NoError(t, Save(niiPath, csvPath, seq))

	loaded, err := Load(niiPath, csvPath)
	require.NoError(t, err)
	require.Equal(t, seq.Width, loaded.Width)
	require.Equal(t, seq.Height, loaded.Height)
	require.Len(t, loaded.Slices, len(seq.Slices))
	for i := range seq.Slices {
		require.Equal(t, seq.Slices[i].AcqIndex, loaded.Slices[i].AcqIndex)
		require.Equal(t, seq.Slices[i].Position, loaded.Slices[i].Position)
		require.Equal(t, seq.Slices[i].Data, loaded.Slices[i].Data)
	}
}

func TestLoadRejectsMismatchedSidecar(t *testing.T) {
	dir := t.TempDir()
	niiPath := filepath.Join(dir, "sequence.nii")
	csvPath := filepath.Join(dir, "sequence.csv")

	seq, err := ReshapeSweep(sweepImage(2, 2, 3, 2))
	require.NoError(t, err)
	require.NoError(t, Save(niiPath, csvPath, seq))

	// Sidecar from a shorter sequence.
	short := &models.SliceSequence{Width: 2, Height: 2, Geom: seq.Geom, Slices: seq.Slices[:2]}
	require.NoError(t, Save(filepath.Join(dir, "short.nii"), csvPath, short))

	_, err = Load(niiPath, csvPath)
	require.True(t, errors.Is(err, models.ErrInput))
}
