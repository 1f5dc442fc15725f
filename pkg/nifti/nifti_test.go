package nifti

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"sweepvol/internal/models"
)

func writeTestImage(t *testing.T, img *Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.nii")
	require.NoError(t, WriteImage(path, img))
	return path
}

func TestRoundTrip4D(t *testing.T) {
	img := &Image{
		Nx:      3,
		Ny:      2,
		Nz:      4,
		Nt:      2,
		Spacing: [4]float64{1.5, 1.5, 2.5, 0.5},
		Origin:  [3]float64{1, 2, 3},
		Data:    make([]float64, 3*2*4*2),
	}
	for i := range img.Data {
		img.Data[i] = float64(i)
	}

	got, err := ReadImage(writeTestImage(t, img))
	require.NoError(t, err)
	require.Equal(t, img.Nx, got.Nx)
	require.Equal(t, img.Ny, got.Ny)
	require.Equal(t, img.Nz, got.Nz)
	require.Equal(t, img.Nt, got.Nt)
	require.Equal(t, img.Spacing[:3], got.Spacing[:3])
	require.Equal(t, img.Origin, got.Origin)
	require.Equal(t, img.Data, got.Data)
}

func TestRoundTrip3D(t *testing.T) {
	img := &Image{
		Nx:      2,
		Ny:      2,
		Nz:      3,
		Nt:      1,
		Spacing: [4]float64{1, 1, 2, 0},
		Origin:  [3]float64{-5, 0, 12},
		Data:    []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
	}

	got, err := ReadImage(writeTestImage(t, img))
	require.NoError(t, err)
	require.Equal(t, 3, got.Nz)
	require.Equal(t, 1, got.Nt)
	require.Equal(t, img.Data, got.Data)
}

func TestWriteVolume(t *testing.T) {
	vol := &models.Volume{
		Data: []float64{0, 1, 2, 3, 4, 5, 6, 7},
		Nx:   2, Ny: 2, Nz: 2,
		Geom: models.Geometry{
			Origin:  [3]float64{1, 2, 3},
			Spacing: [3]float64{2.5, 2.5, 2.5},
		},
		State: 1,
	}
	path := filepath.Join(t.TempDir(), "state_01.nii")
	require.NoError(t, WriteVolume(path, vol))

	got, err := ReadImage(path)
	require.NoError(t, err)
	require.Equal(t, [3]float64{1, 2, 3}, got.Origin)
	require.Equal(t, 2.5, got.Spacing[2])
	require.Equal(t, vol.Data, got.Data)
}

func TestWriteRejectsSizeMismatch(t *testing.T) {
	img := &Image{Nx: 2, Ny: 2, Nz: 2, Nt: 1, Data: []float64{1, 2}}
	err := WriteImage(filepath.Join(t.TempDir(), "bad.nii"), img)
	require.Error(t, err)
}

func TestReadRejectsBadMagic(t *testing.T) {
	img := &Image{Nx: 2, Ny: 2, Nz: 2, Nt: 1, Data: make([]float64, 8)}
	path := writeTestImage(t, img)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[344] = 'x' // magic lives in the last 4 header bytes
	require.NoError(t, os.WriteFile(path, raw, 0644))

	_, err = ReadImage(path)
	require.True(t, errors.Is(err, models.ErrInput), "bad magic: %v", err)
}

func TestReadRejectsTruncatedData(t *testing.T) {
	img := &Image{Nx: 4, Ny: 4, Nz: 4, Nt: 1, Data: make([]float64, 64)}
	path := writeTestImage(t, img)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw[:len(raw)-40], 0644))

	_, err = ReadImage(path)
	require.True(t, errors.Is(err, models.ErrInput), "truncated data: %v", err)
}

func TestReadRejectsShortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.nii")
	require.NoError(t, os.WriteFile(path, []byte("not a nifti"), 0644))
	_, err := ReadImage(path)
	require.True(t, errors.Is(err, models.ErrInput))
}
