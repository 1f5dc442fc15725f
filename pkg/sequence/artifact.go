package sequence

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"sweepvol/internal/models"
	"sweepvol/pkg/nifti"
)

// Save writes a slice sequence as a pair of files: a 3D NIfTI stack holding
// the slices in acquisition order and a CSV sidecar with per-slice position
// and acquisition index. This is the artifact boundary between the sort
// stage and the respiration stages, so each can be invoked on its own.
func Save(niiPath, csvPath string, seq *models.SliceSequence) error {
	pixels := seq.PixelCount()
	img := &nifti.Image{
		Nx:      seq.Width,
		Ny:      seq.Height,
		Nz:      len(seq.Slices),
		Nt:      1,
		Spacing: [4]float64{seq.Geom.Spacing[0], seq.Geom.Spacing[1], seq.Geom.Spacing[2], 0},
		Origin:  seq.Geom.Origin,
		Data:    make([]float64, pixels*len(seq.Slices)),
	}
	for i, s := range seq.Slices {
		copy(img.Data[i*pixels:(i+1)*pixels], s.Data)
	}
	if err := nifti.WriteImage(niiPath, img); err != nil {
		return err
	}

	f, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("creating sequence sidecar: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"acq_index", "position_mm"}); err != nil {
		return err
	}
	for _, s := range seq.Slices {
		rec := []string{
			strconv.Itoa(s.AcqIndex),
			strconv.FormatFloat(s.Position, 'g', -1, 64),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// Load reads a sequence artifact written by Save.
func Load(niiPath, csvPath string) (*models.SliceSequence, error) {
	img, err := nifti.ReadImage(niiPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening sequence sidecar: %v", models.ErrInput, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: reading sequence sidecar: %v", models.ErrInput, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: sequence sidecar has no slices", models.ErrInput)
	}
	records = records[1:] // header

	if len(records) != img.Nz {
		return nil, fmt.Errorf("%w: sidecar lists %d slices but stack holds %d", models.ErrInput, len(records), img.Nz)
	}

	seq := &models.SliceSequence{
		Width:  img.Nx,
		Height: img.Ny,
		Geom: models.Geometry{
			Origin:  img.Origin,
			Spacing: [3]float64{img.Spacing[0], img.Spacing[1], img.Spacing[2]},
		},
		Slices: make([]models.Slice, len(records)),
	}

	pixels := img.Nx * img.Ny
	for i, rec := range records {
		if len(rec) < 2 {
			return nil, fmt.Errorf("%w: malformed sidecar row %d", models.ErrInput, i+1)
		}
		acq, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("%w: bad acquisition index in row %d: %v", models.ErrInput, i+1, err)
		}
		pos, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad position in row %d: %v", models.ErrInput, i+1, err)
		}
		data := make([]float64, pixels)
		copy(data, img.Data[i*pixels:(i+1)*pixels])
		seq.Slices[i] = models.Slice{
			Position: pos,
			AcqIndex: acq,
			Data:     data,
			State:    models.StateUnset,
		}
	}

	return seq, nil
}
