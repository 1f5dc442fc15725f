package report

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"

	"sweepvol/internal/models"
)

// MidSlice extracts the central slice-axis plane of a volume as a 16-bit
// grayscale image, rescaled to the volume's intensity range.
func MidSlice(vol *models.Volume) image.Image {
	z := vol.Nz / 2
	lo, hi := intensityRange(vol.Data)
	span := hi - lo
	if span <= 0 {
		span = 1
	}

	img := image.NewGray16(image.Rect(0, 0, vol.Nx, vol.Ny))
	for y := 0; y < vol.Ny; y++ {
		for x := 0; x < vol.Nx; x++ {
			v := (vol.At(x, y, z) - lo) / span
			img.SetGray16(x, y, color.Gray16{Y: uint16(v * 65535)})
		}
	}
	return img
}

// SavePreview writes the mid-volume slice as a JPEG file.
func SavePreview(path string, vol *models.Volume) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating preview file: %w", err)
	}
	defer f.Close()
	return jpeg.Encode(f, MidSlice(vol), &jpeg.Options{Quality: 90})
}

func intensityRange(data []float64) (lo, hi float64) {
	if len(data) == 0 {
		return 0, 0
	}
	lo, hi = data[0], data[0]
	for _, v := range data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
