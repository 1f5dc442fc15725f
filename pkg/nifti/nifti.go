// Package nifti reads and writes a pragmatic subset of the NIfTI-1 format:
// single-file little-endian .nii images with scalar voxel types. This is
// enough to round-trip sweep acquisitions and reconstructed volumes while
// preserving spacing and origin metadata.
package nifti

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"sweepvol/internal/models"
)

// NIfTI-1 datatype codes supported by the reader.
const (
	dtUint8   = 2
	dtInt16   = 4
	dtInt32   = 8
	dtFloat32 = 16
	dtFloat64 = 64
	dtUint16  = 512
)

const headerSize = 348

// header is the on-disk NIfTI-1 header layout. Field names follow the
// standard; unused fields are kept so the struct stays exactly 348 bytes.
type header struct {
	SizeofHdr    int32
	DataType     [10]byte
	DBName       [18]byte
	Extents      int32
	SessionError int16
	Regular      byte
	DimInfo      byte
	Dim          [8]int16
	IntentP1     float32
	IntentP2     float32
	IntentP3     float32
	IntentCode   int16
	Datatype     int16
	Bitpix       int16
	SliceStart   int16
	Pixdim       [8]float32
	VoxOffset    float32
	SclSlope     float32
	SclInter     float32
	SliceEnd     int16
	SliceCode    byte
	XyztUnits    byte
	CalMax       float32
	CalMin       float32
	SliceDur     float32
	Toffset      float32
	Glmax        int32
	Glmin        int32
	Descrip      [80]byte
	AuxFile      [24]byte
	QformCode    int16
	SformCode    int16
	QuaternB     float32
	QuaternC     float32
	QuaternD     float32
	QoffsetX     float32
	QoffsetY     float32
	QoffsetZ     float32
	SrowX        [4]float32
	SrowY        [4]float32
	SrowZ        [4]float32
	IntentName   [16]byte
	Magic        [4]byte
}

// Image is a decoded NIfTI image of up to four dimensions, with voxel data
// converted to float64. X varies fastest, then Y, Z and T.
type Image struct {
	Nx, Ny, Nz, Nt int

	// Spacing holds the voxel step per axis in mm (and seconds for T).
	Spacing [4]float64

	// Origin is the scanner-space position of voxel (0,0,0).
	Origin [3]float64

	Data []float64
}

// VoxelCount returns the total number of voxels.
func (img *Image) VoxelCount() int { return img.Nx * img.Ny * img.Nz * img.Nt }

// ReadImage decodes a .nii file. Errors are input errors in the pipeline's
// taxonomy: they abort the run before stage execution.
func ReadImage(path string) (*Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", models.ErrInput, path, err)
	}
	if len(raw) < headerSize {
		return nil, fmt.Errorf("%w: %s: file shorter than NIfTI-1 header", models.ErrInput, path)
	}

	var hdr header
	if err := binary.Read(bytes.NewReader(raw[:headerSize]), binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: %s: decoding header: %v", models.ErrInput, path, err)
	}
	if hdr.SizeofHdr != headerSize {
		return nil, fmt.Errorf("%w: %s: not a little-endian NIfTI-1 file (sizeof_hdr=%d)", models.ErrInput, path, hdr.SizeofHdr)
	}
	if hdr.Magic[0] != 'n' || (hdr.Magic[1] != '+' && hdr.Magic[1] != 'i') || hdr.Magic[2] != '1' {
		return nil, fmt.Errorf("%w: %s: bad NIfTI magic %q", models.ErrInput, path, hdr.Magic[:3])
	}

	ndim := int(hdr.Dim[0])
	if ndim < 2 || ndim > 4 {
		return nil, fmt.Errorf("%w: %s: unsupported dimensionality %d", models.ErrInput, path, ndim)
	}

	img := &Image{Nx: int(hdr.Dim[1]), Ny: int(hdr.Dim[2]), Nz: 1, Nt: 1}
	if ndim >= 3 {
		img.Nz = int(hdr.Dim[3])
	}
	if ndim >= 4 {
		img.Nt = int(hdr.Dim[4])
	}
	if img.Nx < 1 || img.Ny < 1 || img.Nz < 1 || img.Nt < 1 {
		return nil, fmt.Errorf("%w: %s: non-positive dimension in %v", models.ErrInput, path, hdr.Dim[1:5])
	}

	for i := 0; i < 4; i++ {
		img.Spacing[i] = float64(hdr.Pixdim[i+1])
	}
	if hdr.SformCode > 0 {
		img.Origin = [3]float64{float64(hdr.SrowX[3]), float64(hdr.SrowY[3]), float64(hdr.SrowZ[3])}
	} else if hdr.QformCode > 0 {
		img.Origin = [3]float64{float64(hdr.QoffsetX), float64(hdr.QoffsetY), float64(hdr.QoffsetZ)}
	}

	offset := int(hdr.VoxOffset)
	if offset < headerSize {
		offset = headerSize + 4
	}
	n := img.VoxelCount()
	bytesPer := int(hdr.Bitpix) / 8
	if bytesPer <= 0 {
		return nil, fmt.Errorf("%w: %s: invalid bitpix %d", models.ErrInput, path, hdr.Bitpix)
	}
	if len(raw) < offset+n*bytesPer {
		return nil, fmt.Errorf("%w: %s: truncated voxel data (%d bytes, need %d)", models.ErrInput, path, len(raw)-offset, n*bytesPer)
	}
	body := raw[offset : offset+n*bytesPer]

	img.Data = make([]float64, n)
	switch hdr.Datatype {
	case dtUint8:
		for i := 0; i < n; i++ {
			img.Data[i] = float64(body[i])
		}
	case dtInt16:
		for i := 0; i < n; i++ {
			img.Data[i] = float64(int16(binary.LittleEndian.Uint16(body[i*2:])))
		}
	case dtUint16:
		for i := 0; i < n; i++ {
			img.Data[i] = float64(binary.LittleEndian.Uint16(body[i*2:]))
		}
	case dtInt32:
		for i := 0; i < n; i++ {
			img.Data[i] = float64(int32(binary.LittleEndian.Uint32(body[i*4:])))
		}
	case dtFloat32:
		for i := 0; i < n; i++ {
			img.Data[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:])))
		}
	case dtFloat64:
		for i := 0; i < n; i++ {
			img.Data[i] = math.Float64frombits(binary.LittleEndian.Uint64(body[i*8:]))
		}
	default:
		return nil, fmt.Errorf("%w: %s: unsupported datatype %d", models.ErrInput, path, hdr.Datatype)
	}

	// Apply intensity scaling if present. A zero slope means "unset".
	slope := float64(hdr.SclSlope)
	inter := float64(hdr.SclInter)
	if slope != 0 && (slope != 1 || inter != 0) {
		for i := range img.Data {
			img.Data[i] = img.Data[i]*slope + inter
		}
	}

	return img, nil
}

// WriteVolume encodes a reconstructed volume as a float32 .nii file with an
// sform carrying its isotropic spacing and origin.
func WriteVolume(path string, v *models.Volume) error {
	img := &Image{
		Nx:      v.Nx,
		Ny:      v.Ny,
		Nz:      v.Nz,
		Nt:      1,
		Spacing: [4]float64{v.Geom.Spacing[0], v.Geom.Spacing[1], v.Geom.Spacing[2], 0},
		Origin:  v.Geom.Origin,
		Data:    v.Data,
	}
	return WriteImage(path, img)
}

// WriteImage encodes an image as a single-file float32 NIfTI-1 volume.
func WriteImage(path string, img *Image) error {
	if len(img.Data) != img.VoxelCount() {
		return fmt.Errorf("nifti: data length %d does not match dimensions %dx%dx%dx%d",
			len(img.Data), img.Nx, img.Ny, img.Nz, img.Nt)
	}

	hdr := header{
		SizeofHdr: headerSize,
		Regular:   'r',
		Datatype:  dtFloat32,
		Bitpix:    32,
		VoxOffset: headerSize + 4,
		SclSlope:  1,
		SformCode: 1,
		QformCode: 0,
		Magic:     [4]byte{'n', '+', '1', 0},
	}
	ndim := int16(3)
	if img.Nt > 1 {
		ndim = 4
	}
	hdr.Dim = [8]int16{ndim, int16(img.Nx), int16(img.Ny), int16(img.Nz), int16(img.Nt), 1, 1, 1}
	hdr.Pixdim = [8]float32{1,
		float32(img.Spacing[0]), float32(img.Spacing[1]), float32(img.Spacing[2]), float32(img.Spacing[3]),
		1, 1, 1}
	hdr.SrowX = [4]float32{float32(img.Spacing[0]), 0, 0, float32(img.Origin[0])}
	hdr.SrowY = [4]float32{0, float32(img.Spacing[1]), 0, float32(img.Origin[1])}
	hdr.SrowZ = [4]float32{0, 0, float32(img.Spacing[2]), float32(img.Origin[2])}
	copy(hdr.Descrip[:], "sweepvol")

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("nifti: encoding header: %w", err)
	}
	// Empty extension flag.
	buf.Write([]byte{0, 0, 0, 0})

	voxels := make([]byte, 4*len(img.Data))
	for i, v := range img.Data {
		binary.LittleEndian.PutUint32(voxels[i*4:], math.Float32bits(float32(v)))
	}
	buf.Write(voxels)

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("nifti: writing %s: %w", path, err)
	}
	return nil
}
