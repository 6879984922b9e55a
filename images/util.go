package images

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// FromMat converts an 8-bit OpenCV matrix into a raw float32 tensor.
//
// Three channel matrices are converted from OpenCV's BGR order to RGB and
// produce a (rows, cols, 3) tensor; single channel matrices produce a
// (rows, cols) tensor. Values are kept in [0, 255].
//
// Arguments:
//   - mat: The matrix to convert. It is not closed.
//
// Returns:
//   - *tensor.Dense: The raw pixels.
//   - error: ErrInvalidImage if the matrix is empty or has an unsupported type.
func FromMat(mat gocv.Mat) (*tensor.Dense, error) {
	if mat.Empty() {
		return nil, errors.Wrap(ErrInvalidImage, "matrix is empty")
	}

	mt := mat.Type()
	if mt != gocv.MatTypeCV8UC3 && mt != gocv.MatTypeCV8UC1 {
		return nil, errors.Wrapf(ErrInvalidImage, "unsupported matrix type %v", mt)
	}
	if !mat.IsContinuous() {
		mat = mat.Clone()
		defer mat.Close()
	}

	pixels, err := mat.DataPtrUint8()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read matrix data")
	}

	rows, cols, channels := mat.Rows(), mat.Cols(), mat.Channels()
	data := make([]float32, rows*cols*channels)
	if channels == 1 {
		for i, v := range pixels[:len(data)] {
			data[i] = float32(v)
		}
		return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(data)), nil
	}

	for i := 0; i < rows*cols; i++ {
		data[i*3+0] = float32(pixels[i*3+2])
		data[i*3+1] = float32(pixels[i*3+1])
		data[i*3+2] = float32(pixels[i*3+0])
	}
	return tensor.New(tensor.WithShape(rows, cols, 3), tensor.WithBacking(data)), nil
}

// FromImage converts a Go image into a raw (height, width, 3) float32 tensor
// in RGB order with values in [0, 255].
func FromImage(img image.Image) *tensor.Dense {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	data := make([]float32, width*height*3)
	idx := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			data[idx] = float32(r >> 8)
			data[idx+1] = float32(g >> 8)
			data[idx+2] = float32(b >> 8)
			idx += 3
		}
	}

	return tensor.New(tensor.WithShape(height, width, 3), tensor.WithBacking(data))
}
