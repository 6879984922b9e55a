// Package images - Image definition for processing utilities.
package images

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// Image represents an encoded image with a format, data, width, and height.
type Image struct {
	// The format of the image.
	Format ImageFormat `json:"format" yaml:"format"`
	// The data of the image.
	Data []byte `json:"data" yaml:"data"`
	// The width of the image.
	Width int `json:"width" yaml:"width"`
	// The height of the image.
	Height int `json:"height" yaml:"height"`
}

// Validate checks that the image carries data.
func (img *Image) Validate() error {
	if img == nil {
		return errors.Wrap(ErrInvalidImage, "image is nil")
	}
	if len(img.Data) == 0 {
		return errors.Wrap(ErrInvalidImage, "image data is empty")
	}
	return nil
}

// Decode decodes an encoded image into a raw HWC float32 tensor in RGB order.
//
// Arguments:
//   - img: The encoded image.
//
// Returns:
//   - *tensor.Dense: The raw pixels with shape (height, width, 3) and values in [0, 255].
//   - error: An error if validation or decoding fails.
//
// @example
//
//	data, _ := os.ReadFile("frame.jpg")
//	raw, err := Decode(&Image{Format: FormatJPEG, Data: data})
func Decode(img *Image) (*tensor.Dense, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}

	mat, err := gocv.IMDecode(img.Data, gocv.IMReadColor)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s image", img.Format)
	}
	defer mat.Close()

	raw, err := FromMat(mat)
	if err != nil {
		return nil, err
	}

	img.Width, img.Height = mat.Cols(), mat.Rows()
	return raw, nil
}
