package prediction

import (
	"image"

	"github.com/nvr-ai/go-sahi/images"
	"github.com/pkg/errors"
)

// RawDetection is one detector output in the local frame of the tile it was
// produced on.
type RawDetection struct {
	// Box in tile pixels, [min_x, min_y, max_x, max_y].
	Box images.Box
	// Score is the confidence as emitted by the model.
	Score float32
	// CategoryID is the class index.
	CategoryID int
	// CategoryName is the optional class label.
	CategoryName string
	// Mask is the optional segmentation output, Mask[y][x] in tile pixels.
	Mask [][]bool
}

// FromRaw wraps a raw detection into a record in the tile's frame.
//
// Arguments:
//   - raw: The detector output.
//   - shift: The tile's offset within the full image.
//   - fullSize: The full image size, nil when unknown.
//
// Returns:
//   - *ObjectPrediction: The tile-local record.
//   - error: An error if the box or mask are malformed.
func FromRaw(raw RawDetection, shift image.Point, fullSize *images.Size) (*ObjectPrediction, error) {
	var mask *images.Mask
	if raw.Mask != nil {
		m, err := images.NewMask(raw.Mask, shift, fullSize)
		if err != nil {
			return nil, errors.Wrap(err, "failed to build detection mask")
		}
		mask = m
	}

	return NewObjectPrediction(NewObjectPredictionArgs{
		Box:           raw.Box,
		Score:         ScoreFromFloat32(raw.Score).Value(),
		CategoryID:    raw.CategoryID,
		CategoryName:  raw.CategoryName,
		Mask:          mask,
		ShiftAmount:   shift,
		FullImageSize: fullSize,
	})
}
