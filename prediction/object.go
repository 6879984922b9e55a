package prediction

import (
	"fmt"
	"image"

	"github.com/nvr-ai/go-sahi/images"
	"github.com/pkg/errors"
)

// Category is the class label of a detection.
type Category struct {
	// ID is the class index emitted by the detector.
	ID int `json:"id" yaml:"id"`
	// Name is the display label. It may be empty.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

func (c Category) String() string {
	return fmt.Sprintf("Category: <id: %d, name: %s>", c.ID, c.Name)
}

// Region is the geometric part of a detection: a box and an optional mask
// expressed in the same frame.
type Region struct {
	Box  images.Box
	Mask *images.Mask
}

// ObjectPrediction is a single detection in the frame given by its shift
// amount and full image size.
//
// A record produced on a tile carries the tile's offset in ShiftAmount;
// Shifted derives the full image version. Records are never modified in place.
type ObjectPrediction struct {
	Region
	Score    Score
	Category Category
	// ShiftAmount is the offset of the record's frame origin within the full image.
	ShiftAmount image.Point
	// FullImageSize is the size of the full image, nil when unknown.
	FullImageSize *images.Size
}

// NewObjectPredictionArgs are the arguments for creating an ObjectPrediction.
type NewObjectPredictionArgs struct {
	// Box is the detection box in [min_x, min_y, max_x, max_y] form.
	Box images.Box
	// Score is the detector's confidence.
	Score float64
	// CategoryID is the class index.
	CategoryID int
	// CategoryName is the optional class label.
	CategoryName string
	// Mask is the optional segmentation mask. Nil when the detector has no
	// segmentation output; otherwise it must share ShiftAmount and FullImageSize.
	Mask *images.Mask
	// ShiftAmount is the tile offset within the full image. Zero for full image records.
	ShiftAmount image.Point
	// FullImageSize is the full image size, nil when unknown.
	FullImageSize *images.Size
}

// NewObjectPrediction creates a detection record.
//
// Arguments:
//   - args: The record fields.
//
// Returns:
//   - *ObjectPrediction: The record.
//   - error: images.ErrInvalidBox for a non-finite box, ErrInconsistentMaskFrame
//     when the mask is not in the record's frame.
//
// @example
//
//	pred, err := NewObjectPrediction(NewObjectPredictionArgs{
//	    Box:           images.Box{MinX: 0, MinY: 0, MaxX: 50, MaxY: 50},
//	    Score:         0.87,
//	    CategoryID:    2,
//	    CategoryName:  "car",
//	    ShiftAmount:   image.Pt(200, 300),
//	    FullImageSize: &images.Size{Height: 1000, Width: 1200},
//	})
func NewObjectPrediction(args NewObjectPredictionArgs) (*ObjectPrediction, error) {
	box, err := images.NewBox(args.Box.MinX, args.Box.MinY, args.Box.MaxX, args.Box.MaxY)
	if err != nil {
		return nil, err
	}

	if args.Mask != nil && !args.Mask.InFrame(args.ShiftAmount, args.FullImageSize) {
		return nil, errors.Wrapf(ErrInconsistentMaskFrame,
			"mask shift %v and size %v, record shift %v and size %v",
			args.Mask.ShiftAmount(), args.Mask.FullImageSize(), args.ShiftAmount, args.FullImageSize)
	}

	return &ObjectPrediction{
		Region: Region{
			Box:  box,
			Mask: args.Mask,
		},
		Score: NewScore(args.Score),
		Category: Category{
			ID:   args.CategoryID,
			Name: args.CategoryName,
		},
		ShiftAmount:   args.ShiftAmount,
		FullImageSize: images.CloneSize(args.FullImageSize),
	}, nil
}

// Shifted returns a new record expressed in the full image frame.
//
// The box and mask are translated by ShiftAmount and the returned record has
// a zero shift. Its full image size comes from the shifted mask when there is
// one, and is carried over from the record otherwise. Score and category are
// copied. Calling Shifted on an already shifted record is a no-op translation.
//
// Returns:
//   - *ObjectPrediction: The full image record.
//   - error: images.ErrUnknownFullImageSize when a mask has to be shifted
//     without a known full image size.
func (p *ObjectPrediction) Shifted() (*ObjectPrediction, error) {
	fullSize := images.CloneSize(p.FullImageSize)

	var mask *images.Mask
	if p.Mask != nil {
		shifted, err := p.Mask.Shifted()
		if err != nil {
			return nil, errors.Wrap(err, "failed to shift mask")
		}
		mask = shifted
		fullSize = shifted.FullImageSize()
	}

	return &ObjectPrediction{
		Region: Region{
			Box:  p.Box.Shift(p.ShiftAmount),
			Mask: mask,
		},
		Score:         p.Score,
		Category:      p.Category,
		FullImageSize: fullSize,
	}, nil
}

func (p *ObjectPrediction) String() string {
	return fmt.Sprintf(`ObjectPrediction<
    box: %s,
    mask: %s,
    score: %s,
    category: %s>`, p.Box, p.Mask, p.Score, p.Category)
}

// ShiftAll shifts every record into the full image frame, preserving order.
func ShiftAll(preds []*ObjectPrediction) ([]*ObjectPrediction, error) {
	shifted := make([]*ObjectPrediction, 0, len(preds))
	for i, p := range preds {
		s, err := p.Shifted()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to shift prediction %d", i)
		}
		shifted = append(shifted, s)
	}
	return shifted, nil
}

// FilterByScore returns the records whose score is strictly above the threshold.
func FilterByScore(preds []*ObjectPrediction, threshold float64) []*ObjectPrediction {
	kept := make([]*ObjectPrediction, 0, len(preds))
	for _, p := range preds {
		if p.Score.IsGreaterThanThreshold(threshold) {
			kept = append(kept, p)
		}
	}
	return kept
}
