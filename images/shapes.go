// Package images - Geometry and raw image utilities for sliced inference.
package images

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// Rect is a lightweight integer region, used for tile placement.
type Rect struct {
	// X2,Y2 are exclusive (like image.Rectangle).
	X1, Y1, X2, Y2 int
}

// Dx returns the width of the region.
func (r Rect) Dx() int {
	return r.X2 - r.X1
}

// Dy returns the height of the region.
func (r Rect) Dy() int {
	return r.Y2 - r.Y1
}

// Min returns the top-left corner of the region.
func (r Rect) Min() image.Point {
	return image.Point{X: r.X1, Y: r.Y1}
}

// Size is the size of an image, ordered [height, width].
type Size struct {
	Height int `json:"height" yaml:"height"`
	Width  int `json:"width" yaml:"width"`
}

func (s Size) String() string {
	return fmt.Sprintf("[%d, %d]", s.Height, s.Width)
}

// Box is an axis-aligned bounding box in [min_x, min_y, max_x, max_y] (VOC) form.
type Box struct {
	MinX, MinY, MaxX, MaxY float32
}

// NewBox creates a box from two opposite corners, canonicalizing min/max.
//
// Arguments:
//   - x1, y1: The first corner.
//   - x2, y2: The opposite corner.
//
// Returns:
//   - Box: The canonical box.
//   - error: ErrInvalidBox if any coordinate is NaN or infinite.
func NewBox(x1, y1, x2, y2 float32) (Box, error) {
	for _, v := range [4]float32{x1, y1, x2, y2} {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return Box{}, errors.Wrapf(ErrInvalidBox, "non-finite coordinate in [%v, %v, %v, %v]", x1, y1, x2, y2)
		}
	}
	return Box{
		MinX: math32.Min(x1, x2),
		MinY: math32.Min(y1, y2),
		MaxX: math32.Max(x1, x2),
		MaxY: math32.Max(y1, y2),
	}, nil
}

// BoxFromSlice creates a box from a [min_x, min_y, max_x, max_y] slice.
func BoxFromSlice(v []float32) (Box, error) {
	if len(v) != 4 {
		return Box{}, errors.Wrapf(ErrInvalidBox, "expected 4 coordinates, got %d", len(v))
	}
	return NewBox(v[0], v[1], v[2], v[3])
}

// Shift translates the box by the given offset.
func (b Box) Shift(p image.Point) Box {
	dx, dy := float32(p.X), float32(p.Y)
	return Box{
		MinX: b.MinX + dx,
		MinY: b.MinY + dy,
		MaxX: b.MaxX + dx,
		MaxY: b.MaxY + dy,
	}
}

// VOC returns the box as [min_x, min_y, max_x, max_y].
func (b Box) VOC() [4]float32 {
	return [4]float32{b.MinX, b.MinY, b.MaxX, b.MaxY}
}

// Width returns the width of the box.
func (b Box) Width() float32 {
	return b.MaxX - b.MinX
}

// Height returns the height of the box.
func (b Box) Height() float32 {
	return b.MaxY - b.MinY
}

// Area returns the area of the box.
func (b Box) Area() float32 {
	return math32.Max(0, b.Width()) * math32.Max(0, b.Height())
}

// Union returns the smallest box that contains both boxes.
func (b Box) Union(o Box) Box {
	return Box{
		MinX: math32.Min(b.MinX, o.MinX),
		MinY: math32.Min(b.MinY, o.MinY),
		MaxX: math32.Max(b.MaxX, o.MaxX),
		MaxY: math32.Max(b.MaxY, o.MaxY),
	}
}

// Intersection calculates the area of overlap between two boxes.
//
// Arguments:
//   - o: The other box.
//
// Returns:
//   - float32: The overlapping area, 0 when the boxes are disjoint or only touch.
func (b Box) Intersection(o Box) float32 {
	w := math32.Min(b.MaxX, o.MaxX) - math32.Max(b.MinX, o.MinX)
	h := math32.Min(b.MaxY, o.MaxY) - math32.Max(b.MinY, o.MinY)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// IoU calculates the Intersection over Union between two boxes.
//
//	IoU = Area of Intersection / Area of Union
//
// Union uses inclusion-exclusion: Area(A) + Area(B) - Area(Intersection).
//
// Arguments:
//   - o: The other box.
//
// Returns:
//   - float32: A value between 0 and 1.
//
// Example:
//
// ```go
//
//	a := Box{MinX: 0, MinY: 0, MaxX: 100, MaxY: 100}
//	b := Box{MinX: 50, MinY: 50, MaxX: 150, MaxY: 150}
//	iou := a.IoU(b) // 2500 / 17500 ≈ 0.142857
//
// ```
func (b Box) IoU(o Box) float32 {
	inter := b.Intersection(o)
	if inter == 0 {
		return 0
	}
	return inter / (b.Area() + o.Area() - inter)
}

// IoS calculates the Intersection over the Smaller box's area.
func (b Box) IoS(o Box) float32 {
	inter := b.Intersection(o)
	if inter == 0 {
		return 0
	}
	return inter / math32.Min(b.Area(), o.Area())
}

func (b Box) String() string {
	return fmt.Sprintf("Box: <(%.2f, %.2f, %.2f, %.2f), w: %.2f, h: %.2f>",
		b.MinX, b.MinY, b.MaxX, b.MaxY, b.Width(), b.Height())
}
