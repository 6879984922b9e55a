package images

import (
	"fmt"
	"image"

	"github.com/pkg/errors"
)

// Mask is a 2D boolean region stored row-major.
//
// A mask is expressed in the frame given by its shift amount: a tile-local
// mask has the tile's offset within the full image, a full-image mask has a
// zero shift. The full image size is required to paste a tile-local mask
// into the full image.
type Mask struct {
	data     []bool
	width    int
	height   int
	shift    image.Point
	fullSize *Size
}

// NewMask creates a mask from rows of boolean pixels.
//
// Arguments:
//   - rows: The mask pixels, rows[y][x]. All rows must have the same length.
//   - shift: The offset of the mask's origin within the full image.
//   - fullSize: The full image size, or nil when unknown.
//
// Returns:
//   - *Mask: The mask, owning a copy of the pixels.
//   - error: ErrInvalidMask if the rows are empty or ragged, or fullSize is not positive.
func NewMask(rows [][]bool, shift image.Point, fullSize *Size) (*Mask, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errors.Wrap(ErrInvalidMask, "mask has no pixels")
	}
	if fullSize != nil && (fullSize.Height <= 0 || fullSize.Width <= 0) {
		return nil, errors.Wrapf(ErrInvalidMask, "full image size %s is not positive", fullSize)
	}

	height, width := len(rows), len(rows[0])
	data := make([]bool, 0, width*height)
	for y, row := range rows {
		if len(row) != width {
			return nil, errors.Wrapf(ErrInvalidMask, "row %d has %d pixels, expected %d", y, len(row), width)
		}
		data = append(data, row...)
	}

	return &Mask{
		data:     data,
		width:    width,
		height:   height,
		shift:    shift,
		fullSize: CloneSize(fullSize),
	}, nil
}

// Width returns the width of the mask in pixels.
func (m *Mask) Width() int {
	return m.width
}

// Height returns the height of the mask in pixels.
func (m *Mask) Height() int {
	return m.height
}

// At reports whether the pixel at (x, y) is set. Pixels outside the mask are unset.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.width || y >= m.height {
		return false
	}
	return m.data[y*m.width+x]
}

// Area returns the number of set pixels.
func (m *Mask) Area() int {
	n := 0
	for _, v := range m.data {
		if v {
			n++
		}
	}
	return n
}

// ShiftAmount returns the offset of the mask's origin within the full image.
func (m *Mask) ShiftAmount() image.Point {
	return m.shift
}

// FullImageSize returns a copy of the full image size, or nil when unknown.
func (m *Mask) FullImageSize() *Size {
	return CloneSize(m.fullSize)
}

// InFrame reports whether the mask is expressed in the frame described by
// the shift amount and full image size.
func (m *Mask) InFrame(shift image.Point, fullSize *Size) bool {
	return m.shift == shift && SizeEqual(m.fullSize, fullSize)
}

// Rows returns a copy of the mask pixels as rows[y][x].
func (m *Mask) Rows() [][]bool {
	rows := make([][]bool, m.height)
	for y := range rows {
		rows[y] = make([]bool, m.width)
		copy(rows[y], m.data[y*m.width:(y+1)*m.width])
	}
	return rows
}

// Shifted pastes the mask into a full image sized canvas at its shift offset.
//
// Pixels that fall outside the full image are clipped. The returned mask
// has a zero shift and the same full image size; m is not modified.
//
// Returns:
//   - *Mask: The full image mask.
//   - error: ErrUnknownFullImageSize if the mask has no full image size.
func (m *Mask) Shifted() (*Mask, error) {
	if m.fullSize == nil {
		return nil, errors.Wrap(ErrUnknownFullImageSize, "cannot shift mask")
	}

	w, h := m.fullSize.Width, m.fullSize.Height
	data := make([]bool, w*h)
	for y := 0; y < m.height; y++ {
		fy := y + m.shift.Y
		if fy < 0 || fy >= h {
			continue
		}
		for x := 0; x < m.width; x++ {
			fx := x + m.shift.X
			if fx < 0 || fx >= w {
				continue
			}
			data[fy*w+fx] = m.data[y*m.width+x]
		}
	}

	return &Mask{
		data:     data,
		width:    w,
		height:   h,
		fullSize: CloneSize(m.fullSize),
	}, nil
}

// Union returns a new mask with the pixels set in either mask.
//
// Both masks must share dimensions and frame.
func (m *Mask) Union(o *Mask) (*Mask, error) {
	if m.width != o.width || m.height != o.height || !o.InFrame(m.shift, m.fullSize) {
		return nil, errors.Wrapf(ErrInvalidMask, "cannot merge %dx%d mask with %dx%d mask in another frame",
			m.width, m.height, o.width, o.height)
	}

	data := make([]bool, len(m.data))
	for i := range data {
		data[i] = m.data[i] || o.data[i]
	}
	return &Mask{
		data:     data,
		width:    m.width,
		height:   m.height,
		shift:    m.shift,
		fullSize: CloneSize(m.fullSize),
	}, nil
}

func (m *Mask) String() string {
	if m == nil {
		return "<nil>"
	}
	full := "unknown"
	if m.fullSize != nil {
		full = m.fullSize.String()
	}
	return fmt.Sprintf("Mask: <%dx%d, area: %d, shift: [%d, %d], full image size: %s>",
		m.width, m.height, m.Area(), m.shift.X, m.shift.Y, full)
}

// SizeEqual reports whether two optional sizes are both unknown or equal.
func SizeEqual(a, b *Size) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// CloneSize returns a copy of an optional size.
func CloneSize(s *Size) *Size {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
