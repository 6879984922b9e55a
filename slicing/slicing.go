// Package slicing - Cuts a full image into overlapping tiles for sliced inference.
package slicing

import (
	"image"

	"github.com/nvr-ai/go-sahi/images"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ErrInvalidConfig is returned for slicing parameters that cannot produce tiles.
var ErrInvalidConfig = errors.New("invalid slicing config")

// Config defines how an image is cut into tiles.
type Config struct {
	// SliceWidth is the width of each tile in pixels.
	SliceWidth int `json:"slice_width" yaml:"slice_width" koanf:"slice_width"`
	// SliceHeight is the height of each tile in pixels.
	SliceHeight int `json:"slice_height" yaml:"slice_height" koanf:"slice_height"`
	// OverlapWidthRatio is the fraction of SliceWidth shared by horizontally
	// adjacent tiles, in [0, 1). A value of 0.2 overlaps 20% of the pixels.
	OverlapWidthRatio float32 `json:"overlap_width_ratio" yaml:"overlap_width_ratio" koanf:"overlap_width_ratio"`
	// OverlapHeightRatio is the fraction of SliceHeight shared by vertically
	// adjacent tiles, in [0, 1).
	OverlapHeightRatio float32 `json:"overlap_height_ratio" yaml:"overlap_height_ratio" koanf:"overlap_height_ratio"`
}

// DefaultConfig returns 512x512 tiles with 20% overlap.
func DefaultConfig() Config {
	return Config{
		SliceWidth:         512,
		SliceHeight:        512,
		OverlapWidthRatio:  0.2,
		OverlapHeightRatio: 0.2,
	}
}

// Validate checks the tile size and overlap ratios.
func (c Config) Validate() error {
	if c.SliceWidth <= 0 || c.SliceHeight <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "slice size %dx%d must be positive", c.SliceWidth, c.SliceHeight)
	}
	if c.OverlapWidthRatio < 0 || c.OverlapWidthRatio >= 1 ||
		c.OverlapHeightRatio < 0 || c.OverlapHeightRatio >= 1 {
		return errors.Wrapf(ErrInvalidConfig, "overlap ratios (%v, %v) must be in [0, 1)",
			c.OverlapWidthRatio, c.OverlapHeightRatio)
	}
	return nil
}

// Tile is one crop of the full image.
type Tile struct {
	// Image is the cropped raw image, same layout as the source.
	Image *tensor.Dense
	// Region is the crop's placement in the full image.
	Region images.Rect
}

// ShiftAmount returns the tile's offset within the full image.
func (t Tile) ShiftAmount() image.Point {
	return t.Region.Min()
}

// Regions computes the tile placements for an image, row by row.
//
// Tiles advance by the slice size minus the overlap. A tile that would
// cross the right or bottom border is moved back so that it ends on the
// border, which keeps every tile the same size when the image is at least
// one slice large. Smaller images yield tiles clipped to the image.
//
// Arguments:
//   - width, height: The full image size.
//   - cfg: The slicing parameters.
//
// Returns:
//   - []images.Rect: The tile regions in row-major order.
//   - error: ErrInvalidConfig for invalid parameters or an empty image.
//
// @example
// regions, _ := Regions(1000, 512, Config{SliceWidth: 512, SliceHeight: 512, OverlapWidthRatio: 0.2})
// // [0 0 512 512] [410 0 922 512] [488 0 1000 512]
func Regions(width, height int, cfg Config) ([]images.Rect, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "image size %dx%d must be positive", width, height)
	}

	xOverlap := int(cfg.OverlapWidthRatio * float32(cfg.SliceWidth))
	yOverlap := int(cfg.OverlapHeightRatio * float32(cfg.SliceHeight))

	var regions []images.Rect
	for yMin, yMax := 0, 0; yMax < height; yMin = yMax - yOverlap {
		yMax = yMin + cfg.SliceHeight
		for xMin, xMax := 0, 0; xMax < width; xMin = xMax - xOverlap {
			xMax = xMin + cfg.SliceWidth
			if xMax > width || yMax > height {
				x2, y2 := min(width, xMax), min(height, yMax)
				regions = append(regions, images.Rect{
					X1: max(0, x2-cfg.SliceWidth),
					Y1: max(0, y2-cfg.SliceHeight),
					X2: x2,
					Y2: y2,
				})
				continue
			}
			regions = append(regions, images.Rect{X1: xMin, Y1: yMin, X2: xMax, Y2: yMax})
		}
	}

	return regions, nil
}

// Slice cuts a raw (H, W, C) or (H, W) image into tiles.
//
// Arguments:
//   - img: The full image.
//   - cfg: The slicing parameters.
//
// Returns:
//   - []Tile: The tiles in row-major order; each owns a copy of its pixels.
//   - error: An error if the image or parameters are invalid.
func Slice(img *tensor.Dense, cfg Config) ([]Tile, error) {
	size, err := FullImageSize(img)
	if err != nil {
		return nil, err
	}

	regions, err := Regions(size.Width, size.Height, cfg)
	if err != nil {
		return nil, err
	}

	tiles := make([]Tile, 0, len(regions))
	for _, r := range regions {
		crop, err := Crop(img, r)
		if err != nil {
			return nil, err
		}
		tiles = append(tiles, Tile{Image: crop, Region: r})
	}
	return tiles, nil
}

// FullImageSize returns the [height, width] size of a raw image.
func FullImageSize(img *tensor.Dense) (images.Size, error) {
	h, w, _, err := dims(img)
	if err != nil {
		return images.Size{}, err
	}
	return images.Size{Height: h, Width: w}, nil
}

// Crop copies a region out of a raw (H, W, C) or (H, W) float32 image.
func Crop(img *tensor.Dense, r images.Rect) (*tensor.Dense, error) {
	h, w, c, err := dims(img)
	if err != nil {
		return nil, err
	}
	if r.X1 < 0 || r.Y1 < 0 || r.X2 > w || r.Y2 > h || r.Dx() <= 0 || r.Dy() <= 0 {
		return nil, errors.Wrapf(images.ErrInvalidImage, "region %v outside %dx%d image", r, w, h)
	}

	src := img.Data().([]float32)
	rowLen := r.Dx() * c
	data := make([]float32, 0, r.Dy()*rowLen)
	for y := r.Y1; y < r.Y2; y++ {
		start := (y*w + r.X1) * c
		data = append(data, src[start:start+rowLen]...)
	}

	if len(img.Shape()) == 2 {
		return tensor.New(tensor.WithShape(r.Dy(), r.Dx()), tensor.WithBacking(data)), nil
	}
	return tensor.New(tensor.WithShape(r.Dy(), r.Dx(), c), tensor.WithBacking(data)), nil
}

func dims(img *tensor.Dense) (height, width, channels int, err error) {
	if img == nil {
		return 0, 0, 0, errors.Wrap(images.ErrInvalidImage, "image is nil")
	}
	if img.Dtype() != tensor.Float32 || img.IsView() {
		return 0, 0, 0, errors.Wrapf(images.ErrInvalidImage, "expected a contiguous float32 image, got %v", img.Dtype())
	}

	shape := img.Shape()
	switch len(shape) {
	case 2:
		return shape[0], shape[1], 1, nil
	case 3:
		return shape[0], shape[1], shape[2], nil
	default:
		return 0, 0, 0, errors.Wrapf(images.ErrInvalidImage, "expected (H, W) or (H, W, C), got %v", shape)
	}
}
