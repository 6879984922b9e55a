package prediction

import (
	"image"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-sahi/images"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Input is a batch of tile images ready for inference.
//
// Images, ShiftAmounts and the leading axis of Batch are index aligned:
// detections produced for batch index i belong to the tile at ShiftAmounts[i].
type Input struct {
	// Images are the raw tile images, in batch order.
	Images []*tensor.Dense
	// ShiftAmounts are the tile offsets within the full image, one per image.
	ShiftAmounts []image.Point
	// FullImageSize is the size of the full image, nil when unknown.
	FullImageSize *images.Size
	// Batch is the N×C×H×W float32 tensor of max-normalized images.
	Batch *tensor.Dense

	imageSize int
}

// NewInputArgs are the arguments for assembling an Input.
type NewInputArgs struct {
	// Images are raw float32 images shaped (H, W, C) or (H, W). All images
	// must share the same shape.
	Images []*tensor.Dense
	// ShiftAmounts are the tile offsets. Nil or empty means every tile starts at the origin.
	ShiftAmounts []image.Point
	// FullImageSize is the full image size, nil when unknown.
	FullImageSize *images.Size
}

// NewInput normalizes each image by its own maximum, converts it to
// channel-first layout and stacks the images along a new leading batch axis.
//
// Arguments:
//   - args: The images, their offsets and the full image size.
//
// Returns:
//   - *Input: The assembled batch.
//   - error: ErrEmptyInput, ErrLengthMismatch, ErrInvalidImage,
//     ErrDegenerateImage or ErrShapeMismatch.
//
// @example
//
//	in, err := NewInput(NewInputArgs{
//	    Images:        []*tensor.Dense{tile0, tile1},
//	    ShiftAmounts:  []image.Point{{X: 0, Y: 0}, {X: 512, Y: 0}},
//	    FullImageSize: &images.Size{Height: 1080, Width: 1920},
//	})
func NewInput(args NewInputArgs) (*Input, error) {
	n := len(args.Images)
	if n == 0 {
		return nil, ErrEmptyInput
	}

	shifts := make([]image.Point, n)
	if len(args.ShiftAmounts) > 0 {
		if len(args.ShiftAmounts) != n {
			return nil, errors.Wrapf(ErrLengthMismatch, "%d images, %d shift amounts", n, len(args.ShiftAmounts))
		}
		copy(shifts, args.ShiftAmounts)
	}

	chw := make([][]float32, n)
	shapes := make([]tensor.Shape, n)
	for i, img := range args.Images {
		data, shape, err := normalize(img)
		if err != nil {
			return nil, errors.Wrapf(err, "image %d", i)
		}
		chw[i] = data
		shapes[i] = shape
	}

	batch, err := stack(chw, shapes)
	if err != nil {
		return nil, err
	}

	return &Input{
		Images:        append([]*tensor.Dense(nil), args.Images...),
		ShiftAmounts:  shifts,
		FullImageSize: images.CloneSize(args.FullImageSize),
		Batch:         batch,
		imageSize:     shapes[0].TotalSize(),
	}, nil
}

// Len returns the number of images in the batch.
func (in *Input) Len() int {
	return len(in.ShiftAmounts)
}

// ImageData returns the normalized C×H×W data of batch index i. The slice
// aliases the batch tensor. It returns nil when i is out of range.
func (in *Input) ImageData(i int) []float32 {
	if i < 0 || i >= in.Len() {
		return nil
	}
	data := in.Batch.Data().([]float32)
	return data[i*in.imageSize : (i+1)*in.imageSize]
}

// Predictions wraps the raw detections of batch index i into records carrying
// that tile's shift amount and the full image size.
//
// Arguments:
//   - i: The batch index the detections were produced for.
//   - raws: The detector output for that index.
//
// Returns:
//   - []*ObjectPrediction: Tile-local records, in detector order.
//   - error: An error if the index is out of range or a detection is malformed.
func (in *Input) Predictions(i int, raws []RawDetection) ([]*ObjectPrediction, error) {
	if i < 0 || i >= in.Len() {
		return nil, errors.Errorf("batch index %d out of range [0, %d)", i, in.Len())
	}

	preds := make([]*ObjectPrediction, 0, len(raws))
	for j, raw := range raws {
		p, err := FromRaw(raw, in.ShiftAmounts[i], in.FullImageSize)
		if err != nil {
			return nil, errors.Wrapf(err, "batch index %d, detection %d", i, j)
		}
		preds = append(preds, p)
	}
	return preds, nil
}

// CheckImage reports whether an image can be assembled into a batch.
//
// Arguments:
//   - img: A raw float32 image shaped (H, W, C) or (H, W).
//
// Returns:
//   - error: ErrInvalidImage for an unsupported image, ErrDegenerateImage when
//     its maximum is zero or not finite.
func CheckImage(img *tensor.Dense) error {
	_, _, err := inspect(img)
	return err
}

// inspect validates the image and returns its (C, H, W) shape and maximum.
func inspect(img *tensor.Dense) (tensor.Shape, float32, error) {
	if img == nil {
		return nil, 0, errors.Wrap(ErrInvalidImage, "image is nil")
	}
	if img.Dtype() != tensor.Float32 {
		return nil, 0, errors.Wrapf(ErrInvalidImage, "unsupported dtype %v", img.Dtype())
	}
	if img.IsView() {
		return nil, 0, errors.Wrap(ErrInvalidImage, "image is a view, materialize it first")
	}

	var height, width, channels int
	shape := img.Shape()
	switch len(shape) {
	case 2:
		height, width, channels = shape[0], shape[1], 1
	case 3:
		height, width, channels = shape[0], shape[1], shape[2]
	default:
		return nil, 0, errors.Wrapf(ErrInvalidImage, "expected (H, W) or (H, W, C), got %v", shape)
	}

	peak := math32.Inf(-1)
	for _, v := range img.Data().([]float32) {
		if math32.IsNaN(v) {
			return nil, 0, errors.Wrap(ErrDegenerateImage, "image contains NaN")
		}
		if v > peak {
			peak = v
		}
	}
	if peak == 0 || math32.IsInf(peak, 0) {
		return nil, 0, errors.Wrapf(ErrDegenerateImage, "maximum is %v", peak)
	}

	return tensor.Shape{channels, height, width}, peak, nil
}

// normalize divides every value of the image by the image's maximum and
// returns it in channel-first layout along with its (C, H, W) shape.
func normalize(img *tensor.Dense) ([]float32, tensor.Shape, error) {
	shape, peak, err := inspect(img)
	if err != nil {
		return nil, nil, err
	}

	src := img.Data().([]float32)
	channels, plane := shape[0], shape[1]*shape[2]
	dst := make([]float32, plane*channels)
	for p := 0; p < plane; p++ {
		for c := 0; c < channels; c++ {
			dst[c*plane+p] = src[p*channels+c] / peak
		}
	}

	return dst, shape, nil
}

// stack concatenates C×H×W images along a new leading batch axis.
func stack(chw [][]float32, shapes []tensor.Shape) (*tensor.Dense, error) {
	ref := shapes[0]
	for i, s := range shapes[1:] {
		if !s.Eq(ref) {
			return nil, errors.Wrapf(ErrShapeMismatch, "image %d has shape %v, image 0 has shape %v", i+1, s, ref)
		}
	}

	size := ref.TotalSize()
	data := make([]float32, 0, size*len(chw))
	for _, d := range chw {
		data = append(data, d...)
	}

	return tensor.New(
		tensor.WithShape(len(chw), ref[0], ref[1], ref[2]),
		tensor.WithBacking(data),
	), nil
}
