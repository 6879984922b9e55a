package prediction

import "github.com/pkg/errors"

// Sentinel error kinds. All of them are recoverable construction failures.
var (
	// ErrEmptyInput is returned when a batch is assembled from no images.
	ErrEmptyInput = errors.New("image list is empty")
	// ErrLengthMismatch is returned when the image list and the shift amount
	// list have different lengths.
	ErrLengthMismatch = errors.New("image list and shift amount list lengths differ")
	// ErrShapeMismatch is returned when the images of a batch do not share dimensions.
	ErrShapeMismatch = errors.New("images have inconsistent shapes")
	// ErrDegenerateImage is returned when an image cannot be max-normalized.
	ErrDegenerateImage = errors.New("image maximum is zero or not finite")
	// ErrInvalidImage is returned for images with an unsupported rank or type.
	ErrInvalidImage = errors.New("invalid image")
	// ErrInconsistentMaskFrame is returned when a mask and its box are not in the same frame.
	ErrInconsistentMaskFrame = errors.New("mask frame differs from box frame")
	// ErrInvalidScoreTensor is returned when a tensor does not hold a single numeric value.
	ErrInvalidScoreTensor = errors.New("tensor is not a numeric scalar")
)
