package images

import "github.com/pkg/errors"

// Sentinel errors for geometry and raw image handling.
var (
	ErrInvalidBox           = errors.New("invalid box")
	ErrInvalidMask          = errors.New("invalid mask")
	ErrUnknownFullImageSize = errors.New("full image size is unknown")
	ErrInvalidImage         = errors.New("invalid image")
)
