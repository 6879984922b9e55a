// Package inference - Sliced prediction over a detector.
package inference

import (
	"context"

	"github.com/nvr-ai/go-sahi/prediction"
	"github.com/pkg/errors"
)

// ErrDetectorOutput is returned when a detector does not produce one
// detection list per batch index.
var ErrDetectorOutput = errors.New("detector output does not match the batch")

// Detector runs a model over an assembled batch.
//
// Detect must return exactly input.Len() lists. List i holds the detections
// for batch index i in that tile's own pixel coordinates.
type Detector interface {
	Detect(ctx context.Context, input *prediction.Input) ([][]prediction.RawDetection, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, input *prediction.Input) ([][]prediction.RawDetection, error)

// Detect calls f(ctx, input).
func (f DetectorFunc) Detect(ctx context.Context, input *prediction.Input) ([][]prediction.RawDetection, error) {
	return f(ctx, input)
}
