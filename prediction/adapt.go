package prediction

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ScoreFromFloat32 converts a float32 model output into a Score.
func ScoreFromFloat32(v float32) Score {
	return NewScore(float64(v))
}

// ScoreFromTensor reads a confidence out of a scalar or single element tensor.
//
// The value is copied, so the score does not alias the tensor's backing memory.
//
// Arguments:
//   - t: A tensor holding exactly one float or integer value.
//
// Returns:
//   - Score: The score.
//   - error: ErrInvalidScoreTensor if the tensor is nil, holds more than one
//     value, or has a non-numeric type.
func ScoreFromTensor(t *tensor.Dense) (Score, error) {
	if t == nil {
		return Score{}, errors.Wrap(ErrInvalidScoreTensor, "tensor is nil")
	}

	var v interface{}
	switch {
	case t.IsScalar():
		v = t.ScalarValue()
	case t.Shape().TotalSize() == 1:
		v = t.Data()
	default:
		return Score{}, errors.Wrapf(ErrInvalidScoreTensor, "tensor has shape %v", t.Shape())
	}

	switch x := v.(type) {
	case float64:
		return NewScore(x), nil
	case float32:
		return ScoreFromFloat32(x), nil
	case int:
		return NewScore(float64(x)), nil
	case int64:
		return NewScore(float64(x)), nil
	case int32:
		return NewScore(float64(x)), nil
	case []float64:
		return NewScore(x[0]), nil
	case []float32:
		return ScoreFromFloat32(x[0]), nil
	case []int:
		return NewScore(float64(x[0])), nil
	case []int64:
		return NewScore(float64(x[0])), nil
	case []int32:
		return NewScore(float64(x[0])), nil
	default:
		return Score{}, errors.Wrapf(ErrInvalidScoreTensor, "unsupported dtype %v", t.Dtype())
	}
}
