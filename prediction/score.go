// Package prediction - Detection records and batch assembly for sliced inference.
package prediction

import "fmt"

// Score is a detector's confidence, expected in [0, 1].
//
// Values outside that range are accepted as is; range validation is left
// to the caller.
type Score struct {
	value float64
}

// NewScore creates a score from a confidence value.
func NewScore(value float64) Score {
	return Score{value: value}
}

// Value returns the confidence value.
func (s Score) Value() float64 {
	return s.value
}

// IsGreaterThanThreshold reports whether the score is strictly above the threshold.
func (s Score) IsGreaterThanThreshold(threshold float64) bool {
	return s.value > threshold
}

func (s Score) String() string {
	return fmt.Sprintf("Score: <%v>", s.value)
}
