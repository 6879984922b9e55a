package images

import (
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestIoU_Correctness validates the IoU implementation against known test cases
func TestIoU_Correctness(t *testing.T) {
	tests := []struct {
		name     string
		b1       Box
		b2       Box
		expected float32
		epsilon  float32
	}{
		{
			name:     "Identical boxes",
			b1:       Box{0, 0, 100, 100},
			b2:       Box{0, 0, 100, 100},
			expected: 1.0,
			epsilon:  0.001,
		},
		{
			name:     "No overlap",
			b1:       Box{0, 0, 100, 100},
			b2:       Box{200, 200, 300, 300},
			expected: 0.0,
			epsilon:  0.001,
		},
		{
			name:     "Touching edges",
			b1:       Box{0, 0, 100, 100},
			b2:       Box{100, 0, 200, 100},
			expected: 0.0,
			epsilon:  0.001,
		},
		{
			name:     "Half overlap",
			b1:       Box{0, 0, 100, 100},
			b2:       Box{50, 50, 150, 150},
			expected: 0.142857, // 2500 / (10000+10000-2500)
			epsilon:  0.001,
		},
		{
			name:     "One inside other",
			b1:       Box{0, 0, 100, 100},
			b2:       Box{25, 25, 75, 75},
			expected: 0.25,
			epsilon:  0.001,
		},
		{
			name:     "Fractional coordinates",
			b1:       Box{0.5, 0.5, 10.5, 10.5},
			b2:       Box{5.5, 0.5, 15.5, 10.5},
			expected: 0.333333, // 50 / 150
			epsilon:  0.001,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.b1.IoU(tt.b2)
			assert.InDelta(t, tt.expected, result, float64(tt.epsilon))

			// IoU(A, B) should equal IoU(B, A)
			assert.InDelta(t, result, tt.b2.IoU(tt.b1), float64(tt.epsilon))
		})
	}
}

func TestIoS(t *testing.T) {
	big := Box{0, 0, 100, 100}
	small := Box{25, 25, 75, 75}
	assert.InDelta(t, 1.0, big.IoS(small), 1e-6)
	assert.InDelta(t, 0.0, big.IoS(Box{200, 200, 210, 210}), 1e-6)
}

func TestNewBox(t *testing.T) {
	b, err := NewBox(20, 30, 10, 5)
	require.NoError(t, err)
	assert.Equal(t, Box{MinX: 10, MinY: 5, MaxX: 20, MaxY: 30}, b)

	_, err = NewBox(0, 0, float32(math.Inf(1)), 1)
	assert.ErrorIs(t, err, ErrInvalidBox)

	_, err = BoxFromSlice([]float32{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidBox)

	b, err = BoxFromSlice([]float32{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, [4]float32{1, 2, 3, 4}, b.VOC())
}

func TestBoxShiftAndUnion(t *testing.T) {
	b := Box{10, 10, 20, 20}
	assert.Equal(t, Box{15, 15, 25, 25}, b.Shift(image.Pt(5, 5)))
	assert.Equal(t, Box{5, 0, 15, 10}, b.Shift(image.Pt(-5, -10)))
	assert.Equal(t, Box{10, 10, 20, 20}, b, "shift must not modify the receiver")

	assert.Equal(t, Box{0, 10, 20, 40}, b.Union(Box{0, 30, 5, 40}))
	assert.Equal(t, float32(100), b.Area())
	assert.Equal(t, float32(0), Box{5, 5, 5, 9}.Area())
}

func TestRect(t *testing.T) {
	r := Rect{X1: 10, Y1: 20, X2: 110, Y2: 70}
	assert.Equal(t, 100, r.Dx())
	assert.Equal(t, 50, r.Dy())
	assert.Equal(t, image.Pt(10, 20), r.Min())
}
