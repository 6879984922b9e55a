package prediction

import (
	"image"
	"math"
	"testing"

	"github.com/nvr-ai/go-sahi/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func squareMask(t *testing.T, w, h int, shift image.Point, full *images.Size) *images.Mask {
	t.Helper()
	rows := make([][]bool, h)
	for y := range rows {
		rows[y] = make([]bool, w)
		for x := range rows[y] {
			rows[y][x] = x >= 1 && x < w-1 && y >= 1 && y < h-1
		}
	}
	m, err := images.NewMask(rows, shift, full)
	require.NoError(t, err)
	return m
}

// TestShiftedTranslatesBox verifies the box moves by the shift amount and the
// derived record carries no pending offset.
func TestShiftedTranslatesBox(t *testing.T) {
	tests := []struct {
		name     string
		box      images.Box
		shift    image.Point
		expected images.Box
	}{
		{
			name:     "uniform shift",
			box:      images.Box{MinX: 10, MinY: 10, MaxX: 20, MaxY: 20},
			shift:    image.Pt(5, 5),
			expected: images.Box{MinX: 15, MinY: 15, MaxX: 25, MaxY: 25},
		},
		{
			name:     "tile at 200,300",
			box:      images.Box{MinX: 0, MinY: 0, MaxX: 50, MaxY: 50},
			shift:    image.Pt(200, 300),
			expected: images.Box{MinX: 200, MinY: 300, MaxX: 250, MaxY: 350},
		},
		{
			name:     "no shift",
			box:      images.Box{MinX: 1.5, MinY: 2.5, MaxX: 3.5, MaxY: 4.5},
			shift:    image.Pt(0, 0),
			expected: images.Box{MinX: 1.5, MinY: 2.5, MaxX: 3.5, MaxY: 4.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewObjectPrediction(NewObjectPredictionArgs{
				Box:           tt.box,
				Score:         0.8,
				CategoryID:    3,
				CategoryName:  "car",
				ShiftAmount:   tt.shift,
				FullImageSize: &images.Size{Height: 1000, Width: 1200},
			})
			require.NoError(t, err)

			shifted, err := p.Shifted()
			require.NoError(t, err)

			assert.Equal(t, tt.expected, shifted.Box)
			assert.Equal(t, image.Point{}, shifted.ShiftAmount)
			assert.Equal(t, p.Score, shifted.Score)
			assert.Equal(t, p.Category, shifted.Category)
		})
	}
}

// TestShiftedEndToEnd covers one tile detection mapped into the full image.
func TestShiftedEndToEnd(t *testing.T) {
	in, err := NewInput(NewInputArgs{
		Images:        []*tensor.Dense{filledImage(4, 4, 3, 10)},
		ShiftAmounts:  []image.Point{image.Pt(200, 300)},
		FullImageSize: &images.Size{Height: 1000, Width: 1200},
	})
	require.NoError(t, err)

	preds, err := in.Predictions(0, []RawDetection{{
		Box:          images.Box{MinX: 0, MinY: 0, MaxX: 50, MaxY: 50},
		Score:        0.9,
		CategoryID:   1,
		CategoryName: "person",
	}})
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, image.Pt(200, 300), preds[0].ShiftAmount)

	shifted, err := preds[0].Shifted()
	require.NoError(t, err)
	assert.Equal(t, [4]float32{200, 300, 250, 350}, shifted.Box.VOC())
	assert.Equal(t, image.Point{}, shifted.ShiftAmount)
	assert.InDelta(t, 0.9, shifted.Score.Value(), 1e-6)
}

// TestShiftedDoesNotMutateOriginal verifies the transform allocates a new record.
func TestShiftedDoesNotMutateOriginal(t *testing.T) {
	full := &images.Size{Height: 20, Width: 20}
	mask := squareMask(t, 5, 5, image.Pt(4, 6), full)
	p, err := NewObjectPrediction(NewObjectPredictionArgs{
		Box:           images.Box{MinX: 1, MinY: 1, MaxX: 4, MaxY: 4},
		Score:         0.6,
		CategoryID:    7,
		Mask:          mask,
		ShiftAmount:   image.Pt(4, 6),
		FullImageSize: full,
	})
	require.NoError(t, err)

	shifted, err := p.Shifted()
	require.NoError(t, err)

	assert.Equal(t, images.Box{MinX: 1, MinY: 1, MaxX: 4, MaxY: 4}, p.Box)
	assert.Equal(t, image.Pt(4, 6), p.ShiftAmount)
	assert.Same(t, mask, p.Mask)
	assert.NotSame(t, p.Mask, shifted.Mask)
	assert.NotSame(t, p.FullImageSize, shifted.FullImageSize)

	full.Height = 99
	assert.Equal(t, 20, p.FullImageSize.Height, "record must own its size")
}

// TestShiftedMask verifies the mask is translated like the box and keeps its
// pixel count.
func TestShiftedMask(t *testing.T) {
	full := &images.Size{Height: 40, Width: 50}
	shift := image.Pt(10, 20)
	mask := squareMask(t, 6, 4, shift, full)

	p, err := NewObjectPrediction(NewObjectPredictionArgs{
		Box:           images.Box{MinX: 1, MinY: 1, MaxX: 5, MaxY: 3},
		Score:         0.7,
		CategoryID:    0,
		Mask:          mask,
		ShiftAmount:   shift,
		FullImageSize: full,
	})
	require.NoError(t, err)

	shifted, err := p.Shifted()
	require.NoError(t, err)
	require.NotNil(t, shifted.Mask)

	assert.Equal(t, mask.Area(), shifted.Mask.Area())
	assert.Equal(t, 50, shifted.Mask.Width())
	assert.Equal(t, 40, shifted.Mask.Height())
	assert.Equal(t, image.Point{}, shifted.Mask.ShiftAmount())
	assert.Equal(t, full, shifted.FullImageSize)

	for y := 0; y < mask.Height(); y++ {
		for x := 0; x < mask.Width(); x++ {
			assert.Equal(t, mask.At(x, y), shifted.Mask.At(x+shift.X, y+shift.Y))
		}
	}
	assert.Equal(t, images.Box{MinX: 11, MinY: 21, MaxX: 15, MaxY: 23}, shifted.Box)
}

// TestShiftedFullImageSize records how the full image size is derived.
func TestShiftedFullImageSize(t *testing.T) {
	t.Run("box only record keeps its size", func(t *testing.T) {
		p, err := NewObjectPrediction(NewObjectPredictionArgs{
			Box:           images.Box{MaxX: 1, MaxY: 1},
			ShiftAmount:   image.Pt(3, 3),
			FullImageSize: &images.Size{Height: 10, Width: 12},
		})
		require.NoError(t, err)

		shifted, err := p.Shifted()
		require.NoError(t, err)
		require.NotNil(t, shifted.FullImageSize)
		assert.Equal(t, images.Size{Height: 10, Width: 12}, *shifted.FullImageSize)
	})

	t.Run("unknown size stays unknown", func(t *testing.T) {
		p, err := NewObjectPrediction(NewObjectPredictionArgs{
			Box:         images.Box{MaxX: 1, MaxY: 1},
			ShiftAmount: image.Pt(3, 3),
		})
		require.NoError(t, err)

		shifted, err := p.Shifted()
		require.NoError(t, err)
		assert.Nil(t, shifted.FullImageSize)
		assert.Equal(t, images.Box{MinX: 3, MinY: 3, MaxX: 4, MaxY: 4}, shifted.Box)
	})

	t.Run("mask without size cannot be shifted", func(t *testing.T) {
		mask := squareMask(t, 3, 3, image.Pt(1, 1), nil)
		p, err := NewObjectPrediction(NewObjectPredictionArgs{
			Box:         images.Box{MaxX: 2, MaxY: 2},
			Mask:        mask,
			ShiftAmount: image.Pt(1, 1),
		})
		require.NoError(t, err)

		_, err = p.Shifted()
		assert.ErrorIs(t, err, images.ErrUnknownFullImageSize)
	})
}

// TestNewObjectPredictionValidation covers construction failures.
func TestNewObjectPredictionValidation(t *testing.T) {
	full := &images.Size{Height: 100, Width: 100}

	t.Run("mask in another tile", func(t *testing.T) {
		_, err := NewObjectPrediction(NewObjectPredictionArgs{
			Box:           images.Box{MaxX: 2, MaxY: 2},
			Mask:          squareMask(t, 3, 3, image.Pt(10, 0), full),
			ShiftAmount:   image.Pt(0, 10),
			FullImageSize: full,
		})
		assert.ErrorIs(t, err, ErrInconsistentMaskFrame)
	})

	t.Run("mask with another full size", func(t *testing.T) {
		_, err := NewObjectPrediction(NewObjectPredictionArgs{
			Box:           images.Box{MaxX: 2, MaxY: 2},
			Mask:          squareMask(t, 3, 3, image.Point{}, &images.Size{Height: 50, Width: 50}),
			FullImageSize: full,
		})
		assert.ErrorIs(t, err, ErrInconsistentMaskFrame)
	})

	t.Run("non-finite box", func(t *testing.T) {
		_, err := NewObjectPrediction(NewObjectPredictionArgs{
			Box: images.Box{MinX: float32(math.NaN()), MaxX: 2, MaxY: 2},
		})
		assert.ErrorIs(t, err, images.ErrInvalidBox)
	})

	t.Run("swapped corners are canonicalized", func(t *testing.T) {
		p, err := NewObjectPrediction(NewObjectPredictionArgs{
			Box: images.Box{MinX: 20, MinY: 30, MaxX: 10, MaxY: 5},
		})
		require.NoError(t, err)
		assert.Equal(t, images.Box{MinX: 10, MinY: 5, MaxX: 20, MaxY: 30}, p.Box)
	})
}

func TestObjectPredictionString(t *testing.T) {
	p, err := NewObjectPrediction(NewObjectPredictionArgs{
		Box:          images.Box{MinX: 1, MinY: 2, MaxX: 3, MaxY: 4},
		Score:        0.42,
		CategoryID:   5,
		CategoryName: "bus",
	})
	require.NoError(t, err)

	s := p.String()
	assert.Contains(t, s, "0.42")
	assert.Contains(t, s, "bus")
	assert.Contains(t, s, "mask: <nil>")
}

func TestShiftAllAndFilterByScore(t *testing.T) {
	var preds []*ObjectPrediction
	for i, score := range []float64{0.3, 0.5, 0.9} {
		p, err := NewObjectPrediction(NewObjectPredictionArgs{
			Box:         images.Box{MaxX: 10, MaxY: 10},
			Score:       score,
			CategoryID:  i,
			ShiftAmount: image.Pt(i*100, 0),
		})
		require.NoError(t, err)
		preds = append(preds, p)
	}

	shifted, err := ShiftAll(preds)
	require.NoError(t, err)
	require.Len(t, shifted, 3)
	for i, s := range shifted {
		assert.Equal(t, float32(i*100), s.Box.MinX)
		assert.Equal(t, image.Point{}, s.ShiftAmount)
	}

	kept := FilterByScore(shifted, 0.5)
	require.Len(t, kept, 1)
	assert.Equal(t, 2, kept[0].Category.ID)
}
