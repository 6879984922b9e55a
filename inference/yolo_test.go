package inference

import (
	"testing"

	"github.com/nvr-ai/go-sahi/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// yoloOutput lays out per batch anchors as [4+classes, anchors] rows.
func yoloOutput(classes int, batches ...[][]float32) []float32 {
	var out []float32
	for _, anchors := range batches {
		rows := make([][]float32, 4+classes)
		for _, a := range anchors {
			for r := range rows {
				rows[r] = append(rows[r], a[r])
			}
		}
		for _, r := range rows {
			out = append(out, r...)
		}
	}
	return out
}

func TestDecodeYOLO(t *testing.T) {
	// Two classes; each anchor is cx, cy, w, h, score0, score1.
	out := yoloOutput(2,
		[][]float32{
			{100, 100, 40, 20, 0.1, 0.8},
			{300, 300, 10, 10, 0.05, 0.1},
		},
		[][]float32{
			{10, 10, 40, 40, 0.6, 0.2},
			{300, 300, 10, 10, 0.05, 0.1},
		},
	)

	raws, err := DecodeYOLO(out, YOLOArgs{
		Batch:               2,
		Classes:             2,
		Anchors:             2,
		InputWidth:          640,
		InputHeight:         640,
		TileWidth:           320,
		TileHeight:          320,
		ConfidenceThreshold: 0.25,
		ClassNames:          []string{"person", "car"},
	})
	require.NoError(t, err)
	require.Len(t, raws, 2)

	require.Len(t, raws[0], 1)
	assert.Equal(t, images.Box{MinX: 40, MinY: 45, MaxX: 60, MaxY: 55}, raws[0][0].Box)
	assert.Equal(t, 1, raws[0][0].CategoryID)
	assert.Equal(t, "car", raws[0][0].CategoryName)
	assert.InDelta(t, 0.8, raws[0][0].Score, 1e-6)

	// Boxes are clipped to the tile.
	require.Len(t, raws[1], 1)
	assert.Equal(t, images.Box{MinX: 0, MinY: 0, MaxX: 15, MaxY: 15}, raws[1][0].Box)
	assert.Equal(t, "person", raws[1][0].CategoryName)
}

func TestDecodeYOLOSuppression(t *testing.T) {
	out := yoloOutput(1, [][]float32{
		{50, 50, 20, 20, 0.7},
		{51, 50, 20, 20, 0.9},
		{200, 200, 20, 20, 0.8},
	})

	args := YOLOArgs{
		Batch: 1, Classes: 1, Anchors: 3,
		InputWidth: 640, InputHeight: 640, TileWidth: 640, TileHeight: 640,
		ConfidenceThreshold: 0.5,
	}

	raws, err := DecodeYOLO(out, args)
	require.NoError(t, err)
	require.Len(t, raws[0], 3)
	assert.InDelta(t, 0.9, raws[0][0].Score, 1e-6)
	assert.InDelta(t, 0.8, raws[0][1].Score, 1e-6)

	args.IoUThreshold = 0.5
	raws, err = DecodeYOLO(out, args)
	require.NoError(t, err)
	require.Len(t, raws[0], 2)
	assert.InDelta(t, 0.9, raws[0][0].Score, 1e-6)
	assert.InDelta(t, 0.8, raws[0][1].Score, 1e-6)
	assert.Empty(t, raws[0][0].CategoryName)
}

func TestDecodeYOLOLayoutErrors(t *testing.T) {
	tests := []struct {
		name   string
		output []float32
		args   YOLOArgs
	}{
		{
			name:   "wrong length",
			output: make([]float32, 10),
			args:   YOLOArgs{Batch: 1, Classes: 2, Anchors: 2, InputWidth: 1, InputHeight: 1, TileWidth: 1, TileHeight: 1},
		},
		{
			name:   "no classes",
			output: make([]float32, 8),
			args:   YOLOArgs{Batch: 1, Anchors: 2, InputWidth: 1, InputHeight: 1, TileWidth: 1, TileHeight: 1},
		},
		{
			name:   "no input size",
			output: make([]float32, 12),
			args:   YOLOArgs{Batch: 1, Classes: 2, Anchors: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeYOLO(tt.output, tt.args)
			assert.ErrorIs(t, err, ErrDetectorOutput)
		})
	}
}

func TestProviderValid(t *testing.T) {
	for _, p := range []Provider{ProviderCPU, ProviderCUDA, ProviderCoreML, ProviderOpenVINO} {
		assert.True(t, p.Valid(), p)
	}
	assert.False(t, Provider("tpu").Valid())

	_, err := NewONNXDetector(ONNXConfig{})
	assert.Error(t, err)
	_, err = NewONNXDetector(ONNXConfig{ModelPath: "model.onnx", Provider: "tpu"})
	assert.Error(t, err)
}
