package inference

import (
	"sort"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-sahi/images"
	"github.com/nvr-ai/go-sahi/prediction"
	"github.com/pkg/errors"
)

// YOLOArgs describe a YOLOv8 style output tensor of shape [N, 4+classes, anchors].
type YOLOArgs struct {
	// Batch is N, the number of tiles in the batch.
	Batch int
	// Classes is the number of class score rows following the 4 box rows.
	Classes int
	// Anchors is the number of candidate boxes per tile, 8400 for a 640x640 input.
	Anchors int
	// InputWidth and InputHeight are the spatial size the model saw.
	InputWidth, InputHeight int
	// TileWidth and TileHeight are the size of the tiles the boxes are mapped to.
	TileWidth, TileHeight int
	// ConfidenceThreshold drops candidates whose best class score is below it.
	ConfidenceThreshold float32
	// IoUThreshold enables class aware greedy suppression within each tile when positive.
	IoUThreshold float32
	// ClassNames labels class indices. Indices past the end get an empty name.
	ClassNames []string
}

// DecodeYOLO converts a raw YOLOv8 output into per tile detections.
//
// Rows 0-3 hold the box center x, center y, width and height in model input
// pixels; the remaining rows hold one score per class. Each anchor keeps its
// best class, boxes are converted to corners and scaled to the tile size.
//
// Arguments:
//   - output: The flat output tensor data.
//   - args: The output layout and decoding parameters.
//
// Returns:
//   - [][]prediction.RawDetection: One list per batch index, highest score first.
//   - error: ErrDetectorOutput if the data does not match the layout.
//
// @example
// raws, err := DecodeYOLO(out.GetData(), YOLOArgs{Batch: 4, Classes: 80, Anchors: 8400,
// InputWidth: 640, InputHeight: 640, TileWidth: 640, TileHeight: 640, ConfidenceThreshold: 0.25})
func DecodeYOLO(output []float32, args YOLOArgs) ([][]prediction.RawDetection, error) {
	if args.Batch <= 0 || args.Classes <= 0 || args.Anchors <= 0 {
		return nil, errors.Wrapf(ErrDetectorOutput, "invalid layout [%d, 4+%d, %d]", args.Batch, args.Classes, args.Anchors)
	}
	if args.InputWidth <= 0 || args.InputHeight <= 0 || args.TileWidth <= 0 || args.TileHeight <= 0 {
		return nil, errors.Wrapf(ErrDetectorOutput, "invalid input %dx%d or tile %dx%d size",
			args.InputWidth, args.InputHeight, args.TileWidth, args.TileHeight)
	}

	rows := 4 + args.Classes
	stride := rows * args.Anchors
	if len(output) != args.Batch*stride {
		return nil, errors.Wrapf(ErrDetectorOutput, "expected %d values for [%d, %d, %d], got %d",
			args.Batch*stride, args.Batch, rows, args.Anchors, len(output))
	}

	sx := float32(args.TileWidth) / float32(args.InputWidth)
	sy := float32(args.TileHeight) / float32(args.InputHeight)

	result := make([][]prediction.RawDetection, args.Batch)
	for b := 0; b < args.Batch; b++ {
		out := output[b*stride : (b+1)*stride]
		var dets []prediction.RawDetection

		for a := 0; a < args.Anchors; a++ {
			classID := 0
			score := math32.Inf(-1)
			for c := 0; c < args.Classes; c++ {
				if v := out[(4+c)*args.Anchors+a]; v > score {
					score = v
					classID = c
				}
			}
			if score < args.ConfidenceThreshold {
				continue
			}

			xc, yc := out[a], out[args.Anchors+a]
			w, h := out[2*args.Anchors+a], out[3*args.Anchors+a]
			box, err := images.NewBox(
				math32.Max(0, (xc-w/2)*sx),
				math32.Max(0, (yc-h/2)*sy),
				math32.Min(float32(args.TileWidth), (xc+w/2)*sx),
				math32.Min(float32(args.TileHeight), (yc+h/2)*sy),
			)
			if err != nil {
				continue
			}

			var name string
			if classID < len(args.ClassNames) {
				name = args.ClassNames[classID]
			}
			dets = append(dets, prediction.RawDetection{
				Box:          box,
				Score:        score,
				CategoryID:   classID,
				CategoryName: name,
			})
		}

		sort.SliceStable(dets, func(i, j int) bool {
			return dets[i].Score > dets[j].Score
		})
		if args.IoUThreshold > 0 {
			dets = suppress(dets, args.IoUThreshold)
		}
		result[b] = dets
	}

	return result, nil
}

// suppress performs class aware greedy suppression over detections sorted by
// descending score.
func suppress(dets []prediction.RawDetection, threshold float32) []prediction.RawDetection {
	used := make([]bool, len(dets))
	kept := make([]prediction.RawDetection, 0, len(dets))

	for i := range dets {
		if used[i] {
			continue
		}
		anchor := dets[i]
		kept = append(kept, anchor)

		for j := i + 1; j < len(dets); j++ {
			if used[j] || dets[j].CategoryID != anchor.CategoryID {
				continue
			}
			if anchor.Box.IoU(dets[j].Box) > threshold {
				used[j] = true
			}
		}
	}
	return kept
}
