package inference

import (
	"context"
	"image"
	"log/slog"
	"time"

	"github.com/nvr-ai/go-sahi/images"
	"github.com/nvr-ai/go-sahi/postprocess"
	"github.com/nvr-ai/go-sahi/prediction"
	"github.com/nvr-ai/go-sahi/slicing"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gorgonia.org/tensor"
)

// Engine runs sliced prediction: the image is cut into tiles, tiles are
// batched through the detector, detections are mapped to the full image and
// merged.
type Engine struct {
	detector    Detector
	slicing     slicing.Config
	merge       postprocess.Config
	batchSize   int
	concurrency int
	threshold   float64
	fullImage   bool
	logger      *slog.Logger
	metrics     *Metrics
}

// EngineBuilder helps build an Engine with a fluent API.
type EngineBuilder struct {
	engine Engine
	err    error
}

// NewEngineBuilder creates a new engine builder with default settings.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{
		engine: Engine{
			slicing:     slicing.DefaultConfig(),
			merge:       postprocess.DefaultConfig(),
			batchSize:   1,
			concurrency: 1,
			logger:      slog.New(slog.DiscardHandler),
		},
	}
}

// WithDetector sets the detector for the engine.
//
// Arguments:
//   - detector: The detector that runs the model on each batch.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithDetector(detector Detector) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if detector == nil {
		b.err = errors.New("detector is nil")
		return b
	}
	b.engine.detector = detector
	return b
}

// WithSlicing sets the tile size and overlap.
func (b *EngineBuilder) WithSlicing(cfg slicing.Config) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if err := cfg.Validate(); err != nil {
		b.err = err
		return b
	}
	b.engine.slicing = cfg
	return b
}

// WithMerge sets how overlapping detections are merged.
func (b *EngineBuilder) WithMerge(cfg postprocess.Config) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if err := cfg.Validate(); err != nil {
		b.err = err
		return b
	}
	b.engine.merge = cfg
	return b
}

// WithBatchSize sets the number of tiles per detector call.
func (b *EngineBuilder) WithBatchSize(n int) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if n <= 0 {
		b.err = errors.Errorf("batch size %d must be positive", n)
		return b
	}
	b.engine.batchSize = n
	return b
}

// WithConcurrency sets the number of batches run at the same time.
func (b *EngineBuilder) WithConcurrency(n int) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if n <= 0 {
		b.err = errors.Errorf("concurrency %d must be positive", n)
		return b
	}
	b.engine.concurrency = n
	return b
}

// WithConfidenceThreshold drops detections whose score is not strictly above t.
func (b *EngineBuilder) WithConfidenceThreshold(t float64) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.engine.threshold = t
	return b
}

// WithFullImagePrediction adds a pass over the unsliced image, which helps
// with objects larger than a tile.
func (b *EngineBuilder) WithFullImagePrediction(enabled bool) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.engine.fullImage = enabled
	return b
}

// WithLogger sets the structured logger.
func (b *EngineBuilder) WithLogger(logger *slog.Logger) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if logger != nil {
		b.engine.logger = logger
	}
	return b
}

// WithMetrics enables Prometheus metrics.
func (b *EngineBuilder) WithMetrics(m *Metrics) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.engine.metrics = m
	return b
}

// HasError checks if the engine builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *EngineBuilder) HasError() bool {
	return b.err != nil
}

// MustBuild builds the engine and panics if there is an error.
//
// Returns:
//   - *Engine: The engine.
func (b *EngineBuilder) MustBuild() *Engine {
	e, err := b.Build()
	if err != nil {
		panic(err)
	}
	return e
}

// Build builds the engine.
//
// Returns:
//   - *Engine: The engine.
//   - error: The first configuration error, or an error if no detector is set.
func (b *EngineBuilder) Build() (*Engine, error) {
	if b.HasError() {
		return nil, b.err
	}
	if b.engine.detector == nil {
		return nil, errors.New("detector not configured")
	}

	e := b.engine
	return &e, nil
}

// batch is a run of tiles sent to the detector in one call.
type batch struct {
	images []*tensor.Dense
	shifts []image.Point
}

// Predict runs sliced prediction over a raw (H, W, C) or (H, W) float32 image.
//
// Batches run concurrently up to the configured limit. Each batch writes to
// its own slot, so detections are gathered in tile order whatever the order
// batches complete in. The first failing batch cancels the others.
//
// Arguments:
//   - ctx: The context for the prediction.
//   - img: The full image.
//
// Returns:
//   - []*prediction.ObjectPrediction: Merged detections in full image coordinates.
//   - error: The first slicing, assembly or detector error.
func (e *Engine) Predict(ctx context.Context, img *tensor.Dense) ([]*prediction.ObjectPrediction, error) {
	start := time.Now()

	size, err := slicing.FullImageSize(img)
	if err != nil {
		return nil, err
	}
	tiles, err := slicing.Slice(img, e.slicing)
	if err != nil {
		return nil, errors.Wrap(err, "failed to slice image")
	}

	batches := make([]batch, 0, (len(tiles)+e.batchSize-1)/e.batchSize)
	for i := 0; i < len(tiles); i += e.batchSize {
		var b batch
		for _, t := range tiles[i:min(i+e.batchSize, len(tiles))] {
			b.images = append(b.images, t.Image)
			b.shifts = append(b.shifts, t.ShiftAmount())
		}
		batches = append(batches, b)
	}
	if e.fullImage && len(tiles) > 1 {
		batches = append(batches, batch{images: []*tensor.Dense{img}, shifts: []image.Point{{}}})
	}

	e.logger.Info("running sliced prediction",
		"size", size.String(),
		"tiles", len(tiles),
		"batches", len(batches),
		"full_image", e.fullImage && len(tiles) > 1,
	)

	slots := make([][]*prediction.ObjectPrediction, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, b := range batches {
		g.Go(func() error {
			preds, err := e.runBatch(gctx, i, b, &size)
			if err != nil {
				e.metrics.batchFailed()
				return errors.Wrapf(err, "batch %d", i)
			}
			slots[i] = preds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var kept []*prediction.ObjectPrediction
	for _, preds := range slots {
		kept = append(kept, preds...)
	}

	merged, err := postprocess.Merge(kept, e.merge)
	if err != nil {
		return nil, err
	}
	e.metrics.addDetections(StageMerged, len(merged))

	e.logger.Info("sliced prediction done",
		"kept", len(kept),
		"merged", len(merged),
		"elapsed", time.Since(start),
	)
	return merged, nil
}

// PredictImage runs Predict over a decoded image.
func (e *Engine) PredictImage(ctx context.Context, img image.Image) ([]*prediction.ObjectPrediction, error) {
	return e.Predict(ctx, images.FromImage(img))
}

// runBatch assembles one batch, runs the detector and returns the detections
// shifted to the full image and filtered by score, in batch index order.
func (e *Engine) runBatch(ctx context.Context, id int, b batch, size *images.Size) ([]*prediction.ObjectPrediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b = e.dropDegenerate(id, b)
	if len(b.images) == 0 {
		return nil, nil
	}

	in, err := prediction.NewInput(prediction.NewInputArgs{
		Images:        b.images,
		ShiftAmounts:  b.shifts,
		FullImageSize: size,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to assemble batch")
	}

	start := time.Now()
	raws, err := e.detector.Detect(ctx, in)
	if err != nil {
		return nil, errors.Wrap(err, "detector failed")
	}
	elapsed := time.Since(start)
	if len(raws) != in.Len() {
		return nil, errors.Wrapf(ErrDetectorOutput, "%d lists for %d images", len(raws), in.Len())
	}
	e.metrics.observeBatch(in.Len(), elapsed.Seconds())

	var kept []*prediction.ObjectPrediction
	rawCount := 0
	for i := range raws {
		rawCount += len(raws[i])

		preds, err := in.Predictions(i, raws[i])
		if err != nil {
			return nil, err
		}
		shifted, err := prediction.ShiftAll(preds)
		if err != nil {
			return nil, err
		}
		kept = append(kept, prediction.FilterByScore(shifted, e.threshold)...)
	}
	e.metrics.addDetections(StageRaw, rawCount)
	e.metrics.addDetections(StageKept, len(kept))

	e.logger.Debug("batch done",
		"batch", id,
		"images", in.Len(),
		"raw", rawCount,
		"kept", len(kept),
		"elapsed", elapsed,
	)
	return kept, nil
}

// dropDegenerate removes tiles with no usable signal, such as all black
// letterbox regions, keeping each remaining tile paired with its offset.
func (e *Engine) dropDegenerate(id int, b batch) batch {
	var live batch
	for i, img := range b.images {
		if err := prediction.CheckImage(img); errors.Is(err, prediction.ErrDegenerateImage) {
			e.logger.Debug("skipping degenerate tile",
				"batch", id,
				"shift", b.shifts[i].String(),
				"reason", err.Error(),
			)
			e.metrics.tileSkipped()
			continue
		}
		live.images = append(live.images, img)
		live.shifts = append(live.shifts, b.shifts[i])
	}
	return live
}
