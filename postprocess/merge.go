// Package postprocess - Merges overlapping full image detections gathered from tiles.
package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-sahi/images"
	"github.com/nvr-ai/go-sahi/prediction"
	"github.com/pkg/errors"
)

// ErrInvalidConfig is returned for an unknown merge type or metric, or a
// threshold outside (0, 1].
var ErrInvalidConfig = errors.New("invalid merge config")

// Type selects how matched detections are resolved.
type Type string

const (
	// NMS keeps the highest scoring detection of a match group and drops the rest.
	NMS Type = "NMS"
	// NMM merges every matched detection into the highest scoring one.
	NMM Type = "NMM"
)

// Metric selects the overlap measure used to match detections.
type Metric string

const (
	// IoU is intersection over union.
	IoU Metric = "IOU"
	// IoS is intersection over the smaller box's area.
	IoS Metric = "IOS"
)

// Config defines how overlapping detections are merged.
type Config struct {
	// Type is NMS or NMM.
	Type Type `json:"type" yaml:"type" koanf:"type"`
	// Metric is IOU or IOS.
	Metric Metric `json:"metric" yaml:"metric" koanf:"metric"`
	// MatchThreshold is the overlap at or above which two detections match.
	MatchThreshold float32 `json:"match_threshold" yaml:"match_threshold" koanf:"match_threshold"`
	// ClassAgnostic matches detections across categories when true.
	ClassAgnostic bool `json:"class_agnostic" yaml:"class_agnostic" koanf:"class_agnostic"`
}

// DefaultConfig returns class aware greedy merging on IoS at 0.5.
func DefaultConfig() Config {
	return Config{
		Type:           NMM,
		Metric:         IoS,
		MatchThreshold: 0.5,
	}
}

// Validate checks the merge type, metric and threshold.
func (c Config) Validate() error {
	switch c.Type {
	case NMS, NMM:
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown type %q", c.Type)
	}
	switch c.Metric {
	case IoU, IoS:
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown metric %q", c.Metric)
	}
	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		return errors.Wrapf(ErrInvalidConfig, "match threshold %v outside (0, 1]", c.MatchThreshold)
	}
	return nil
}

// Merge resolves overlapping detections.
//
// Detections are ordered by descending score, ties keeping their input order.
// Each detection not yet matched becomes an anchor and claims every later
// unmatched detection whose overlap with it reaches the threshold. With NMS
// the claimed detections are dropped; with NMM they are merged into the anchor.
//
// Arguments:
//   - preds: Detections in the full image frame. They are not modified.
//   - cfg: The merge configuration.
//
// Returns:
//   - []*prediction.ObjectPrediction: One detection per anchor, highest score first.
//   - error: ErrInvalidConfig if the configuration is invalid.
//
// @example
// merged, err := Merge(shifted, postprocess.Config{Type: postprocess.NMS, Metric: postprocess.IoU, MatchThreshold: 0.5})
func Merge(preds []*prediction.ObjectPrediction, cfg Config) ([]*prediction.ObjectPrediction, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := len(preds)
	if n == 0 {
		return nil, nil
	}

	sorted := append([]*prediction.ObjectPrediction(nil), preds...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score.Value() > sorted[j].Score.Value()
	})

	used := make([]bool, n)
	merged := make([]*prediction.ObjectPrediction, 0, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := sorted[i]
		used[i] = true

		var group []*prediction.ObjectPrediction
		for j := i + 1; j < n; j++ {
			if used[j] || !matches(anchor, sorted[j], cfg) {
				continue
			}
			used[j] = true
			group = append(group, sorted[j])
		}

		if cfg.Type == NMM && len(group) > 0 {
			anchor = absorb(anchor, group)
		}
		merged = append(merged, anchor)
	}

	return merged, nil
}

func matches(a, b *prediction.ObjectPrediction, cfg Config) bool {
	if !cfg.ClassAgnostic && a.Category.ID != b.Category.ID {
		return false
	}
	return overlap(a.Box, b.Box, cfg.Metric) >= cfg.MatchThreshold
}

func overlap(a, b images.Box, metric Metric) float32 {
	if metric == IoS {
		return a.IoS(b)
	}
	return a.IoU(b)
}

// absorb builds a new detection covering the anchor and its group. The
// anchor's score and category are kept; masks are united when they share
// the anchor's frame.
func absorb(anchor *prediction.ObjectPrediction, group []*prediction.ObjectPrediction) *prediction.ObjectPrediction {
	box := anchor.Box
	mask := anchor.Mask
	for _, p := range group {
		box = box.Union(p.Box)
		if mask != nil && p.Mask != nil {
			if u, err := mask.Union(p.Mask); err == nil {
				mask = u
			}
		}
	}

	return &prediction.ObjectPrediction{
		Region: prediction.Region{
			Box:  box,
			Mask: mask,
		},
		Score:         anchor.Score,
		Category:      anchor.Category,
		ShiftAmount:   anchor.ShiftAmount,
		FullImageSize: images.CloneSize(anchor.FullImageSize),
	}
}
