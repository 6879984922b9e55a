// Package config - Layered configuration for sliced prediction.
package config

import (
	"log/slog"
	"runtime"
	"strings"

	"github.com/nvr-ai/go-sahi/inference"
	"github.com/nvr-ai/go-sahi/postprocess"
	"github.com/nvr-ai/go-sahi/slicing"
	"github.com/pkg/errors"
)

// Config contains the settings of the sahi command and engine.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level" koanf:"log_level"`
	// Slicing sets the tile size and overlap.
	Slicing slicing.Config `json:"slicing" yaml:"slicing" koanf:"slicing"`
	// Merge sets how overlapping detections are merged.
	Merge postprocess.Config `json:"merge" yaml:"merge" koanf:"merge"`
	// Engine sets batching and filtering.
	Engine Engine `json:"engine" yaml:"engine" koanf:"engine"`
	// Detector configures the ONNX model.
	Detector inference.ONNXConfig `json:"detector" yaml:"detector" koanf:"detector"`
}

// Engine contains the engine's batching and filtering settings.
type Engine struct {
	// BatchSize is the number of tiles per detector call.
	BatchSize int `json:"batch_size" yaml:"batch_size" koanf:"batch_size"`
	// Concurrency is the number of batches run at the same time.
	Concurrency int `json:"concurrency" yaml:"concurrency" koanf:"concurrency"`
	// ConfidenceThreshold drops detections whose score is not strictly above it.
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold" koanf:"confidence_threshold"`
	// FullImagePrediction adds a pass over the unsliced image.
	FullImagePrediction bool `json:"full_image_prediction" yaml:"full_image_prediction" koanf:"full_image_prediction"`
}

// New returns a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel: "info",
		Slicing:  slicing.DefaultConfig(),
		Merge:    postprocess.DefaultConfig(),
		Engine: Engine{
			BatchSize:           4,
			Concurrency:         max(1, runtime.NumCPU()/2),
			ConfidenceThreshold: 0.3,
		},
		Detector: inference.DefaultONNXConfig(),
	}
}

// Validate checks every section of the configuration.
func (c *Config) Validate() error {
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if err := c.Slicing.Validate(); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "slicing: %v", err)
	}
	if err := c.Merge.Validate(); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "merge: %v", err)
	}
	if c.Engine.BatchSize <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "engine: batch size %d must be positive", c.Engine.BatchSize)
	}
	if c.Engine.Concurrency <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "engine: concurrency %d must be positive", c.Engine.Concurrency)
	}
	if !c.Detector.Provider.Valid() {
		return errors.Wrapf(ErrInvalidConfig, "detector: unknown provider %q", c.Detector.Provider)
	}
	return nil
}

// Level returns the slog level for LogLevel.
func (c *Config) Level() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, errors.Wrapf(ErrInvalidConfig, "unknown log level %q", s)
}
