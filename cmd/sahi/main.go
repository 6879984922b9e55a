package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/nvr-ai/go-sahi/config"
	"github.com/nvr-ai/go-sahi/images"
	"github.com/nvr-ai/go-sahi/inference"
	"github.com/pkg/errors"
)

func main() {
	var (
		configPath string
		imagePath  string
		modelPath  string
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML config file")
	flag.StringVar(&imagePath, "image", "", "Path to image file (.jpg, .jpeg, .png, .webp)")
	flag.StringVar(&modelPath, "model", "", "Path to YOLO ONNX model file, overrides the config")
	flag.Parse()

	if imagePath == "" {
		log.Fatal("-image is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if modelPath != "" {
		cfg.Detector.ModelPath = modelPath
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))

	img, err := readImage(imagePath)
	if err != nil {
		log.Fatalf("failed to read image: %v", err)
	}
	raw, err := images.Decode(img)
	if err != nil {
		log.Fatalf("failed to decode image: %v", err)
	}

	detector, err := inference.NewONNXDetector(cfg.Detector)
	if err != nil {
		log.Fatalf("failed to create detector: %v", err)
	}
	defer func() {
		if err := detector.Close(); err != nil {
			log.Printf("failed to close detector: %v", err)
		}
	}()

	engine, err := inference.NewEngineBuilder().
		WithDetector(detector).
		WithSlicing(cfg.Slicing).
		WithMerge(cfg.Merge).
		WithBatchSize(cfg.Engine.BatchSize).
		WithConcurrency(cfg.Engine.Concurrency).
		WithConfidenceThreshold(cfg.Engine.ConfidenceThreshold).
		WithFullImagePrediction(cfg.Engine.FullImagePrediction).
		WithLogger(logger).
		Build()
	if err != nil {
		log.Fatalf("failed to build engine: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	preds, err := engine.Predict(ctx, raw)
	if err != nil {
		log.Printf("prediction failed: %v", err)
		return
	}

	fmt.Printf("%s: %d detections in %dx%d image\n", imagePath, len(preds), img.Width, img.Height)
	for _, p := range preds {
		fmt.Println(p)
	}
}

// readImage loads an encoded image file, inferring its format from the extension.
func readImage(path string) (*images.Image, error) {
	format, ok := images.FormatFromExtension(filepath.Ext(path))
	if !ok {
		return nil, errors.Errorf("unsupported image extension %q", filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return &images.Image{Format: format, Data: data}, nil
}
