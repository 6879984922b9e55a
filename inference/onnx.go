package inference

import (
	"context"
	"runtime"
	"sync"

	"github.com/nvr-ai/go-sahi/prediction"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Provider is an ONNX Runtime execution provider.
type Provider string

const (
	// ProviderCPU runs on the default CPU provider.
	ProviderCPU Provider = "cpu"
	// ProviderCUDA runs on NVIDIA GPUs.
	ProviderCUDA Provider = "cuda"
	// ProviderCoreML runs on Apple CoreML.
	ProviderCoreML Provider = "coreml"
	// ProviderOpenVINO runs on Intel OpenVINO.
	ProviderOpenVINO Provider = "openvino"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderCPU, ProviderCUDA, ProviderCoreML, ProviderOpenVINO:
		return true
	}
	return false
}

// ONNXConfig configures an ONNXDetector for a YOLOv8 style model exported
// with dynamic batch and spatial axes.
type ONNXConfig struct {
	// ModelPath is the path to the .onnx file.
	ModelPath string `json:"model_path" yaml:"model_path" koanf:"model_path"`
	// LibraryPath is the ONNX Runtime shared library. Empty selects DefaultLibraryPath.
	LibraryPath string `json:"library_path" yaml:"library_path" koanf:"library_path"`
	// InputName and OutputName are the model's tensor names.
	InputName  string `json:"input_name" yaml:"input_name" koanf:"input_name"`
	OutputName string `json:"output_name" yaml:"output_name" koanf:"output_name"`
	// ConfidenceThreshold drops candidates before they leave the detector.
	ConfidenceThreshold float32 `json:"confidence_threshold" yaml:"confidence_threshold" koanf:"confidence_threshold"`
	// IoUThreshold is the per tile suppression threshold, 0 disables it.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold" koanf:"iou_threshold"`
	// Provider selects the execution provider.
	Provider Provider `json:"provider" yaml:"provider" koanf:"provider"`
	// IntraOpThreads and InterOpThreads size the runtime thread pools, 0 keeps the runtime default.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads" koanf:"intra_op_threads"`
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads" koanf:"inter_op_threads"`
	// ClassNames label the class indices. Empty uses COCOClasses.
	ClassNames []string `json:"class_names" yaml:"class_names" koanf:"class_names"`
}

// DefaultONNXConfig returns the settings of an ultralytics YOLOv8 export.
func DefaultONNXConfig() ONNXConfig {
	return ONNXConfig{
		InputName:           "images",
		OutputName:          "output0",
		ConfidenceThreshold: 0.25,
		IoUThreshold:        0.7,
		Provider:            ProviderCPU,
	}
}

// DefaultLibraryPath returns the bundled ONNX Runtime library for this platform.
//
// Returns:
//   - string: The library path.
//   - error: An error on platforms without a bundled library.
func DefaultLibraryPath() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if runtime.GOARCH == "amd64" {
			return "./third_party/onnxruntime.dll", nil
		}
	case "darwin":
		return "./third_party/libonnxruntime.1.23.0.dylib", nil
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so", nil
		}
		return "./third_party/onnxruntime.so", nil
	}
	return "", errors.Errorf("no onnxruntime library for %s/%s", runtime.GOOS, runtime.GOARCH)
}

var runtimeMu sync.Mutex

// InitializeRuntime loads the ONNX Runtime shared library once per process.
func InitializeRuntime(libraryPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libraryPath == "" {
		p, err := DefaultLibraryPath()
		if err != nil {
			return err
		}
		libraryPath = p
	}

	ort.SetSharedLibraryPath(libraryPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrapf(err, "error initializing ORT environment from %s", libraryPath)
	}
	return nil
}

// ONNXDetector runs a YOLOv8 style ONNX model over assembled batches.
//
// The batch tensor is handed to the runtime without copying, so the model
// sees the tiles at their own size.
type ONNXDetector struct {
	session *ort.DynamicAdvancedSession
	cfg     ONNXConfig
}

// NewONNXDetector initializes the runtime and loads the model.
//
// Arguments:
//   - cfg: The detector configuration.
//
// Returns:
//   - *ONNXDetector: The detector. Call Close to release the session.
//   - error: An error if the runtime or the model cannot be loaded.
func NewONNXDetector(cfg ONNXConfig) (*ONNXDetector, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("model path is required")
	}
	if !cfg.Provider.Valid() {
		return nil, errors.Errorf("unsupported execution provider %q", cfg.Provider)
	}
	if len(cfg.ClassNames) == 0 {
		cfg.ClassNames = COCOClasses
	}

	if err := InitializeRuntime(cfg.LibraryPath); err != nil {
		return nil, err
	}

	options, err := sessionOptions(cfg)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		options,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "error creating ORT session for %s", cfg.ModelPath)
	}

	return &ONNXDetector{session: session, cfg: cfg}, nil
}

// Detect implements Detector.
func (d *ONNXDetector) Detect(ctx context.Context, in *prediction.Input) ([][]prediction.RawDetection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	shape := in.Batch.Shape()
	if len(shape) != 4 {
		return nil, errors.Errorf("expected an N×C×H×W batch, got %v", shape)
	}
	n, c, h, w := shape[0], shape[1], shape[2], shape[3]

	input, err := ort.NewTensor(ort.NewShape(int64(n), int64(c), int64(h), int64(w)), in.Batch.Data().([]float32))
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	if err := d.session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, errors.Wrap(err, "failed to run inference")
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, errors.Wrapf(ErrDetectorOutput, "unexpected output type %T", outputs[0])
	}
	outShape := out.GetShape()
	if len(outShape) != 3 || int(outShape[0]) != n || outShape[1] <= 4 {
		return nil, errors.Wrapf(ErrDetectorOutput, "unexpected output shape %v", outShape)
	}

	return DecodeYOLO(out.GetData(), YOLOArgs{
		Batch:               n,
		Classes:             int(outShape[1]) - 4,
		Anchors:             int(outShape[2]),
		InputWidth:          w,
		InputHeight:         h,
		TileWidth:           w,
		TileHeight:          h,
		ConfidenceThreshold: d.cfg.ConfidenceThreshold,
		IoUThreshold:        d.cfg.IoUThreshold,
		ClassNames:          d.cfg.ClassNames,
	})
}

// Close releases the session.
func (d *ONNXDetector) Close() error {
	if d.session == nil {
		return nil
	}
	err := d.session.Destroy()
	d.session = nil
	return err
}

// sessionOptions applies thread counts and the execution provider.
func sessionOptions(cfg ONNXConfig) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session options")
	}

	if err := configure(options, cfg); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}

func configure(options *ort.SessionOptions, cfg ONNXConfig) error {
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return errors.Wrap(err, "error setting graph optimization level")
	}
	if cfg.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			return errors.Wrap(err, "error setting intra op threads")
		}
	}
	if cfg.InterOpThreads > 0 {
		if err := options.SetInterOpNumThreads(cfg.InterOpThreads); err != nil {
			return errors.Wrap(err, "error setting inter op threads")
		}
	}

	switch cfg.Provider {
	case ProviderCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return errors.Wrap(err, "error creating CUDA options")
		}
		defer cuda.Destroy()
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return errors.Wrap(err, "error enabling CUDA")
		}
	case ProviderCoreML:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			return errors.Wrap(err, "error enabling CoreML")
		}
	case ProviderOpenVINO:
		if err := options.AppendExecutionProviderOpenVINO(map[string]string{
			"device_type": "CPU",
			"precision":   "FP32",
		}); err != nil {
			return errors.Wrap(err, "error enabling OpenVINO")
		}
	}
	return nil
}
