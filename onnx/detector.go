package onnx

import (
	"log"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"

	"github.com/stereomatchingkiss/yolov5-rt-stack/common"
)

// ErrTrainingUnsupported reports that a loss was requested from an
// inference-only runtime.
var ErrTrainingUnsupported = errors.New("onnx detector is inference-only")

var ortInit sync.Once

// Detector runs an exported detection model through ONNX Runtime and
// implements the inference.Detector boundary.
//
// Detect returns boxes in the batch's resized coordinate space; the model
// is expected to emit, per image, rows of [x1, y1, x2, y2, score, class].
// ComputeLoss always fails: an inference runtime cannot train.
type Detector struct {
	cfg     Config
	session *ort.DynamicAdvancedSession
	mu      sync.Mutex
}

// NewDetector initializes the runtime environment once per process and
// opens a dynamic-input session for the model.
func NewDetector(cfg Config) (*Detector, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid onnx config")
	}

	var initErr error
	ortInit.Do(func() {
		if cfg.LibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.LibraryPath)
		}
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		return nil, errors.Wrap(initErr, "initialize onnx runtime")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "session options")
	}
	defer options.Destroy()
	if cfg.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			return nil, errors.Wrap(err, "intra-op threads")
		}
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return nil, errors.Wrap(err, "graph optimization level")
	}

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		options,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "open model %s", cfg.ModelPath)
	}

	log.Printf("onnx: session opened for %s (input=%s output=%s)",
		cfg.ModelPath, cfg.InputName, cfg.OutputName)
	return &Detector{cfg: cfg, session: session}, nil
}

// Close releases the runtime session.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil
	}
	err := d.session.Destroy()
	d.session = nil
	return err
}

// ComputeLoss always fails with ErrTrainingUnsupported.
func (d *Detector) ComputeLoss(_ *tensor.Dense, _ []common.Size, _ []common.Target) (common.LossMap, error) {
	return nil, errors.Wrap(ErrTrainingUnsupported, "compute loss")
}

// Detect runs the session over the NCHW batch and decodes one Detection
// per image, index-aligned with the batch, boxes clamped to each image's
// resized extent.
func (d *Detector) Detect(batch *tensor.Dense, sizes []common.Size) ([]common.Detection, error) {
	if batch == nil || batch.Dims() != 4 {
		return nil, errors.New("batch must be a 4-D NCHW tensor")
	}
	shape := batch.Shape()
	if shape[0] != len(sizes) {
		return nil, errors.Errorf("batch holds %d images but %d sizes supplied", shape[0], len(sizes))
	}

	dims := make([]int64, len(shape))
	for i, v := range shape {
		dims[i] = int64(v)
	}
	input, err := ort.NewTensor(ort.NewShape(dims...), batch.Data().([]float32))
	if err != nil {
		return nil, errors.Wrap(err, "input tensor")
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	d.mu.Lock()
	if d.session == nil {
		d.mu.Unlock()
		return nil, errors.New("detector is closed")
	}
	err = d.session.Run([]ort.Value{input}, outputs)
	d.mu.Unlock()
	if err != nil {
		return nil, errors.Wrap(err, "session run")
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, errors.Errorf("unexpected output value type %T", outputs[0])
	}
	outShape := out.GetShape()
	if len(outShape) != 3 || outShape[2] != 6 {
		return nil, errors.Errorf("unexpected output shape %v, want [N, rows, 6]", outShape)
	}
	if int(outShape[0]) != len(sizes) {
		return nil, errors.Errorf("model emitted %d images, batch holds %d", outShape[0], len(sizes))
	}

	return decodeBatch(out.GetData(), len(sizes), int(outShape[1]), sizes,
		d.cfg.ConfidenceThreshold, d.cfg.NMSThreshold), nil
}
