package inference

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/stereomatchingkiss/yolov5-rt-stack/common"
	"github.com/stereomatchingkiss/yolov5-rt-stack/data"
	"github.com/stereomatchingkiss/yolov5-rt-stack/eval"
	"github.com/stereomatchingkiss/yolov5-rt-stack/transform"
)

// Mode identifies which side of an Output is populated.
type Mode int

const (
	// ModeEval produced detections.
	ModeEval Mode = iota
	// ModeTraining produced losses.
	ModeTraining
)

// Output is the tagged result of one forward pass. Exactly one of Losses
// and Detections is populated, never both.
type Output struct {
	Losses     common.LossMap
	Detections []common.Detection
}

// Mode reports which side of the output is populated.
func (o Output) Mode() Mode {
	if o.Losses != nil {
		return ModeTraining
	}
	return ModeEval
}

// Module orchestrates one forward pass: transform, detector dispatch and,
// on the evaluation path, postprocessing back into original coordinates.
//
// The mode of each call derives purely from the presence of supervision at
// the call boundary; Module holds no training flag that could desynchronize
// from the detector's own state, so one Module may serve interleaved
// training and evaluation calls.
type Module struct {
	detector  Detector
	transform *transform.Transform
	cfg       Config

	// Pipeline is the collate/uncollate strategy Predict falls back to
	// when the caller passes none. New initializes it to
	// data.DefaultPipeline(); callers may replace it before use.
	Pipeline data.Pipeline
}

// New builds a Module around the given detector.
func New(detector Detector, cfg Config) (*Module, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	if detector == nil {
		return nil, errors.New("nil detector")
	}
	return &Module{
		detector:  detector,
		transform: transform.New(cfg.MinSize, cfg.MaxSize),
		cfg:       cfg,
		Pipeline:  data.DefaultPipeline(),
	}, nil
}

// Config returns the configuration the module was built with.
func (m *Module) Config() Config { return m.cfg }

// Forward runs one pass. With targets present the detector's loss path is
// taken and Output carries the loss terms; without targets the detection
// path is taken and Output carries per-image detections already rescaled
// into original coordinates.
func (m *Module) Forward(images []*tensor.Dense, targets []common.Target) (Output, error) {
	batch, targets, err := m.transform.Prepare(images, targets)
	if err != nil {
		return Output{}, err
	}

	if len(targets) > 0 {
		losses, err := m.detector.ComputeLoss(batch.Tensor, batch.ImageSizes, targets)
		if err != nil {
			return Output{}, errors.Wrap(err, "loss computation")
		}
		if losses == nil {
			losses = common.LossMap{}
		}
		return Output{Losses: losses}, nil
	}

	raw, err := m.detector.Detect(batch.Tensor, batch.ImageSizes)
	if err != nil {
		return Output{}, errors.Wrap(err, "detection")
	}
	if len(raw) != batch.Len() {
		return Output{}, errors.Wrapf(transform.ErrShapeMismatch,
			"detector returned %d detections for %d images", len(raw), batch.Len())
	}

	detections, err := m.transform.Postprocess(raw, batch.ImageSizes, batch.OriginalSizes)
	if err != nil {
		return Output{}, err
	}
	return Output{Detections: detections}, nil
}

// TrainingStep computes the loss terms for one supervised batch.
//
// Requesting training without targets is fatal: returns ErrMode.
func (m *Module) TrainingStep(images []*tensor.Dense, targets []common.Target) (common.LossMap, error) {
	if len(targets) == 0 {
		return nil, errors.Wrap(ErrMode, "training step")
	}
	out, err := m.Forward(images, targets)
	if err != nil {
		return nil, err
	}
	return out.Losses, nil
}

// Infer runs the detection path and returns per-image detections in
// original coordinates. It never returns a loss mapping.
func (m *Module) Infer(images []*tensor.Dense) ([]common.Detection, error) {
	out, err := m.Forward(images, nil)
	if err != nil {
		return nil, err
	}
	return out.Detections, nil
}

// ValidationStep runs inference and scores it against the ground truth,
// returning the batch-mean best-match IoU as a cheap validation signal.
func (m *Module) ValidationStep(images []*tensor.Dense, targets []common.Target) (float32, error) {
	if len(targets) != len(images) {
		return 0, errors.Wrapf(transform.ErrShapeMismatch,
			"%d images but %d targets", len(images), len(targets))
	}
	detections, err := m.Infer(images)
	if err != nil {
		return 0, err
	}

	var sum float32
	for i := range detections {
		sum += eval.IoU(targets[i], detections[i])
	}
	return sum / float32(len(detections)), nil
}

// Predict runs the full raw-to-raw path: collate external input, infer, and
// uncollate into the caller-facing representation.
//
// A nil pipeline selects the module's default; a non-nil pipeline overrides
// it for this call only.
func (m *Module) Predict(raw any, pipeline data.Pipeline) (any, error) {
	if pipeline == nil {
		pipeline = m.Pipeline
	}

	images, _, err := pipeline.Collate(raw)
	if err != nil {
		return nil, errors.Wrap(err, "collate")
	}
	detections, err := m.Infer(images)
	if err != nil {
		return nil, err
	}
	out, err := pipeline.Uncollate(detections)
	if err != nil {
		return nil, errors.Wrap(err, "uncollate")
	}
	return out, nil
}
