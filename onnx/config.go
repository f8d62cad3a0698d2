// Package onnx - ONNX Runtime-backed implementation of the detector
// boundary, for running exported detection models.
package onnx

import "github.com/pkg/errors"

const (
	// DefaultInputName is the input tensor name YOLO exports use.
	DefaultInputName = "images"
	// DefaultOutputName is the output tensor name YOLO exports use.
	DefaultOutputName = "output0"
	// DefaultConfidenceThreshold filters candidate boxes before NMS.
	DefaultConfidenceThreshold = 0.25
	// DefaultNMSThreshold is the IoU above which a lower-scored box is
	// suppressed.
	DefaultNMSThreshold = 0.45
)

// Config describes the model session to build.
type Config struct {
	// ModelPath is the ONNX model file.
	ModelPath string
	// LibraryPath optionally points at the onnxruntime shared library;
	// empty leaves the runtime's own lookup in place.
	LibraryPath string
	// InputName and OutputName identify the model's tensors; empty values
	// take the YOLO-export defaults.
	InputName  string
	OutputName string
	// ConfidenceThreshold and NMSThreshold control output decoding; zero
	// values take the package defaults.
	ConfidenceThreshold float32
	NMSThreshold        float32
	// IntraOpThreads caps intra-node parallelism; 0 keeps the runtime
	// default.
	IntraOpThreads int
}

func (c Config) withDefaults() Config {
	if c.InputName == "" {
		c.InputName = DefaultInputName
	}
	if c.OutputName == "" {
		c.OutputName = DefaultOutputName
	}
	if c.ConfidenceThreshold == 0 {
		c.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if c.NMSThreshold == 0 {
		c.NMSThreshold = DefaultNMSThreshold
	}
	return c
}

func (c Config) validate() error {
	if c.ModelPath == "" {
		return errors.New("model path is required")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return errors.Errorf("confidence threshold %f outside [0,1]", c.ConfidenceThreshold)
	}
	if c.NMSThreshold < 0 || c.NMSThreshold > 1 {
		return errors.Errorf("nms threshold %f outside [0,1]", c.NMSThreshold)
	}
	return nil
}
