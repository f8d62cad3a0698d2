// Package inference - Mode dispatch between the training and detection
// paths of an object detector, with coordinate bookkeeping delegated to the
// transform stage.
package inference

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/stereomatchingkiss/yolov5-rt-stack/common"
)

// ErrMode reports a mode violation at the dispatch boundary: training was
// requested without supervision. It is a programming error, not a
// recoverable condition.
var ErrMode = errors.New("training mode requires targets")

// Detector is the opaque network boundary. The dual-mode forward of the
// underlying model is split into two statically-typed operations so the
// dispatcher never inspects a dynamically-shaped return value.
//
// Both operations receive the batched NCHW tensor and the per-image resized
// extents within it. Detect returns per-image predictions in resized
// coordinates, index-aligned with the batch; ComputeLoss returns the named
// loss terms.
type Detector interface {
	ComputeLoss(batch *tensor.Dense, sizes []common.Size, targets []common.Target) (common.LossMap, error)
	Detect(batch *tensor.Dense, sizes []common.Size) ([]common.Detection, error)
}

// Config is the geometry and class configuration the pipeline consumes.
type Config struct {
	// MinSize and MaxSize bound the transform's resizing.
	MinSize int
	MaxSize int
	// NumClasses is passed through to the detector; the pipeline only
	// requires it to be positive.
	NumClasses int
}

// Validate rejects non-positive bounds and an inverted size range.
func (c Config) Validate() error {
	if c.MinSize <= 0 || c.MaxSize <= 0 {
		return errors.Errorf("sizes must be positive, got min=%d max=%d", c.MinSize, c.MaxSize)
	}
	if c.MinSize > c.MaxSize {
		return errors.Errorf("min size %d exceeds max size %d", c.MinSize, c.MaxSize)
	}
	if c.NumClasses <= 0 {
		return errors.Errorf("num classes must be positive, got %d", c.NumClasses)
	}
	return nil
}
