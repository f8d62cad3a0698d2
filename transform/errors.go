// Package transform - Batching and coordinate-space bookkeeping for the
// detection pipeline.
//
// The transform resizes variably-sized images into one fixed-size batch
// tensor, records per-image geometry, and maps detections produced on the
// resized batch back into each image's original coordinate space.
package transform

import "github.com/pkg/errors"

var (
	// ErrInvalidImage reports a malformed input image: not 3-dimensional,
	// a non-positive dimension, or a dtype other than float32.
	ErrInvalidImage = errors.New("invalid input image")

	// ErrShapeMismatch reports misaligned sequence lengths between
	// detections, sizes or targets handed to the transform.
	ErrShapeMismatch = errors.New("sequence length mismatch")
)
