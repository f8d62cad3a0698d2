package transform

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/stereomatchingkiss/yolov5-rt-stack/common"
)

// DefaultSizeDivisible pads batch extents up to a multiple of the detector's
// coarsest feature stride.
const DefaultSizeDivisible = 32

// Batch is one fixed-size NCHW tensor holding all transformed images,
// together with the per-image geometry recorded while building it.
//
// A Batch and its size lists live for a single forward call; they are not
// reused across calls.
type Batch struct {
	// Tensor has shape [N, C, maxH, maxW] with each image zero-padded at
	// the bottom and right.
	Tensor *tensor.Dense
	// ImageSizes holds each image's extent after resizing, before padding.
	ImageSizes []common.Size
	// OriginalSizes holds each image's extent as originally received.
	OriginalSizes []common.Size
}

// Len returns the number of images in the batch.
func (b *Batch) Len() int { return len(b.ImageSizes) }

// Transform normalizes a list of variably-sized images into a single batch
// tensor and rescales detections produced on that batch back into each
// image's original coordinate space.
type Transform struct {
	// MinSize is the lower bound the smaller image side is scaled up to.
	MinSize int
	// MaxSize is the hard upper bound on the larger image side. When both
	// bounds cannot hold at once, MaxSize wins and the smaller side lands
	// below MinSize.
	MaxSize int
	// SizeDivisible pads the common batch extent up to this multiple.
	SizeDivisible int
}

// New returns a Transform for the given geometry bounds with the default
// padding granularity.
func New(minSize, maxSize int) *Transform {
	return &Transform{
		MinSize:       minSize,
		MaxSize:       maxSize,
		SizeDivisible: DefaultSizeDivisible,
	}
}

// Prepare resizes each image so its smaller side reaches MinSize without the
// larger side exceeding MaxSize (aspect ratio preserved), pads the resized
// images to a common extent and stacks them into one NCHW batch tensor.
//
// Original sizes are recorded before any resizing. Targets, when supplied,
// pass through untouched: their boxes stay in original coordinates and are
// only consumed by the detector's loss path, which receives the recorded
// geometry alongside the batch.
//
// Returns ErrInvalidImage for a non-3D, non-positive or non-float32 image,
// and ErrShapeMismatch when targets are supplied with a different length
// than images.
func (t *Transform) Prepare(images []*tensor.Dense, targets []common.Target) (*Batch, []common.Target, error) {
	if len(images) == 0 {
		return nil, nil, errors.Wrap(ErrInvalidImage, "empty image list")
	}
	if targets != nil && len(targets) != len(images) {
		return nil, nil, errors.Wrapf(ErrShapeMismatch,
			"%d images but %d targets", len(images), len(targets))
	}

	resized := make([]*tensor.Dense, len(images))
	originalSizes := make([]common.Size, len(images))
	imageSizes := make([]common.Size, len(images))

	channels := 0
	maxH, maxW := 0, 0
	for i, img := range images {
		if err := validateImage(img, i); err != nil {
			return nil, nil, err
		}
		shape := img.Shape()
		if i == 0 {
			channels = shape[0]
		} else if shape[0] != channels {
			return nil, nil, errors.Wrapf(ErrInvalidImage,
				"image %d has %d channels, batch has %d", i, shape[0], channels)
		}

		h, w := shape[1], shape[2]
		originalSizes[i] = common.Size{Height: h, Width: w}

		newH, newW := t.targetSize(h, w)
		resized[i] = bilinearResize(img, newH, newW)
		imageSizes[i] = common.Size{Height: newH, Width: newW}

		if newH > maxH {
			maxH = newH
		}
		if newW > maxW {
			maxW = newW
		}
	}

	maxH = roundUp(maxH, t.sizeDivisible())
	maxW = roundUp(maxW, t.sizeDivisible())

	backing := make([]float32, len(images)*channels*maxH*maxW)
	for i, img := range resized {
		data := img.Data().([]float32)
		h, w := imageSizes[i].Height, imageSizes[i].Width
		base := i * channels * maxH * maxW
		for c := 0; c < channels; c++ {
			for y := 0; y < h; y++ {
				dst := base + c*maxH*maxW + y*maxW
				src := c*h*w + y*w
				copy(backing[dst:dst+w], data[src:src+w])
			}
		}
	}

	batch := &Batch{
		Tensor:        tensor.New(tensor.WithShape(len(images), channels, maxH, maxW), tensor.WithBacking(backing)),
		ImageSizes:    imageSizes,
		OriginalSizes: originalSizes,
	}
	return batch, targets, nil
}

// Postprocess maps detector output from resized coordinates back into each
// image's original coordinate space.
//
// The three sequences must be index-aligned: detections[i] was produced on
// an image of extent resized[i] that was originally original[i]. Height and
// width are rescaled by independent ratios since padding can make the two
// axes differ; boxes are then clamped to the original extent so a box
// touching the padded border never lands outside the image.
//
// Returns ErrShapeMismatch when the sequence lengths differ. N detections
// in yield exactly N detections out, index-correspondent with the input.
func (t *Transform) Postprocess(detections []common.Detection, resized, original []common.Size) ([]common.Detection, error) {
	if len(detections) != len(resized) || len(detections) != len(original) {
		return nil, errors.Wrapf(ErrShapeMismatch,
			"%d detections, %d resized sizes, %d original sizes",
			len(detections), len(resized), len(original))
	}

	out := make([]common.Detection, len(detections))
	for i, det := range detections {
		ratioH := float32(original[i].Height) / float32(resized[i].Height)
		ratioW := float32(original[i].Width) / float32(resized[i].Width)

		boxes := make([]common.Box, len(det.Boxes))
		for j, b := range det.Boxes {
			scaled := common.Box{
				X1: b.X1 * ratioW,
				Y1: b.Y1 * ratioH,
				X2: b.X2 * ratioW,
				Y2: b.Y2 * ratioH,
			}
			boxes[j] = scaled.Canon().Clamp(float32(original[i].Width), float32(original[i].Height))
		}

		out[i] = common.Detection{
			Boxes:  boxes,
			Scores: append([]float32(nil), det.Scores...),
			Labels: append([]int64(nil), det.Labels...),
		}
	}
	return out, nil
}

// targetSize computes the resized extent for one image. The scale is 1 when
// the image already satisfies both bounds, otherwise the smaller side is
// scaled to MinSize, capped so the larger side never exceeds MaxSize.
func (t *Transform) targetSize(h, w int) (int, int) {
	minSide := math32.Min(float32(h), float32(w))
	maxSide := math32.Max(float32(h), float32(w))

	scale := float32(1)
	if minSide < float32(t.MinSize) {
		scale = float32(t.MinSize) / minSide
	}
	if maxSide*scale > float32(t.MaxSize) {
		scale = float32(t.MaxSize) / maxSide
	}

	if scale == 1 {
		return h, w
	}
	newH := int(math32.Round(float32(h) * scale))
	newW := int(math32.Round(float32(w) * scale))
	if newH < 1 {
		newH = 1
	}
	if newW < 1 {
		newW = 1
	}
	return newH, newW
}

func (t *Transform) sizeDivisible() int {
	if t.SizeDivisible <= 0 {
		return 1
	}
	return t.SizeDivisible
}

func validateImage(img *tensor.Dense, index int) error {
	if img == nil {
		return errors.Wrapf(ErrInvalidImage, "image %d is nil", index)
	}
	if img.Dims() != 3 {
		return errors.Wrapf(ErrInvalidImage,
			"image %d has %d dimensions, want 3 (CHW)", index, img.Dims())
	}
	shape := img.Shape()
	for d, v := range shape {
		if v <= 0 {
			return errors.Wrapf(ErrInvalidImage,
				"image %d has non-positive dimension %d at axis %d", index, v, d)
		}
	}
	if img.Dtype() != tensor.Float32 {
		return errors.Wrapf(ErrInvalidImage,
			"image %d has dtype %v, want float32", index, img.Dtype())
	}
	return nil
}

func roundUp(v, multiple int) int {
	if multiple <= 1 {
		return v
	}
	return (v + multiple - 1) / multiple * multiple
}
