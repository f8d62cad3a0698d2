// Package data - Collate/uncollate seams between external input
// representations and the batch format the inference core expects.
//
// These two conversion points are the only place the core touches a
// caller's representation; no other package may assume a specific external
// shape.
package data

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/stereomatchingkiss/yolov5-rt-stack/common"
)

// Result is the caller-facing record for one predicted object, boxes in
// original-image coordinates.
type Result struct {
	Box   common.Box `json:"box"`
	Score float32    `json:"score"`
	Label int64      `json:"label"`
}

// Sample pairs pre-built image tensors with optional supervision, for
// callers that already run their own preprocessing.
type Sample struct {
	Images  []*tensor.Dense
	Targets []common.Target
}

// Pipeline converts arbitrary external records into the (images, targets)
// pair the core expects, and internal detections back into a caller-facing
// representation.
type Pipeline interface {
	// Collate normalizes raw input into CHW float32 image tensors plus
	// optional targets.
	Collate(raw any) ([]*tensor.Dense, []common.Target, error)
	// Uncollate denormalizes per-image detections into the caller-facing
	// shape; for the pipelines in this package that is [][]Result.
	Uncollate(detections []common.Detection) (any, error)
}

// ImagePipeline is the default pipeline: it accepts decoded images, encoded
// JPEG/PNG/GIF bytes or ready-made tensors, and emits [][]Result.
type ImagePipeline struct{}

// DefaultPipeline is the documented default-construction rule used when a
// caller supplies no pipeline of its own.
func DefaultPipeline() Pipeline { return ImagePipeline{} }

// Collate accepts image.Image, []image.Image, []byte, [][]byte,
// *tensor.Dense, []*tensor.Dense or a Sample.
func (ImagePipeline) Collate(raw any) ([]*tensor.Dense, []common.Target, error) {
	switch v := raw.(type) {
	case Sample:
		return v.Images, v.Targets, nil
	case *tensor.Dense:
		return []*tensor.Dense{v}, nil, nil
	case []*tensor.Dense:
		return v, nil, nil
	case image.Image:
		return []*tensor.Dense{ToTensor(v)}, nil, nil
	case []image.Image:
		out := make([]*tensor.Dense, len(v))
		for i, img := range v {
			out[i] = ToTensor(img)
		}
		return out, nil, nil
	case []byte:
		img, err := decodeImage(v)
		if err != nil {
			return nil, nil, err
		}
		return []*tensor.Dense{ToTensor(img)}, nil, nil
	case [][]byte:
		out := make([]*tensor.Dense, len(v))
		for i, buf := range v {
			img, err := decodeImage(buf)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "input %d", i)
			}
			out[i] = ToTensor(img)
		}
		return out, nil, nil
	default:
		return nil, nil, errors.Errorf("unsupported input type %T", raw)
	}
}

// Uncollate flattens detections into per-image Result lists.
func (ImagePipeline) Uncollate(detections []common.Detection) (any, error) {
	return uncollateResults(detections), nil
}

func uncollateResults(detections []common.Detection) [][]Result {
	out := make([][]Result, len(detections))
	for i, det := range detections {
		results := make([]Result, det.Len())
		for j := range det.Boxes {
			results[j] = Result{
				Box:   det.Boxes[j],
				Score: det.Scores[j],
				Label: det.Labels[j],
			}
		}
		out[i] = results
	}
	return out
}

func decodeImage(buf []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}
	return img, nil
}

// ToTensor converts a decoded image into a 3xHxW float32 tensor with RGB
// values scaled to [0, 1].
func ToTensor(img image.Image) *tensor.Dense {
	bounds := img.Bounds()
	h, w := bounds.Dy(), bounds.Dx()

	data := make([]float32, 3*h*w)
	plane := h * w
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			idx := y*w + x
			data[idx] = float32(r>>8) / 255.0
			data[plane+idx] = float32(g>>8) / 255.0
			data[2*plane+idx] = float32(b>>8) / 255.0
		}
	}
	return tensor.New(tensor.WithShape(3, h, w), tensor.WithBacking(data))
}
