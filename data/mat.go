package data

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"

	"github.com/stereomatchingkiss/yolov5-rt-stack/common"
)

// MatPipeline collates OpenCV frames, the shape video capture sources hand
// out, into CHW tensors.
//
// Mats are BGR; conversion to image.Image reorders to RGB before the tensor
// is built, so models trained on RGB input see the right channel order.
type MatPipeline struct{}

// Collate accepts gocv.Mat or []gocv.Mat. The caller keeps ownership of the
// Mats and closes them after the call.
func (MatPipeline) Collate(raw any) ([]*tensor.Dense, []common.Target, error) {
	var mats []gocv.Mat
	switch v := raw.(type) {
	case gocv.Mat:
		mats = []gocv.Mat{v}
	case []gocv.Mat:
		mats = v
	default:
		return nil, nil, errors.Errorf("unsupported input type %T", raw)
	}

	out := make([]*tensor.Dense, len(mats))
	for i, mat := range mats {
		if mat.Empty() {
			return nil, nil, errors.Errorf("empty mat at index %d", i)
		}
		img, err := mat.ToImage()
		if err != nil {
			return nil, nil, errors.Wrapf(err, "mat %d", i)
		}
		out[i] = ToTensor(img)
	}
	return out, nil, nil
}

// Uncollate matches ImagePipeline's caller-facing shape.
func (MatPipeline) Uncollate(detections []common.Detection) (any, error) {
	return uncollateResults(detections), nil
}
