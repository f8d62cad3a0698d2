package data

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/stereomatchingkiss/yolov5-rt-stack/common"
)

// letterboxFill is the neutral gray conventionally used to pad detector
// inputs.
var letterboxFill = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// LetterboxPipeline collates 8-bit images into a fixed Width x Height
// tensor, preserving aspect ratio and centering the image on gray padding.
//
// It serves callers feeding fixed-shape export models that perform their
// own geometry handling; the adaptive transform stage still records the
// letterboxed extent as the image size, so no scale or pad state leaks out
// of Collate.
type LetterboxPipeline struct {
	Width  int
	Height int
}

// Collate accepts image.Image, []image.Image, []byte or [][]byte.
func (p LetterboxPipeline) Collate(raw any) ([]*tensor.Dense, []common.Target, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return nil, nil, errors.Errorf("invalid letterbox extent %dx%d", p.Width, p.Height)
	}

	var imgs []image.Image
	switch v := raw.(type) {
	case image.Image:
		imgs = []image.Image{v}
	case []image.Image:
		imgs = v
	case []byte:
		img, err := decodeImage(v)
		if err != nil {
			return nil, nil, err
		}
		imgs = []image.Image{img}
	case [][]byte:
		for i, buf := range v {
			img, err := decodeImage(buf)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "input %d", i)
			}
			imgs = append(imgs, img)
		}
	default:
		return nil, nil, errors.Errorf("unsupported input type %T", raw)
	}

	out := make([]*tensor.Dense, len(imgs))
	for i, img := range imgs {
		out[i] = ToTensor(p.letterbox(img))
	}
	return out, nil, nil
}

// Uncollate matches ImagePipeline's caller-facing shape.
func (LetterboxPipeline) Uncollate(detections []common.Detection) (any, error) {
	return uncollateResults(detections), nil
}

// letterbox scales the image to fit inside the target extent and centers it
// on the fill color.
func (p LetterboxPipeline) letterbox(img image.Image) image.Image {
	srcW := img.Bounds().Dx()
	srcH := img.Bounds().Dy()

	scale := float64(p.Width) / float64(srcW)
	if s := float64(p.Height) / float64(srcH); s < scale {
		scale = s
	}
	newW := int(float64(srcW) * scale)
	newH := int(float64(srcH) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	scaled := resize.Resize(uint(newW), uint(newH), img, resize.Bilinear)

	canvas := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(letterboxFill), image.Point{}, draw.Src)

	offset := image.Pt((p.Width-newW)/2, (p.Height-newH)/2)
	draw.Draw(canvas, image.Rectangle{Min: offset, Max: offset.Add(image.Pt(newW, newH))},
		scaled, image.Point{}, draw.Src)
	return canvas
}
