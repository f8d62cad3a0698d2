package transform

import (
	"github.com/chewxy/math32"
	"gorgonia.org/tensor"
)

// bilinearResize rescales a CHW float32 tensor to (height, width) using
// bilinear interpolation with half-pixel center alignment.
//
// Sample positions follow src = (dst + 0.5) * scale - 0.5, clamped to the
// source extent, which keeps a same-size resize bit-exact and avoids edge
// drift on up- and downscaling. The channel count is arbitrary.
func bilinearResize(src *tensor.Dense, height, width int) *tensor.Dense {
	shape := src.Shape()
	channels, srcH, srcW := shape[0], shape[1], shape[2]

	if srcH == height && srcW == width {
		return src
	}

	in := src.Data().([]float32)
	out := make([]float32, channels*height*width)

	scaleY := float32(srcH) / float32(height)
	scaleX := float32(srcW) / float32(width)

	// Horizontal sample positions and weights are identical for every row
	// and channel, so compute them once.
	x0s := make([]int, width)
	x1s := make([]int, width)
	xws := make([]float32, width)
	for x := 0; x < width; x++ {
		sx := math32.Max((float32(x)+0.5)*scaleX-0.5, 0)
		x0 := int(sx)
		if x0 > srcW-1 {
			x0 = srcW - 1
		}
		x1 := x0 + 1
		if x1 > srcW-1 {
			x1 = srcW - 1
		}
		x0s[x], x1s[x], xws[x] = x0, x1, sx-float32(x0)
	}

	for c := 0; c < channels; c++ {
		srcPlane := in[c*srcH*srcW : (c+1)*srcH*srcW]
		dstPlane := out[c*height*width : (c+1)*height*width]
		for y := 0; y < height; y++ {
			sy := math32.Max((float32(y)+0.5)*scaleY-0.5, 0)
			y0 := int(sy)
			if y0 > srcH-1 {
				y0 = srcH - 1
			}
			y1 := y0 + 1
			if y1 > srcH-1 {
				y1 = srcH - 1
			}
			wy := sy - float32(y0)

			row0 := srcPlane[y0*srcW : y0*srcW+srcW]
			row1 := srcPlane[y1*srcW : y1*srcW+srcW]
			dstRow := dstPlane[y*width : y*width+width]
			for x := 0; x < width; x++ {
				wx := xws[x]
				top := row0[x0s[x]]*(1-wx) + row0[x1s[x]]*wx
				bottom := row1[x0s[x]]*(1-wx) + row1[x1s[x]]*wx
				dstRow[x] = top*(1-wy) + bottom*wy
			}
		}
	}

	return tensor.New(tensor.WithShape(channels, height, width), tensor.WithBacking(out))
}
