// Package common - Shared detection data model used across the pipeline.
package common

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Box is an axis-aligned bounding box in (x1, y1, x2, y2) corner form.
//
// Coordinates are float32 so that per-axis rescaling between resized and
// original image space never truncates to pixel grid midway through the
// pipeline. A well-formed box satisfies X1 <= X2 and Y1 <= Y2.
type Box struct {
	X1, Y1, X2, Y2 float32
}

// String formats the box coordinates for display.
func (b Box) String() string {
	return fmt.Sprintf("(%.2f, %.2f)-(%.2f, %.2f)", b.X1, b.Y1, b.X2, b.Y2)
}

// Valid reports whether the box is well-formed (x1 <= x2 and y1 <= y2).
func (b Box) Valid() bool {
	return b.X1 <= b.X2 && b.Y1 <= b.Y2
}

// Canon returns the box with its corners swapped into well-formed order.
func (b Box) Canon() Box {
	if b.X1 > b.X2 {
		b.X1, b.X2 = b.X2, b.X1
	}
	if b.Y1 > b.Y2 {
		b.Y1, b.Y2 = b.Y2, b.Y1
	}
	return b
}

// Area returns the area of the box, or 0 for a degenerate box.
func (b Box) Area() float32 {
	w := b.X2 - b.X1
	h := b.Y2 - b.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Clamp restricts the box to the rectangle (0, 0)-(width, height).
//
// Clamping preserves well-formedness: a box fully outside the bounds
// collapses to a zero-area box on the nearest edge rather than inverting.
func (b Box) Clamp(width, height float32) Box {
	return Box{
		X1: math32.Max(0, math32.Min(b.X1, width)),
		Y1: math32.Max(0, math32.Min(b.Y1, height)),
		X2: math32.Max(0, math32.Min(b.X2, width)),
		Y2: math32.Max(0, math32.Min(b.Y2, height)),
	}
}

// Intersection returns the overlapping area between two boxes.
//
// Returns 0 when the boxes do not overlap.
func (b Box) Intersection(o Box) float32 {
	ix1 := math32.Max(b.X1, o.X1)
	iy1 := math32.Max(b.Y1, o.Y1)
	ix2 := math32.Min(b.X2, o.X2)
	iy2 := math32.Min(b.Y2, o.Y2)

	iw := ix2 - ix1
	ih := iy2 - iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	return iw * ih
}

// IoU returns the Intersection over Union between two boxes.
//
// The result is in [0, 1]: 1.0 for identical boxes, 0.0 for disjoint ones.
// Union is computed by inclusion-exclusion so the overlap is not counted
// twice. A zero-area union yields 0.
func (b Box) IoU(o Box) float32 {
	inter := b.Intersection(o)
	if inter <= 0 {
		return 0
	}
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
