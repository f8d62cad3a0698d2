package common

import "sort"

// Size is an image extent as an ordered (height, width) pair.
//
// Every image carries exactly one original Size (as received) and, once
// transformed, exactly one resized Size (as fed to the detector). Both are
// retained for the lifetime of a single forward pass so detections can be
// mapped back into original coordinates.
type Size struct {
	Height int
	Width  int
}

// Target holds the ground truth for one image: boxes in original-image
// coordinates and class labels aligned 1:1 with the boxes.
type Target struct {
	Boxes  []Box
	Labels []int64
}

// Len returns the number of ground-truth boxes.
func (t Target) Len() int { return len(t.Boxes) }

// Detection holds the predictions for one image as parallel, index-aligned
// slices: Boxes[i], Scores[i] and Labels[i] describe the same object.
//
// Boxes are in resized coordinates immediately after the detector and must
// be rescaled through the transform's postprocess step before reaching a
// caller.
type Detection struct {
	Boxes  []Box
	Scores []float32
	Labels []int64
}

// Len returns the number of predicted boxes.
func (d Detection) Len() int { return len(d.Boxes) }

// SortByScore orders the detection's entries by descending score, keeping
// the three slices index-aligned.
func (d Detection) SortByScore() {
	sort.Sort(byScore{d})
}

type byScore struct{ Detection }

func (s byScore) Len() int           { return len(s.Scores) }
func (s byScore) Less(i, j int) bool { return s.Scores[i] > s.Scores[j] }
func (s byScore) Swap(i, j int) {
	s.Boxes[i], s.Boxes[j] = s.Boxes[j], s.Boxes[i]
	s.Scores[i], s.Scores[j] = s.Scores[j], s.Scores[i]
	s.Labels[i], s.Labels[j] = s.Labels[j], s.Labels[i]
}

// LossMap maps a loss-term name to its scalar value. It is produced only by
// the training path and never coexists with detections for the same call.
type LossMap map[string]float32

// Sum reduces the loss terms to the single scalar an optimizer steps on.
func (m LossMap) Sum() float32 {
	var total float32
	for _, v := range m {
		total += v
	}
	return total
}
