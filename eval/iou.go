// Package eval - Accuracy signals for the detection pipeline: a cheap
// per-image IoU score for validation steps and a stateful dataset-level
// average-precision evaluator.
package eval

import (
	"github.com/stereomatchingkiss/yolov5-rt-stack/common"
)

// IoU returns the mean best-match Intersection-over-Union between the
// predictions and the ground truth of one image.
//
// Predictions are considered in descending score order and each ground-truth
// box greedily claims the unclaimed prediction it overlaps most; a ground
// truth with no overlapping prediction contributes 0. The result is in
// [0, 1] and is exactly 0 when the target has no boxes.
//
// This is a per-step validation signal, not the dataset-level metric; see
// DatasetEvaluator for the latter.
func IoU(target common.Target, det common.Detection) float32 {
	if target.Len() == 0 {
		return 0
	}

	pred := common.Detection{
		Boxes:  append([]common.Box(nil), det.Boxes...),
		Scores: append([]float32(nil), det.Scores...),
		Labels: append([]int64(nil), det.Labels...),
	}
	pred.SortByScore()

	claimed := make([]bool, pred.Len())
	var sum float32
	for _, gt := range target.Boxes {
		best := -1
		var bestIoU float32
		for i, pb := range pred.Boxes {
			if claimed[i] {
				continue
			}
			if iou := gt.IoU(pb); iou > bestIoU {
				best, bestIoU = i, iou
			}
		}
		if best >= 0 {
			claimed[best] = true
			sum += bestIoU
		}
	}
	return sum / float32(target.Len())
}
