package onnx

import (
	"github.com/stereomatchingkiss/yolov5-rt-stack/common"
)

// rowStride is the per-candidate layout [x1, y1, x2, y2, score, class].
const rowStride = 6

// decodeBatch turns a flat [images x rows x 6] output buffer into one
// Detection per image: confidence filter, clamp to the image's resized
// extent, then greedy class-agnostic NMS over the score-ordered survivors.
func decodeBatch(data []float32, images, rows int, sizes []common.Size, confThr, nmsThr float32) []common.Detection {
	out := make([]common.Detection, images)
	for i := 0; i < images; i++ {
		plane := data[i*rows*rowStride : (i+1)*rows*rowStride]
		out[i] = decodeImage(plane, rows, sizes[i], confThr, nmsThr)
	}
	return out
}

func decodeImage(plane []float32, rows int, size common.Size, confThr, nmsThr float32) common.Detection {
	det := common.Detection{}
	for r := 0; r < rows; r++ {
		row := plane[r*rowStride : r*rowStride+rowStride]
		score := row[4]
		if score < confThr {
			continue
		}
		box := common.Box{X1: row[0], Y1: row[1], X2: row[2], Y2: row[3]}.
			Canon().Clamp(float32(size.Width), float32(size.Height))
		if box.Area() <= 0 {
			continue
		}
		det.Boxes = append(det.Boxes, box)
		det.Scores = append(det.Scores, score)
		det.Labels = append(det.Labels, int64(row[5]))
	}

	det.SortByScore()
	return suppress(det, nmsThr)
}

// suppress applies greedy NMS to a score-ordered detection.
func suppress(det common.Detection, thr float32) common.Detection {
	kept := common.Detection{}
	used := make([]bool, det.Len())
	for i := 0; i < det.Len(); i++ {
		if used[i] {
			continue
		}
		kept.Boxes = append(kept.Boxes, det.Boxes[i])
		kept.Scores = append(kept.Scores, det.Scores[i])
		kept.Labels = append(kept.Labels, det.Labels[i])
		for j := i + 1; j < det.Len(); j++ {
			if used[j] {
				continue
			}
			if det.Boxes[i].IoU(det.Boxes[j]) > thr {
				used[j] = true
			}
		}
	}
	return kept
}
