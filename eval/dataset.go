package eval

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/stereomatchingkiss/yolov5-rt-stack/common"
	"github.com/stereomatchingkiss/yolov5-rt-stack/transform"
)

// ErrEvaluatorFinalized reports an Accumulate call on an evaluator that has
// already been finalized and not reset since.
var ErrEvaluatorFinalized = errors.New("evaluator already finalized")

// apThresholds are the IoU thresholds the summary averages over,
// 0.50:0.05:0.95.
var apThresholds = []float64{0.50, 0.55, 0.60, 0.65, 0.70, 0.75, 0.80, 0.85, 0.90, 0.95}

// Record is the lightweight per-call summary Accumulate returns for
// logging.
type Record struct {
	// Images is the number of image pairs appended by this call.
	Images int
	// Predictions is the total predicted boxes appended by this call.
	Predictions int
	// GroundTruths is the total ground-truth boxes appended by this call.
	GroundTruths int
}

// Report is the dataset-level accuracy summary.
type Report struct {
	// MeanAP is the average precision averaged over classes and all IoU
	// thresholds in 0.50:0.05:0.95.
	MeanAP float64
	// AP50 and AP75 are the class-averaged precisions at the 0.50 and
	// 0.75 thresholds.
	AP50 float64
	AP75 float64
	// PerThreshold maps each IoU threshold to its class-averaged AP.
	PerThreshold map[float64]float64
	// Images is the number of accumulated image pairs.
	Images int
}

// DatasetEvaluator accumulates aligned prediction/ground-truth pairs across
// many batches and computes a mean-average-precision summary on demand.
//
// Accumulate is safe to call concurrently from multiple workers. Finalize
// and Reset serialize behind the same lock; callers must have joined their
// accumulation workers before finalizing. State belongs to one evaluation
// run: Reset before reusing the evaluator for another run.
type DatasetEvaluator struct {
	mu        sync.Mutex
	preds     []common.Detection
	targets   []common.Target
	finalized bool
	report    *Report
}

// NewDatasetEvaluator returns an empty evaluator ready to accumulate.
func NewDatasetEvaluator() *DatasetEvaluator {
	return &DatasetEvaluator{}
}

// Accumulate appends index-aligned prediction/ground-truth pairs.
//
// Returns ErrEvaluatorFinalized once Finalize has been called without an
// intervening Reset, and transform.ErrShapeMismatch when the two sequences
// differ in length. The returned Record summarizes only this call.
func (e *DatasetEvaluator) Accumulate(detections []common.Detection, targets []common.Target) (Record, error) {
	if len(detections) != len(targets) {
		return Record{}, errors.Wrapf(transform.ErrShapeMismatch,
			"%d detections but %d targets", len(detections), len(targets))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finalized {
		return Record{}, errors.Wrap(ErrEvaluatorFinalized, "accumulate rejected")
	}

	rec := Record{Images: len(detections)}
	for i := range detections {
		rec.Predictions += detections[i].Len()
		rec.GroundTruths += targets[i].Len()
	}
	e.preds = append(e.preds, detections...)
	e.targets = append(e.targets, targets...)
	return rec, nil
}

// Finalize computes the summary over everything accumulated since the last
// Reset and seals the evaluator against further accumulation.
//
// Finalize is idempotent: repeated calls return the same cached Report.
func (e *DatasetEvaluator) Finalize() (Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.report == nil {
		r := computeReport(e.preds, e.targets)
		e.report = &r
	}
	e.finalized = true
	return *e.report, nil
}

// Reset clears all accumulated state and re-arms accumulation.
func (e *DatasetEvaluator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.preds = nil
	e.targets = nil
	e.finalized = false
	e.report = nil
}

// scored is one prediction flattened out of its image, tracked against the
// per-image ground truth it may match.
type scored struct {
	image int
	score float32
	box   common.Box
}

func computeReport(preds []common.Detection, targets []common.Target) Report {
	report := Report{
		PerThreshold: make(map[float64]float64, len(apThresholds)),
		Images:       len(preds),
	}

	classes := make(map[int64]bool)
	for _, t := range targets {
		for _, c := range t.Labels {
			classes[c] = true
		}
	}
	if len(classes) == 0 {
		for _, thr := range apThresholds {
			report.PerThreshold[thr] = 0
		}
		return report
	}

	perThreshold := make([]float64, 0, len(apThresholds))
	for _, thr := range apThresholds {
		aps := make([]float64, 0, len(classes))
		for class := range classes {
			aps = append(aps, classAP(preds, targets, class, float32(thr)))
		}
		ap := stat.Mean(aps, nil)
		report.PerThreshold[thr] = ap
		perThreshold = append(perThreshold, ap)
	}

	report.MeanAP = stat.Mean(perThreshold, nil)
	report.AP50 = report.PerThreshold[0.50]
	report.AP75 = report.PerThreshold[0.75]
	return report
}

// classAP computes average precision for one class at one IoU threshold
// using greedy score-ordered matching and all-point interpolation of the
// precision-recall curve.
func classAP(preds []common.Detection, targets []common.Target, class int64, thr float32) float64 {
	var candidates []scored
	totalGT := 0
	gtBoxes := make([][]common.Box, len(targets))

	for i := range targets {
		for j, label := range targets[i].Labels {
			if label == class {
				gtBoxes[i] = append(gtBoxes[i], targets[i].Boxes[j])
			}
		}
		totalGT += len(gtBoxes[i])
	}
	for i := range preds {
		for j, label := range preds[i].Labels {
			if label == class {
				candidates = append(candidates, scored{
					image: i,
					score: preds[i].Scores[j],
					box:   preds[i].Boxes[j],
				})
			}
		}
	}
	if totalGT == 0 || len(candidates) == 0 {
		return 0
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	claimed := make([]map[int]bool, len(targets))
	tp := make([]float64, len(candidates))
	for k, cand := range candidates {
		best := -1
		var bestIoU float32
		for g, gt := range gtBoxes[cand.image] {
			if claimed[cand.image] != nil && claimed[cand.image][g] {
				continue
			}
			if iou := cand.box.IoU(gt); iou >= thr && iou > bestIoU {
				best, bestIoU = g, iou
			}
		}
		if best >= 0 {
			if claimed[cand.image] == nil {
				claimed[cand.image] = make(map[int]bool)
			}
			claimed[cand.image][best] = true
			tp[k] = 1
		}
	}

	// Cumulative precision/recall in score order.
	precision := make([]float64, len(tp))
	recall := make([]float64, len(tp))
	var cum float64
	for k := range tp {
		cum += tp[k]
		precision[k] = cum / float64(k+1)
		recall[k] = cum / float64(totalGT)
	}

	// Monotone precision envelope from the right, then integrate over the
	// recall steps.
	for k := len(precision) - 2; k >= 0; k-- {
		if precision[k+1] > precision[k] {
			precision[k] = precision[k+1]
		}
	}
	var ap, prevRecall float64
	for k := range recall {
		ap += (recall[k] - prevRecall) * precision[k]
		prevRecall = recall[k]
	}
	return ap
}
