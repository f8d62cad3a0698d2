package eval

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stereomatchingkiss/yolov5-rt-stack/common"
	"github.com/stereomatchingkiss/yolov5-rt-stack/transform"
)

func perfectPair() ([]common.Detection, []common.Target) {
	dets := []common.Detection{{
		Boxes:  []common.Box{{X1: 10, Y1: 10, X2: 100, Y2: 100}, {X1: 200, Y1: 200, X2: 300, Y2: 280}},
		Scores: []float32{0.95, 0.88},
		Labels: []int64{1, 2},
	}}
	targets := []common.Target{{
		Boxes:  []common.Box{{X1: 10, Y1: 10, X2: 100, Y2: 100}, {X1: 200, Y1: 200, X2: 300, Y2: 280}},
		Labels: []int64{1, 2},
	}}
	return dets, targets
}

func TestAccumulateRecord(t *testing.T) {
	e := NewDatasetEvaluator()
	dets, targets := perfectPair()

	rec, err := e.Accumulate(dets, targets)
	require.NoError(t, err)
	assert.Equal(t, Record{Images: 1, Predictions: 2, GroundTruths: 2}, rec)
}

func TestAccumulateShapeMismatch(t *testing.T) {
	e := NewDatasetEvaluator()
	_, err := e.Accumulate(make([]common.Detection, 2), make([]common.Target, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, transform.ErrShapeMismatch))
}

// TestFinalizePerfectDetections expects mAP 1.0 when every prediction
// exactly matches its ground truth.
func TestFinalizePerfectDetections(t *testing.T) {
	e := NewDatasetEvaluator()
	dets, targets := perfectPair()
	_, err := e.Accumulate(dets, targets)
	require.NoError(t, err)

	report, err := e.Finalize()
	require.NoError(t, err)

	assert.InDelta(t, 1.0, report.MeanAP, 1e-9)
	assert.InDelta(t, 1.0, report.AP50, 1e-9)
	assert.InDelta(t, 1.0, report.AP75, 1e-9)
	assert.Equal(t, 1, report.Images)
	require.Len(t, report.PerThreshold, 10)
	for thr, ap := range report.PerThreshold {
		assert.InDelta(t, 1.0, ap, 1e-9, "threshold %.2f", thr)
	}
}

// TestFinalizeMissedGroundTruth checks a missed box halves recall: one of
// two ground truths matched perfectly gives AP 0.5 at every threshold.
func TestFinalizeMissedGroundTruth(t *testing.T) {
	e := NewDatasetEvaluator()

	dets := []common.Detection{{
		Boxes:  []common.Box{{X1: 10, Y1: 10, X2: 100, Y2: 100}},
		Scores: []float32{0.9},
		Labels: []int64{1},
	}}
	targets := []common.Target{{
		Boxes:  []common.Box{{X1: 10, Y1: 10, X2: 100, Y2: 100}, {X1: 400, Y1: 400, X2: 500, Y2: 500}},
		Labels: []int64{1, 1},
	}}
	_, err := e.Accumulate(dets, targets)
	require.NoError(t, err)

	report, err := e.Finalize()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, report.MeanAP, 1e-9)
}

// TestFinalizeFalsePositiveBelowTruePositive verifies ranking matters: a
// lower-scored false positive after a true positive keeps AP at the
// single-point precision.
func TestFinalizeFalsePositive(t *testing.T) {
	e := NewDatasetEvaluator()

	dets := []common.Detection{{
		Boxes:  []common.Box{{X1: 10, Y1: 10, X2: 100, Y2: 100}, {X1: 600, Y1: 600, X2: 700, Y2: 700}},
		Scores: []float32{0.9, 0.5},
		Labels: []int64{1, 1},
	}}
	targets := []common.Target{{
		Boxes:  []common.Box{{X1: 10, Y1: 10, X2: 100, Y2: 100}},
		Labels: []int64{1},
	}}
	_, err := e.Accumulate(dets, targets)
	require.NoError(t, err)

	report, err := e.Finalize()
	require.NoError(t, err)
	// TP at rank 1 reaches full recall with precision 1; the trailing FP
	// adds no recall and therefore no area.
	assert.InDelta(t, 1.0, report.MeanAP, 1e-9)
}

func TestFinalizeNoGroundTruth(t *testing.T) {
	e := NewDatasetEvaluator()
	_, err := e.Accumulate(
		[]common.Detection{{Boxes: []common.Box{{X1: 0, Y1: 0, X2: 1, Y2: 1}}, Scores: []float32{1}, Labels: []int64{1}}},
		[]common.Target{{}},
	)
	require.NoError(t, err)

	report, err := e.Finalize()
	require.NoError(t, err)
	assert.Zero(t, report.MeanAP)
}

// TestEvaluatorLifecycle walks the accumulate -> finalize -> reset state
// machine.
func TestEvaluatorLifecycle(t *testing.T) {
	e := NewDatasetEvaluator()
	dets, targets := perfectPair()

	_, err := e.Accumulate(dets, targets)
	require.NoError(t, err)

	first, err := e.Finalize()
	require.NoError(t, err)

	// Accumulate after finalize fails until reset.
	_, err = e.Accumulate(dets, targets)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEvaluatorFinalized))

	// Finalize is idempotent.
	second, err := e.Finalize()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Reset re-arms accumulation from a clean slate.
	e.Reset()
	rec, err := e.Accumulate(dets, targets)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Images)

	report, err := e.Finalize()
	require.NoError(t, err)
	assert.Equal(t, 1, report.Images)
}

// TestConcurrentAccumulate exercises parallel workers feeding one
// evaluator.
func TestConcurrentAccumulate(t *testing.T) {
	e := NewDatasetEvaluator()
	dets, targets := perfectPair()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, err := e.Accumulate(dets, targets)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	report, err := e.Finalize()
	require.NoError(t, err)
	assert.Equal(t, 200, report.Images)
	assert.InDelta(t, 1.0, report.MeanAP, 1e-9)
}
