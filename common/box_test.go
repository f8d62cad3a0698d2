package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBoxIoU validates the IoU calculation against hand-computed overlaps.
func TestBoxIoU(t *testing.T) {
	tests := []struct {
		name string
		a, b Box
		want float32
	}{
		{
			name: "identical boxes",
			a:    Box{0, 0, 100, 100},
			b:    Box{0, 0, 100, 100},
			want: 1.0,
		},
		{
			name: "quarter overlap",
			a:    Box{0, 0, 100, 100},
			b:    Box{50, 50, 150, 150},
			// intersection 50x50=2500, union 10000+10000-2500=17500
			want: 2500.0 / 17500.0,
		},
		{
			name: "disjoint boxes",
			a:    Box{0, 0, 10, 10},
			b:    Box{20, 20, 30, 30},
			want: 0.0,
		},
		{
			name: "touching edges",
			a:    Box{0, 0, 10, 10},
			b:    Box{10, 0, 20, 10},
			want: 0.0,
		},
		{
			name: "zero-area boxes",
			a:    Box{5, 5, 5, 5},
			b:    Box{5, 5, 5, 5},
			want: 0.0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.a.IoU(tc.b)
			assert.InDelta(t, tc.want, got, 1e-6)
			assert.GreaterOrEqual(t, got, float32(0.0), "IoU must never be negative")
			assert.LessOrEqual(t, got, float32(1.0), "IoU must never exceed 1")
		})
	}
}

// TestBoxClampPreservesValidity ensures clamping never inverts a box.
func TestBoxClampPreservesValidity(t *testing.T) {
	tests := []struct {
		name string
		box  Box
		want Box
	}{
		{"inside bounds", Box{10, 10, 50, 50}, Box{10, 10, 50, 50}},
		{"spilling right and bottom", Box{50, 50, 200, 300}, Box{50, 50, 100, 100}},
		{"negative origin", Box{-20, -10, 30, 40}, Box{0, 0, 30, 40}},
		{"fully outside", Box{200, 200, 300, 300}, Box{100, 100, 100, 100}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.box.Clamp(100, 100)
			assert.Equal(t, tc.want, got)
			assert.True(t, got.Valid(), "clamped box must remain well-formed")
		})
	}
}

func TestBoxCanon(t *testing.T) {
	b := Box{50, 60, 10, 20}.Canon()
	assert.Equal(t, Box{10, 20, 50, 60}, b)
	assert.True(t, b.Valid())
}

// TestDetectionSortByScore verifies parallel slices stay index-aligned
// through sorting.
func TestDetectionSortByScore(t *testing.T) {
	d := Detection{
		Boxes:  []Box{{0, 0, 1, 1}, {1, 1, 2, 2}, {2, 2, 3, 3}},
		Scores: []float32{0.3, 0.9, 0.6},
		Labels: []int64{1, 2, 3},
	}

	d.SortByScore()

	require.Equal(t, 3, d.Len())
	assert.Equal(t, []float32{0.9, 0.6, 0.3}, d.Scores)
	assert.Equal(t, []int64{2, 3, 1}, d.Labels)
	assert.Equal(t, Box{1, 1, 2, 2}, d.Boxes[0], "box must follow its score")
}

func TestLossMapSum(t *testing.T) {
	losses := LossMap{"cls": 0.5, "bbox": 1.25, "obj": 0.25}
	assert.InDelta(t, 2.0, losses.Sum(), 1e-6)
	assert.InDelta(t, 0.0, LossMap{}.Sum(), 1e-6)
}
