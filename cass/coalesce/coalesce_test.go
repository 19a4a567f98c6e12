package coalesce

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestCoalesceScenarioS5 implements spec.md's scenario S5: the pixel
// list {(5,5,100),(5,6,90),(6,5,80),(6,6,70)} with no raw-frame zeros
// around them and MIP threshold 1000 coalesces to one hit at
// x=5.44..., y=5.47..., z=340, nPixels=4.
func TestCoalesceScenarioS5(t *testing.T) {
	pixels := []Pixel{
		{X: 5, Y: 5, Z: 100},
		{X: 5, Y: 6, Z: 90},
		{X: 6, Y: 5, Z: 80},
		{X: 6, Y: 6, Z: 70},
	}
	const cols, rows = 16, 16
	frame := make([]float32, cols*rows)
	for i := range frame {
		frame[i] = 1 // no exact zeros anywhere
	}

	hits := Run(pixels, frame, cols, rows, 1000)
	require.Len(t, hits, 1)
	h := hits[0]
	// charge-weighted centroid: x=(5*100+5*90+6*80+6*70)/340, y=(5*100+6*90+5*80+6*70)/340
	require.InDelta(t, 1850.0/340.0, float64(h.X), 1e-4)
	require.InDelta(t, 1860.0/340.0, float64(h.Y), 1e-4)
	require.InDelta(t, 340, float64(h.Z), 1e-4)
	require.Equal(t, 4, h.NPixels)
}

// TestCoalescingIsDeterministic implements property 7: two runs over
// the same pixel list produce identical hit lists in identical order.
func TestCoalescingIsDeterministic(t *testing.T) {
	pixels := []Pixel{
		{X: 0, Y: 0, Z: 50},
		{X: 1, Y: 0, Z: 40},
		{X: 10, Y: 10, Z: 30},
	}
	const cols, rows = 16, 16
	frame := make([]float32, cols*rows)
	for i := range frame {
		frame[i] = 1
	}

	first := Run(pixels, frame, cols, rows, 1000)
	second := Run(pixels, frame, cols, rows, 1000)
	require.Equal(t, first, second)
}

// TestMIPThresholdRejectsGroup confirms a pixel above the MIP
// threshold discards its whole group.
func TestMIPThresholdRejectsGroup(t *testing.T) {
	pixels := []Pixel{
		{X: 5, Y: 5, Z: 2000},
		{X: 5, Y: 6, Z: 90},
	}
	const cols, rows = 16, 16
	frame := make([]float32, cols*rows)
	for i := range frame {
		frame[i] = 1
	}

	hits := Run(pixels, frame, cols, rows, 1000)
	require.Empty(t, hits)
}

// TestZeroNeighbourRejectsGroup confirms an exact-zero raw-frame
// neighbour of any group member discards the whole group.
func TestZeroNeighbourRejectsGroup(t *testing.T) {
	pixels := []Pixel{
		{X: 5, Y: 5, Z: 100},
	}
	const cols, rows = 16, 16
	frame := make([]float32, cols*rows)
	for i := range frame {
		frame[i] = 1
	}
	frame[5*cols+4] = 0 // exact zero immediately west of (5,5)

	hits := Run(pixels, frame, cols, rows, 1000)
	require.Empty(t, hits)
}
