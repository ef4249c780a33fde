package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPixelAreaMM2(t *testing.T) {
	// 40 cm x 30 cm over 400 x 300 px is exactly 1 mm^2 per pixel.
	assert.InDelta(t, 1.0, pixelAreaMM2(40, 30, 400, 300), 1e-12)
	assert.Equal(t, 0.0, pixelAreaMM2(40, 30, 0, 300))
}

func TestSegmentLabelsOppositeSignPatchesSeparately(t *testing.T) {
	// Two adjacent patches of opposite sign never merge, even though
	// they touch.
	sign := []int32{
		1, 1, -1, -1,
		1, 1, -1, -1,
	}
	areas := segment(sign, 2, 4, 1, 0)
	require.Len(t, areas, 8)

	assert.NotEqual(t, int32(0), areas[0])
	assert.NotEqual(t, int32(0), areas[2])
	assert.NotEqual(t, areas[0], areas[2])
	assert.Equal(t, areas[0], areas[1])
	assert.Equal(t, areas[2], areas[3])
}

func TestSegmentDropsSmallComponents(t *testing.T) {
	// A lone pixel below the minimum area is cleared to background while
	// the larger patch keeps its label.
	sign := []int32{
		1, 0, 0, 0,
		0, 0, -1, -1,
		0, 0, -1, -1,
	}
	areas := segment(sign, 3, 4, 1, 2) // min 2 mm^2 at 1 mm^2/px
	assert.Equal(t, int32(0), areas[0], "single-pixel component dropped")
	assert.NotEqual(t, int32(0), areas[6])
	assert.Equal(t, areas[6], areas[7])
	assert.Equal(t, areas[6], areas[10])
	assert.Equal(t, areas[6], areas[11])
}

func TestSegmentDiagonalTouchDoesNotConnect(t *testing.T) {
	// 4-connectivity: diagonal neighbors of the same sign stay separate
	// components.
	sign := []int32{
		1, 0,
		0, 1,
	}
	areas := segment(sign, 2, 2, 1, 0)
	assert.NotEqual(t, int32(0), areas[0])
	assert.NotEqual(t, int32(0), areas[3])
	assert.NotEqual(t, areas[0], areas[3])
}

func TestSegmentLabelOrderIsDeterministic(t *testing.T) {
	sign := []int32{
		1, 0, -1,
		1, 0, -1,
		0, 0, 0,
		-1, 0, 1,
	}
	first := segment(sign, 4, 3, 1, 0)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, segment(sign, 4, 3, 1, 0))
	}
	// Labels number components by their first pixel in row-major order.
	assert.Equal(t, int32(1), first[0])
	assert.Equal(t, int32(2), first[2])
}
