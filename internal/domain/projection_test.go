package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFitProjection_PointsLandInsideViewport(t *testing.T) {
	b := BBox{MinLon: -80, MinLat: 30, MaxLon: -60, MaxLat: 50}
	p := FitProjection(b, 800, 600)

	corners := [][2]float64{
		{b.MinLon, b.MinLat},
		{b.MinLon, b.MaxLat},
		{b.MaxLon, b.MinLat},
		{b.MaxLon, b.MaxLat},
	}
	for _, c := range corners {
		x, y := p.Project(c[0], c[1])
		assert.GreaterOrEqual(t, x, 0.0)
		assert.LessOrEqual(t, x, 800.0)
		assert.GreaterOrEqual(t, y, 0.0)
		assert.LessOrEqual(t, y, 600.0)
	}
}

func TestFitProjection_NorthIsUp(t *testing.T) {
	p := FitProjection(BBox{MinLon: 0, MinLat: 0, MaxLon: 10, MaxLat: 10}, 400, 400)

	_, ySouth := p.Project(5, 0)
	_, yNorth := p.Project(5, 10)
	assert.Less(t, yNorth, ySouth, "higher latitude must map to a smaller y")
}

func TestFitProjection_PreservesAspectRatio(t *testing.T) {
	// A 20°×10° box in a square viewport: one pixel per degree must be the
	// same on both axes.
	p := FitProjection(BBox{MinLon: 0, MinLat: 0, MaxLon: 20, MaxLat: 10}, 400, 400)

	x0, _ := p.Project(0, 5)
	x1, _ := p.Project(1, 5)
	_, y0 := p.Project(10, 0)
	_, y1 := p.Project(10, 1)
	assert.InDelta(t, x1-x0, y0-y1, 1e-9)
}

func TestFitProjection_DegenerateBoxIsWidened(t *testing.T) {
	// Single-point dataset: projection must still be finite and centered.
	p := FitProjection(BBox{MinLon: 5, MinLat: 5, MaxLon: 5, MaxLat: 5}, 200, 100)

	x, y := p.Project(5, 5)
	assert.InDelta(t, 100.0, x, 1.0)
	assert.InDelta(t, 50.0, y, 1.0)
}

func TestFitProjection_ViewportAccessors(t *testing.T) {
	p := FitProjection(BBox{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1}, 960, 540)
	assert.Equal(t, 960, p.Width())
	assert.Equal(t, 540, p.Height())
}
