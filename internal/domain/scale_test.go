package domain

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultGradient() ColorGradient {
	return ColorGradient{Min: DefaultLowColor, Max: DefaultHighColor}
}

// framesWithValues builds one frame holding the given values at distinct coordinates.
func framesWithValues(values ...float64) []Frame {
	cells := make([]Cell, len(values))
	for i, v := range values {
		cells[i] = Cell{Lon: float64(i), Lat: float64(i) / 2, Value: v}
	}
	return []Frame{{Week: "2024-04-01", Cells: cells}}
}

func TestBuildScales_PercentileClampTightensColorDomain(t *testing.T) {
	// Values 0..500: the 5th/95th percentile clamp must produce a color
	// domain strictly tighter than the raw [0, 500] range, while the radius
	// domain keeps the true extremes.
	values := make([]float64, 0, 501)
	for v := 0.0; v <= 500; v++ {
		values = append(values, v)
	}
	scales := BuildScales(framesWithValues(values...), defaultGradient())

	assert.Greater(t, scales.Color.Min, 0.0)
	assert.Less(t, scales.Color.Max, 500.0)
	assert.InDelta(t, 25.0, scales.Color.Min, 1.0)
	assert.InDelta(t, 475.0, scales.Color.Max, 1.0)

	assert.Equal(t, 0.0, scales.Radius.Min)
	assert.Equal(t, 500.0, scales.Radius.Max)
}

func TestBuildScales_MedianWithinColorDomain(t *testing.T) {
	cases := map[string][]float64{
		"uniform":      {1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		"skewed":       {0.1, 0.2, 0.2, 0.3, 0.4, 8, 120},
		"with outlier": {5, 6, 7, 8, 9, 10000},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			scales := BuildScales(framesWithValues(values...), defaultGradient())
			sorted := append([]float64(nil), values...)
			sort.Float64s(sorted)
			p50 := percentile(sorted, 50)
			assert.LessOrEqual(t, scales.Color.Min, p50)
			assert.GreaterOrEqual(t, scales.Color.Max, p50)
		})
	}
}

func TestColorScale_ClampsToEndpoints(t *testing.T) {
	scales := BuildScales(framesWithValues(10, 20, 30, 40, 50), defaultGradient())

	below := scales.Color.At(scales.Color.Min - 100)
	above := scales.Color.At(scales.Color.Max + 100)
	assert.Equal(t, scales.Color.At(scales.Color.Min), below, "values below the domain clamp to the low color")
	assert.Equal(t, scales.Color.At(scales.Color.Max), above, "values above the domain clamp to the high color")

	low := scales.Color.At(scales.Color.Min)
	assert.Equal(t, uint8(0x80), low.R)
	assert.Equal(t, uint8(0x80), low.G)
	assert.Equal(t, uint8(0x80), low.B)

	high := scales.Color.At(scales.Color.Max)
	assert.Equal(t, uint8(0xFF), high.R)
	assert.Equal(t, uint8(0x8C), high.G)
	assert.Equal(t, uint8(0x00), high.B)
}

func TestColorScale_DomainTicks(t *testing.T) {
	s := ColorScale{Min: 10, Max: 30}
	low, mid, high := s.Domain()
	assert.Equal(t, 10.0, low)
	assert.Equal(t, 20.0, mid)
	assert.Equal(t, 30.0, high)
}

func TestRadiusScale_SqrtMappingWithinPixelBounds(t *testing.T) {
	scales := BuildScales(framesWithValues(0, 25, 100), defaultGradient())
	r := scales.Radius

	assert.Equal(t, MinPointRadius, r.At(0))
	assert.Equal(t, MaxPointRadius, r.At(100))
	assert.Equal(t, MaxPointRadius, r.At(1e9), "values above the domain clamp to the max radius")

	// sqrt(0.25) = 0.5: a quarter of the value range sits halfway through
	// the pixel range.
	assert.InDelta(t, MinPointRadius+(MaxPointRadius-MinPointRadius)*0.5, r.At(25), 1e-9)
}

func TestRadiusScale_DegenerateDomainUsesMidpoint(t *testing.T) {
	scales := BuildScales(framesWithValues(7, 7, 7), defaultGradient())
	assert.Equal(t, (MinPointRadius+MaxPointRadius)/2, scales.Radius.At(7))
}

func TestBuildScales_BoundsCoverAllFrames(t *testing.T) {
	frames := []Frame{
		{Week: "2024-04-01", Cells: []Cell{{Lon: -10, Lat: 40, Value: 1}}},
		{Week: "2024-04-08", Cells: []Cell{{Lon: 25, Lat: 55, Value: 2}, {Lon: 3, Lat: 61, Value: 3}}},
	}
	scales := BuildScales(frames, defaultGradient())

	assert.Equal(t, BBox{MinLon: -10, MinLat: 40, MaxLon: 25, MaxLat: 61}, scales.Bounds)
}

func TestBuildScales_NoCells(t *testing.T) {
	scales := BuildScales([]Frame{{Week: "2024-04-01"}}, defaultGradient())
	// World bounds and midpoint radii: rendering stays well-defined.
	assert.Equal(t, BBox{MinLon: -180, MinLat: -90, MaxLon: 180, MaxLat: 90}, scales.Bounds)
	assert.Equal(t, (MinPointRadius+MaxPointRadius)/2, scales.Radius.At(1))
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5}
	require.Equal(t, 1.0, percentile(sorted, 0))
	require.Equal(t, 5.0, percentile(sorted, 100))
	require.Equal(t, 3.0, percentile(sorted, 50))
	assert.InDelta(t, 1.2, percentile(sorted, 5), 1e-9)
	assert.InDelta(t, 4.8, percentile(sorted, 95), 1e-9)
}
