package domain

import (
	"math"
	"sort"
	"strings"

	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Point radius bounds in pixels. Square-root mapping between them keeps
// visual area proportional to value.
const (
	MinPointRadius = 2.0
	MaxPointRadius = 12.0
)

// Percentile bounds for the color domain clamp.
const (
	colorDomainLowPct  = 5.0
	colorDomainHighPct = 95.0
)

// Scales bundles the visual mappings shared by all frames of a dataset.
// Built exactly once per load; never per frame.
type Scales struct {
	Color  ColorScale
	Radius RadiusScale
	Bounds BBox
}

// ColorScale maps a density value to a color by linear interpolation
// between Low and High over the percentile-clamped domain [Min, Max].
// Inputs outside the domain clamp to the endpoints.
type ColorScale struct {
	Low  drawing.Color
	High drawing.Color
	Min  float64
	Max  float64
}

// At returns the color for a value.
func (s ColorScale) At(v float64) drawing.Color {
	t := 0.0
	if s.Max > s.Min {
		t = (v - s.Min) / (s.Max - s.Min)
	}
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return drawing.Color{
		R: lerpByte(s.Low.R, s.High.R, t),
		G: lerpByte(s.Low.G, s.High.G, t),
		B: lerpByte(s.Low.B, s.High.B, t),
		A: 255,
	}
}

// Domain returns the legend tick values: min, midpoint, and max of the
// percentile-clamped color domain (not the dataset's true extremes).
func (s ColorScale) Domain() (low, mid, high float64) {
	return s.Min, (s.Min + s.Max) / 2, s.Max
}

// RadiusScale maps a density value to a point radius in pixels via a
// square-root curve over the true [Min, Max] value domain.
type RadiusScale struct {
	Min   float64
	Max   float64
	MinPx float64
	MaxPx float64
}

// At returns the radius in pixels for a value.
func (s RadiusScale) At(v float64) float64 {
	if s.Max <= s.Min {
		return (s.MinPx + s.MaxPx) / 2
	}
	t := (v - s.Min) / (s.Max - s.Min)
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return s.MinPx + (s.MaxPx-s.MinPx)*math.Sqrt(t)
}

// BBox is a geographic bounding box.
type BBox struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// BuildScales computes the shared color scale, radius scale, and bounding
// box over all cells of all frames combined. The color domain is clamped
// to the 5th–95th percentile of the flattened value list; the radius
// domain uses the true min/max.
func BuildScales(frames []Frame, gradient ColorGradient) Scales {
	values := make([]float64, 0, 256)
	bounds := BBox{MinLon: math.Inf(1), MinLat: math.Inf(1), MaxLon: math.Inf(-1), MaxLat: math.Inf(-1)}
	for _, f := range frames {
		for _, c := range f.Cells {
			values = append(values, c.Value)
			bounds.MinLon = math.Min(bounds.MinLon, c.Lon)
			bounds.MaxLon = math.Max(bounds.MaxLon, c.Lon)
			bounds.MinLat = math.Min(bounds.MinLat, c.Lat)
			bounds.MaxLat = math.Max(bounds.MaxLat, c.Lat)
		}
	}
	if len(values) == 0 {
		bounds = BBox{MinLon: -180, MinLat: -90, MaxLon: 180, MaxLat: 90}
		return Scales{
			Color:  ColorScale{Low: parseHexColor(gradient.Min), High: parseHexColor(gradient.Max)},
			Radius: RadiusScale{MinPx: MinPointRadius, MaxPx: MaxPointRadius},
			Bounds: bounds,
		}
	}

	sort.Float64s(values)
	return Scales{
		Color: ColorScale{
			Low:  parseHexColor(gradient.Min),
			High: parseHexColor(gradient.Max),
			Min:  percentile(values, colorDomainLowPct),
			Max:  percentile(values, colorDomainHighPct),
		},
		Radius: RadiusScale{
			Min:   values[0],
			Max:   values[len(values)-1],
			MinPx: MinPointRadius,
			MaxPx: MaxPointRadius,
		},
		Bounds: bounds,
	}
}

// percentile computes the p-th percentile of an ascending-sorted slice by
// linear interpolation between closest ranks, matching the offline
// pipeline's numpy default.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func parseHexColor(hex string) drawing.Color {
	return drawing.ColorFromHex(strings.TrimPrefix(hex, "#"))
}

func lerpByte(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
}
