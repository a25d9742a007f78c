package domain

// Projection maps geographic coordinates to pixel coordinates for a given
// viewport. It is a plate carrée fit to a dataset's bounding box rather
// than the world, so species with a narrow range fill the available canvas.
type Projection struct {
	scale   float64 // pixels per degree
	offsetX float64
	offsetY float64
	width   int
	height  int
}

// bboxPadding expands the fitted bounding box by this fraction of its span
// on every side so edge points are not drawn half off-canvas.
const bboxPadding = 0.05

// FitProjection builds a projection that fits the bounding box into a
// width×height viewport, preserving aspect ratio and centering the box.
// Degenerate boxes (single point, single row of cells) are widened to at
// least one degree per axis.
func FitProjection(b BBox, width, height int) Projection {
	lonSpan := b.MaxLon - b.MinLon
	latSpan := b.MaxLat - b.MinLat
	if lonSpan < 1 {
		grow := (1 - lonSpan) / 2
		b.MinLon -= grow
		b.MaxLon += grow
		lonSpan = 1
	}
	if latSpan < 1 {
		grow := (1 - latSpan) / 2
		b.MinLat -= grow
		b.MaxLat += grow
		latSpan = 1
	}

	b.MinLon -= lonSpan * bboxPadding
	b.MaxLon += lonSpan * bboxPadding
	b.MinLat -= latSpan * bboxPadding
	b.MaxLat += latSpan * bboxPadding
	lonSpan = b.MaxLon - b.MinLon
	latSpan = b.MaxLat - b.MinLat

	scale := float64(width) / lonSpan
	if s := float64(height) / latSpan; s < scale {
		scale = s
	}

	// Center the fitted box in the viewport.
	offsetX := (float64(width) - lonSpan*scale) / 2
	offsetY := (float64(height) - latSpan*scale) / 2

	return Projection{
		scale:   scale,
		offsetX: offsetX - b.MinLon*scale,
		offsetY: offsetY + b.MaxLat*scale,
		width:   width,
		height:  height,
	}
}

// Project converts a lon/lat pair into pixel coordinates. Y grows downward.
func (p Projection) Project(lon, lat float64) (x, y float64) {
	return p.offsetX + lon*p.scale, p.offsetY - lat*p.scale
}

// Width returns the viewport width in pixels.
func (p Projection) Width() int { return p.width }

// Height returns the viewport height in pixels.
func (p Projection) Height() int { return p.height }
