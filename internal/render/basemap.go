// Package render rasterizes heatmap frames, legends, and trend charts to
// PNG. All drawing happens on plain image.RGBA buffers so the package
// stays headless.
package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"sort"

	geojson "github.com/paulmach/go.geojson"

	"github.com/flywaylab/bird-heatmap-service/internal/domain"
)

var (
	oceanColor = color.RGBA{8, 12, 20, 255}
	landColor  = color.RGBA{24, 30, 40, 255}
	coastColor = color.RGBA{44, 54, 68, 255}
)

// Basemap holds land polygons to draw beneath the heatmap cells. A nil
// Basemap is valid and draws nothing.
type Basemap struct {
	fc *geojson.FeatureCollection
}

// LoadBasemap reads a GeoJSON feature collection from disk.
func LoadBasemap(path string) (*Basemap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading basemap: %w", err)
	}
	return ParseBasemap(data)
}

// ParseBasemap parses GeoJSON land polygons.
func ParseBasemap(data []byte) (*Basemap, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing basemap geojson: %w", err)
	}
	return &Basemap{fc: fc}, nil
}

// Draw fills land polygons and traces coastlines under the given
// projection.
func (b *Basemap) Draw(img *image.RGBA, proj domain.Projection) {
	if b == nil || b.fc == nil {
		return
	}
	for _, f := range b.fc.Features {
		switch {
		case f.Geometry.IsPolygon():
			drawPolygon(img, proj, f.Geometry.Polygon)
		case f.Geometry.IsMultiPolygon():
			for _, poly := range f.Geometry.MultiPolygon {
				drawPolygon(img, proj, poly)
			}
		}
	}
}

func drawPolygon(img *image.RGBA, proj domain.Projection, rings [][][]float64) {
	fillPolygon(img, proj, rings, landColor)
	for _, ring := range rings {
		drawRing(img, proj, ring, coastColor)
	}
}

// fillPolygon scanline-fills a polygon (outer ring plus holes) using the
// even-odd rule on the projected ring coordinates.
func fillPolygon(img *image.RGBA, proj domain.Projection, rings [][][]float64, c color.RGBA) {
	if len(rings) == 0 {
		return
	}
	type point struct{ x, y float64 }
	height := img.Bounds().Dy()
	width := img.Bounds().Dx()

	projected := make([][]point, len(rings))
	minY, maxY := float64(height), 0.0
	for i, ring := range rings {
		projected[i] = make([]point, 0, len(ring))
		for _, p := range ring {
			x, y := proj.Project(p[0], p[1])
			if math.IsNaN(x) || math.IsNaN(y) {
				continue
			}
			projected[i] = append(projected[i], point{x, y})
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}

	for y := int(minY); y <= int(maxY); y++ {
		if y < 0 || y >= height {
			continue
		}
		var nodes []int
		fy := float64(y)
		for _, ring := range projected {
			for i := 0; i < len(ring); i++ {
				j := (i + 1) % len(ring)
				if (ring[i].y < fy && ring[j].y >= fy) || (ring[j].y < fy && ring[i].y >= fy) {
					nodeX := ring[i].x + (fy-ring[i].y)/(ring[j].y-ring[i].y)*(ring[j].x-ring[i].x)
					nodes = append(nodes, int(nodeX))
				}
			}
		}
		sort.Ints(nodes)
		for i := 0; i < len(nodes)-1; i += 2 {
			xs, xe := nodes[i], nodes[i+1]
			if xs < 0 {
				xs = 0
			}
			if xe >= width {
				xe = width - 1
			}
			for x := xs; x < xe; x++ {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

func drawRing(img *image.RGBA, proj domain.Projection, coords [][]float64, c color.RGBA) {
	for i := 0; i < len(coords)-1; i++ {
		x1, y1 := proj.Project(coords[i][0], coords[i][1])
		x2, y2 := proj.Project(coords[i+1][0], coords[i+1][1])
		if math.IsNaN(x1) || math.IsNaN(y1) || math.IsNaN(x2) || math.IsNaN(y2) {
			continue
		}
		drawLine(img, int(x1), int(y1), int(x2), int(y2), c)
	}
}

// drawLine is Bresenham's line algorithm with viewport clipping per pixel.
func drawLine(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	bounds := img.Bounds()
	dx, dy := math.Abs(float64(x2-x1)), math.Abs(float64(y2-y1))
	sx, sy := -1, -1
	if x1 < x2 {
		sx = 1
	}
	if y1 < y2 {
		sy = 1
	}
	err := dx - dy
	for {
		if image.Pt(x1, y1).In(bounds) {
			img.SetRGBA(x1, y1, c)
		}
		if x1 == x2 && y1 == y2 {
			return
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}
