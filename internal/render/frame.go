package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"time"

	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/flywaylab/bird-heatmap-service/internal/domain"
	"github.com/flywaylab/bird-heatmap-service/internal/observability"
)

var labelColor = color.RGBA{220, 224, 230, 255}

// Renderer draws dataset frames, legends, and trend charts. It is safe
// for concurrent use; each render works on its own buffer.
type Renderer struct {
	basemap *Basemap
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRenderer creates a Renderer. basemap may be nil, in which case
// frames have no land outline under the cells.
func NewRenderer(basemap *Basemap, logger *slog.Logger, metrics *observability.Metrics) *Renderer {
	return &Renderer{basemap: basemap, logger: logger, metrics: metrics}
}

// RenderFrame rasterizes one weekly frame to PNG. Out-of-range indexes
// are clamped into bounds, so callers can pass a stale index after a
// dataset swap without failing.
func (r *Renderer) RenderFrame(ds *domain.Dataset, proj domain.Projection, index int) ([]byte, error) {
	if ds.FrameCount() == 0 {
		return nil, fmt.Errorf("dataset %q has no frames", ds.Species)
	}
	start := time.Now()
	index = ds.ClampIndex(index)
	frame := ds.Frames[index]

	img := newCanvas(proj.Width(), proj.Height())
	r.basemap.Draw(img, proj)

	for _, cell := range frame.Cells {
		x, y := proj.Project(cell.Lon, cell.Lat)
		radius := ds.Scales.Radius.At(cell.Value)
		fillCircle(img, x, y, radius, toRGBA(ds.Scales.Color.At(cell.Value)))
	}

	drawLabel(img, frame.Week, 8, proj.Height()-8)

	buf, err := encodePNG(img)
	if err != nil {
		return nil, err
	}
	r.metrics.FramesRendered.Inc()
	r.metrics.RenderDuration.WithLabelValues("frame").Observe(time.Since(start).Seconds())
	r.logger.Debug("frame rendered",
		"species", ds.Species,
		"week", frame.Week,
		"cells", len(frame.Cells),
	)
	return buf, nil
}

func newCanvas(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{oceanColor}, image.Point{}, draw.Src)
	return img
}

// fillCircle draws a filled disc, clipped to the image bounds.
func fillCircle(img *image.RGBA, cx, cy, radius float64, c color.RGBA) {
	bounds := img.Bounds()
	r2 := radius * radius
	for y := int(cy - radius); y <= int(cy+radius); y++ {
		for x := int(cx - radius); x <= int(cx+radius); x++ {
			if !image.Pt(x, y).In(bounds) {
				continue
			}
			dx, dy := float64(x)-cx, float64(y)-cy
			if dx*dx+dy*dy <= r2 {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

func drawLabel(img *image.RGBA, text string, x, y int) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func toRGBA(c drawing.Color) color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 255}
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}
