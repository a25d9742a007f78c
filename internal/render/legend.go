package render

import (
	"fmt"
	"strconv"
	"time"

	"golang.org/x/image/font/basicfont"

	"github.com/flywaylab/bird-heatmap-service/internal/domain"
)

const (
	legendMargin    = 10
	legendBarHeight = 14
)

// RenderLegend rasterizes the color legend for a dataset: the species
// name, a low-to-high gradient bar, and tick labels for the clamped
// domain endpoints and midpoint.
func (r *Renderer) RenderLegend(ds *domain.Dataset, width, height int) ([]byte, error) {
	if width < 4*legendMargin || height < 2*legendBarHeight {
		return nil, fmt.Errorf("legend viewport %dx%d is too small", width, height)
	}
	start := time.Now()

	img := newCanvas(width, height)

	title := ds.SpeciesName
	if title == "" {
		title = ds.Species
	}
	drawLabel(img, title, legendMargin, legendMargin+basicfont.Face7x13.Ascent)

	barTop := height/2 - legendBarHeight/2
	barLeft := legendMargin
	barRight := width - legendMargin
	scale := ds.Scales.Color
	low, mid, high := scale.Domain()

	for x := barLeft; x < barRight; x++ {
		t := float64(x-barLeft) / float64(barRight-barLeft-1)
		c := toRGBA(scale.At(low + t*(high-low)))
		for y := barTop; y < barTop+legendBarHeight; y++ {
			img.SetRGBA(x, y, c)
		}
	}

	labelY := barTop + legendBarHeight + basicfont.Face7x13.Ascent + 4
	lowText := formatTick(low)
	midText := formatTick(mid)
	highText := formatTick(high)
	drawLabel(img, lowText, barLeft, labelY)
	drawLabel(img, midText, (barLeft+barRight)/2-textWidth(midText)/2, labelY)
	drawLabel(img, highText, barRight-textWidth(highText), labelY)

	buf, err := encodePNG(img)
	if err != nil {
		return nil, err
	}
	r.metrics.RenderDuration.WithLabelValues("legend").Observe(time.Since(start).Seconds())
	return buf, nil
}

func formatTick(v float64) string {
	return strconv.FormatFloat(v, 'g', 3, 64)
}

func textWidth(s string) int {
	return len(s) * basicfont.Face7x13.Advance
}
