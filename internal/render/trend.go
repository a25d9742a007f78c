package render

import (
	"bytes"
	"fmt"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/flywaylab/bird-heatmap-service/internal/domain"
)

const maxTrendTicks = 8

// RenderTrend rasterizes a line chart of total observed density per week,
// a quick read on where the migration peaks fall in the dataset.
func (r *Renderer) RenderTrend(ds *domain.Dataset, width, height int) ([]byte, error) {
	if ds.FrameCount() == 0 {
		return nil, fmt.Errorf("dataset %q has no frames", ds.Species)
	}
	start := time.Now()

	xs := make([]float64, ds.FrameCount())
	ys := make([]float64, ds.FrameCount())
	for i, frame := range ds.Frames {
		xs[i] = float64(i)
		total := 0.0
		for _, cell := range frame.Cells {
			total += cell.Value
		}
		ys[i] = total
	}
	// go-chart refuses a single-point series; repeat the point instead.
	if len(xs) == 1 {
		xs = append(xs, xs[0]+1)
		ys = append(ys, ys[0])
	}

	title := ds.SpeciesName
	if title == "" {
		title = ds.Species
	}
	ch := chart.Chart{
		Title:      fmt.Sprintf("%s weekly density", title),
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 24, Left: 12, Right: 12, Bottom: 24}},
		XAxis:      chart.XAxis{Ticks: weekTicks(ds.Weeks())},
		YAxis:      chart.YAxis{Name: "total density"},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    title,
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: chart.ColorOrange,
					StrokeWidth: 2,
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("rendering trend chart: %w", err)
	}
	r.metrics.RenderDuration.WithLabelValues("trend").Observe(time.Since(start).Seconds())
	return buf.Bytes(), nil
}

// weekTicks labels a subset of frame indexes with their week strings so
// long datasets keep a readable axis.
func weekTicks(weeks []string) []chart.Tick {
	if len(weeks) == 0 {
		return nil
	}
	step := (len(weeks) + maxTrendTicks - 1) / maxTrendTicks
	if step < 1 {
		step = 1
	}
	var ticks []chart.Tick
	for i := 0; i < len(weeks); i += step {
		ticks = append(ticks, chart.Tick{Value: float64(i), Label: weeks[i]})
	}
	last := len(weeks) - 1
	if len(ticks) == 0 || ticks[len(ticks)-1].Value != float64(last) {
		ticks = append(ticks, chart.Tick{Value: float64(last), Label: weeks[last]})
	}
	return ticks
}
