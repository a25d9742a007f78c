package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// ErrEmptyDataset indicates a payload that parsed but contains no frames.
var ErrEmptyDataset = errors.New("dataset has no frames")

// Cell is one spatial sample within a frame: a grid-cell center and its
// relative observation density (unitless, ≥ 0).
type Cell struct {
	Lon   float64
	Lat   float64
	Value float64
}

// Frame is one week's observation snapshot.
type Frame struct {
	Week  string
	Cells []Cell
}

// ColorGradient holds the hex endpoints of the density color ramp.
type ColorGradient struct {
	Min string
	Max string
}

// Default gradient endpoints, matching the offline builder's output.
const (
	DefaultLowColor  = "#808080"
	DefaultHighColor = "#FF8C00"
)

// Dataset is the complete heatmap for one species: an ordered frame
// sequence plus the visual scales shared by every frame. Datasets are
// immutable after load and replaced wholesale on species change.
type Dataset struct {
	Species     string
	SpeciesName string
	Gradient    ColorGradient
	Frames      []Frame
	Scales      Scales
	LoadedAt    time.Time
}

// FrameCount returns the number of frames.
func (d *Dataset) FrameCount() int { return len(d.Frames) }

// Playable reports whether the dataset supports playback. A single frame
// has nothing to step through, so interactive controls are disabled.
func (d *Dataset) Playable() bool { return len(d.Frames) > 1 }

// ClampIndex bounds a frame index into [0, FrameCount-1]. Out-of-range
// requests clamp rather than error.
func (d *Dataset) ClampIndex(i int) int {
	if i < 0 {
		return 0
	}
	if i >= len(d.Frames) {
		return len(d.Frames) - 1
	}
	return i
}

// Weeks returns the ordered week labels of all frames.
func (d *Dataset) Weeks() []string {
	weeks := make([]string, len(d.Frames))
	for i := range d.Frames {
		weeks[i] = d.Frames[i].Week
	}
	return weeks
}

// Wire types for <speciesKey>_heatmap.json.

type heatmapPayload struct {
	SpeciesName   string         `json:"speciesName"`
	ColorGradient *gradientWire  `json:"colorGradient"`
	Frames        []framePayload `json:"frames"`
}

type gradientWire struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

type framePayload struct {
	Week  string      `json:"week"`
	Cells [][]float64 `json:"cells"`
}

// ParseDataset deserializes and validates a heatmap payload for the given
// species key. Malformed cells (wrong arity, non-finite numbers, negative
// density, latitude out of range) are dropped with a warning; longitudes
// are normalized to [-180, 180). A payload without frames is an error;
// the caller shows the "no data available" state instead.
func ParseDataset(species string, data []byte, logger *slog.Logger) (*Dataset, error) {
	var payload heatmapPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse heatmap payload: %w", err)
	}
	if len(payload.Frames) == 0 {
		return nil, ErrEmptyDataset
	}

	gradient := ColorGradient{Min: DefaultLowColor, Max: DefaultHighColor}
	if g := payload.ColorGradient; g != nil {
		if g.Min != "" {
			gradient.Min = g.Min
		}
		if g.Max != "" {
			gradient.Max = g.Max
		}
	}

	frames := make([]Frame, 0, len(payload.Frames))
	dropped := 0
	for _, fp := range payload.Frames {
		frame := Frame{Week: fp.Week, Cells: make([]Cell, 0, len(fp.Cells))}
		for _, raw := range fp.Cells {
			cell, ok := parseCell(raw)
			if !ok {
				dropped++
				continue
			}
			frame.Cells = append(frame.Cells, cell)
		}
		frames = append(frames, frame)
	}
	if dropped > 0 {
		logger.Warn("dropped malformed heatmap cells", "species", species, "count", dropped)
	}

	ds := &Dataset{
		Species:     species,
		SpeciesName: payload.SpeciesName,
		Gradient:    gradient,
		Frames:      frames,
		LoadedAt:    clock.Now(),
	}
	ds.Scales = BuildScales(ds.Frames, ds.Gradient)
	return ds, nil
}

// parseCell validates one [lon, lat, value] triple.
func parseCell(raw []float64) (Cell, bool) {
	if len(raw) != 3 {
		return Cell{}, false
	}
	lon, lat, value := raw[0], raw[1], raw[2]
	for _, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Cell{}, false
		}
	}
	if value < 0 || lat < -90 || lat > 90 {
		return Cell{}, false
	}
	return Cell{Lon: NormalizeLon(lon), Lat: lat, Value: value}, true
}

// NormalizeLon wraps a longitude into [-180, 180).
func NormalizeLon(lon float64) float64 {
	m := math.Mod(lon+180, 360)
	if m < 0 {
		m += 360
	}
	return m - 180
}
