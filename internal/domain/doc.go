// Package domain models per-species bird migration heatmap datasets.
//
// # Data Source
//
// Heatmap files are produced by an offline aggregation pipeline that bins
// individual bird observations by ISO week and a 1-degree spatial grid,
// summing observation density per cell. Each species gets one JSON file,
// served from a static data host as <speciesKey>_heatmap.json:
//
//	{
//	  "speciesName": "Barn Swallow",
//	  "colorGradient": {"min": "#808080", "max": "#FF8C00"},
//	  "frames": [
//	    {"week": "2024-04-01", "cells": [[lon, lat, density], ...]},
//	    ...
//	  ]
//	}
//
// speciesName and colorGradient are optional; the builder defaults the
// gradient to grey → saturated orange. Week labels are the Monday of the
// ISO week in YYYY-MM-DD. Cells are [longitude, latitude, density]
// triples at grid-cell centers; density is a unitless relative value ≥ 0.
//
// # Shared Scales
//
// All frames of a dataset share one visual scale, computed once at load
// time over the values of every frame combined, so that stepping through
// weeks does not visually jump in intensity:
//
//	Color:  domain [P5, P95] of all values (percentile clamp keeps
//	        outliers from washing out the palette); linear interpolation
//	        between the gradient endpoints; out-of-domain values clamp.
//	Radius: domain [min, max] of all values (true bounds, so relative
//	        sizing stays faithful); square-root mapping into a fixed
//	        pixel range so visual *area* scales linearly with value.
//
// The color/radius domain asymmetry is deliberate: color buys contrast,
// radius buys honest comparison.
//
// # Projection
//
// Coordinates project through a plate carrée fit to the bounding box of
// the whole dataset rather than the world, so species with a narrow
// migration corridor still fill the canvas. The projection is a pure
// function of (bounding box, viewport) and carries no state.
package domain
