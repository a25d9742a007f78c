// Command genmock generates synthetic <species>_heatmap.json fixtures
// for tests and local development. Each dataset is a cluster of 1-degree
// grid cells that drifts northward week over week, loosely imitating a
// spring migration. Output is deterministic for a given seed, and every
// generated file is parsed back through the domain package so fixtures
// are guaranteed to load.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock -species redkno,barswa -weeks 12
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/flywaylab/bird-heatmap-service/internal/domain"
)

var baseDate = time.Date(2024, time.March, 3, 0, 0, 0, 0, time.UTC)

type payload struct {
	SpeciesName   string   `json:"speciesName"`
	ColorGradient gradient `json:"colorGradient"`
	Frames        []frame  `json:"frames"`
}

type gradient struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

type frame struct {
	Week  string       `json:"week"`
	Cells [][3]float64 `json:"cells"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out", "", "output directory for fixture files")
	speciesList := flag.String("species", "redkno,barswa", "comma-separated species keys")
	weeks := flag.Int("weeks", 12, "number of weekly frames per species")
	cells := flag.Int("cells", 40, "cells per frame")
	seed := flag.Int64("seed", 42, "RNG seed for deterministic output")
	flag.Parse()

	if *outDir == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if *weeks < 1 || *cells < 1 {
		return fmt.Errorf("-weeks and -cells must be positive")
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}

	// Freeze the clock so parse-back checks are reproducible.
	domain.SetClock(clockwork.NewFakeClockAt(baseDate))
	defer domain.SetClock(nil)

	rng := rand.New(rand.NewSource(*seed))
	for _, key := range strings.Split(*speciesList, ",") {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		p := generate(rng, key, *weeks, *cells)
		path := filepath.Join(*outDir, key+"_heatmap.json")
		if err := writeFixture(path, p); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		fmt.Printf("wrote %s (%d frames, %d cells/frame)\n", path, *weeks, *cells)
	}
	return nil
}

// generate builds one species dataset: a Gaussian-ish cluster starting in
// the subtropics and drifting about one degree of latitude per week.
func generate(rng *rand.Rand, key string, weeks, cells int) payload {
	centerLon := -100 + rng.Float64()*40
	centerLat := 5 + rng.Float64()*15
	peakWeek := float64(weeks) / 2

	frames := make([]frame, weeks)
	for w := 0; w < weeks; w++ {
		lat := centerLat + float64(w)*1.1
		// Density swells toward mid-season and tapers off.
		season := 1 - math.Abs(float64(w)-peakWeek)/peakWeek
		if season < 0.1 {
			season = 0.1
		}

		cs := make([][3]float64, 0, cells)
		for i := 0; i < cells; i++ {
			cellLon := gridSnap(centerLon + rng.NormFloat64()*6)
			cellLat := gridSnap(lat + rng.NormFloat64()*3)
			if cellLat > 90 {
				cellLat = 90
			}
			if cellLat < -90 {
				cellLat = -90
			}
			value := math.Round(rng.Float64()*500*season*100) / 100
			cs = append(cs, [3]float64{domain.NormalizeLon(cellLon), cellLat, value})
		}
		frames[w] = frame{
			Week:  baseDate.AddDate(0, 0, 7*w).Format("2006-01-02"),
			Cells: cs,
		}
	}

	return payload{
		SpeciesName:   "Synthetic " + strings.ToUpper(key[:1]) + key[1:],
		ColorGradient: gradient{Min: domain.DefaultLowColor, Max: domain.DefaultHighColor},
		Frames:        frames,
	}
}

// gridSnap centers a coordinate on the 1-degree aggregation grid.
func gridSnap(v float64) float64 {
	return math.Floor(v) + 0.5
}

func writeFixture(path string, p payload) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}

	// Parse back through the loader so a broken fixture fails here, not
	// in a test suite later.
	if _, err := domain.ParseDataset(strings.TrimSuffix(filepath.Base(path), "_heatmap.json"), data, slog.Default()); err != nil {
		return fmt.Errorf("generated fixture does not parse: %w", err)
	}
	return nil
}
