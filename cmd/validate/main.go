// Command validate performs integrity checks over heatmap fixture files:
// payload structure, cell validity, week ordering, and scale sanity. It
// runs every phase even after failures so one pass reports everything
// wrong with a data directory.
//
// Usage:
//
//	go run ./cmd/validate -dir data/mock
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/flywaylab/bird-heatmap-service/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// fixture is one heatmap file: the raw wire payload alongside the parsed
// dataset, so checks can see what the loader dropped.
type fixture struct {
	species string
	raw     rawPayload
	dataset *domain.Dataset
}

type rawPayload struct {
	SpeciesName string `json:"speciesName"`
	Frames      []struct {
		Week  string      `json:"week"`
		Cells [][]float64 `json:"cells"`
	} `json:"frames"`
}

func main() {
	dir := flag.String("dir", "", "directory containing *_heatmap.json files")
	flag.Parse()

	if *dir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*dir); code != 0 {
		os.Exit(code)
	}
}

func run(dir string) int {
	// Fixed clock for reproducible LoadedAt stamps in any debug output.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2024, time.March, 3, 0, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	fmt.Println("=== Heatmap Fixture Validation ===")
	fmt.Println()

	fixtures, err := loadFixtures(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	if len(fixtures) == 0 {
		fmt.Fprintf(os.Stderr, "FATAL: no *_heatmap.json files in %s\n", dir)
		return 1
	}

	phases := []*phase{
		validateStructure(fixtures),
		validateCells(fixtures),
		validateWeekOrdering(fixtures),
		validateScales(fixtures),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	frames, cells := 0, 0
	for _, f := range fixtures {
		frames += len(f.raw.Frames)
		for _, fr := range f.raw.Frames {
			cells += len(fr.Cells)
		}
	}
	fmt.Println()
	fmt.Printf("Checked: %d species, %d frames, %d cells\n", len(fixtures), frames, cells)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadFixtures(dir string) ([]fixture, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*_heatmap.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var fixtures []fixture
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		species := strings.TrimSuffix(filepath.Base(path), "_heatmap.json")

		f := fixture{species: species}
		if err := json.Unmarshal(data, &f.raw); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		// A parse failure is recorded as a nil dataset, not a fatal
		// error, so the structure phase can report it.
		if ds, err := domain.ParseDataset(species, data, slog.Default()); err == nil {
			f.dataset = ds
		}
		fixtures = append(fixtures, f)
	}
	return fixtures, nil
}

func validateStructure(fixtures []fixture) *phase {
	p := &phase{name: "Payload structure"}
	for _, f := range fixtures {
		if f.dataset == nil {
			p.errorf("%s: payload does not load", f.species)
			continue
		}
		if len(f.raw.Frames) == 0 {
			p.errorf("%s: empty frame list", f.species)
		}
		for i, fr := range f.raw.Frames {
			if fr.Week == "" {
				p.errorf("%s: frame %d has no week label", f.species, i)
			}
		}
	}
	return p
}

func validateCells(fixtures []fixture) *phase {
	p := &phase{name: "Cell integrity"}
	for _, f := range fixtures {
		for i, fr := range f.raw.Frames {
			for j, cell := range fr.Cells {
				switch {
				case len(cell) != 3:
					p.errorf("%s: frame %d cell %d has %d elements, want 3", f.species, i, j, len(cell))
				case !finite(cell[0]) || !finite(cell[1]) || !finite(cell[2]):
					p.errorf("%s: frame %d cell %d has non-finite values", f.species, i, j)
				case cell[1] < -90 || cell[1] > 90:
					p.errorf("%s: frame %d cell %d latitude %g out of range", f.species, i, j, cell[1])
				case cell[2] < 0:
					p.errorf("%s: frame %d cell %d negative density %g", f.species, i, j, cell[2])
				}
			}
		}

		// The loader silently drops bad cells; in fixtures that is a bug.
		if f.dataset != nil {
			rawCells, kept := 0, 0
			for _, fr := range f.raw.Frames {
				rawCells += len(fr.Cells)
			}
			for _, fr := range f.dataset.Frames {
				kept += len(fr.Cells)
			}
			if kept != rawCells {
				p.errorf("%s: loader dropped %d of %d cells", f.species, rawCells-kept, rawCells)
			}
		}
	}
	return p
}

func validateWeekOrdering(fixtures []fixture) *phase {
	p := &phase{name: "Week ordering"}
	for _, f := range fixtures {
		var prev time.Time
		for i, fr := range f.raw.Frames {
			week, err := time.Parse("2006-01-02", fr.Week)
			if err != nil {
				p.errorf("%s: frame %d week %q is not YYYY-MM-DD", f.species, i, fr.Week)
				continue
			}
			if i > 0 && !week.After(prev) {
				p.errorf("%s: frame %d week %q does not advance past %q",
					f.species, i, fr.Week, prev.Format("2006-01-02"))
			}
			prev = week
		}
	}
	return p
}

func validateScales(fixtures []fixture) *phase {
	p := &phase{name: "Scale sanity"}
	for _, f := range fixtures {
		if f.dataset == nil {
			continue
		}
		scales := f.dataset.Scales

		if scales.Color.Min > scales.Color.Max {
			p.errorf("%s: color domain inverted [%g, %g]", f.species, scales.Color.Min, scales.Color.Max)
		}
		if scales.Radius.Min > scales.Radius.Max {
			p.errorf("%s: radius domain inverted [%g, %g]", f.species, scales.Radius.Min, scales.Radius.Max)
		}
		// Percentile clamping can only tighten the true value domain.
		if scales.Color.Min < scales.Radius.Min || scales.Color.Max > scales.Radius.Max {
			p.errorf("%s: color domain [%g, %g] exceeds value domain [%g, %g]",
				f.species, scales.Color.Min, scales.Color.Max, scales.Radius.Min, scales.Radius.Max)
		}

		b := scales.Bounds
		for i, fr := range f.dataset.Frames {
			for _, cell := range fr.Cells {
				if cell.Lon < b.MinLon || cell.Lon > b.MaxLon || cell.Lat < b.MinLat || cell.Lat > b.MaxLat {
					p.errorf("%s: frame %d cell (%g, %g) outside bounds", f.species, i, cell.Lon, cell.Lat)
					break
				}
			}
		}
	}
	return p
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
