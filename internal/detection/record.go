// Package detection normalizes instrument-specific detection exports into a
// single record shape. This is the only place in the pipeline that knows how
// FLIR and PS2 files differ; everything downstream is instrument-agnostic.
package detection

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fieldsense/envassoc/internal/geo"
)

// Instrument identifies the sensing pipeline that produced a detection file.
type Instrument string

const (
	// FLIR is the thermal infrared camera (plant canopy temperature).
	FLIR Instrument = "FLIR"
	// PS2 is the photosystem II fluorescence sensor.
	PS2 Instrument = "PS2"
)

// ParseInstrument validates a CLI-supplied instrument name. Case-insensitive.
func ParseInstrument(s string) (Instrument, error) {
	switch Instrument(strings.ToUpper(s)) {
	case FLIR:
		return FLIR, nil
	case PS2:
		return PS2, nil
	}
	return "", fmt.Errorf("unknown instrument %q (want FLIR or PS2)", s)
}

// ErrNoDetections is returned when, after exclusions, a detection file yields
// zero usable records. Per the error policy this is a fatal configuration
// problem, not an empty output.
var ErrNoDetections = errors.New("detection: no valid detection records")

// Record is one normalized detection event. Read-only for the lifetime of a
// run.
type Record struct {
	ID         string
	PlotID     string
	Timestamp  time.Time
	Point      *geo.Point // nil when the source row had no usable position
	Instrument Instrument

	// Extra carries the source columns that are not consumed by the engine,
	// re-emitted verbatim on the output record.
	Extra map[string]string
}

// Set is the normalized detection collection for one run.
type Set struct {
	Instrument Instrument
	Records    []Record

	// Excluded counts source rows dropped during normalization (missing or
	// unparseable timestamp). Surfaced in the run summary.
	Excluded int
}

// PlotIDs returns the distinct plot identifiers present in the set, in first
// appearance order.
func (s *Set) PlotIDs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range s.Records {
		if r.PlotID == "" || seen[r.PlotID] {
			continue
		}
		seen[r.PlotID] = true
		out = append(out, r.PlotID)
	}
	return out
}
