package detection

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/fieldsense/envassoc/internal/geo"
	"github.com/fieldsense/envassoc/internal/monitoring"
	"github.com/fieldsense/envassoc/internal/timeutil"
)

// Capture is one gantry acquisition event extracted from the scanner
// metadata: the moment and position at which the instrument fired.
type Capture struct {
	Time     time.Time
	X, Y, Z  float64
	Point    geo.Point
	Sequence int
}

// lemnatec metadata document shape. Positions are recorded as strings with
// the unit embedded in the key name.
type lemnatecFile struct {
	Metadata struct {
		Gantry struct {
			Time string `json:"time"`
			X    string `json:"position x [m]"`
			Y    string `json:"position y [m]"`
			Z    string `json:"position z [m]"`
		} `json:"gantry_system_variable_metadata"`
	} `json:"lemnatec_measurement_metadata"`
}

// LoadGantryCaptures parses scanner metadata files into a time-ordered capture
// list. Files that fail to parse are skipped and counted; an empty result is
// left to the caller to judge (gantry metadata is optional).
func LoadGantryCaptures(paths []string) (captures []Capture, dropped int) {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			dropped++
			continue
		}
		var file lemnatecFile
		if err := json.Unmarshal(data, &file); err != nil {
			dropped++
			continue
		}

		g := file.Metadata.Gantry
		ts, err := timeutil.Parse(g.Time)
		if err != nil {
			dropped++
			continue
		}
		x, errX := strconv.ParseFloat(g.X, 64)
		y, errY := strconv.ParseFloat(g.Y, 64)
		z, errZ := strconv.ParseFloat(g.Z, 64)
		if errX != nil || errY != nil || errZ != nil {
			dropped++
			continue
		}

		x += geo.GantryOffsetX
		y += geo.GantryOffsetY
		z += geo.GantryOffsetZ

		pt, err := geo.ScanalyzerToLatLon(x, y)
		if err != nil {
			dropped++
			continue
		}
		captures = append(captures, Capture{Time: ts, X: x, Y: y, Z: z, Point: pt})
	}

	sort.Slice(captures, func(i, j int) bool { return captures[i].Time.Before(captures[j].Time) })
	for i := range captures {
		captures[i].Sequence = i
	}

	if dropped > 0 {
		monitoring.Logf("detection: dropped %d unreadable gantry metadata files", dropped)
	}
	return captures, dropped
}

// AssignTimestamps fills in timestamps for records that lack one by matching
// each record's position to the nearest gantry capture. Records without a
// position stay untimed and are excluded by the caller. Returns how many
// records were assigned.
func (s *Set) AssignTimestamps(captures []Capture) (assigned int, err error) {
	if len(captures) == 0 {
		return 0, fmt.Errorf("detection: no gantry captures to assign timestamps from")
	}

	for i := range s.Records {
		rec := &s.Records[i]
		if !rec.Timestamp.IsZero() || rec.Point == nil {
			continue
		}

		best := 0
		bestDist := geo.Haversine(*rec.Point, captures[0].Point)
		for j := 1; j < len(captures); j++ {
			if d := geo.Haversine(*rec.Point, captures[j].Point); d < bestDist {
				best = j
				bestDist = d
			}
		}

		rec.Timestamp = captures[best].Time
		if rec.Extra == nil {
			rec.Extra = make(map[string]string)
		}
		rec.Extra["capture_sequence"] = strconv.Itoa(captures[best].Sequence)
		assigned++
	}
	return assigned, nil
}

// PruneUntimed removes records that still have no timestamp after any gantry
// assignment, adding them to the excluded count. It reports how many records
// were pruned.
func (s *Set) PruneUntimed() int {
	kept := s.Records[:0]
	pruned := 0
	for _, r := range s.Records {
		if r.Timestamp.IsZero() {
			pruned++
			continue
		}
		kept = append(kept, r)
	}
	s.Records = kept
	s.Excluded += pruned
	return pruned
}
