package detection

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fieldsense/envassoc/internal/geo"
	"github.com/fieldsense/envassoc/internal/monitoring"
	"github.com/fieldsense/envassoc/internal/timeutil"
)

// schema describes how one instrument's CSV export maps onto Record. Column
// alternatives are tried in order; pipeline versions have renamed columns over
// the years and old exports still circulate.
type schema struct {
	idCols   []string
	plotCols []string
	timeCols []string
	latCols  []string
	lonCols  []string
}

var schemas = map[Instrument]schema{
	// FLIR detect_out exports: per-plant rows with a median canopy
	// temperature column.
	FLIR: {
		idCols:   []string{"detection_id", "plant_name", "index"},
		plotCols: []string{"plot", "plot_id", "plot_name"},
		timeCols: []string{"time", "timestamp", "date"},
		latCols:  []string{"lat", "latitude"},
		lonCols:  []string{"lon", "longitude"},
	},
	// PS2 aggregation_out exports: per-plot rows keyed by plot.
	PS2: {
		idCols:   []string{"detection_id", "Plot", "index"},
		plotCols: []string{"Plot", "plot", "plot_id"},
		timeCols: []string{"time", "timestamp", "date"},
		latCols:  []string{"lat", "Latitude", "latitude"},
		lonCols:  []string{"lon", "Longitude", "longitude"},
	},
}

// LoadCSV reads an instrument export and normalizes every row. Rows with a
// missing or unparseable timestamp are excluded and counted unless gantry
// capture metadata will supply timestamps later (allowMissingTime). A set
// with zero usable records is a fatal error.
func LoadCSV(path string, inst Instrument, allowMissingTime bool) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open detection csv: %w", err)
	}
	defer f.Close()

	set, err := readCSV(f, path, inst, allowMissingTime)
	if err != nil {
		return nil, err
	}
	monitoring.Logf("detection: %s loaded %d records (%d excluded) from %s",
		inst, len(set.Records), set.Excluded, path)
	return set, nil
}

func readCSV(f io.Reader, path string, inst Instrument, allowMissingTime bool) (*Set, error) {
	sc, ok := schemas[inst]
	if !ok {
		return nil, fmt.Errorf("no schema for instrument %q", inst)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read detection csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}

	set := &Set{Instrument: inst}
	rowNum := 0
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			set.Excluded++
			continue
		}
		rowNum++

		plot := firstField(row, col, sc.plotCols)

		ts, tsErr := timeutil.Parse(firstField(row, col, sc.timeCols))
		if tsErr != nil && !allowMissingTime {
			set.Excluded++
			continue
		}

		rec := Record{
			PlotID:     plot,
			Timestamp:  ts,
			Instrument: inst,
			Extra:      extraFields(row, header, sc),
		}

		if id := firstField(row, col, sc.idCols); id != "" {
			rec.ID = id
		} else {
			// Deterministic fallback: plot plus source row number.
			rec.ID = fmt.Sprintf("%s_%06d", plot, rowNum)
		}

		lat, latErr := strconv.ParseFloat(firstField(row, col, sc.latCols), 64)
		lon, lonErr := strconv.ParseFloat(firstField(row, col, sc.lonCols), 64)
		if latErr == nil && lonErr == nil {
			rec.Point = &geo.Point{Lat: lat, Lon: lon}
		}

		set.Records = append(set.Records, rec)
	}

	if len(set.Records) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDetections, path)
	}
	return set, nil
}

// firstField returns the first non-empty value among the schema's column
// alternatives.
func firstField(row []string, col map[string]int, names []string) string {
	for _, name := range names {
		if i, ok := col[name]; ok && i < len(row) {
			if v := strings.TrimSpace(row[i]); v != "" {
				return v
			}
		}
	}
	return ""
}

// extraFields collects the columns not claimed by the schema so they can be
// re-emitted on the output record.
func extraFields(row []string, header []string, sc schema) map[string]string {
	claimed := make(map[string]bool)
	for _, group := range [][]string{sc.idCols, sc.plotCols, sc.timeCols, sc.latCols, sc.lonCols} {
		for _, name := range group {
			claimed[name] = true
		}
	}

	extra := make(map[string]string)
	for i, name := range header {
		name = strings.TrimSpace(name)
		if claimed[name] || i >= len(row) {
			continue
		}
		extra[name] = strings.TrimSpace(row[i])
	}
	return extra
}
