// Package assemble merges subjects with their association results into the
// flat output table: one row per subject, one column group per channel.
package assemble

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/fieldsense/envassoc/internal/aggregate"
	"github.com/fieldsense/envassoc/internal/assoc"
	"github.com/fieldsense/envassoc/internal/detection"
	"github.com/fieldsense/envassoc/internal/units"
)

// NormalizedTempColumn is the derived FLIR column: median canopy temperature
// minus matched air temperature.
const NormalizedTempColumn = "normalized_temp"

// Row is one assembled output record.
type Row struct {
	SubjectID string
	Subject   map[string]string // native subject fields, keyed by column
	Matches   map[string]assoc.ChannelMatch
}

// Table is the final record set for one run. Rows are sorted by subject id so
// output is reproducible no matter how association was scheduled internally.
type Table struct {
	SubjectColumns []string
	Channels       []string
	Rows           []Row
}

// filterChannels drops excluded channels while preserving sorted order.
func filterChannels(channels, exclude []string) []string {
	excluded := make(map[string]bool, len(exclude))
	for _, ch := range exclude {
		excluded[ch] = true
	}
	out := make([]string, 0, len(channels))
	for _, ch := range channels {
		if !excluded[ch] {
			out = append(out, ch)
		}
	}
	return out
}

// resultsByID indexes results by subject id; every subject must have exactly
// one result.
func resultsByID(results []assoc.Result) map[string]assoc.Result {
	byID := make(map[string]assoc.Result, len(results))
	for _, r := range results {
		byID[r.SubjectID] = r
	}
	return byID
}

// BuildDetectionTable assembles per-detection output. For FLIR runs a derived
// normalized canopy temperature column is added wherever the source row
// carries a median plant temperature and the air temperature channel matched.
func BuildDetectionTable(set *detection.Set, results []assoc.Result, exclude []string) (*Table, error) {
	if len(results) != len(set.Records) {
		return nil, fmt.Errorf("assemble: %d results for %d detections", len(results), len(set.Records))
	}
	byID := resultsByID(results)

	// Subject columns: fixed identity fields, then the union of extra source
	// columns in sorted order.
	extraCols := make(map[string]bool)
	for _, rec := range set.Records {
		for k := range rec.Extra {
			extraCols[k] = true
		}
	}
	sortedExtras := make([]string, 0, len(extraCols))
	for k := range extraCols {
		sortedExtras = append(sortedExtras, k)
	}
	sort.Strings(sortedExtras)

	columns := []string{"plot_id", "timestamp", "lat", "lon", "instrument"}
	columns = append(columns, sortedExtras...)
	if set.Instrument == detection.FLIR {
		columns = append(columns, NormalizedTempColumn)
	}

	var channels []string
	table := &Table{SubjectColumns: columns}
	for _, rec := range set.Records {
		res, ok := byID[rec.ID]
		if !ok {
			return nil, fmt.Errorf("assemble: no result for detection %s", rec.ID)
		}
		if channels == nil {
			channels = filterChannels(res.Channels, exclude)
		}

		subject := map[string]string{
			"plot_id":    rec.PlotID,
			"timestamp":  rec.Timestamp.UTC().Format(time.RFC3339),
			"instrument": string(rec.Instrument),
		}
		if rec.Point != nil {
			subject["lat"] = strconv.FormatFloat(rec.Point.Lat, 'f', 8, 64)
			subject["lon"] = strconv.FormatFloat(rec.Point.Lon, 'f', 8, 64)
		}
		for k, v := range rec.Extra {
			subject[k] = v
		}
		if set.Instrument == detection.FLIR {
			if nt, ok := normalizedTemp(rec, res); ok {
				subject[NormalizedTempColumn] = strconv.FormatFloat(nt, 'f', 4, 64)
			}
		}

		table.Rows = append(table.Rows, Row{SubjectID: rec.ID, Subject: subject, Matches: res.Matches})
	}

	table.Channels = channels
	sortRows(table.Rows)
	return table, nil
}

// normalizedTemp computes median plant temperature minus matched air
// temperature for one FLIR detection.
func normalizedTemp(rec detection.Record, res assoc.Result) (float64, bool) {
	raw, ok := rec.Extra["median"]
	if !ok {
		return 0, false
	}
	median, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	m, ok := res.Matches[units.Temperature]
	if !ok || m.Status != assoc.StatusMatched || m.Value == nil {
		return 0, false
	}
	return median - *m.Value, true
}

// BuildWindowTable assembles plot-level output: one row per window with its
// membership summary and representative timestamp.
func BuildWindowTable(windows []aggregate.Window, statName string, results []assoc.Result, exclude []string) (*Table, error) {
	if len(results) != len(windows) {
		return nil, fmt.Errorf("assemble: %d results for %d windows", len(results), len(windows))
	}
	byID := resultsByID(results)

	table := &Table{
		SubjectColumns: []string{"plot_id", "window_start", "window_end", "representative_timestamp", "member_count"},
	}

	var channels []string
	for _, w := range windows {
		res, ok := byID[w.ID]
		if !ok {
			return nil, fmt.Errorf("assemble: no result for window %s", w.ID)
		}
		if channels == nil {
			channels = filterChannels(res.Channels, exclude)
		}

		subject := map[string]string{
			"plot_id":                  w.PlotID,
			"window_start":             w.Start.UTC().Format(time.RFC3339),
			"window_end":               w.End.UTC().Format(time.RFC3339),
			"representative_timestamp": w.Representative(statName).UTC().Format(time.RFC3339),
			"member_count":             strconv.Itoa(w.Members()),
		}
		table.Rows = append(table.Rows, Row{SubjectID: w.ID, Subject: subject, Matches: res.Matches})
	}

	table.Channels = channels
	sortRows(table.Rows)
	return table, nil
}

// sortRows orders rows by subject id. The sort is stable so equal ids (which
// should not occur) keep input order rather than flapping between runs.
func sortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].SubjectID < rows[j].SubjectID })
}
