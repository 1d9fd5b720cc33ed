package assemble

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// Header returns the output CSV header: subject_id, the subject columns, then
// four columns per channel in sorted channel order.
func (t *Table) Header() []string {
	header := append([]string{"subject_id"}, t.SubjectColumns...)
	for _, ch := range t.Channels {
		header = append(header,
			ch+"_value",
			ch+"_matched_timestamp",
			ch+"_delta_seconds",
			ch+"_status",
		)
	}
	return header
}

// WriteCSV serializes the table. Unmatched cells are written empty with their
// status column populated, keeping the schema identical across rows.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, row := range t.Rows {
		record := make([]string, 0, 1+len(t.SubjectColumns)+4*len(t.Channels))
		record = append(record, row.SubjectID)
		for _, col := range t.SubjectColumns {
			record = append(record, row.Subject[col])
		}
		for _, ch := range t.Channels {
			m := row.Matches[ch]

			value := ""
			if m.Value != nil {
				value = strconv.FormatFloat(*m.Value, 'f', -1, 64)
			}
			matchedAt := ""
			if m.MatchedAt != nil {
				matchedAt = m.MatchedAt.UTC().Format(time.RFC3339)
			}
			delta := ""
			if m.Delta != nil {
				delta = strconv.FormatFloat(m.Delta.Seconds(), 'f', -1, 64)
			}
			record = append(record, value, matchedAt, delta, string(m.Status))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %s: %w", row.SubjectID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the table to a file path, creating or truncating it.
func (t *Table) WriteCSVFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	if err := t.WriteCSV(f); err != nil {
		return err
	}
	return f.Close()
}
