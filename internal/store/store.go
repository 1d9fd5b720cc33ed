// Package store archives run summaries and association results in a local
// sqlite database so past runs can be compared and re-reported without
// re-processing the source data.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fieldsense/envassoc/internal/assoc"
)

// Store wraps the run archive database.
type Store struct {
	*sql.DB
}

// Open opens (or creates) the archive at path and applies pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run archive: %w", err)
	}

	s := &Store{db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// RunSummary captures one run's identity, configuration and counters.
type RunSummary struct {
	RunID            string
	Season           string
	Crop             string
	Instrument       string
	PlotLevel        bool
	ToleranceSeconds float64
	StartedAt        time.Time
	FinishedAt       time.Time

	DroppedLoggerRows       int
	ExcludedDetections      int
	ExcludedFromAggregation int

	Subjects int
	Channels int
}

// RecordRun inserts the run summary row.
func (s *Store) RecordRun(run RunSummary) error {
	_, err := s.Exec(`
		INSERT INTO runs (
			run_id, season, crop, instrument, plot_level, tolerance_seconds,
			started_at, finished_at, dropped_logger_rows, excluded_detections,
			excluded_from_aggregation, subjects, channels
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Season, run.Crop, run.Instrument, boolToInt(run.PlotLevel),
		run.ToleranceSeconds, run.StartedAt.UTC().Format(time.RFC3339),
		run.FinishedAt.UTC().Format(time.RFC3339), run.DroppedLoggerRows,
		run.ExcludedDetections, run.ExcludedFromAggregation, run.Subjects, run.Channels,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.RunID, err)
	}
	return nil
}

// RecordResults bulk-inserts a run's association results inside one
// transaction. Channel order within a subject follows the result's own fixed
// ordering.
func (s *Store) RecordResults(runID string, results []assoc.Result) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO association_results (
			run_id, subject_id, channel, status, value, matched_timestamp, delta_seconds
		) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, res := range results {
		for _, channel := range res.Channels {
			m := res.Matches[channel]

			var value sql.NullFloat64
			if m.Value != nil {
				value = sql.NullFloat64{Float64: *m.Value, Valid: true}
			}
			var matchedAt sql.NullString
			if m.MatchedAt != nil {
				matchedAt = sql.NullString{String: m.MatchedAt.UTC().Format(time.RFC3339), Valid: true}
			}
			var delta sql.NullFloat64
			if m.Delta != nil {
				delta = sql.NullFloat64{Float64: m.Delta.Seconds(), Valid: true}
			}

			if _, err := stmt.Exec(runID, res.SubjectID, channel, string(m.Status), value, matchedAt, delta); err != nil {
				return fmt.Errorf("record result %s/%s: %w", res.SubjectID, channel, err)
			}
		}
	}
	return tx.Commit()
}

// StatusCounts returns, per channel, how many subjects ended in each status
// for the given run.
func (s *Store) StatusCounts(runID string) (map[string]map[assoc.Status]int, error) {
	rows, err := s.Query(`
		SELECT channel, status, COUNT(*)
		FROM association_results
		WHERE run_id = ?
		GROUP BY channel, status`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]map[assoc.Status]int)
	for rows.Next() {
		var channel, status string
		var n int
		if err := rows.Scan(&channel, &status, &n); err != nil {
			return nil, err
		}
		if counts[channel] == nil {
			counts[channel] = make(map[assoc.Status]int)
		}
		counts[channel][assoc.Status(status)] = n
	}
	return counts, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
