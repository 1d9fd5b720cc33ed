package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fieldsense/envassoc/internal/assoc"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAppliesMigrations(t *testing.T) {
	s := openTemp(t)

	for _, table := range []string{"runs", "association_results"} {
		var name string
		err := s.QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		require.NoError(t, err, "missing table %s", table)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Reopening an up-to-date archive must not fail on "no change".
	s, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestRecordRunRoundTrip(t *testing.T) {
	s := openTemp(t)

	started := time.Date(2022, 6, 1, 10, 0, 0, 0, time.UTC)
	run := RunSummary{
		RunID:              "run-1",
		Season:             "10",
		Crop:               "lettuce",
		Instrument:         "flir",
		PlotLevel:          true,
		ToleranceSeconds:   300,
		StartedAt:          started,
		FinishedAt:         started.Add(time.Minute),
		DroppedLoggerRows:  3,
		ExcludedDetections: 1,
		Subjects:           42,
		Channels:           9,
	}
	require.NoError(t, s.RecordRun(run))

	var season string
	var plotLevel, subjects int
	err := s.QueryRow(
		`SELECT season, plot_level, subjects FROM runs WHERE run_id = ?`, run.RunID,
	).Scan(&season, &plotLevel, &subjects)
	require.NoError(t, err)
	require.Equal(t, "10", season)
	require.Equal(t, 1, plotLevel)
	require.Equal(t, 42, subjects)
}

func TestRecordResultsAndStatusCounts(t *testing.T) {
	s := openTemp(t)

	value := 21.5
	at := time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC)
	delta := 90 * time.Second
	channels := []string{"humidity", "temperature"}

	results := []assoc.Result{
		{
			SubjectID: "d1",
			Channels:  channels,
			Matches: map[string]assoc.ChannelMatch{
				"temperature": {Status: assoc.StatusMatched, Value: &value, MatchedAt: &at, Delta: &delta},
				"humidity":    {Status: assoc.StatusNoData},
			},
		},
		{
			SubjectID: "d2",
			Channels:  channels,
			Matches: map[string]assoc.ChannelMatch{
				"temperature": {Status: assoc.StatusOutOfTolerance, MatchedAt: &at, Delta: &delta},
				"humidity":    {Status: assoc.StatusNoData},
			},
		},
	}
	require.NoError(t, s.RecordResults("run-1", results))

	counts, err := s.StatusCounts("run-1")
	require.NoError(t, err)
	require.Equal(t, 1, counts["temperature"][assoc.StatusMatched])
	require.Equal(t, 1, counts["temperature"][assoc.StatusOutOfTolerance])
	require.Equal(t, 2, counts["humidity"][assoc.StatusNoData])

	// Null columns stay null for non-matches.
	var nulls int
	err = s.QueryRow(
		`SELECT COUNT(*) FROM association_results WHERE value IS NULL`,
	).Scan(&nulls)
	require.NoError(t, err)
	require.Equal(t, 3, nulls)
}

func TestStatusCountsScopedToRun(t *testing.T) {
	s := openTemp(t)

	res := []assoc.Result{{
		SubjectID: "d1",
		Channels:  []string{"temperature"},
		Matches:   map[string]assoc.ChannelMatch{"temperature": {Status: assoc.StatusNoData}},
	}}
	require.NoError(t, s.RecordResults("run-a", res))
	require.NoError(t, s.RecordResults("run-b", res))

	counts, err := s.StatusCounts("run-a")
	require.NoError(t, err)
	require.Equal(t, 1, counts["temperature"][assoc.StatusNoData])
}
