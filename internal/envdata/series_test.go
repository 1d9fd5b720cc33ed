package envdata

import (
	"testing"
	"time"
)

var base = time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC)

func minute(m int) time.Time { return base.Add(time.Duration(m) * time.Minute) }

func ptr(v float64) *float64 { return &v }

// buildSeries builds a single-channel series from (minute, value) pairs.
func buildSeries(t *testing.T, pairs ...struct {
	m int
	v float64
}) *ChannelSeries {
	t.Helper()
	b := NewBuilder()
	for _, p := range pairs {
		b.Add(Reading{Timestamp: minute(p.m), Channel: "air_temp", Value: ptr(p.v)})
	}
	ix, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return ix.Series("air_temp")
}

func pair(m int, v float64) struct {
	m int
	v float64
} {
	return struct {
		m int
		v float64
	}{m, v}
}

// Readings at minutes 0, 5, 10 with tolerance 3: the reference scenario.
func scenarioSeries(t *testing.T) *ChannelSeries {
	return buildSeries(t, pair(0, 20), pair(5, 21), pair(10, 22))
}

func TestNearestPicksCloserNeighbour(t *testing.T) {
	s := scenarioSeries(t)

	// Minute 4: delta 1 to minute 5 beats delta 4 to minute 0.
	m, ok := s.Nearest(minute(4))
	if !ok {
		t.Fatal("Nearest returned no match")
	}
	if !m.MatchedAt.Equal(minute(5)) {
		t.Errorf("matched %v, want minute 5", m.MatchedAt)
	}
	if m.Delta != time.Minute {
		t.Errorf("delta = %v, want 1m", m.Delta)
	}
	if m.Value == nil || *m.Value != 21 {
		t.Errorf("value = %v, want 21", m.Value)
	}
}

func TestNearestWithinToleranceBoundary(t *testing.T) {
	s := scenarioSeries(t)
	tolerance := 3 * time.Minute

	// Minute 13 is exactly tolerance away from minute 10: inclusive match.
	m, ok := s.NearestWithin(minute(13), tolerance)
	if !ok {
		t.Fatal("delta == tolerance should match")
	}
	if !m.MatchedAt.Equal(minute(10)) || *m.Value != 22 {
		t.Errorf("matched %v value %v, want minute 10 value 22", m.MatchedAt, m.Value)
	}

	// One second past the boundary: out of tolerance.
	if _, ok := s.NearestWithin(minute(13).Add(time.Second), tolerance); ok {
		t.Error("delta == tolerance + 1s should not match")
	}
}

func TestNearestTieBreakPrefersEarlier(t *testing.T) {
	s := scenarioSeries(t)

	// Minute 2.5 is equidistant from minutes 0 and 5.
	m, ok := s.Nearest(base.Add(150 * time.Second))
	if !ok {
		t.Fatal("Nearest returned no match")
	}
	if !m.MatchedAt.Equal(minute(0)) {
		t.Errorf("equidistant tie matched %v, want the earlier reading at minute 0", m.MatchedAt)
	}
}

func TestNearestBeforeFirstAndAfterLast(t *testing.T) {
	s := scenarioSeries(t)

	m, _ := s.Nearest(minute(-7))
	if !m.MatchedAt.Equal(minute(0)) || m.Delta != 7*time.Minute {
		t.Errorf("query before series start: matched %v delta %v", m.MatchedAt, m.Delta)
	}

	m, _ = s.Nearest(minute(42))
	if !m.MatchedAt.Equal(minute(10)) || m.Delta != 32*time.Minute {
		t.Errorf("query after series end: matched %v delta %v", m.MatchedAt, m.Delta)
	}
}

func TestRange(t *testing.T) {
	s := scenarioSeries(t)

	got := s.Range(minute(0), minute(5))
	if len(got) != 2 || !got[0].Timestamp.Equal(minute(0)) || !got[1].Timestamp.Equal(minute(5)) {
		t.Errorf("Range(0, 5) = %v, want readings at minutes 0 and 5", got)
	}

	// Bounds are inclusive on both ends.
	got = s.Range(minute(5), minute(10))
	if len(got) != 2 {
		t.Errorf("Range(5, 10) returned %d readings, want 2", len(got))
	}

	if got := s.Range(minute(1), minute(4)); got != nil {
		t.Errorf("Range over a gap = %v, want nil", got)
	}
	if got := s.Range(minute(11), minute(20)); got != nil {
		t.Errorf("Range past series end = %v, want nil", got)
	}
}

func TestNearestEmptySeries(t *testing.T) {
	s := &ChannelSeries{channel: "empty"}
	if _, ok := s.Nearest(minute(0)); ok {
		t.Error("empty series should return no match")
	}
	if _, ok := s.NearestWithin(minute(0), time.Hour); ok {
		t.Error("empty series should return no match within any tolerance")
	}
}
