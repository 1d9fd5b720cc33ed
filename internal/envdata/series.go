// Package envdata builds the per-channel environmental time series index and
// answers nearest-reading queries against it.
package envdata

import (
	"sort"
	"time"
)

// Reading is one sample from one environmental channel. Value is nil when the
// logger reported the sample but could not produce a number (open sensor,
// logged as blank).
type Reading struct {
	Timestamp time.Time
	Channel   string
	Value     *float64
}

// Match is the outcome of a nearest-reading query.
type Match struct {
	Value     *float64
	MatchedAt time.Time
	Delta     time.Duration
}

// ChannelSeries holds the readings for a single channel, sorted by timestamp
// with duplicates resolved. Immutable once built; safe for concurrent reads.
type ChannelSeries struct {
	channel  string
	readings []Reading
}

// Channel returns the channel name.
func (s *ChannelSeries) Channel() string { return s.channel }

// Len returns the number of readings in the series.
func (s *ChannelSeries) Len() int { return len(s.readings) }

// At returns the i-th reading in timestamp order.
func (s *ChannelSeries) At(i int) Reading { return s.readings[i] }

// Nearest returns the reading closest in time to t, searching by binary
// bracket: the two readings straddling t are compared and the one with the
// smaller absolute delta wins. When both are equidistant the earlier reading
// wins, so repeated runs produce identical output. ok is false only for an
// empty series.
func (s *ChannelSeries) Nearest(t time.Time) (Match, bool) {
	n := len(s.readings)
	if n == 0 {
		return Match{}, false
	}

	// First index with timestamp >= t.
	idx := sort.Search(n, func(i int) bool {
		return !s.readings[i].Timestamp.Before(t)
	})

	pick := -1
	var pickDelta time.Duration
	for _, i := range []int{idx - 1, idx} {
		if i < 0 || i >= n {
			continue
		}
		d := absDuration(s.readings[i].Timestamp.Sub(t))
		// Strict < keeps the earlier neighbour on an exact tie.
		if pick == -1 || d < pickDelta {
			pick = i
			pickDelta = d
		}
	}

	r := s.readings[pick]
	return Match{Value: r.Value, MatchedAt: r.Timestamp, Delta: pickDelta}, true
}

// Range returns the readings with from <= timestamp <= to, in timestamp
// order. The returned slice aliases the series and must not be mutated.
func (s *ChannelSeries) Range(from, to time.Time) []Reading {
	n := len(s.readings)
	lo := sort.Search(n, func(i int) bool {
		return !s.readings[i].Timestamp.Before(from)
	})
	hi := sort.Search(n, func(i int) bool {
		return s.readings[i].Timestamp.After(to)
	})
	if lo >= hi {
		return nil
	}
	return s.readings[lo:hi]
}

// NearestWithin returns the reading closest to t if its delta is within
// tolerance (inclusive: delta == tolerance still matches). ok is false when
// the series is empty or the nearest reading is out of tolerance.
func (s *ChannelSeries) NearestWithin(t time.Time, tolerance time.Duration) (Match, bool) {
	m, ok := s.Nearest(t)
	if !ok || m.Delta > tolerance {
		return Match{}, false
	}
	return m, true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
