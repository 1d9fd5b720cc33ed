package assoc

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/fieldsense/envassoc/internal/envdata"
	"github.com/fieldsense/envassoc/internal/geo"
)

var base = time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC)

func minute(m int) time.Time { return base.Add(time.Duration(m) * time.Minute) }

func ptr(v float64) *float64 { return &v }

// scenarioIndex builds the reference scenario: air_temp readings at minutes
// 0, 5, 10 with values 20, 21, 22, plus an empty-only wind channel declared
// through a single reading on another channel set.
func scenarioIndex(t *testing.T) *envdata.Index {
	t.Helper()
	b := envdata.NewBuilder()
	for i, m := range []int{0, 5, 10} {
		b.Add(envdata.Reading{Timestamp: minute(m), Channel: "air_temp", Value: ptr(float64(20 + i))})
	}
	b.Add(envdata.Reading{Timestamp: minute(0), Channel: "humidity", Value: ptr(50)})
	ix, err := b.Build()
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	return ix
}

func TestAssociateReferenceScenario(t *testing.T) {
	a := New(scenarioIndex(t), 3*time.Minute, nil)

	// Detection at minute 4 matches minute 5 (delta 1) over minute 0 (delta 4).
	res := a.Associate(Subject{ID: "d1", Timestamp: minute(4)})
	m := res.Matches["air_temp"]
	if m.Status != StatusMatched {
		t.Fatalf("status = %s, want MATCHED", m.Status)
	}
	if *m.Value != 21 || !m.MatchedAt.Equal(minute(5)) || *m.Delta != time.Minute {
		t.Errorf("match = value %v at %v delta %v", *m.Value, m.MatchedAt, m.Delta)
	}

	// Detection at minute 13: delta to minute 10 is exactly the tolerance.
	res = a.Associate(Subject{ID: "d2", Timestamp: minute(13)})
	if m := res.Matches["air_temp"]; m.Status != StatusMatched || *m.Value != 22 {
		t.Errorf("boundary delta should match: %+v", m)
	}

	// Detection at minute 14: delta 4, out of tolerance, diagnostics kept.
	res = a.Associate(Subject{ID: "d3", Timestamp: minute(14)})
	m = res.Matches["air_temp"]
	if m.Status != StatusOutOfTolerance {
		t.Fatalf("status = %s, want OUT_OF_TOLERANCE", m.Status)
	}
	if m.Value != nil {
		t.Error("out-of-tolerance match must carry no value")
	}
	if m.MatchedAt == nil || !m.MatchedAt.Equal(minute(10)) || *m.Delta != 4*time.Minute {
		t.Errorf("diagnostics = at %v delta %v, want nearest minute 10 delta 4m", m.MatchedAt, m.Delta)
	}
}

func TestAssociateCoversEveryChannel(t *testing.T) {
	ix := scenarioIndex(t)
	a := New(ix, 3*time.Minute, nil)

	// Minute 30: humidity is far out of tolerance, air_temp too; both entries
	// must still be present.
	res := a.Associate(Subject{ID: "d1", Timestamp: minute(30)})
	if len(res.Matches) != len(ix.Channels()) {
		t.Fatalf("result has %d channels, want %d", len(res.Matches), len(ix.Channels()))
	}
	for _, ch := range ix.Channels() {
		if _, ok := res.Matches[ch]; !ok {
			t.Errorf("channel %s missing from result", ch)
		}
	}
}

func TestAssociateTieBreakEarlier(t *testing.T) {
	a := New(scenarioIndex(t), 5*time.Minute, nil)

	// Minute 2.5 is equidistant between readings at minutes 0 and 5.
	res := a.Associate(Subject{ID: "d1", Timestamp: base.Add(150 * time.Second)})
	m := res.Matches["air_temp"]
	if !m.MatchedAt.Equal(minute(0)) {
		t.Errorf("tie matched %v, want the earlier reading", m.MatchedAt)
	}
}

func TestAssociateAllDeterministic(t *testing.T) {
	a := New(scenarioIndex(t), 3*time.Minute, nil)

	subjects := make([]Subject, 50)
	for i := range subjects {
		subjects[i] = Subject{ID: string(rune('a' + i%26)), Timestamp: minute(i % 20)}
	}

	// Parallel and serial execution must produce identical results.
	serial := a.AssociateAll(subjects, 1)
	parallel := a.AssociateAll(subjects, 8)
	if diff := cmp.Diff(serial, parallel); diff != "" {
		t.Errorf("parallel association differs from serial (-serial +parallel):\n%s", diff)
	}

	again := a.AssociateAll(subjects, 8)
	if diff := cmp.Diff(parallel, again); diff != "" {
		t.Errorf("repeated run differs:\n%s", diff)
	}
}

func TestChannelOrderFixed(t *testing.T) {
	a := New(scenarioIndex(t), 3*time.Minute, nil)
	res := a.Associate(Subject{ID: "d1", Timestamp: minute(0)})

	want := []string{"air_temp", "humidity"}
	if diff := cmp.Diff(want, res.Channels); diff != "" {
		t.Errorf("channel order:\n%s", diff)
	}
}

func TestStationCoverageFiltering(t *testing.T) {
	ix := scenarioIndex(t)

	north := geo.Polygon{
		{Lat: 33.08, Lon: -112.0}, {Lat: 33.08, Lon: -111.9},
		{Lat: 33.09, Lon: -111.9}, {Lat: 33.09, Lon: -112.0},
	}
	stations := []Station{
		{
			Name:     "north",
			Location: geo.Point{Lat: 33.085, Lon: -111.95},
			Coverage: north,
			Channels: map[string]bool{"air_temp": true, "humidity": true},
		},
		{
			Name:     "south",
			Location: geo.Point{Lat: 33.05, Lon: -111.95},
			Channels: map[string]bool{"humidity": true},
		},
	}
	a := New(ix, 3*time.Minute, stations)

	// Inside the north coverage: air_temp eligible and matched.
	inside := &geo.Point{Lat: 33.085, Lon: -111.95}
	res := a.Associate(Subject{ID: "in", Timestamp: minute(0), Point: inside})
	if res.Matches["air_temp"].Status != StatusMatched {
		t.Errorf("inside coverage: air_temp = %s, want MATCHED", res.Matches["air_temp"].Status)
	}

	// Far south of the coverage: nearest station is south, which does not
	// declare air_temp, so air_temp reports NO_DATA; humidity stays eligible
	// because south has no coverage polygon.
	outside := &geo.Point{Lat: 33.04, Lon: -111.95}
	res = a.Associate(Subject{ID: "out", Timestamp: minute(0), Point: outside})
	if res.Matches["air_temp"].Status != StatusNoData {
		t.Errorf("outside coverage: air_temp = %s, want NO_DATA", res.Matches["air_temp"].Status)
	}
	if res.Matches["humidity"].Status != StatusMatched {
		t.Errorf("outside coverage: humidity = %s, want MATCHED", res.Matches["humidity"].Status)
	}
}

func TestSingleStationIsNoOp(t *testing.T) {
	ix := scenarioIndex(t)
	stations := []Station{{
		Name:     "only",
		Location: geo.Point{Lat: 33.07, Lon: -111.97},
		Channels: map[string]bool{"air_temp": true, "humidity": true},
	}}

	filtered := New(ix, 3*time.Minute, stations)
	unfiltered := New(ix, 3*time.Minute, nil)

	s := Subject{ID: "d1", Timestamp: minute(4), Point: &geo.Point{Lat: 40, Lon: -100}}
	if diff := cmp.Diff(unfiltered.Associate(s), filtered.Associate(s)); diff != "" {
		t.Errorf("single station should not filter:\n%s", diff)
	}
}

func TestNoGeometrySkipsFiltering(t *testing.T) {
	ix := scenarioIndex(t)
	stations := []Station{{
		Name:     "north",
		Location: geo.Point{Lat: 33.085, Lon: -111.95},
		Coverage: geo.Polygon{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 1, Lon: 1}},
		Channels: map[string]bool{"air_temp": true},
	}}
	a := New(ix, 3*time.Minute, stations)

	res := a.Associate(Subject{ID: "d1", Timestamp: minute(4)})
	if res.Matches["air_temp"].Status != StatusMatched {
		t.Errorf("subject without geometry should bypass spatial filtering, got %s",
			res.Matches["air_temp"].Status)
	}
}
