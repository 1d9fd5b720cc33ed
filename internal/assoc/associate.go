// Package assoc attaches environmental readings to subjects: each detection
// (or plot window) is matched against every known channel within a tolerance
// window, producing one complete, deterministic result per subject.
package assoc

import (
	"sync"
	"time"

	"github.com/fieldsense/envassoc/internal/envdata"
	"github.com/fieldsense/envassoc/internal/geo"
)

// Status is the terminal state of one channel match.
type Status string

const (
	// StatusMatched means a reading was found within tolerance.
	StatusMatched Status = "MATCHED"
	// StatusOutOfTolerance means the channel has readings but none close
	// enough. The nearest reading's timestamp and delta are kept for
	// diagnostics.
	StatusOutOfTolerance Status = "OUT_OF_TOLERANCE"
	// StatusNoData means the channel has no readings for this subject at all
	// (empty series, or the subject falls outside every covering station).
	StatusNoData Status = "NO_DATA"
)

// ChannelMatch is the outcome for one channel on one subject.
type ChannelMatch struct {
	Status    Status
	Value     *float64
	MatchedAt *time.Time
	Delta     *time.Duration
}

// Result is one subject's complete association outcome. Matches always holds
// an entry for every channel in Channels, so the output schema is identical
// across subjects.
type Result struct {
	SubjectID string
	Channels  []string // sorted; shared across all results of a run
	Matches   map[string]ChannelMatch
}

// Subject is the entity being enriched: an individual detection or a plot
// window, reduced to the fields the engine needs.
type Subject struct {
	ID        string
	Timestamp time.Time
	Point     *geo.Point // nil disables spatial filtering for this subject
}

// Station is a resolved logger station used for spatial filtering.
type Station struct {
	Name     string
	Location geo.Point
	Coverage geo.Polygon // empty means the station covers everything
	Channels map[string]bool
}

// Associator runs tolerance-bounded nearest-reading matching over an
// immutable index. Safe for concurrent use once constructed.
type Associator struct {
	index     *envdata.Index
	tolerance time.Duration
	stations  []Station
	channels  []string // sorted once; fixes output order
}

// New builds an Associator over a finished index. Stations may be nil for the
// single-station case, which disables spatial filtering entirely.
func New(index *envdata.Index, tolerance time.Duration, stations []Station) *Associator {
	return &Associator{
		index:     index,
		tolerance: tolerance,
		stations:  stations,
		channels:  index.Channels(),
	}
}

// Channels returns the fixed, sorted channel order of this run.
func (a *Associator) Channels() []string { return a.channels }

// Associate produces the complete result for one subject.
func (a *Associator) Associate(s Subject) Result {
	res := Result{
		SubjectID: s.ID,
		Channels:  a.channels,
		Matches:   make(map[string]ChannelMatch, len(a.channels)),
	}

	for _, channel := range a.channels {
		res.Matches[channel] = a.matchChannel(channel, s)
	}
	return res
}

// AssociateAll runs Associate over every subject with at most workers
// goroutines. Results are returned in subject input order regardless of
// scheduling; the index is read-only so no locking is needed.
func (a *Associator) AssociateAll(subjects []Subject, workers int) []Result {
	results := make([]Result, len(subjects))
	if workers <= 1 || len(subjects) < 2 {
		for i, s := range subjects {
			results[i] = a.Associate(s)
		}
		return results
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = a.Associate(subjects[i])
			}
		}()
	}
	for i := range subjects {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

// matchChannel resolves one channel for one subject.
func (a *Associator) matchChannel(channel string, s Subject) ChannelMatch {
	series := a.index.Series(channel)
	if series == nil || series.Len() == 0 {
		return ChannelMatch{Status: StatusNoData}
	}

	if !a.channelEligible(channel, s) {
		return ChannelMatch{Status: StatusNoData}
	}

	if m, ok := series.NearestWithin(s.Timestamp, a.tolerance); ok {
		return ChannelMatch{
			Status:    StatusMatched,
			Value:     m.Value,
			MatchedAt: &m.MatchedAt,
			Delta:     &m.Delta,
		}
	}

	// Out of tolerance is a normal terminal state; keep the nearest
	// reading's position for diagnostics but no value.
	m, ok := series.Nearest(s.Timestamp)
	if !ok {
		return ChannelMatch{Status: StatusNoData}
	}
	return ChannelMatch{
		Status:    StatusOutOfTolerance,
		MatchedAt: &m.MatchedAt,
		Delta:     &m.Delta,
	}
}

// channelEligible applies the optional spatial station filter. A channel is
// served by the stations that declare it: if any of them covers the subject's
// position the channel is eligible; otherwise the nearest declaring station
// is selected as a fallback, and the channel is eligible only if that station
// declares it without a conflicting closer station. With zero or one station
// per channel this reduces to a no-op, which is the common single-station
// deployment.
func (a *Associator) channelEligible(channel string, s Subject) bool {
	if len(a.stations) == 0 || s.Point == nil {
		return true
	}

	declaring := make([]*Station, 0, len(a.stations))
	for i := range a.stations {
		if a.stations[i].Channels[channel] {
			declaring = append(declaring, &a.stations[i])
		}
	}
	if len(declaring) == 0 {
		// Channel observed in the data but not declared by any station;
		// filtering cannot apply.
		return true
	}

	// Covered by any declaring station: eligible.
	for _, st := range declaring {
		if len(st.Coverage) == 0 || st.Coverage.Contains(*s.Point) {
			return true
		}
	}

	// Fallback: the subject is outside every declared coverage. Find the
	// station nearest to the subject among all stations; the channel stays
	// eligible only if that nearest station declares it.
	nearest := &a.stations[0]
	nearestDist := geo.Haversine(*s.Point, nearest.Location)
	for i := 1; i < len(a.stations); i++ {
		if d := geo.Haversine(*s.Point, a.stations[i].Location); d < nearestDist {
			nearest = &a.stations[i]
			nearestDist = d
		}
	}
	return nearest.Channels[channel]
}
