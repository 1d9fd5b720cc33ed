package envdata

import (
	"errors"
	"sort"
	"sync"

	"github.com/fieldsense/envassoc/internal/monitoring"
)

// ErrNoReadings is returned by Build when no channel produced a single valid
// reading. A run cannot proceed without environmental data.
var ErrNoReadings = errors.New("envdata: no valid environmental readings")

// Index is the read-only set of channel series for one run. Built once before
// association begins and never mutated afterwards, so concurrent queries need
// no locking.
type Index struct {
	channels map[string]*ChannelSeries

	// DroppedRows counts source rows discarded during ingestion (unparseable
	// timestamp or value). Surfaced in the run summary.
	DroppedRows int
}

// Channels returns the known channel names in sorted order. Every consumer
// iterates channels through this method so output ordering never depends on
// map traversal.
func (ix *Index) Channels() []string {
	names := make([]string, 0, len(ix.channels))
	for name := range ix.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Series returns the series for a channel, or nil if the channel was never
// observed.
func (ix *Index) Series(channel string) *ChannelSeries {
	return ix.channels[channel]
}

// TotalReadings returns the reading count across all channels.
func (ix *Index) TotalReadings() int {
	total := 0
	for _, s := range ix.channels {
		total += len(s.readings)
	}
	return total
}

// rawReading pairs a reading with its source encounter order so that the
// last-write-wins duplicate policy is deterministic even after sorting.
type rawReading struct {
	Reading
	seq int
}

// Builder accumulates raw readings from any number of source files and
// produces an Index. Safe for use from a single goroutine; the ingestion
// helpers call Add directly.
type Builder struct {
	raw     map[string][]rawReading
	seq     int
	dropped int
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{raw: make(map[string][]rawReading)}
}

// Add records one parsed reading.
func (b *Builder) Add(r Reading) {
	b.raw[r.Channel] = append(b.raw[r.Channel], rawReading{Reading: r, seq: b.seq})
	b.seq++
}

// Drop counts a malformed source row. The row itself is discarded.
func (b *Builder) Drop() {
	b.dropped++
}

// Dropped returns the running count of discarded rows.
func (b *Builder) Dropped() int { return b.dropped }

// Build sorts and de-duplicates every channel and returns the finished Index.
// Channels are finalised in parallel; each channel's work is independent.
// Returns ErrNoReadings when the index would be empty.
func (b *Builder) Build() (*Index, error) {
	ix := &Index{
		channels:    make(map[string]*ChannelSeries, len(b.raw)),
		DroppedRows: b.dropped,
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for channel, raws := range b.raw {
		wg.Add(1)
		go func(channel string, raws []rawReading) {
			defer wg.Done()
			s := finaliseChannel(channel, raws)
			mu.Lock()
			ix.channels[channel] = s
			mu.Unlock()
		}(channel, raws)
	}
	wg.Wait()

	if ix.TotalReadings() == 0 {
		return nil, ErrNoReadings
	}

	for _, name := range ix.Channels() {
		monitoring.Logf("envdata: channel %s has %d readings", name, ix.channels[name].Len())
	}
	return ix, nil
}

// finaliseChannel sorts a channel's raw readings by timestamp and collapses
// duplicate timestamps. The later-encountered source row wins, matching the
// logger's own overwrite semantics when it re-emits a corrected sample.
func finaliseChannel(channel string, raws []rawReading) *ChannelSeries {
	sort.SliceStable(raws, func(i, j int) bool {
		if !raws[i].Timestamp.Equal(raws[j].Timestamp) {
			return raws[i].Timestamp.Before(raws[j].Timestamp)
		}
		return raws[i].seq < raws[j].seq
	})

	readings := make([]Reading, 0, len(raws))
	for _, r := range raws {
		if n := len(readings); n > 0 && readings[n-1].Timestamp.Equal(r.Timestamp) {
			readings[n-1] = r.Reading // last write wins
			continue
		}
		readings = append(readings, r.Reading)
	}

	return &ChannelSeries{channel: channel, readings: readings}
}
