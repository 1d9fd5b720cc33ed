// Package aggregate groups detections into plot-level time windows so the
// association engine runs once per window instead of once per detection.
package aggregate

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/fieldsense/envassoc/internal/config"
	"github.com/fieldsense/envassoc/internal/detection"
	"github.com/fieldsense/envassoc/internal/geo"
	"github.com/fieldsense/envassoc/internal/timeutil"
)

// Window is one plot-level grouping of detections. Derived, never persisted:
// it exists only between aggregation and association.
type Window struct {
	ID        string
	PlotID    string
	Start     time.Time
	End       time.Time
	MemberIDs []string

	memberTimes []time.Time
	centroid    *geo.Point
}

// Members returns the number of detections in the window.
func (w *Window) Members() int { return len(w.MemberIDs) }

// Centroid returns the mean position of the window's located members, or nil
// when no member carried a position.
func (w *Window) Centroid() *geo.Point { return w.centroid }

// Representative returns the window's query timestamp under the configured
// statistic. Midpoint is the default: halfway between the first and last
// member. Mean and median operate on the member timestamps themselves.
func (w *Window) Representative(statName string) time.Time {
	switch statName {
	case config.StatMean:
		return timeFromSeconds(stat.Mean(w.secondsSinceStart(), nil), w.Start)
	case config.StatMedian:
		xs := w.secondsSinceStart()
		sort.Float64s(xs)
		return timeFromSeconds(stat.Quantile(0.5, stat.Empirical, xs, nil), w.Start)
	default:
		return w.Start.Add(w.End.Sub(w.Start) / 2)
	}
}

// secondsSinceStart maps member timestamps onto a float slice relative to the
// window start, keeping the values small enough that float64 arithmetic is
// exact at second granularity.
func (w *Window) secondsSinceStart() []float64 {
	xs := make([]float64, len(w.memberTimes))
	for i, t := range w.memberTimes {
		xs[i] = t.Sub(w.Start).Seconds()
	}
	return xs
}

func timeFromSeconds(s float64, base time.Time) time.Time {
	return base.Add(time.Duration(s * float64(time.Second))).Truncate(time.Second)
}

// Options selects the bucketing behaviour for one run.
type Options struct {
	Rule string        // config.BucketByDay or config.BucketByGap
	Gap  time.Duration // maximum intra-window gap for the gap rule
}

// BuildWindows partitions records by plot and buckets each plot's detections
// under the configured rule. Every usable detection lands in exactly one
// window. Records with no plot id or no timestamp cannot be bucketed; they
// are skipped and counted. Windows are returned sorted by (plot, start) so
// downstream output is reproducible.
func BuildWindows(records []detection.Record, opts Options) (windows []Window, excluded int) {
	byPlot := make(map[string][]detection.Record)
	for _, r := range records {
		if r.PlotID == "" || r.Timestamp.IsZero() {
			excluded++
			continue
		}
		byPlot[r.PlotID] = append(byPlot[r.PlotID], r)
	}

	plots := make([]string, 0, len(byPlot))
	for plot := range byPlot {
		plots = append(plots, plot)
	}
	sort.Strings(plots)

	for _, plot := range plots {
		members := byPlot[plot]
		sort.SliceStable(members, func(i, j int) bool {
			if !members[i].Timestamp.Equal(members[j].Timestamp) {
				return members[i].Timestamp.Before(members[j].Timestamp)
			}
			return members[i].ID < members[j].ID
		})

		for _, group := range bucket(members, opts) {
			windows = append(windows, newWindow(plot, group))
		}
	}
	return windows, excluded
}

// bucket splits a plot's time-ordered records into window member groups.
func bucket(members []detection.Record, opts Options) [][]detection.Record {
	var groups [][]detection.Record
	if opts.Rule == config.BucketByGap {
		var current []detection.Record
		for _, r := range members {
			if len(current) > 0 && r.Timestamp.Sub(current[len(current)-1].Timestamp) > opts.Gap {
				groups = append(groups, current)
				current = nil
			}
			current = append(current, r)
		}
		if len(current) > 0 {
			groups = append(groups, current)
		}
		return groups
	}

	// Calendar-day rule.
	var current []detection.Record
	var currentDay time.Time
	for _, r := range members {
		day := timeutil.Day(r.Timestamp)
		if len(current) > 0 && !day.Equal(currentDay) {
			groups = append(groups, current)
			current = nil
		}
		currentDay = day
		current = append(current, r)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

func newWindow(plot string, members []detection.Record) Window {
	w := Window{
		PlotID: plot,
		Start:  members[0].Timestamp,
		End:    members[len(members)-1].Timestamp,
	}
	var latSum, lonSum float64
	located := 0
	for _, r := range members {
		w.MemberIDs = append(w.MemberIDs, r.ID)
		w.memberTimes = append(w.memberTimes, r.Timestamp)
		if r.Point != nil {
			latSum += r.Point.Lat
			lonSum += r.Point.Lon
			located++
		}
	}
	if located > 0 {
		w.centroid = &geo.Point{Lat: latSum / float64(located), Lon: lonSum / float64(located)}
	}
	w.ID = fmt.Sprintf("%s_%s", plot, w.Start.UTC().Format("20060102T150405"))
	return w
}
