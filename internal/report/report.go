// Package report renders an HTML run report: one chart per environmental
// channel plus a status breakdown, for eyeballing a run before the output
// CSV goes downstream.
package report

import (
	"fmt"
	"os"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/fieldsense/envassoc/internal/assemble"
	"github.com/fieldsense/envassoc/internal/assoc"
	"github.com/fieldsense/envassoc/internal/envdata"
	"github.com/fieldsense/envassoc/internal/units"
)

// maxSeriesPoints bounds the chart payload; dense loggers produce hundreds of
// thousands of readings per season and the report only needs the shape.
const maxSeriesPoints = 4000

// WriteRunReport renders the report for one finished run to an HTML file.
// counts is the per-channel status tally, normally read back from the run
// archive; pass nil to tally the in-memory table instead.
func WriteRunReport(path, runID string, index *envdata.Index, table *assemble.Table, counts map[string]map[assoc.Status]int) error {
	if counts == nil {
		counts = tableStatusCounts(table)
	}

	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("envassoc run %s", runID)

	page.AddCharts(statusBreakdown(table.Channels, len(table.Rows), counts))
	for _, channel := range table.Channels {
		if series := index.Series(channel); series != nil && series.Len() > 0 {
			page.AddCharts(channelChart(series))
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

// channelChart plots one channel's series, downsampled by stride.
func channelChart(series *envdata.ChannelSeries) *charts.Line {
	stride := 1
	if series.Len() > maxSeriesPoints {
		stride = series.Len()/maxSeriesPoints + 1
	}

	var xs []string
	var ys []opts.LineData
	for i := 0; i < series.Len(); i += stride {
		r := series.At(i)
		xs = append(xs, r.Timestamp.UTC().Format(time.RFC3339))
		if r.Value != nil {
			ys = append(ys, opts.LineData{Value: *r.Value})
		} else {
			ys = append(ys, opts.LineData{Value: nil})
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    units.Label(series.Channel()),
			Subtitle: fmt.Sprintf("%d readings, stride %d", series.Len(), stride),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: units.Unit(series.Channel())}),
	)
	line.SetXAxis(xs).AddSeries(series.Channel(), ys)
	return line
}

// tableStatusCounts tallies the per-channel statuses directly from the
// assembled table, for runs that skipped the archive.
func tableStatusCounts(table *assemble.Table) map[string]map[assoc.Status]int {
	counts := make(map[string]map[assoc.Status]int, len(table.Channels))
	for _, channel := range table.Channels {
		counts[channel] = make(map[assoc.Status]int)
		for _, row := range table.Rows {
			counts[channel][row.Matches[channel].Status]++
		}
	}
	return counts
}

// statusBreakdown renders matched / out-of-tolerance / no-data counts per
// channel across all subjects.
func statusBreakdown(channels []string, subjects int, counts map[string]map[assoc.Status]int) *charts.Bar {
	matched := make([]opts.BarData, len(channels))
	outOfTol := make([]opts.BarData, len(channels))
	noData := make([]opts.BarData, len(channels))

	for i, channel := range channels {
		c := counts[channel]
		matched[i] = opts.BarData{Value: c[assoc.StatusMatched]}
		outOfTol[i] = opts.BarData{Value: c[assoc.StatusOutOfTolerance]}
		noData[i] = opts.BarData{Value: c[assoc.StatusNoData]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Association status by channel",
			Subtitle: fmt.Sprintf("%d subjects", subjects),
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(channels).
		AddSeries("matched", matched).
		AddSeries("out of tolerance", outOfTol).
		AddSeries("no data", noData)
	return bar
}
