// Package config defines the run configuration for the association engine.
// The core packages receive a resolved RunConfig; only the CLI layer reads
// files, flags, or the process environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fieldsense/envassoc/internal/geo"
)

// Bucketing rules for plot-level windows.
const (
	BucketByDay = "day" // one window per plot per UTC calendar day
	BucketByGap = "gap" // contiguous runs split on a maximum intra-group gap
)

// Representative-timestamp statistics for a plot window.
const (
	StatMidpoint = "midpoint"
	StatMean     = "mean"
	StatMedian   = "median"
)

// StationConfig declares one environmental logger station: where it sits,
// which channels it serves, and optionally the coverage polygon inside which
// its readings are considered local.
type StationConfig struct {
	Name     string      `json:"name"`
	Location geo.Point   `json:"location"`
	Coverage geo.Polygon `json:"coverage,omitempty"`
	Channels []string    `json:"channels"`
}

// RunConfig holds the tunable association parameters. Fields are pointers so
// a partial JSON file can override only what it names; the schema follows the
// same convention as the CLI flags.
type RunConfig struct {
	// ToleranceSeconds is the maximum time distance for a reading to count as
	// matched. Inclusive: a delta exactly at the tolerance matches.
	ToleranceSeconds *float64 `json:"tolerance_seconds,omitempty"`

	// PlotLevel enables the aggregate pipeline: detections are grouped into
	// plot windows and associated once per window.
	PlotLevel *bool `json:"plot_level,omitempty"`

	// BucketRule selects how plot windows are formed: "day" or "gap".
	BucketRule *string `json:"bucket_rule,omitempty"`

	// GapSeconds is the maximum intra-window gap for the "gap" rule.
	GapSeconds *float64 `json:"gap_seconds,omitempty"`

	// WindowStat selects the representative timestamp of a window:
	// "midpoint", "mean" or "median".
	WindowStat *string `json:"window_stat,omitempty"`

	// Workers bounds the association worker pool. Zero or one disables
	// parallel association.
	Workers *int `json:"workers,omitempty"`

	// ExcludeChannels lists channels omitted from the output (the logger's
	// brightness channel is excluded by default; its sensor is known to
	// drift).
	ExcludeChannels []string `json:"exclude_channels,omitempty"`

	// Stations declares logger stations for spatial filtering. Empty means
	// the single-station case: no spatial filtering at all.
	Stations []StationConfig `json:"stations,omitempty"`
}

// DefaultRunConfig returns the reference configuration: five-minute
// tolerance, per-detection mode, calendar-day bucketing, midpoint windows.
func DefaultRunConfig() *RunConfig {
	return &RunConfig{
		ToleranceSeconds: ptrFloat64(300),
		PlotLevel:        ptrBool(false),
		BucketRule:       ptrString(BucketByDay),
		GapSeconds:       ptrFloat64(1800),
		WindowStat:       ptrString(StatMidpoint),
		Workers:          ptrInt(4),
		ExcludeChannels:  []string{"brightness"},
	}
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// LoadRunConfig reads a JSON config file and overlays it onto the defaults.
// Fields omitted from the file keep their default values.
func LoadRunConfig(path string) (*RunConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var overlay RunConfig
	if err := json.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := DefaultRunConfig()
	cfg.Merge(&overlay)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge overlays non-nil fields from other onto cfg.
func (cfg *RunConfig) Merge(other *RunConfig) {
	if other == nil {
		return
	}
	if other.ToleranceSeconds != nil {
		cfg.ToleranceSeconds = other.ToleranceSeconds
	}
	if other.PlotLevel != nil {
		cfg.PlotLevel = other.PlotLevel
	}
	if other.BucketRule != nil {
		cfg.BucketRule = other.BucketRule
	}
	if other.GapSeconds != nil {
		cfg.GapSeconds = other.GapSeconds
	}
	if other.WindowStat != nil {
		cfg.WindowStat = other.WindowStat
	}
	if other.Workers != nil {
		cfg.Workers = other.Workers
	}
	if other.ExcludeChannels != nil {
		cfg.ExcludeChannels = other.ExcludeChannels
	}
	if other.Stations != nil {
		cfg.Stations = other.Stations
	}
}

// Validate rejects contradictory configurations before the run starts.
func (cfg *RunConfig) Validate() error {
	if cfg.GetTolerance() <= 0 {
		return fmt.Errorf("tolerance must be positive, got %v", cfg.GetTolerance())
	}
	switch cfg.GetBucketRule() {
	case BucketByDay, BucketByGap:
	default:
		return fmt.Errorf("unknown bucket rule %q (want %q or %q)", cfg.GetBucketRule(), BucketByDay, BucketByGap)
	}
	if cfg.GetBucketRule() == BucketByGap && cfg.GetGap() <= 0 {
		return fmt.Errorf("gap bucketing requires a positive gap, got %v", cfg.GetGap())
	}
	switch cfg.GetWindowStat() {
	case StatMidpoint, StatMean, StatMedian:
	default:
		return fmt.Errorf("unknown window stat %q", cfg.GetWindowStat())
	}
	for _, st := range cfg.Stations {
		if st.Name == "" {
			return fmt.Errorf("station with empty name")
		}
		if len(st.Channels) == 0 {
			return fmt.Errorf("station %q declares no channels", st.Name)
		}
	}
	return nil
}

// GetTolerance returns the match tolerance as a duration.
func (cfg *RunConfig) GetTolerance() time.Duration {
	if cfg.ToleranceSeconds == nil {
		return 300 * time.Second
	}
	return time.Duration(*cfg.ToleranceSeconds * float64(time.Second))
}

// GetPlotLevel reports whether the aggregate pipeline is enabled.
func (cfg *RunConfig) GetPlotLevel() bool {
	return cfg.PlotLevel != nil && *cfg.PlotLevel
}

// GetBucketRule returns the plot-window bucketing rule.
func (cfg *RunConfig) GetBucketRule() string {
	if cfg.BucketRule == nil {
		return BucketByDay
	}
	return *cfg.BucketRule
}

// GetGap returns the maximum intra-window gap for gap bucketing.
func (cfg *RunConfig) GetGap() time.Duration {
	if cfg.GapSeconds == nil {
		return 1800 * time.Second
	}
	return time.Duration(*cfg.GapSeconds * float64(time.Second))
}

// GetWindowStat returns the representative-timestamp statistic.
func (cfg *RunConfig) GetWindowStat() string {
	if cfg.WindowStat == nil {
		return StatMidpoint
	}
	return *cfg.WindowStat
}

// GetWorkers returns the association worker bound (minimum 1).
func (cfg *RunConfig) GetWorkers() int {
	if cfg.Workers == nil || *cfg.Workers < 1 {
		return 1
	}
	return *cfg.Workers
}
