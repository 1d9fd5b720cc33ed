// Command envassoc fuses environmental-logger telemetry with plant-detection
// events for one season/crop/instrument run, attaching to every detection (or
// plot window) the environmental conditions in effect at its timestamp.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/fieldsense/envassoc/internal/aggregate"
	"github.com/fieldsense/envassoc/internal/assemble"
	"github.com/fieldsense/envassoc/internal/assoc"
	"github.com/fieldsense/envassoc/internal/config"
	"github.com/fieldsense/envassoc/internal/detection"
	"github.com/fieldsense/envassoc/internal/envdata"
	"github.com/fieldsense/envassoc/internal/monitoring"
	"github.com/fieldsense/envassoc/internal/report"
	"github.com/fieldsense/envassoc/internal/store"
	"github.com/fieldsense/envassoc/internal/units"
	"github.com/fieldsense/envassoc/internal/version"
)

var (
	season     = flag.String("season", "", "Season number (10-19)")
	crop       = flag.String("crop", "", "Crop name (lettuce, sorghum)")
	instrument = flag.String("instrument", "", "Instrument that produced the detections (FLIR or PS2)")
	level      = flag.Int("level", 1, "Detection data level (0-4)")

	dataDir    = flag.String("data", "", "Local data directory (default $ENVASSOC_DATA_DIR)")
	loggerArg  = flag.String("logger", "", "Comma-separated logger files or directories (overrides -data layout)")
	detections = flag.String("detections", "", "Detection CSV path (overrides -data layout)")
	gantryDir  = flag.String("gantry", "", "Directory of gantry metadata JSON for timestamp assignment")

	outDir      = flag.String("out", "environmental_association", "Output directory")
	configPath  = flag.String("config", "", "Optional run configuration JSON")
	plotLevel   = flag.Bool("plot-level", false, "Aggregate detections into plot windows before association")
	tolerance   = flag.Duration("tolerance", 0, "Match tolerance (overrides config, e.g. 5m)")
	archive     = flag.String("archive", "", "Run archive sqlite path (default <out>/envassoc.db, \"none\" disables)")
	htmlReport  = flag.Bool("report", true, "Write an HTML run report alongside the output CSV")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("envassoc %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	// .env is a CLI convenience only; the core receives explicit paths.
	_ = godotenv.Load()
	if *dataDir == "" {
		*dataDir = os.Getenv("ENVASSOC_DATA_DIR")
	}

	if err := run(); err != nil {
		log.Fatalf("envassoc: %v", err)
	}
}

func run() error {
	inst, err := validateFlags()
	if err != nil {
		return err
	}
	*instrument = string(inst) // canonical casing for paths and output names

	cfg := config.DefaultRunConfig()
	if *configPath != "" {
		cfg, err = config.LoadRunConfig(*configPath)
		if err != nil {
			return err
		}
	}
	if *tolerance > 0 {
		secs := tolerance.Seconds()
		cfg.ToleranceSeconds = &secs
	}
	if *plotLevel {
		enabled := true
		cfg.PlotLevel = &enabled
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	paths := config.ResolveDataPaths(*dataDir, *season, *instrument, *level)

	index, err := buildIndex(paths)
	if err != nil {
		return err
	}

	batches, err := loadDetections(paths, inst)
	if err != nil {
		return err
	}

	stations := resolveStations(cfg)
	associator := assoc.New(index, cfg.GetTolerance(), stations)

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	for _, b := range batches {
		if err := runBatch(cfg, b, index, associator); err != nil {
			return fmt.Errorf("batch %s: %w", b.name, err)
		}
	}
	return nil
}

// runBatch associates one detection file (normally one acquisition date) and
// writes its CSV, archive record, and report.
func runBatch(cfg *config.RunConfig, b detectionBatch, index *envdata.Index, associator *assoc.Associator) error {
	startedAt := time.Now().UTC()

	var table *assemble.Table
	var results []assoc.Result
	var err error
	excludedFromAggregation := 0
	if cfg.GetPlotLevel() {
		table, results, excludedFromAggregation, err = runPlotLevel(cfg, b.set, associator)
	} else {
		table, results, err = runPerDetection(cfg, b.set, associator)
	}
	if err != nil {
		return err
	}

	outName := fmt.Sprintf("%s_%s_environmental_association.csv", b.name, *crop)
	outPath := filepath.Join(*outDir, outName)
	if err := table.WriteCSVFile(outPath); err != nil {
		return err
	}
	monitoring.Logf("wrote %d records to %s", len(table.Rows), outPath)

	summary := store.RunSummary{
		RunID:                   uuid.NewString(),
		Season:                  *season,
		Crop:                    *crop,
		Instrument:              *instrument,
		PlotLevel:               cfg.GetPlotLevel(),
		ToleranceSeconds:        cfg.GetTolerance().Seconds(),
		StartedAt:               startedAt,
		FinishedAt:              time.Now().UTC(),
		DroppedLoggerRows:       index.DroppedRows,
		ExcludedDetections:      b.set.Excluded,
		ExcludedFromAggregation: excludedFromAggregation,
		Subjects:                len(results),
		Channels:                len(associator.Channels()),
	}

	counts, err := archiveRun(summary, results)
	if err != nil {
		return err
	}

	if *htmlReport {
		reportPath := filepath.Join(*outDir, strings.TrimSuffix(outName, ".csv")+".html")
		if err := report.WriteRunReport(reportPath, summary.RunID, index, table, counts); err != nil {
			return err
		}
		monitoring.Logf("wrote run report to %s", reportPath)
	}

	monitoring.Logf("run %s complete: %d subjects, %d channels, %d logger rows dropped, %d detections excluded",
		summary.RunID, summary.Subjects, summary.Channels, summary.DroppedLoggerRows,
		summary.ExcludedDetections+summary.ExcludedFromAggregation)
	return nil
}

func validateFlags() (detection.Instrument, error) {
	if !slices.Contains(config.ValidSeasons(), *season) {
		return "", fmt.Errorf("invalid season %q (want one of %s)", *season, strings.Join(config.ValidSeasons(), ", "))
	}
	if !slices.Contains(config.ValidCrops, *crop) {
		return "", fmt.Errorf("invalid crop %q (want one of %s)", *crop, strings.Join(config.ValidCrops, ", "))
	}
	inst, err := detection.ParseInstrument(*instrument)
	if err != nil {
		return "", err
	}
	if *level < 0 || *level > 4 {
		return "", fmt.Errorf("invalid data level %d (want 0-4)", *level)
	}
	if *dataDir == "" && (*loggerArg == "" || *detections == "") {
		return "", fmt.Errorf("no data directory: pass -data, set ENVASSOC_DATA_DIR, or give -logger and -detections explicitly")
	}
	return inst, nil
}

// buildIndex ingests every logger file into one index. Explicit -logger paths
// win over the conventional layout under -data.
func buildIndex(paths config.DataPaths) (*envdata.Index, error) {
	files, err := loggerFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no logger files found")
	}

	builder := envdata.NewBuilder()
	if err := builder.ReadLoggerFiles(files); err != nil {
		return nil, err
	}
	index, err := builder.Build()
	if err != nil {
		return nil, err
	}
	monitoring.Logf("indexed %d readings across %d channels (%d rows dropped)",
		index.TotalReadings(), len(index.Channels()), index.DroppedRows)
	for _, ch := range index.Channels() {
		if !units.IsDeclared(ch) {
			monitoring.Logf("channel %s has no declared unit; values pass through unlabelled", ch)
		}
	}
	return index, nil
}

func loggerFiles(paths config.DataPaths) ([]string, error) {
	if *loggerArg != "" {
		var files []string
		for _, entry := range strings.Split(*loggerArg, ",") {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			expanded, err := expandDir(entry)
			if err != nil {
				return nil, err
			}
			files = append(files, expanded...)
		}
		return files, nil
	}
	return expandDir(paths.LoggerDir)
}

// expandDir returns the file itself for a file path, or the sorted logger
// files directly inside a directory.
func expandDir(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	for _, pattern := range []string{"*.csv", "*.json"} {
		matches, err := filepath.Glob(filepath.Join(path, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	slices.Sort(files)
	return files, nil
}

// detectionBatch is one detection CSV loaded and timestamped, keyed by its
// file stem (the acquisition date under the conventional layout).
type detectionBatch struct {
	name string
	set  *detection.Set
}

// loadDetections loads every detection CSV under the conventional layout, one
// batch per file, in sorted order. An explicit -detections path yields a
// single batch.
func loadDetections(paths config.DataPaths, inst detection.Instrument) ([]detectionBatch, error) {
	files := []string{*detections}
	if *detections == "" {
		matches, err := filepath.Glob(filepath.Join(paths.DetectionDir, "*.csv"))
		if err != nil || len(matches) == 0 {
			return nil, fmt.Errorf("no detection csv under %s (or pass -detections)", paths.DetectionDir)
		}
		slices.Sort(matches)
		files = matches
	}

	var captures []detection.Capture
	if *gantryDir != "" {
		metaFiles, err := filepath.Glob(filepath.Join(*gantryDir, "*.json"))
		if err != nil {
			return nil, err
		}
		slices.Sort(metaFiles)
		captures, _ = detection.LoadGantryCaptures(metaFiles)
	}

	batches := make([]detectionBatch, 0, len(files))
	for _, path := range files {
		set, err := detection.LoadCSV(path, inst, *gantryDir != "")
		if err != nil {
			return nil, err
		}

		if *gantryDir != "" {
			assigned, err := set.AssignTimestamps(captures)
			if err != nil {
				return nil, err
			}
			monitoring.Logf("assigned timestamps to %d detections from %d gantry captures", assigned, len(captures))
			if pruned := set.PruneUntimed(); pruned > 0 {
				monitoring.Logf("excluded %d detections with no assignable timestamp", pruned)
			}
			if len(set.Records) == 0 {
				return nil, detection.ErrNoDetections
			}
		}
		batches = append(batches, detectionBatch{name: batchName(path), set: set})
	}
	monitoring.Logf("loaded %d detection batches", len(batches))
	return batches, nil
}

func batchName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func resolveStations(cfg *config.RunConfig) []assoc.Station {
	stations := make([]assoc.Station, 0, len(cfg.Stations))
	for _, sc := range cfg.Stations {
		channels := make(map[string]bool, len(sc.Channels))
		for _, ch := range sc.Channels {
			channels[ch] = true
		}
		stations = append(stations, assoc.Station{
			Name:     sc.Name,
			Location: sc.Location,
			Coverage: sc.Coverage,
			Channels: channels,
		})
	}
	return stations
}

func runPerDetection(cfg *config.RunConfig, set *detection.Set, associator *assoc.Associator) (*assemble.Table, []assoc.Result, error) {
	subjects := make([]assoc.Subject, len(set.Records))
	for i, rec := range set.Records {
		subjects[i] = assoc.Subject{ID: rec.ID, Timestamp: rec.Timestamp, Point: rec.Point}
	}

	results := associator.AssociateAll(subjects, cfg.GetWorkers())
	table, err := assemble.BuildDetectionTable(set, results, cfg.ExcludeChannels)
	return table, results, err
}

func runPlotLevel(cfg *config.RunConfig, set *detection.Set, associator *assoc.Associator) (*assemble.Table, []assoc.Result, int, error) {
	if len(set.PlotIDs()) == 0 {
		return nil, nil, 0, fmt.Errorf("plot-level mode requested but no detection carries a plot id")
	}

	windows, excluded := aggregate.BuildWindows(set.Records, aggregate.Options{
		Rule: cfg.GetBucketRule(),
		Gap:  cfg.GetGap(),
	})
	if len(windows) == 0 {
		return nil, nil, excluded, fmt.Errorf("plot-level aggregation produced no windows")
	}
	monitoring.Logf("aggregated %d detections into %d plot windows (%d excluded)",
		len(set.Records)-excluded, len(windows), excluded)

	statName := cfg.GetWindowStat()
	subjects := make([]assoc.Subject, len(windows))
	for i, w := range windows {
		subjects[i] = assoc.Subject{ID: w.ID, Timestamp: w.Representative(statName), Point: w.Centroid()}
	}

	results := associator.AssociateAll(subjects, cfg.GetWorkers())
	table, err := assemble.BuildWindowTable(windows, statName, results, cfg.ExcludeChannels)
	return table, results, excluded, err
}

// archiveRun persists the run to the sqlite archive and returns the archived
// per-channel status counts for the report. A disabled archive returns nil
// counts; the report falls back to counting the in-memory table.
func archiveRun(summary store.RunSummary, results []assoc.Result) (map[string]map[assoc.Status]int, error) {
	path := *archive
	if path == "none" {
		return nil, nil
	}
	if path == "" {
		path = filepath.Join(*outDir, "envassoc.db")
	}

	s, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if err := s.RecordRun(summary); err != nil {
		return nil, err
	}
	if err := s.RecordResults(summary.RunID, results); err != nil {
		return nil, err
	}
	counts, err := s.StatusCounts(summary.RunID)
	if err != nil {
		return nil, err
	}
	monitoring.Logf("archived run %s to %s", summary.RunID, path)
	return counts, nil
}
