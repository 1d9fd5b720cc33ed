package config

import (
	"fmt"
	"path/filepath"
	"sort"
)

// seasonDirs maps the CLI season number to the on-disk season directory name
// used by the field data layout. Seasons 17-19 follow the same pattern but
// have not been surveyed yet; unknown seasons fall back to a generated name.
var seasonDirs = map[string]string{
	"10": "season_10_lettuce_yr_2020",
	"11": "season_11_sorghum_yr_2020",
	"12": "season_12_sorghum_soybean_sunflower_tepary_yr_2021",
	"13": "season_13_lettuce_yr_2022",
	"14": "season_14_sorghum_yr_2022",
	"15": "season_15_lettuce_yr_2022",
	"16": "season_16_sorghum_yr_2023",
}

// instrumentDirs maps instrument names to their data-layout directory names.
var instrumentDirs = map[string]string{
	"FLIR": "flirIrCamera",
	"PS2":  "ps2Top",
	"ENV":  "EnvironmentLogger",
}

// ValidSeasons returns the accepted season numbers in sorted order.
func ValidSeasons() []string {
	out := []string{"10", "11", "12", "13", "14", "15", "16", "17", "18", "19"}
	sort.Strings(out)
	return out
}

// ValidCrops are the crops grown across the supported seasons.
var ValidCrops = []string{"lettuce", "sorghum"}

// SeasonDir returns the season directory name for a season number.
func SeasonDir(season string) string {
	if dir, ok := seasonDirs[season]; ok {
		return dir
	}
	return fmt.Sprintf("season_%s", season)
}

// DataPaths locates the conventional locations of logger and detection data
// under a local data directory, for runs that do not pass explicit paths.
type DataPaths struct {
	LoggerDir    string
	DetectionDir string
}

// ResolveDataPaths builds the conventional layout paths for a run. It does
// not check existence; the loaders report missing files with context.
func ResolveDataPaths(dataDir, season, instrument string, level int) DataPaths {
	seasonDir := filepath.Join(dataDir, SeasonDir(season))
	levelDir := fmt.Sprintf("level_%d", level)
	return DataPaths{
		LoggerDir:    filepath.Join(seasonDir, "level_0", instrumentDirs["ENV"]),
		DetectionDir: filepath.Join(seasonDir, levelDir, instrumentDirs[instrument]),
	}
}
