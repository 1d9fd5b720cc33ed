package detection

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "detections.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestLoadCSVFlir(t *testing.T) {
	path := writeCSV(t, `detection_id,plot,time,lat,lon,median
d1,plot_001,2022-06-01T12:00:00Z,33.0745,-111.9748,29.4
d2,plot_001,2022-06-01T12:01:00Z,33.0746,-111.9748,30.1
d3,plot_002,not-a-time,33.0747,-111.9748,28.0
`)

	set, err := LoadCSV(path, FLIR, false)
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}

	if len(set.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(set.Records))
	}
	if set.Excluded != 1 {
		t.Errorf("Excluded = %d, want 1 (bad timestamp)", set.Excluded)
	}

	r := set.Records[0]
	if r.ID != "d1" || r.PlotID != "plot_001" {
		t.Errorf("record identity = %s/%s", r.ID, r.PlotID)
	}
	if !r.Timestamp.Equal(time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("timestamp = %v", r.Timestamp)
	}
	if r.Point == nil || r.Point.Lat != 33.0745 {
		t.Errorf("point = %+v", r.Point)
	}
	if r.Extra["median"] != "29.4" {
		t.Errorf("median carried as %q, want 29.4", r.Extra["median"])
	}
}

func TestLoadCSVPS2ColumnNames(t *testing.T) {
	// PS2 aggregation exports use capitalised Plot and no stable id column.
	path := writeCSV(t, `Plot,time,Latitude,Longitude,FvFm
plot_010,2022-06-01T09:00:00Z,33.0745,-111.9748,0.79
plot_011,2022-06-01T09:05:00Z,33.0746,-111.9748,0.81
`)

	set, err := LoadCSV(path, PS2, false)
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if len(set.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(set.Records))
	}
	if set.Records[0].PlotID != "plot_010" {
		t.Errorf("plot = %q", set.Records[0].PlotID)
	}
	if set.Records[0].Extra["FvFm"] != "0.79" {
		t.Errorf("FvFm carried as %q", set.Records[0].Extra["FvFm"])
	}
}

func TestLoadCSVSynthesizesIDs(t *testing.T) {
	path := writeCSV(t, `plot,time,lat,lon
plot_001,2022-06-01T12:00:00Z,33.0745,-111.9748
plot_001,2022-06-01T12:01:00Z,33.0745,-111.9748
`)

	set, err := LoadCSV(path, FLIR, false)
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	ids := map[string]bool{}
	for _, r := range set.Records {
		if !strings.HasPrefix(r.ID, "plot_001_") {
			t.Errorf("synthesized id %q should embed the plot", r.ID)
		}
		ids[r.ID] = true
	}
	if len(ids) != 2 {
		t.Errorf("synthesized ids not unique: %v", ids)
	}
}

func TestLoadCSVAllExcludedIsFatal(t *testing.T) {
	path := writeCSV(t, `plot,time,lat,lon
plot_001,nope,33.0745,-111.9748
`)

	_, err := LoadCSV(path, FLIR, false)
	if !errors.Is(err, ErrNoDetections) {
		t.Errorf("LoadCSV = %v, want ErrNoDetections", err)
	}
}

func TestLoadCSVMissingTimeAllowedForGantryRuns(t *testing.T) {
	path := writeCSV(t, `plot,lat,lon,median
plot_001,33.0745,-111.9748,29.4
`)

	set, err := LoadCSV(path, FLIR, true)
	if err != nil {
		t.Fatalf("LoadCSV with allowMissingTime: %v", err)
	}
	if len(set.Records) != 1 || !set.Records[0].Timestamp.IsZero() {
		t.Errorf("untimed record should survive for gantry assignment")
	}
}

func TestParseInstrument(t *testing.T) {
	if _, err := ParseInstrument("FLIR"); err != nil {
		t.Errorf("FLIR rejected: %v", err)
	}
	if _, err := ParseInstrument("PS2"); err != nil {
		t.Errorf("PS2 rejected: %v", err)
	}
	if inst, err := ParseInstrument("flir"); err != nil || inst != FLIR {
		t.Errorf("ParseInstrument(flir) = %v, %v; want FLIR", inst, err)
	}
	if _, err := ParseInstrument("RGB"); err == nil {
		t.Error("RGB should be rejected")
	}
}
