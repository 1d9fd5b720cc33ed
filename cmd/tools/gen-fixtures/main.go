// Command gen-fixtures generates a synthetic logger CSV and detection CSV for
// local envassoc runs and demos.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/fieldsense/envassoc/internal/units"
)

func main() {
	outDir := flag.String("o", "fixtures", "output directory")
	readings := flag.Int("readings", 2880, "readings per channel (default: one day at 30s cadence)")
	plots := flag.Int("plots", 8, "number of plots")
	perPlot := flag.Int("detections", 25, "detections per plot")
	seed := flag.Int64("seed", 1, "random seed (fixed seeds give reproducible fixtures)")
	flag.Parse()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("create output directory: %v", err)
	}
	rng := rand.New(rand.NewSource(*seed))
	start := time.Date(2022, 6, 1, 6, 0, 0, 0, time.UTC)

	loggerPath := filepath.Join(*outDir, "logger.csv")
	if err := writeLogger(loggerPath, start, *readings, rng); err != nil {
		log.Fatalf("write logger fixture: %v", err)
	}
	log.Printf("wrote %s", loggerPath)

	detPath := filepath.Join(*outDir, "detections.csv")
	if err := writeDetections(detPath, start, *plots, *perPlot, rng); err != nil {
		log.Fatalf("write detection fixture: %v", err)
	}
	log.Printf("wrote %s", detPath)
}

// writeLogger emits a long-format logger CSV with a plausible diurnal
// temperature curve and noisy companions on the other channels.
func writeLogger(path string, start time.Time, readings int, rng *rand.Rand) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write([]string{"timestamp", "channel", "value"}); err != nil {
		return err
	}

	channels := units.DeclaredChannels()
	for i := 0; i < readings; i++ {
		ts := start.Add(time.Duration(i) * 30 * time.Second)
		hour := float64(ts.Hour()) + float64(ts.Minute())/60
		for _, ch := range channels {
			var v float64
			switch ch {
			case units.Temperature:
				v = 22 + 10*dayCurve(hour) + rng.Float64()
			case units.RelHumidity:
				v = 55 - 25*dayCurve(hour) + 2*rng.Float64()
			case units.AirPressure:
				v = 1012 + 3*rng.Float64()
			case units.Precipitation:
				v = 0 // dry day
			default:
				v = 100 * rng.Float64()
			}
			row := []string{ts.Format("2006.01.02-15:04:05"), ch, strconv.FormatFloat(v, 'f', 2, 64)}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}

// dayCurve peaks at 15:00 and bottoms out before dawn.
func dayCurve(hour float64) float64 {
	x := (hour - 15) / 12
	return 1 - x*x
}

// writeDetections emits a FLIR-shaped detection CSV: per-plant rows with plot
// ids, positions inside the field, and median canopy temperatures.
func writeDetections(path string, start time.Time, plots, perPlot int, rng *rand.Rand) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write([]string{"detection_id", "plot", "time", "lat", "lon", "median"}); err != nil {
		return err
	}

	for p := 0; p < plots; p++ {
		plot := fmt.Sprintf("plot_%03d", p+1)
		plotLat := 33.0745 + 0.0002*float64(p)
		for d := 0; d < perPlot; d++ {
			ts := start.Add(time.Duration(p*perPlot+d) * 47 * time.Second)
			row := []string{
				uuid.NewString(),
				plot,
				ts.Format(time.RFC3339),
				strconv.FormatFloat(plotLat+0.00002*rng.Float64(), 'f', 8, 64),
				strconv.FormatFloat(-111.9748+0.00002*rng.Float64(), 'f', 8, 64),
				strconv.FormatFloat(28+6*rng.Float64(), 'f', 2, 64),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}
