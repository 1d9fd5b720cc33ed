package envdata

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fieldsense/envassoc/internal/monitoring"
	"github.com/fieldsense/envassoc/internal/timeutil"
	"github.com/fieldsense/envassoc/internal/units"
)

// ReadLoggerCSV ingests a long-format logger export with a
// timestamp,channel,value header. Malformed rows are dropped and counted,
// never fatal; the caller decides whether the finished index is usable.
func (b *Builder) ReadLoggerCSV(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open logger csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // ragged rows are handled per-row below

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read logger csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"timestamp", "channel", "value"} {
		if _, ok := col[required]; !ok {
			return fmt.Errorf("logger csv %s missing %q column", path, required)
		}
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			b.Drop()
			continue
		}
		if len(row) <= col["timestamp"] || len(row) <= col["channel"] || len(row) <= col["value"] {
			b.Drop()
			continue
		}

		ts, err := timeutil.Parse(row[col["timestamp"]])
		if err != nil {
			b.Drop()
			continue
		}
		channel := strings.TrimSpace(row[col["channel"]])
		if channel == "" {
			b.Drop()
			continue
		}

		value, ok := parseValue(row[col["value"]])
		if !ok {
			b.Drop()
			continue
		}
		b.Add(Reading{Timestamp: ts, Channel: channel, Value: value})
	}
	return nil
}

// environment_sensor_readings is the shape written by the field logger
// firmware: one JSON document per capture interval, values encoded as
// strings.
type envLoggerFile struct {
	Readings []envLoggerEntry `json:"environment_sensor_readings"`
}

type envLoggerEntry struct {
	Timestamp      string                     `json:"timestamp"`
	WeatherStation map[string]envLoggerSample `json:"weather_station"`
	SensorPAR      *envLoggerSample           `json:"sensor par"`
}

type envLoggerSample struct {
	Value string `json:"value"`
	Unit  string `json:"unit"`
}

// ReadEnvironmentLoggerJSON ingests one logger JSON document. Each
// weather-station field becomes a channel reading; the PAR sensor becomes the
// "par" channel. Entries with unparseable timestamps are dropped and counted.
func (b *Builder) ReadEnvironmentLoggerJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read logger json: %w", err)
	}

	var file envLoggerFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse logger json %s: %w", path, err)
	}

	for _, entry := range file.Readings {
		ts, err := timeutil.Parse(entry.Timestamp)
		if err != nil {
			// The whole entry is unusable without a timestamp; count one drop
			// per discarded sample so the summary reflects real data loss.
			b.dropped += len(entry.WeatherStation)
			if entry.SensorPAR != nil {
				b.dropped++
			}
			continue
		}
		for channel, sample := range entry.WeatherStation {
			value, ok := parseValue(sample.Value)
			if !ok {
				b.Drop()
				continue
			}
			b.Add(Reading{Timestamp: ts, Channel: channel, Value: value})
		}
		if entry.SensorPAR != nil {
			if value, ok := parseValue(entry.SensorPAR.Value); ok {
				b.Add(Reading{Timestamp: ts, Channel: units.PAR, Value: value})
			} else {
				b.Drop()
			}
		}
	}
	return nil
}

// ReadLoggerFiles ingests a mixed list of logger files, dispatching on
// extension. Unknown extensions are skipped with a log line so a stray file
// in the data directory does not abort the run.
func (b *Builder) ReadLoggerFiles(paths []string) error {
	for _, path := range paths {
		var err error
		switch {
		case strings.HasSuffix(path, ".csv"):
			err = b.ReadLoggerCSV(path)
		case strings.HasSuffix(path, ".json"):
			err = b.ReadEnvironmentLoggerJSON(path)
		default:
			monitoring.Logf("envdata: skipping %s (not a logger file)", path)
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// parseValue converts a raw value string to a float pointer. A blank value is
// a valid null sample (the reading exists at that timestamp but carries no
// number); a non-empty, non-numeric value is malformed and the row must be
// dropped.
func parseValue(raw string) (value *float64, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, false
	}
	return &v, true
}
