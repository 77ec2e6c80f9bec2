// Command genobs generates a deterministic mock DMI observation fixture:
// line-delimited JSON in the bulk-archive shape, with a mix of catalogued
// and uncatalogued stations, deliberately inconsistent timestamp offsets,
// and a sprinkling of null values and malformed lines so the fixture
// exercises every skip path in the pipeline.
//
// Usage:
//
//	go run ./cmd/genobs -out data/raw/mock_station_dump.txt -hours 48 -seed 1
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/meteodk/dmi-preprocess/internal/domain"
)

var baseTime = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// station describes one mock emitter. Uncatalogued stations rely on their
// longitude for classification.
type station struct {
	id  string
	lon float64
	lat float64
}

var stations = []station{
	{id: "06030", lon: 9.60, lat: 57.10},  // catalogued DK1 (Aalborg)
	{id: "06120", lon: 10.33, lat: 55.47}, // catalogued DK1 (Odense)
	{id: "06180", lon: 12.53, lat: 55.76}, // catalogued DK2 (Copenhagen)
	{id: "99901", lon: 8.90, lat: 56.20},  // uncatalogued, west of cutoff
	{id: "99902", lon: 14.80, lat: 55.10}, // uncatalogued, east of cutoff
}

var parameters = []string{"temp_dry", "wind_speed", "wind_dir", "radia_glob", "mean_cloud_cover", "snow_depth"}

// offsets rotate so the normalizer always has work to do.
var offsets = []string{"+00:00", "+01:00", "+02:00", "Z"}

func main() {
	out := flag.String("out", "", "output path for the JSONL fixture")
	hours := flag.Int("hours", 24, "number of hours to generate")
	perHour := flag.Int("per-hour", 6, "readings per station, parameter, and hour")
	seed := flag.Int64("seed", 1, "PRNG seed for reproducible fixtures")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		os.Exit(1)
	}
	if err := run(*out, *hours, *perHour, *seed); err != nil {
		log.Fatal(err)
	}
}

func run(out string, hours, perHour int, seed int64) error {
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	rng := rand.New(rand.NewSource(seed))
	w := bufio.NewWriter(f)
	var lines int

	for h := 0; h < hours; h++ {
		hour := baseTime.Add(time.Duration(h) * time.Hour)
		for _, st := range stations {
			for _, param := range parameters {
				for i := 0; i < perHour; i++ {
					line, err := observationLine(rng, st, param, hour, i, perHour)
					if err != nil {
						return err
					}
					if _, err := w.WriteString(line + "\n"); err != nil {
						return err
					}
					lines++
				}
			}
		}
		// One garbage line per hour keeps the parse-error path honest.
		if _, err := w.WriteString("!corrupted " + hour.Format(time.RFC3339) + "\n"); err != nil {
			return err
		}
		lines++
	}

	if err := w.Flush(); err != nil {
		return err
	}
	log.Printf("wrote %d lines to %s (%d hours, %d stations, %d parameters)",
		lines, out, hours, len(stations), len(parameters))
	return nil
}

func observationLine(rng *rand.Rand, st station, param string, hour time.Time, i, perHour int) (string, error) {
	minute := i * (60 / perHour)
	obsTime := hour.Add(time.Duration(minute) * time.Minute)

	offset := offsets[rng.Intn(len(offsets))]
	timestamp := formatWithOffset(obsTime, offset)

	record := domain.ObservationRecord{
		Properties: domain.ObservationProperties{
			StationID:   st.id,
			ParameterID: param,
			From:        timestamp,
			Observed:    timestamp,
		},
		Geometry: &domain.Geometry{
			Type:        "Point",
			Coordinates: []any{st.lon, st.lat},
		},
	}
	// Roughly 2% null values: sensor reported nothing.
	if rng.Float64() >= 0.02 {
		v := sampleValue(rng, param)
		record.Properties.Value = &v
	}

	data, err := json.Marshal(record)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// formatWithOffset renders the instant in the named offset's local time, so
// different offsets express the same kind of wall-clock variety the real
// archive has.
func formatWithOffset(t time.Time, offset string) string {
	switch offset {
	case "Z":
		return t.UTC().Format("2006-01-02T15:04:05") + "Z"
	case "+01:00":
		return t.In(time.FixedZone("", 3600)).Format("2006-01-02T15:04:05") + "+01:00"
	case "+02:00":
		return t.In(time.FixedZone("", 7200)).Format("2006-01-02T15:04:05") + "+02:00"
	default:
		return t.UTC().Format("2006-01-02T15:04:05") + "+00:00"
	}
}

func sampleValue(rng *rand.Rand, param string) float64 {
	var v float64
	switch param {
	case "temp_dry":
		v = -5 + rng.Float64()*25
	case "wind_speed":
		v = rng.Float64() * 20
	case "wind_dir":
		v = rng.Float64() * 360
	case "radia_glob":
		v = rng.Float64() * 800
	case "mean_cloud_cover":
		v = rng.Float64() * 100
	case "snow_depth":
		v = 0 // quasi-constant on purpose: the pruner should drop it
	}
	return math.Round(v*10) / 10
}
