package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/meteodk/dmi-preprocess/internal/domain"
	"github.com/meteodk/dmi-preprocess/internal/fsio"
	"github.com/meteodk/dmi-preprocess/internal/observability"
)

// stationHourKey identifies one accumulator entry. Hour is the formatted
// bucket ("2006-01-02T15:04:05"), so plain struct ordering is chronological.
type stationHourKey struct {
	Station   string
	Hour      string
	Parameter string
}

// meanAccumulator carries a running sum and count; the mean is finalized
// exactly once, at output time.
type meanAccumulator struct {
	Sum   float64
	Count int64
}

// StationHourAggregator streams one zone's observations and accumulates
// (sum, count) per (station, hour, parameter). Memory grows with the number
// of distinct keys, not with input size: it is the pipeline's memory
// high-water mark, and a full processing run needs working memory for its
// whole key space. Records missing a required field, or whose time does not
// parse, are counted and skipped.
type StationHourAggregator struct {
	Input  string
	Output string

	// keep restricts aggregation to these parameters; empty keeps everything.
	keep map[string]struct{}

	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewStationHourAggregator creates the per-station hourly averaging stage.
func NewStationHourAggregator(input, output string, keepParameters []string, logger *slog.Logger, metrics *observability.Metrics) *StationHourAggregator {
	var keep map[string]struct{}
	if len(keepParameters) > 0 {
		keep = make(map[string]struct{}, len(keepParameters))
		for _, p := range keepParameters {
			keep[p] = struct{}{}
		}
	}
	return &StationHourAggregator{Input: input, Output: output, keep: keep, logger: logger, metrics: metrics}
}

func (a *StationHourAggregator) Name() string { return "stationhour" }

func (a *StationHourAggregator) Run(ctx context.Context) error {
	in, err := os.Open(a.Input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	accum := make(map[stationHourKey]*meanAccumulator)
	var lines int64
	skipped := map[string]int64{}

	sc := fsio.NewLineScanner(in)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		lines++

		var rec domain.ObservationRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			skipped["parse"]++
			continue
		}
		props := rec.Properties
		if !props.Valid() {
			skipped["missing_field"]++
			continue
		}
		if a.keep != nil {
			if _, ok := a.keep[props.ParameterID]; !ok {
				skipped["filtered"]++
				continue
			}
		}
		t, err := domain.ParseTimestamp(props.From)
		if err != nil {
			skipped["bad_time"]++
			continue
		}

		key := stationHourKey{
			Station:   props.StationID,
			Hour:      domain.FormatHour(domain.HourBucket(t)),
			Parameter: props.ParameterID,
		}
		entry := accum[key]
		if entry == nil {
			entry = &meanAccumulator{}
			accum[key] = entry
		}
		entry.Sum += *props.Value
		entry.Count++
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	if err := a.writeOutput(accum); err != nil {
		return err
	}

	a.metrics.LinesRead.WithLabelValues(a.Name()).Add(float64(lines))
	a.metrics.AggregateKeys.Set(float64(len(accum)))
	a.metrics.RowsWritten.WithLabelValues(a.Name()).Add(float64(len(accum)))
	for reason, count := range skipped {
		a.metrics.RecordsSkipped.WithLabelValues(a.Name(), reason).Add(float64(count))
	}
	a.logger.Info("station-hour averages computed",
		"file", a.Input, "lines", lines, "keys", len(accum),
		"skipped_parse", skipped["parse"],
		"skipped_missing_field", skipped["missing_field"],
		"skipped_bad_time", skipped["bad_time"],
		"skipped_filtered", skipped["filtered"])
	return nil
}

// writeOutput emits one row per key, sorted by (station, hour, parameter)
// for deterministic, diff-friendly files.
func (a *StationHourAggregator) writeOutput(accum map[stationHourKey]*meanAccumulator) error {
	keys := make([]stationHourKey, 0, len(accum))
	for k := range accum {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Station != keys[j].Station {
			return keys[i].Station < keys[j].Station
		}
		if keys[i].Hour != keys[j].Hour {
			return keys[i].Hour < keys[j].Hour
		}
		return keys[i].Parameter < keys[j].Parameter
	})

	return fsio.WriteAtomic(a.Output, func(w *bufio.Writer) error {
		if _, err := w.WriteString("station_id,timestamp_utc,parameter,value_avg,count\n"); err != nil {
			return err
		}
		for _, k := range keys {
			entry := accum[k]
			mean := entry.Sum / float64(entry.Count)
			if _, err := fmt.Fprintf(w, "%s,%s,%s,%.4f,%d\n", k.Station, k.Hour, k.Parameter, mean, entry.Count); err != nil {
				return err
			}
		}
		return nil
	})
}
