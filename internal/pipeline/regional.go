package pipeline

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/meteodk/dmi-preprocess/internal/fsio"
	"github.com/meteodk/dmi-preprocess/internal/observability"
)

// stationHourColumns is the fixed schema of the station-hour table.
var stationHourColumns = []string{"station_id", "timestamp_utc", "parameter", "value_avg", "count"}

// RegionalAggregator re-aggregates the station-hour table across the station
// dimension: per (hour, parameter) it reports the unweighted mean of the
// per-station hourly averages. Each station counts equally regardless of how
// many raw readings fed its hourly average, so high-frequency stations do not
// dominate the regional signal. The policy is deliberate; do not replace it
// with a value-weighted mean, which would silently change every output.
//
// Output is a wide table: one row per hour, one lexicographically sorted
// column per parameter, an empty cell where no station reported (distinct
// from a true zero), plus min/max contributing-station counts per hour as a
// completeness signal.
type RegionalAggregator struct {
	Input  string
	Output string

	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRegionalAggregator creates the regional averaging stage.
func NewRegionalAggregator(input, output string, logger *slog.Logger, metrics *observability.Metrics) *RegionalAggregator {
	return &RegionalAggregator{Input: input, Output: output, logger: logger, metrics: metrics}
}

func (r *RegionalAggregator) Name() string { return "regional" }

func (r *RegionalAggregator) Run(ctx context.Context) error {
	in, err := os.Open(r.Input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()
	return r.aggregate(ctx, in)
}

func (r *RegionalAggregator) aggregate(ctx context.Context, in io.Reader) error {
	reader := csv.NewReader(in)
	header, err := reader.Read()
	if err == io.EOF {
		return fmt.Errorf("input %s is empty", r.Input)
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	col, err := columnIndex(header, stationHourColumns)
	if err != nil {
		return fmt.Errorf("input %s: %w", r.Input, err)
	}

	// hours[hour][parameter] accumulates the sum of station means and the
	// number of contributing stations.
	hours := make(map[string]map[string]*meanAccumulator)
	params := make(map[string]struct{})
	var rows, skipped int64

	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A malformed row is recoverable. Anything else is the reader
			// itself failing and would recur on every subsequent call.
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return fmt.Errorf("read input: %w", err)
			}
			skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rows++

		val, err := strconv.ParseFloat(rec[col["value_avg"]], 64)
		if err != nil {
			skipped++
			continue
		}
		ts := rec[col["timestamp_utc"]]
		param := rec[col["parameter"]]

		byParam := hours[ts]
		if byParam == nil {
			byParam = make(map[string]*meanAccumulator)
			hours[ts] = byParam
		}
		entry := byParam[param]
		if entry == nil {
			entry = &meanAccumulator{}
			byParam[param] = entry
		}
		entry.Sum += val
		entry.Count++ // one contributing station
		params[param] = struct{}{}
	}

	if err := r.writeOutput(hours, params); err != nil {
		return err
	}

	r.metrics.LinesRead.WithLabelValues(r.Name()).Add(float64(rows))
	r.metrics.RecordsSkipped.WithLabelValues(r.Name(), "parse").Add(float64(skipped))
	r.metrics.RowsWritten.WithLabelValues(r.Name()).Add(float64(len(hours)))
	r.logger.Info("regional time series computed",
		"file", r.Input, "rows", rows, "hours", len(hours), "parameters", len(params), "skipped", skipped)
	return nil
}

func (r *RegionalAggregator) writeOutput(hours map[string]map[string]*meanAccumulator, params map[string]struct{}) error {
	paramList := make([]string, 0, len(params))
	for p := range params {
		paramList = append(paramList, p)
	}
	sort.Strings(paramList)

	times := make([]string, 0, len(hours))
	for ts := range hours {
		times = append(times, ts)
	}
	sort.Strings(times)

	return fsio.WriteAtomic(r.Output, func(w *bufio.Writer) error {
		writer := csv.NewWriter(w)

		header := append([]string{"Timestamp_UTC"}, paramList...)
		header = append(header, "Stations_Reporting_Min", "Stations_Reporting_Max")
		if err := writer.Write(header); err != nil {
			return err
		}

		for _, ts := range times {
			byParam := hours[ts]
			row := make([]string, 0, len(header))
			row = append(row, ts)

			minStations := int64(math.MaxInt64)
			maxStations := int64(0)
			for _, param := range paramList {
				entry := byParam[param]
				if entry == nil {
					// No station reported this parameter this hour.
					row = append(row, "")
					continue
				}
				row = append(row, fmt.Sprintf("%.4f", entry.Sum/float64(entry.Count)))
				if entry.Count < minStations {
					minStations = entry.Count
				}
				if entry.Count > maxStations {
					maxStations = entry.Count
				}
			}
			if minStations == math.MaxInt64 {
				minStations = 0
			}
			row = append(row, strconv.FormatInt(minStations, 10), strconv.FormatInt(maxStations, 10))

			if err := writer.Write(row); err != nil {
				return err
			}
		}

		writer.Flush()
		return writer.Error()
	})
}

// columnIndex maps required column names to their positions in the header.
// A missing column is a configuration error: the stage must halt rather than
// feed wrong data downstream.
func columnIndex(header, required []string) (map[string]int, error) {
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, name := range required {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}
	return col, nil
}
