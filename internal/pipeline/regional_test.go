package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meteodk/dmi-preprocess/internal/observability"
)

func runRegional(t *testing.T, stationHourCSV string) [][]string {
	t.Helper()
	dir := t.TempDir()
	in := writeFile(t, dir, "DK1_hourly_avg.csv", stationHourCSV)
	out := filepath.Join(dir, "DK1_regional_timeseries.csv")

	r := NewRegionalAggregator(in, out, testLogger(), observability.NewMetricsForTesting())
	require.NoError(t, r.Run(context.Background()))

	rows, err := csv.NewReader(strings.NewReader(readFile(t, out))).ReadAll()
	require.NoError(t, err)
	return rows
}

const stationHourHeader = "station_id,timestamp_utc,parameter,value_avg,count\n"

func TestRegionalAggregator_UnweightedMeanOfStationMeans(t *testing.T) {
	// Station S1's hourly mean came from 100 raw readings, S2's from one.
	// Both count equally: (12 + 8) / 2 = 10.
	input := stationHourHeader +
		"S1,2024-01-01T00:00:00,temp_dry,12.0000,100\n" +
		"S2,2024-01-01T00:00:00,temp_dry,8.0000,1\n"

	rows := runRegional(t, input)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Timestamp_UTC", "temp_dry", "Stations_Reporting_Min", "Stations_Reporting_Max"}, rows[0])
	assert.Equal(t, []string{"2024-01-01T00:00:00", "10.0000", "2", "2"}, rows[1])
}

func TestRegionalAggregator_ColumnsSortedAndMissingCellsEmpty(t *testing.T) {
	input := stationHourHeader +
		"S1,2024-01-01T00:00:00,wind_speed,5.0000,10\n" +
		"S1,2024-01-01T00:00:00,temp_dry,2.0000,10\n" +
		"S2,2024-01-01T00:00:00,temp_dry,4.0000,3\n" +
		"S1,2024-01-01T01:00:00,temp_dry,3.0000,10\n"

	rows := runRegional(t, input)
	require.Len(t, rows, 3)

	// Parameters lexicographic, hours chronological.
	assert.Equal(t, []string{"Timestamp_UTC", "temp_dry", "wind_speed", "Stations_Reporting_Min", "Stations_Reporting_Max"}, rows[0])
	assert.Equal(t, []string{"2024-01-01T00:00:00", "3.0000", "5.0000", "1", "2"}, rows[1])
	// wind_speed absent at 01:00: empty cell, not zero; min/max over the one
	// reporting parameter.
	assert.Equal(t, []string{"2024-01-01T01:00:00", "3.0000", "", "1", "1"}, rows[2])
}

func TestRegionalAggregator_StationsReportingMinMax(t *testing.T) {
	input := stationHourHeader +
		"S1,2024-01-01T00:00:00,temp_dry,1.0000,5\n" +
		"S2,2024-01-01T00:00:00,temp_dry,2.0000,5\n" +
		"S3,2024-01-01T00:00:00,temp_dry,3.0000,5\n" +
		"S1,2024-01-01T00:00:00,wind_speed,4.0000,5\n"

	rows := runRegional(t, input)
	require.Len(t, rows, 2)
	// temp_dry has 3 contributing stations, wind_speed has 1.
	assert.Equal(t, "1", rows[1][len(rows[1])-2])
	assert.Equal(t, "3", rows[1][len(rows[1])-1])
}

func TestRegionalAggregator_BadValueRowSkipped(t *testing.T) {
	input := stationHourHeader +
		"S1,2024-01-01T00:00:00,temp_dry,oops,5\n" +
		"S2,2024-01-01T00:00:00,temp_dry,6.0000,5\n"

	rows := runRegional(t, input)
	require.Len(t, rows, 2)
	assert.Equal(t, "6.0000", rows[1][1])
	assert.Equal(t, "1", rows[1][2], "the bad row contributes no station")
}

func TestRegionalAggregator_MalformedRowSkipped(t *testing.T) {
	// A row with the wrong field count is a recoverable parse error.
	input := stationHourHeader +
		"S1,2024-01-01T00:00:00,temp_dry\n" +
		"S2,2024-01-01T00:00:00,temp_dry,6.0000,5\n"

	rows := runRegional(t, input)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"2024-01-01T00:00:00", "6.0000", "1", "1"}, rows[1])
}

func TestRegionalAggregator_ReadErrorIsFatal(t *testing.T) {
	// A reader failing mid-stream returns the same error on every call; the
	// stage must surface it rather than loop on it.
	readFailed := errors.New("read failed")
	in := io.MultiReader(
		strings.NewReader(stationHourHeader+"S1,2024-01-01T00:00:00,temp_dry,1.0000,5\n"),
		iotest.ErrReader(readFailed),
	)

	dir := t.TempDir()
	r := NewRegionalAggregator("", filepath.Join(dir, "out.csv"), testLogger(), observability.NewMetricsForTesting())

	err := r.aggregate(context.Background(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, readFailed)
	assert.NoFileExists(t, r.Output, "no output on a failed read")
}

func TestRegionalAggregator_MissingColumnIsFatal(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "bad.csv", "station_id,timestamp_utc,parameter\n")
	r := NewRegionalAggregator(in, filepath.Join(dir, "out.csv"), testLogger(), observability.NewMetricsForTesting())

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "value_avg")
}

func TestRegionalAggregator_EmptyFileIsFatal(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "empty.csv", "")
	r := NewRegionalAggregator(in, filepath.Join(dir, "out.csv"), testLogger(), observability.NewMetricsForTesting())
	require.Error(t, r.Run(context.Background()))
}
