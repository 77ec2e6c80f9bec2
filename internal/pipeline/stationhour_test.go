package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meteodk/dmi-preprocess/internal/observability"
)

func reading(station, param, value, from string) string {
	return `{"properties":{"stationId":"` + station + `","parameterId":"` + param + `","value":` + value + `,"from":"` + from + `"}}`
}

func runStationHour(t *testing.T, input string, keep []string) []string {
	t.Helper()
	dir := t.TempDir()
	in := writeFile(t, dir, "DK1_records.jsonl", input)
	out := filepath.Join(dir, "DK1_hourly_avg.csv")

	a := NewStationHourAggregator(in, out, keep, testLogger(), observability.NewMetricsForTesting())
	require.NoError(t, a.Run(context.Background()))
	return strings.Split(strings.TrimRight(readFile(t, out), "\n"), "\n")
}

func TestStationHourAggregator_MeanOverOneHour(t *testing.T) {
	// Three readings for the same station/parameter inside hour 00.
	input := reading("S1", "temp_dry", "10.0", "2024-01-01T00:05:00+00:00") + "\n" +
		reading("S1", "temp_dry", "12.0", "2024-01-01T00:25:00+00:00") + "\n" +
		reading("S1", "temp_dry", "14.0", "2024-01-01T00:55:00+00:00") + "\n"

	lines := runStationHour(t, input, nil)
	require.Len(t, lines, 2)
	assert.Equal(t, "station_id,timestamp_utc,parameter,value_avg,count", lines[0])
	assert.Equal(t, "S1,2024-01-01T00:00:00,temp_dry,12.0000,3", lines[1])
}

func TestStationHourAggregator_SeparatesKeys(t *testing.T) {
	input := reading("S1", "temp_dry", "10.0", "2024-01-01T00:05:00+00:00") + "\n" +
		reading("S1", "temp_dry", "20.0", "2024-01-01T01:05:00+00:00") + "\n" + // next hour
		reading("S1", "wind_speed", "5.0", "2024-01-01T00:05:00+00:00") + "\n" + // other parameter
		reading("S2", "temp_dry", "30.0", "2024-01-01T00:05:00+00:00") + "\n" // other station

	lines := runStationHour(t, input, nil)
	require.Len(t, lines, 5)

	// Sorted by (station, hour, parameter).
	assert.Equal(t, "S1,2024-01-01T00:00:00,temp_dry,10.0000,1", lines[1])
	assert.Equal(t, "S1,2024-01-01T00:00:00,wind_speed,5.0000,1", lines[2])
	assert.Equal(t, "S1,2024-01-01T01:00:00,temp_dry,20.0000,1", lines[3])
	assert.Equal(t, "S2,2024-01-01T00:00:00,temp_dry,30.0000,1", lines[4])
}

func TestStationHourAggregator_OffsetsFoldIntoUTCHour(t *testing.T) {
	// 01:30+01:00 is 00:30 UTC, same bucket as 00:10Z.
	input := reading("S1", "temp_dry", "10.0", "2024-01-01T01:30:00+01:00") + "\n" +
		reading("S1", "temp_dry", "20.0", "2024-01-01T00:10:00Z") + "\n"

	lines := runStationHour(t, input, nil)
	require.Len(t, lines, 2)
	assert.Equal(t, "S1,2024-01-01T00:00:00,temp_dry,15.0000,2", lines[1])
}

func TestStationHourAggregator_SkipsInvalidRecords(t *testing.T) {
	input := "{not json\n" +
		`{"properties":{"stationId":"S1","parameterId":"temp_dry","value":null,"from":"2024-01-01T00:05:00Z"}}` + "\n" +
		`{"properties":{"stationId":"S1","parameterId":"temp_dry","value":1.0}}` + "\n" +
		`{"properties":{"stationId":"","parameterId":"temp_dry","value":1.0,"from":"2024-01-01T00:05:00Z"}}` + "\n" +
		reading("S1", "temp_dry", "5.0", "not-a-time") + "\n" +
		reading("S1", "temp_dry", "10.0", "2024-01-01T00:05:00Z") + "\n"

	lines := runStationHour(t, input, nil)
	require.Len(t, lines, 2, "only the one fully valid record aggregates")
	assert.Equal(t, "S1,2024-01-01T00:00:00,temp_dry,10.0000,1", lines[1])
}

func TestStationHourAggregator_ParameterAllowList(t *testing.T) {
	input := reading("S1", "temp_dry", "10.0", "2024-01-01T00:05:00Z") + "\n" +
		reading("S1", "snow_depth", "0.0", "2024-01-01T00:05:00Z") + "\n"

	t.Run("empty list keeps everything", func(t *testing.T) {
		lines := runStationHour(t, input, nil)
		assert.Len(t, lines, 3)
	})

	t.Run("non-empty list restricts", func(t *testing.T) {
		lines := runStationHour(t, input, []string{"temp_dry"})
		require.Len(t, lines, 2)
		assert.Contains(t, lines[1], "temp_dry")
	})
}

func TestStationHourAggregator_EmptyInputYieldsHeaderOnly(t *testing.T) {
	lines := runStationHour(t, "", nil)
	require.Len(t, lines, 1)
	assert.Equal(t, "station_id,timestamp_utc,parameter,value_avg,count", lines[0])
}

func TestStationHourAggregator_MissingInputIsFatal(t *testing.T) {
	dir := t.TempDir()
	a := NewStationHourAggregator(filepath.Join(dir, "absent.jsonl"), filepath.Join(dir, "out.csv"), nil, testLogger(), observability.NewMetricsForTesting())
	require.Error(t, a.Run(context.Background()))
}
