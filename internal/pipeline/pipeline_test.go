package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meteodk/dmi-preprocess/internal/observability"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

type fakeStage struct {
	name string
	err  error
	runs int
}

func (f *fakeStage) Name() string { return f.name }

func (f *fakeStage) Run(_ context.Context) error {
	f.runs++
	return f.err
}

func TestPipeline_RunsStagesInOrder(t *testing.T) {
	a := &fakeStage{name: "a"}
	b := &fakeStage{name: "b"}
	p := New(testLogger(), observability.NewMetricsForTesting(), a, b)

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 1, a.runs)
	assert.Equal(t, 1, b.runs)
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_StageFailureAborts(t *testing.T) {
	boom := errors.New("boom")
	a := &fakeStage{name: "a", err: boom}
	b := &fakeStage{name: "b"}
	p := New(testLogger(), observability.NewMetricsForTesting(), a, b)

	err := p.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "stage a")
	assert.Equal(t, 0, b.runs)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_EmptyInputIsNotFailure(t *testing.T) {
	a := &fakeStage{name: "a", err: ErrNoInput}
	b := &fakeStage{name: "b"}
	p := New(testLogger(), observability.NewMetricsForTesting(), a, b)

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 0, b.runs, "downstream stages must not run on empty input")
	assert.Error(t, p.CheckReadiness(context.Background()), "an empty run is not a completed run")
}

func TestPipeline_LastRunTracksCompletions(t *testing.T) {
	p := New(testLogger(), observability.NewMetricsForTesting(), &fakeStage{name: "a"})

	_, ok := p.LastRun()
	assert.False(t, ok, "no status before the first completed run")

	require.NoError(t, p.Run(context.Background()))
	require.NoError(t, p.Run(context.Background()))

	status, ok := p.LastRun()
	require.True(t, ok)
	assert.Equal(t, int64(2), status.Runs)
	assert.False(t, status.CompletedAt.IsZero())
	assert.GreaterOrEqual(t, status.Duration, time.Duration(0))
}

func TestPipeline_FailedRunLeavesNoStatus(t *testing.T) {
	p := New(testLogger(), observability.NewMetricsForTesting(),
		&fakeStage{name: "a", err: errors.New("boom")})

	require.Error(t, p.Run(context.Background()))
	_, ok := p.LastRun()
	assert.False(t, ok)
}

func TestPipeline_NotReadyBeforeFirstRun(t *testing.T) {
	p := New(testLogger(), observability.NewMetricsForTesting())
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_CancelledContext(t *testing.T) {
	a := &fakeStage{name: "a"}
	p := New(testLogger(), observability.NewMetricsForTesting(), a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, p.Run(ctx))
	assert.Equal(t, 0, a.runs)
}

func TestDefaultPaths(t *testing.T) {
	paths := DefaultPaths("/srv/out")
	assert.Equal(t, "/srv/out/corpus.jsonl", paths.Corpus)
	assert.Equal(t, "/srv/out/DK1_records.jsonl", paths.DK1.Records)
	assert.Equal(t, "/srv/out/DK1_hourly_avg.csv", paths.DK1.StationHour)
	assert.Equal(t, "/srv/out/DK2_regional_timeseries.csv", paths.DK2.Regional)
	assert.Equal(t, "/srv/out/DK2_regional_timeseries_cleaned.csv", paths.DK2.Cleaned)
	assert.Equal(t, "/srv/out/DK2_prune_report.csv", paths.DK2.PruneReport)
}
