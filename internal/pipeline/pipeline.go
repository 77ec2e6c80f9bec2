// Package pipeline implements the DMI preprocessing stages and the
// orchestrator that runs them in order. Every stage is a pure function from
// explicit input files to explicit output files; nothing is discovered by
// naming convention between stages, and no state is shared in process.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/meteodk/dmi-preprocess/internal/domain"
	"github.com/meteodk/dmi-preprocess/internal/observability"
)

// ErrNoInput is returned by a stage that found zero matching input files.
// The orchestrator treats it as a clean stop, not a failure: empty input is
// a reportable condition, nothing more.
var ErrNoInput = errors.New("no matching input files")

// Stage is one file-to-file step of a preprocessing run.
type Stage interface {
	Name() string
	Run(ctx context.Context) error
}

// RunStatus describes the most recent completed run.
type RunStatus struct {
	CompletedAt time.Time
	Duration    time.Duration
	Runs        int64
}

// Pipeline runs stages sequentially. A stage failure aborts the run; the
// failed stage's inputs are untouched (all stages write atomically), so the
// run can be repeated from the same inputs after the cause is fixed.
type Pipeline struct {
	stages  []Stage
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool
	runs    atomic.Int64
	lastRun atomic.Value // RunStatus
}

// New creates a Pipeline over the given stages.
func New(logger *slog.Logger, metrics *observability.Metrics, stages ...Stage) *Pipeline {
	return &Pipeline{
		stages:  stages,
		logger:  logger,
		metrics: metrics,
	}
}

// CheckReadiness returns nil once at least one full run has completed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// LastRun reports the most recent completed run, if any.
func (p *Pipeline) LastRun() (RunStatus, bool) {
	status, ok := p.lastRun.Load().(RunStatus)
	return status, ok
}

// Run executes every stage in order. Returns nil both on full completion and
// when the first stage reports empty input.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline run starting", "stages", len(p.stages))
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)
	runStart := time.Now()

	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			p.logger.Info("pipeline run cancelled", "reason", err)
			return err
		}

		start := time.Now()
		err := stage.Run(ctx)
		elapsed := time.Since(start)
		p.metrics.StageDuration.WithLabelValues(stage.Name()).Observe(elapsed.Seconds())

		if errors.Is(err, ErrNoInput) {
			p.logger.Info("nothing to process", "stage", stage.Name())
			return nil
		}
		if err != nil {
			return fmt.Errorf("stage %s: %w", stage.Name(), err)
		}
		p.logger.Info("stage complete", "stage", stage.Name(), "duration", elapsed)
	}

	p.ready.Store(true)
	p.metrics.RunsCompleted.Inc()
	p.lastRun.Store(RunStatus{
		CompletedAt: domain.Now(),
		Duration:    time.Since(runStart),
		Runs:        p.runs.Add(1),
	})
	p.logger.Info("pipeline run complete")
	return nil
}
