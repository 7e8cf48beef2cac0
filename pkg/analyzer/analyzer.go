// Package analyzer orchestrates run collection and metric computation.
// It owns the shared preprocessing order: internal workflows are
// excluded first, then the time window is applied, then runs are
// deduplicated per commit, and only the surviving set reaches the
// metrics engine.
package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devpulse/pipewatch/pkg/analytics"
	"github.com/devpulse/pipewatch/pkg/pipeline"
)

const (
	// fetchLimit is how many runs an analytics query pulls from the
	// source before windowing.
	fetchLimit = 300

	// liveLimit is how many runs live status views consider.
	liveLimit = 50
)

// RunSource supplies workflow runs, newest first.
type RunSource interface {
	RecentRuns(ctx context.Context, limit int) ([]pipeline.Run, error)
	LatestRuns(ctx context.Context, n int) ([]pipeline.Run, error)
}

// Analyzer computes analytics reports over a run source.
type Analyzer struct {
	log    logrus.FieldLogger
	source RunSource
	engine *analytics.Engine
	now    func() time.Time
}

// New creates an analyzer.
func New(
	log logrus.FieldLogger, source RunSource, opts analytics.Options,
) *Analyzer {
	return &Analyzer{
		log:    log.WithField("component", "analyzer"),
		source: source,
		engine: analytics.NewEngine(opts),
		now:    time.Now,
	}
}

// Engine exposes the underlying metrics engine for callers that
// already hold a run set.
func (a *Analyzer) Engine() *analytics.Engine {
	return a.engine
}

// windowed fetches and preprocesses the run set for a lookback of
// days.
func (a *Analyzer) windowed(
	ctx context.Context, days int,
) ([]pipeline.Run, error) {
	runs, err := a.source.RecentRuns(ctx, fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("fetching runs: %w", err)
	}

	cutoff := a.now().UTC().AddDate(0, 0, -days)

	runs = pipeline.ExcludeInternal(runs)
	runs = pipeline.SelectSince(runs, cutoff)
	runs = pipeline.DedupeByCommit(runs)

	a.log.WithFields(logrus.Fields{
		"days": days,
		"runs": len(runs),
	}).Debug("Prepared analytics window")

	return runs, nil
}

// live fetches the preprocessed set for live status views. Live views
// keep every commit's runs, deduplication would hide retries that are
// still in flight.
func (a *Analyzer) live(ctx context.Context) ([]pipeline.Run, error) {
	runs, err := a.source.LatestRuns(ctx, liveLimit)
	if err != nil {
		return nil, fmt.Errorf("fetching latest runs: %w", err)
	}

	return pipeline.ExcludeInternal(runs), nil
}

// Overview computes the headline summary over a lookback of days.
func (a *Analyzer) Overview(
	ctx context.Context, days int,
) (analytics.Overview, error) {
	runs, err := a.windowed(ctx, days)
	if err != nil {
		return analytics.Overview{}, err
	}

	return a.engine.Overview(runs, days), nil
}

// Trends computes the trend series over a lookback of days.
func (a *Analyzer) Trends(
	ctx context.Context, days int, g pipeline.Granularity,
) (analytics.Trends, error) {
	runs, err := a.windowed(ctx, days)
	if err != nil {
		return analytics.Trends{}, err
	}

	return a.engine.Trends(runs, days, g), nil
}

// MTTR computes the recovery report over a lookback of days.
func (a *Analyzer) MTTR(
	ctx context.Context, days int,
) (analytics.MTTRAnalysis, error) {
	runs, err := a.windowed(ctx, days)
	if err != nil {
		return analytics.MTTRAnalysis{}, err
	}

	return a.engine.MTTR(runs, days), nil
}

// Performance computes duration statistics over a lookback of days.
func (a *Analyzer) Performance(
	ctx context.Context, days int,
) (analytics.Performance, error) {
	runs, err := a.windowed(ctx, days)
	if err != nil {
		return analytics.Performance{}, err
	}

	return a.engine.Performance(runs, days), nil
}

// Failures computes failure attribution over a lookback of days.
func (a *Analyzer) Failures(
	ctx context.Context, days int,
) (analytics.FailureAnalysis, error) {
	runs, err := a.windowed(ctx, days)
	if err != nil {
		return analytics.FailureAnalysis{}, err
	}

	return a.engine.Failures(runs, days), nil
}

// CompareWorkflows ranks workflows over a lookback of days.
func (a *Analyzer) CompareWorkflows(
	ctx context.Context, days int,
) (analytics.WorkflowComparison, error) {
	runs, err := a.windowed(ctx, days)
	if err != nil {
		return analytics.WorkflowComparison{}, err
	}

	return a.engine.CompareWorkflows(runs, days), nil
}

// PipelineOverview assembles the live dashboard payload.
func (a *Analyzer) PipelineOverview(
	ctx context.Context,
) (analytics.PipelineOverview, error) {
	runs, err := a.live(ctx)
	if err != nil {
		return analytics.PipelineOverview{}, err
	}

	return a.engine.PipelineOverview(runs), nil
}

// PipelineStatus assembles the detailed live status payload.
func (a *Analyzer) PipelineStatus(
	ctx context.Context,
) (analytics.PipelineStatus, error) {
	runs, err := a.live(ctx)
	if err != nil {
		return analytics.PipelineStatus{}, err
	}

	return a.engine.PipelineStatus(runs), nil
}

// PipelineMetrics computes the performance summary over a lookback of
// minutes.
func (a *Analyzer) PipelineMetrics(
	ctx context.Context, minutes int,
) (analytics.PipelineMetrics, error) {
	runs, err := a.source.RecentRuns(ctx, fetchLimit)
	if err != nil {
		return analytics.PipelineMetrics{}, err
	}

	cutoff := a.now().UTC().Add(-time.Duration(minutes) * time.Minute)

	runs = pipeline.ExcludeInternal(runs)
	runs = pipeline.SelectSince(runs, cutoff)
	runs = pipeline.DedupeByCommit(runs)

	return a.engine.PipelineMetrics(runs, minutes), nil
}

// RecentRuns returns the latest runs for build listings, with internal
// workflows excluded but retries preserved.
func (a *Analyzer) RecentRuns(
	ctx context.Context, limit int,
) ([]pipeline.Run, error) {
	runs, err := a.source.RecentRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching runs: %w", err)
	}

	return pipeline.ExcludeInternal(runs), nil
}

// Digest computes the compact snapshot over the latest window runs.
func (a *Analyzer) Digest(
	ctx context.Context, window int,
) (analytics.Digest, error) {
	runs, err := a.source.RecentRuns(ctx, window)
	if err != nil {
		return analytics.Digest{}, err
	}

	runs = pipeline.ExcludeInternal(runs)

	return a.engine.Digest(runs, window), nil
}
