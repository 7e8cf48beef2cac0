// Package monitor polls the upstream CI API on a schedule, detects
// newly completed workflow runs, and fans the resulting events out to
// notification rules, Slack, and websocket subscribers.
package monitor

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"

	"github.com/devpulse/pipewatch/pkg/alert"
	"github.com/devpulse/pipewatch/pkg/analytics"
	"github.com/devpulse/pipewatch/pkg/config"
	"github.com/devpulse/pipewatch/pkg/notify"
	"github.com/devpulse/pipewatch/pkg/pipeline"
	"github.com/devpulse/pipewatch/pkg/push"
	"github.com/devpulse/pipewatch/pkg/slack"
)

// Source supplies the run data a poll pass works on.
type Source interface {
	RecentRuns(ctx context.Context, limit int) ([]pipeline.Run, error)
	Digest(ctx context.Context, window int) (analytics.Digest, error)
}

// Service is the scheduled poll job. Start launches the poll loop;
// Stop shuts it down. The poster and hub are optional, the repository
// is not.
type Service struct {
	log      logrus.FieldLogger
	cfg      config.MonitorConfig
	opts     analytics.Options
	repoSlug string
	source   Source
	repo     notify.Repository
	poster   slack.Poster
	hub      *push.Hub

	scheduler gocron.Scheduler

	mu     sync.Mutex
	seen   map[int64]struct{}
	primed bool
	passes int
}

// New creates the monitor service. repoSlug is the "owner/name" label
// used in batched alerts. poster and hub may be nil; alerts and
// broadcasts are skipped accordingly.
func New(
	log logrus.FieldLogger,
	cfg config.MonitorConfig,
	opts analytics.Options,
	repoSlug string,
	source Source,
	repo notify.Repository,
	poster slack.Poster,
	hub *push.Hub,
) *Service {
	return &Service{
		log:      log.WithField("component", "monitor"),
		cfg:      cfg,
		opts:     opts,
		repoSlug: repoSlug,
		source:   source,
		repo:     repo,
		poster:   poster,
		hub:      hub,
		seen:     make(map[int64]struct{}),
	}
}

// Start schedules the poll loop and returns once the first job is
// registered. The first pass only primes the seen set, so restarting
// the monitor does not replay alerts for runs that completed while it
// was down.
func (s *Service) Start(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	interval := s.cfg.PollIntervalDuration()

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			s.runPass(ctx)
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule poll job: %w", err)
	}

	scheduler.Start()
	s.scheduler = scheduler

	s.log.WithField("interval", interval).Info("Monitor started")

	return nil
}

// Stop shuts the scheduler down, waiting for a running pass to finish.
func (s *Service) Stop() error {
	if s.scheduler == nil {
		return nil
	}

	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}

	s.log.Info("Monitor stopped")

	return nil
}

// RunOnce performs a single poll pass and posts the digest regardless
// of the digest cadence. Used by the one-shot CLI mode.
func (s *Service) RunOnce(ctx context.Context) error {
	s.runPass(ctx)

	return s.postDigest(ctx)
}

// runPass fetches the latest runs, dispatches events for runs that
// completed since the previous pass, and posts the periodic digest.
// Errors are logged, never fatal; the next tick retries.
func (s *Service) runPass(ctx context.Context) {
	runs, err := s.source.RecentRuns(ctx, s.cfg.RunsPerPoll)
	if err != nil {
		s.log.WithError(err).Warn("Poll pass failed to fetch runs")

		return
	}

	var failed []pipeline.Run

	for _, run := range s.newlyCompleted(runs) {
		if alert.EventType(run, s.opts.CancelledAsFailure) == notify.EventBuildFailure {
			failed = append(failed, run)

			continue
		}

		s.dispatch(ctx, run)
	}

	if len(failed) > 0 {
		s.dispatchFailures(ctx, failed)
	}

	s.mu.Lock()
	s.passes++
	passes := s.passes
	s.mu.Unlock()

	if s.cfg.DigestEvery > 0 && passes%s.cfg.DigestEvery == 0 {
		if err := s.postDigest(ctx); err != nil {
			s.log.WithError(err).Warn("Digest delivery failed")
		}
	}
}

// newlyCompleted returns the completed runs not seen on a previous
// pass and replaces the seen set with the current page. Runs only ever
// leave the page by falling off its tail, so retaining just the
// current page's ids is enough to suppress duplicates.
func (s *Service) newlyCompleted(runs []pipeline.Run) []pipeline.Run {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[int64]struct{}, len(runs))
	fresh := make([]pipeline.Run, 0)

	for _, run := range runs {
		if !run.Completed() {
			continue
		}

		if _, ok := s.seen[run.ID]; !ok && s.primed {
			fresh = append(fresh, run)
		}

		next[run.ID] = struct{}{}
	}

	s.seen = next
	s.primed = true

	return fresh
}

// dispatchFailures delivers a pass's failed runs as one batched
// message per matching rule and channel: a count summary line plus the
// per-run failure blocks. Rules match per run branch, so a rule
// receives only the failures it covers.
func (s *Service) dispatchFailures(ctx context.Context, failed []pipeline.Run) {
	if s.hub != nil {
		for _, run := range failed {
			s.hub.Broadcast(push.EventBuild, run)
		}
	}

	rules, err := s.repo.ListRules(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Failed to list notification rules")

		return
	}

	for _, rule := range rules {
		var matched []pipeline.Run

		for _, run := range failed {
			if rule.Matches(notify.EventBuildFailure, run.HeadBranch) {
				matched = append(matched, run)
			}
		}

		if len(matched) == 0 {
			continue
		}

		msg := alert.FailureBatchMessage(matched, s.repoSlug)

		for _, channel := range rule.Channels {
			entry := notify.HistoryEntry{
				RuleID:    rule.ID,
				RuleName:  rule.Name,
				EventType: notify.EventBuildFailure,
				Channel:   channel,
				Message:   msg.Text,
				Status:    notify.StatusSent,
			}

			if channel == "slack" && s.poster != nil {
				if err := s.poster.Post(ctx, msg); err != nil {
					s.log.WithError(err).WithField("rule", rule.Name).
						Warn("Slack delivery failed")

					entry.Status = notify.StatusFailed
					entry.Error = err.Error()
				}
			}

			if err := s.repo.RecordHistory(ctx, &entry); err != nil {
				s.log.WithError(err).Warn("Failed to record history")
			}

			if s.hub != nil {
				s.hub.Broadcast(push.EventNotification, entry)
			}
		}

		s.log.WithFields(logrus.Fields{
			"rule":     rule.Name,
			"failures": len(matched),
		}).Info("Dispatched failure batch")
	}
}

// dispatch resolves the run's event type against the notification
// rules and delivers on every match. Failures go through
// dispatchFailures instead.
func (s *Service) dispatch(ctx context.Context, run pipeline.Run) {
	eventType := alert.EventType(run, s.opts.CancelledAsFailure)
	if eventType == "" {
		return
	}

	log := s.log.WithFields(logrus.Fields{
		"run_id": run.ID,
		"event":  eventType,
		"branch": run.HeadBranch,
	})

	if s.hub != nil {
		s.hub.Broadcast(push.EventBuild, run)
	}

	rules, err := s.repo.ListRules(ctx)
	if err != nil {
		log.WithError(err).Warn("Failed to list notification rules")

		return
	}

	deliveries := alert.Evaluate(rules, eventType, run.HeadBranch)
	if len(deliveries) == 0 {
		log.Debug("No rules matched")

		return
	}

	msg := messageFor(run, eventType)

	for _, d := range deliveries {
		entry := notify.HistoryEntry{
			RuleID:    d.Rule.ID,
			RuleName:  d.Rule.Name,
			EventType: eventType,
			Channel:   d.Channel,
			Message:   msg.Text,
			Status:    notify.StatusSent,
		}

		if d.Channel == "slack" && s.poster != nil {
			if err := s.poster.Post(ctx, msg); err != nil {
				log.WithError(err).WithField("rule", d.Rule.Name).
					Warn("Slack delivery failed")

				entry.Status = notify.StatusFailed
				entry.Error = err.Error()
			}
		}

		if err := s.repo.RecordHistory(ctx, &entry); err != nil {
			log.WithError(err).Warn("Failed to record history")
		}

		if s.hub != nil {
			s.hub.Broadcast(push.EventNotification, entry)
		}
	}

	log.WithField("deliveries", len(deliveries)).Info("Dispatched event")
}

// postDigest computes the digest over the configured window and posts
// it to Slack. A nil poster makes this a no-op.
func (s *Service) postDigest(ctx context.Context) error {
	if s.poster == nil {
		return nil
	}

	d, err := s.source.Digest(ctx, s.cfg.DigestWindow)
	if err != nil {
		return fmt.Errorf("failed to compute digest: %w", err)
	}

	if d.Window == 0 {
		s.log.Debug("Digest window empty, skipping")

		return nil
	}

	if err := s.poster.Post(ctx, alert.DigestMessage(d)); err != nil {
		return fmt.Errorf("failed to post digest: %w", err)
	}

	return nil
}

// messageFor builds the outbound Slack message for a non-failure
// event.
func messageFor(run pipeline.Run, eventType string) slack.Message {
	switch eventType {
	case notify.EventDeployment:
		return alert.DeploymentMessage(run)
	default:
		text := fmt.Sprintf("%s completed with %s on %s (%s)",
			run.Name, run.Conclusion, run.HeadBranch, run.Author())

		return slack.Message{Text: text, Blocks: []slack.Block{slack.Section(text)}}
	}
}
