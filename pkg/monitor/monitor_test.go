package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devpulse/pipewatch/pkg/analytics"
	"github.com/devpulse/pipewatch/pkg/config"
	"github.com/devpulse/pipewatch/pkg/notify"
	"github.com/devpulse/pipewatch/pkg/pipeline"
	"github.com/devpulse/pipewatch/pkg/slack"
)

type fakeSource struct {
	mu     sync.Mutex
	runs   []pipeline.Run
	digest analytics.Digest
	err    error

	digestCalls int
}

func (f *fakeSource) RecentRuns(_ context.Context, _ int) ([]pipeline.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.runs, f.err
}

func (f *fakeSource) Digest(_ context.Context, _ int) (analytics.Digest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.digestCalls++

	return f.digest, f.err
}

func (f *fakeSource) setRuns(runs []pipeline.Run) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.runs = runs
}

type fakePoster struct {
	mu       sync.Mutex
	messages []slack.Message
	err      error
}

func (f *fakePoster) Post(_ context.Context, msg slack.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}

	f.messages = append(f.messages, msg)

	return nil
}

func (f *fakePoster) sent() []slack.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]slack.Message(nil), f.messages...)
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return log
}

func completedRun(id int64, concl pipeline.Conclusion, branch string) pipeline.Run {
	now := time.Now().UTC()
	started := now.Add(-10 * time.Minute)

	return pipeline.Run{
		ID:         id,
		Name:       "CI",
		Status:     pipeline.StatusCompleted,
		Conclusion: concl,
		HeadBranch: branch,
		AuthorName: "dev",
		StartedAt:  &started,
		UpdatedAt:  &now,
	}
}

func failureRule() *notify.Rule {
	return &notify.Rule{
		Name:       "Failures",
		Enabled:    true,
		EventTypes: []string{notify.EventBuildFailure},
		Branches:   []string{},
		Channels:   []string{"slack"},
	}
}

func newService(
	t *testing.T, source *fakeSource, poster *fakePoster, rules ...*notify.Rule,
) *Service {
	t.Helper()

	repo := notify.NewMemoryRepository()
	for _, rule := range rules {
		require.NoError(t, repo.CreateRule(context.Background(), rule))
	}

	cfg := config.MonitorConfig{
		PollInterval: "60s",
		RunsPerPoll:  20,
		DigestWindow: 30,
	}

	return New(testLogger(), cfg, analytics.Options{},
		"devpulse/pipewatch", source, repo, poster, nil)
}

func TestFirstPassPrimesWithoutAlerting(t *testing.T) {
	source := &fakeSource{runs: []pipeline.Run{
		completedRun(1, pipeline.ConclusionFailure, "main"),
	}}
	poster := &fakePoster{}
	svc := newService(t, source, poster, failureRule())

	svc.runPass(context.Background())

	assert.Empty(t, poster.sent())
}

func TestNewFailureAlertsOnce(t *testing.T) {
	source := &fakeSource{}
	poster := &fakePoster{}
	svc := newService(t, source, poster, failureRule())

	svc.runPass(context.Background())

	source.setRuns([]pipeline.Run{
		completedRun(2, pipeline.ConclusionFailure, "main"),
	})

	svc.runPass(context.Background())
	svc.runPass(context.Background())

	msgs := poster.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, "1 CI/CD failure(s) detected in devpulse/pipewatch", msgs[0].Text)

	history, err := svc.repo.ListHistory(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, notify.EventBuildFailure, history[0].EventType)
	assert.Equal(t, notify.StatusSent, history[0].Status)
}

func TestFailuresBatchedIntoOneMessage(t *testing.T) {
	source := &fakeSource{}
	poster := &fakePoster{}
	svc := newService(t, source, poster, failureRule())

	svc.runPass(context.Background())

	source.setRuns([]pipeline.Run{
		completedRun(10, pipeline.ConclusionFailure, "main"),
		completedRun(11, pipeline.ConclusionFailure, "main"),
		completedRun(12, pipeline.ConclusionTimedOut, "develop"),
	})

	svc.runPass(context.Background())

	msgs := poster.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, "3 CI/CD failure(s) detected in devpulse/pipewatch", msgs[0].Text)

	// One field section per failed run, separated by dividers under a
	// header and the summary section.
	sections := 0
	for _, b := range msgs[0].Blocks {
		if len(b.Fields) > 0 {
			sections++
		}
	}

	assert.Equal(t, 3, sections)

	history, err := svc.repo.ListHistory(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, msgs[0].Text, history[0].Message)
}

func TestFailureBatchFiltersByRuleBranch(t *testing.T) {
	mainOnly := failureRule()
	mainOnly.Branches = []string{"main"}

	source := &fakeSource{}
	poster := &fakePoster{}
	svc := newService(t, source, poster, mainOnly)

	svc.runPass(context.Background())

	source.setRuns([]pipeline.Run{
		completedRun(20, pipeline.ConclusionFailure, "main"),
		completedRun(21, pipeline.ConclusionFailure, "develop"),
	})

	svc.runPass(context.Background())

	msgs := poster.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, "1 CI/CD failure(s) detected in devpulse/pipewatch", msgs[0].Text)
}

func TestInProgressRunAlertsWhenItCompletes(t *testing.T) {
	running := pipeline.Run{
		ID: 3, Name: "CI", Status: pipeline.StatusInProgress, HeadBranch: "main",
	}

	source := &fakeSource{runs: []pipeline.Run{running}}
	poster := &fakePoster{}
	svc := newService(t, source, poster, failureRule())

	svc.runPass(context.Background())
	assert.Empty(t, poster.sent())

	source.setRuns([]pipeline.Run{
		completedRun(3, pipeline.ConclusionFailure, "main"),
	})

	svc.runPass(context.Background())
	assert.Len(t, poster.sent(), 1)
}

func TestSuccessOffMainDoesNotMatchFailureRule(t *testing.T) {
	source := &fakeSource{}
	poster := &fakePoster{}
	svc := newService(t, source, poster, failureRule())

	svc.runPass(context.Background())

	source.setRuns([]pipeline.Run{
		completedRun(4, pipeline.ConclusionSuccess, "feature/x"),
	})

	svc.runPass(context.Background())

	assert.Empty(t, poster.sent())
}

func TestDeliveryFailureRecordedInHistory(t *testing.T) {
	source := &fakeSource{}
	poster := &fakePoster{err: assert.AnError}
	svc := newService(t, source, poster, failureRule())

	svc.runPass(context.Background())

	source.setRuns([]pipeline.Run{
		completedRun(5, pipeline.ConclusionFailure, "main"),
	})

	svc.runPass(context.Background())

	history, err := svc.repo.ListHistory(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, notify.StatusFailed, history[0].Status)
	assert.NotEmpty(t, history[0].Error)
}

func TestDigestCadence(t *testing.T) {
	source := &fakeSource{digest: analytics.Digest{Window: 5, Successes: 4, Failures: 1}}
	poster := &fakePoster{}
	svc := newService(t, source, poster)
	svc.cfg.DigestEvery = 2

	for i := 0; i < 4; i++ {
		svc.runPass(context.Background())
	}

	msgs := poster.sent()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Text, "Pipeline digest")
}

func TestDigestSkipsEmptyWindow(t *testing.T) {
	source := &fakeSource{}
	poster := &fakePoster{}
	svc := newService(t, source, poster)
	svc.cfg.DigestEvery = 1

	svc.runPass(context.Background())

	assert.Empty(t, poster.sent())
}

func TestRunOncePostsDigest(t *testing.T) {
	source := &fakeSource{
		runs:   []pipeline.Run{completedRun(6, pipeline.ConclusionSuccess, "main")},
		digest: analytics.Digest{Window: 1, Successes: 1},
	}
	poster := &fakePoster{}
	svc := newService(t, source, poster)

	require.NoError(t, svc.RunOnce(context.Background()))

	msgs := poster.sent()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "Pipeline digest")
	assert.Equal(t, 1, source.digestCalls)
}

func TestStartStop(t *testing.T) {
	source := &fakeSource{}
	svc := newService(t, source, &fakePoster{})
	svc.cfg.PollInterval = "1h"

	require.NoError(t, svc.Start(context.Background()))
	require.NoError(t, svc.Stop())
}
