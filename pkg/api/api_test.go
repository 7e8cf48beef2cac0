package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devpulse/pipewatch/pkg/analytics"
	"github.com/devpulse/pipewatch/pkg/analyzer"
	"github.com/devpulse/pipewatch/pkg/config"
	"github.com/devpulse/pipewatch/pkg/github"
	"github.com/devpulse/pipewatch/pkg/notify"
	"github.com/devpulse/pipewatch/pkg/pipeline"
	"github.com/devpulse/pipewatch/pkg/push"
	"github.com/devpulse/pipewatch/pkg/slack"
)

type fakeRuns struct {
	runs []pipeline.Run
}

func (f *fakeRuns) RecentRuns(_ context.Context, limit int) ([]pipeline.Run, error) {
	if len(f.runs) > limit {
		return f.runs[:limit], nil
	}

	return f.runs, nil
}

func (f *fakeRuns) LatestRuns(_ context.Context, _ int) ([]pipeline.Run, error) {
	return f.runs, nil
}

type fakeBuilds struct {
	detail *github.RunDetail
	jobs   []github.Job
	logs   string
	err    error
}

func (f *fakeBuilds) GetWorkflowRun(_ context.Context, _ int64) (*github.RunDetail, error) {
	return f.detail, f.err
}

func (f *fakeBuilds) GetWorkflowRunJobs(_ context.Context, _ int64) ([]github.Job, error) {
	return f.jobs, f.err
}

func (f *fakeBuilds) GetJobLogs(_ context.Context, _ int64) (string, error) {
	return f.logs, f.err
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

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return log
}

func completedRun(
	t *testing.T, id int64, concl pipeline.Conclusion, updated string,
) pipeline.Run {
	t.Helper()

	u, err := time.Parse(time.RFC3339, updated)
	require.NoError(t, err)

	started := u.Add(-10 * time.Minute)

	return pipeline.Run{
		ID:         id,
		Name:       "CI",
		Status:     pipeline.StatusCompleted,
		Conclusion: concl,
		HeadBranch: "main",
		HeadSHA:    fmt.Sprintf("%040d", id),
		StartedAt:  &started,
		UpdatedAt:  &u,
	}
}

type testEnv struct {
	srv    *server
	http   *httptest.Server
	poster *fakePoster
	builds *fakeBuilds
}

func newTestEnv(t *testing.T, runs []pipeline.Run) *testEnv {
	t.Helper()

	return newTestEnvWithConfig(t, runs, nil)
}

func newTestEnvWithConfig(
	t *testing.T, runs []pipeline.Run, mutate func(cfg *config.Config),
) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Analytics: config.AnalyticsConfig{LookbackDays: 30},
		Server:    config.ServerConfig{CORSOrigins: []string{"*"}},
	}

	if mutate != nil {
		mutate(cfg)
	}

	poster := &fakePoster{}
	builds := &fakeBuilds{}

	log := testLogger()

	s := &server{
		log:      log,
		cfg:      cfg,
		analyzer: analyzer.New(log, &fakeRuns{runs: runs}, analytics.Options{}),
		builds:   builds,
		repo:     notify.NewMemoryRepository(),
		poster:   poster,
		hub:      push.NewHub(log),
		done:     make(chan struct{}),
	}

	ts := httptest.NewServer(s.buildRouter())
	t.Cleanup(func() {
		ts.Close()
		close(s.done)
	})

	return &testEnv{srv: s, http: ts, poster: poster, builds: builds}
}

func (e *testEnv) get(t *testing.T, path string, out any) *http.Response {
	t.Helper()

	resp, err := http.Get(e.http.URL + path)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}

	return resp
}

func (e *testEnv) do(
	t *testing.T, method, path, body string, out any,
) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, e.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)

	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}

	return resp
}

func TestRateLimitEnforced(t *testing.T) {
	env := newTestEnvWithConfig(t, nil, func(cfg *config.Config) {
		cfg.Server.RateLimit = config.RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 2,
		}
	})

	codes := make([]int, 0, 3)

	for i := 0; i < 3; i++ {
		resp := env.get(t, "/api/v1/health", nil)
		codes = append(codes, resp.StatusCode)
	}

	assert.Equal(t, []int{
		http.StatusOK, http.StatusOK, http.StatusTooManyRequests,
	}, codes)
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:4444"
	assert.Equal(t, "10.0.0.1", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(req))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	var out map[string]any

	resp := env.get(t, "/api/v1/health", &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", out["status"])
}

func TestAnalyticsOverviewEndpoint(t *testing.T) {
	now := time.Now().UTC().Format(time.RFC3339)

	env := newTestEnv(t, []pipeline.Run{
		completedRun(t, 1, pipeline.ConclusionSuccess, now),
		completedRun(t, 2, pipeline.ConclusionFailure, now),
	})

	var out analytics.Overview

	resp := env.get(t, "/api/v1/analytics/overview?days=7", &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, out.TotalBuilds)
	assert.Equal(t, 7, out.PeriodDays)
	assert.InDelta(t, 50, out.SuccessRate, 0.001)
}

func TestQueryValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []string{
		"/api/v1/analytics/overview?days=0",
		"/api/v1/analytics/overview?days=9999",
		"/api/v1/analytics/overview?days=soon",
		"/api/v1/analytics/trends?granularity=fortnightly",
		"/api/v1/pipeline/metrics?minutes=-5",
		"/api/v1/pipeline/recent?limit=0",
		"/api/v1/builds/abc",
	}

	for _, path := range tests {
		resp := env.get(t, path, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
}

func TestPipelineOverviewEndpoint(t *testing.T) {
	running := pipeline.Run{
		ID: 9, Name: "CI", Status: pipeline.StatusInProgress, HeadBranch: "main",
	}

	env := newTestEnv(t, []pipeline.Run{running})

	var out analytics.PipelineOverview

	resp := env.get(t, "/api/v1/pipeline/overview", &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "running", out.Status)
	assert.Equal(t, 1, out.QueueStatus.RunningCount)
}

func TestBuildNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	env.builds.err = github.ErrNotFound

	resp := env.get(t, "/api/v1/builds/42", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBuildJobsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.builds.jobs = []github.Job{{ID: 1, Name: "build", Conclusion: "success"}}

	var out struct {
		Jobs  []github.Job `json:"jobs"`
		Count int          `json:"count"`
	}

	resp := env.get(t, "/api/v1/builds/42/jobs", &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, "build", out.Jobs[0].Name)
}

func TestBuildLogsConcatenated(t *testing.T) {
	env := newTestEnv(t, nil)
	env.builds.jobs = []github.Job{{ID: 7, Name: "lint"}}
	env.builds.logs = "all clean"

	var out struct {
		BuildID int64  `json:"build_id"`
		Logs    string `json:"logs"`
	}

	resp := env.get(t, "/api/v1/builds/42/logs", &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(42), out.BuildID)
	assert.Contains(t, out.Logs, "=== lint ===")
	assert.Contains(t, out.Logs, "all clean")
}

func TestListBuildsFilters(t *testing.T) {
	now := time.Now().UTC().Format(time.RFC3339)

	failed := completedRun(t, 1, pipeline.ConclusionFailure, now)
	passed := completedRun(t, 2, pipeline.ConclusionSuccess, now)
	passed.HeadBranch = "develop"

	env := newTestEnv(t, []pipeline.Run{failed, passed})

	var out struct {
		Builds []pipeline.Run `json:"builds"`
		Count  int            `json:"count"`
	}

	resp := env.get(t, "/api/v1/builds/?conclusion=failure", &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, out.Count)
	assert.Equal(t, int64(1), out.Builds[0].ID)

	resp = env.get(t, "/api/v1/builds/?branch=develop", &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, out.Count)
	assert.Equal(t, int64(2), out.Builds[0].ID)
}

func TestNotificationStatus(t *testing.T) {
	env := newTestEnv(t, nil)

	rule := &notify.Rule{
		Name:       "Failures",
		Enabled:    true,
		EventTypes: []string{notify.EventBuildFailure},
	}
	require.NoError(t, env.srv.repo.CreateRule(context.Background(), rule))

	var out struct {
		SlackConfigured bool `json:"slack_configured"`
		RulesTotal      int  `json:"rules_total"`
		RulesEnabled    int  `json:"rules_enabled"`
	}

	resp := env.get(t, "/api/v1/notifications/status", &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, out.SlackConfigured)
	assert.Equal(t, 1, out.RulesTotal)
	assert.Equal(t, 1, out.RulesEnabled)
}

func TestRuleLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	var created notify.Rule

	resp := env.do(t, http.MethodPost, "/api/v1/notifications/rules",
		`{"name":"Main Failures","event_types":["build_failure"],"branches":["main"]}`,
		&created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, created.Enabled)
	assert.Equal(t, []string{"slack"}, created.Channels)

	var listed struct {
		Rules []notify.Rule `json:"rules"`
		Count int           `json:"count"`
	}

	resp = env.get(t, "/api/v1/notifications/rules", &listed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, listed.Count)

	resp = env.do(t, http.MethodPut, "/api/v1/notifications/rules/1",
		`{"name":"Main Failures","enabled":false,"event_types":["build_failure"]}`,
		nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got notify.Rule

	resp = env.get(t, "/api/v1/notifications/rules/1", &got)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, got.Enabled)

	resp = env.do(t, http.MethodDelete, "/api/v1/notifications/rules/1", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.get(t, "/api/v1/notifications/rules/1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateRuleValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{name: "missing name", body: `{"event_types":["build_failure"]}`},
		{name: "missing event types", body: `{"name":"x"}`},
		{name: "unknown event type", body: `{"name":"x","event_types":["solar_flare"]}`},
		{name: "malformed json", body: `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost,
				"/api/v1/notifications/rules", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestProcessEvent(t *testing.T) {
	env := newTestEnv(t, nil)

	rule := &notify.Rule{
		Name:       "Failures",
		Enabled:    true,
		EventTypes: []string{notify.EventBuildFailure},
		Channels:   []string{"slack"},
	}
	require.NoError(t, env.srv.repo.CreateRule(context.Background(), rule))

	var out struct {
		Matched int `json:"matched"`
		Sent    int `json:"sent"`
	}

	resp := env.do(t, http.MethodPost, "/api/v1/notifications/process-event",
		`{"event_type":"build_failure","branch":"main","message":"CI broke"}`,
		&out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, out.Matched)
	assert.Equal(t, 1, out.Sent)

	require.Len(t, env.poster.messages, 1)
	assert.Equal(t, "CI broke", env.poster.messages[0].Text)

	var history struct {
		History []notify.HistoryEntry `json:"history"`
	}

	resp = env.get(t, "/api/v1/notifications/history", &history)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, history.History, 1)
	assert.Equal(t, notify.StatusSent, history.History[0].Status)
	assert.Equal(t, "Failures", history.History[0].RuleName)
}

func TestProcessEventDeliveryFailureRecorded(t *testing.T) {
	env := newTestEnv(t, nil)
	env.poster.err = assert.AnError

	rule := &notify.Rule{
		Name:       "Failures",
		Enabled:    true,
		EventTypes: []string{notify.EventBuildFailure},
		Channels:   []string{"slack"},
	}
	require.NoError(t, env.srv.repo.CreateRule(context.Background(), rule))

	var out struct {
		Matched int `json:"matched"`
		Sent    int `json:"sent"`
	}

	resp := env.do(t, http.MethodPost, "/api/v1/notifications/process-event",
		`{"event_type":"build_failure","branch":"main"}`, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, out.Matched)
	assert.Zero(t, out.Sent)

	var history struct {
		History []notify.HistoryEntry `json:"history"`
	}

	env.get(t, "/api/v1/notifications/history", &history)
	require.Len(t, history.History, 1)
	assert.Equal(t, notify.StatusFailed, history.History[0].Status)
	assert.NotEmpty(t, history.History[0].Error)
}

func TestTestNotificationWithoutWebhook(t *testing.T) {
	env := newTestEnv(t, nil)
	env.srv.poster = nil

	resp := env.do(t, http.MethodPost, "/api/v1/notifications/test", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWebsocketReceivesBroadcasts(t *testing.T) {
	env := newTestEnv(t, nil)

	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws?events=build_event"

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	defer func() {
		_ = resp.Body.Close()
		_ = conn.Close()
	}()

	// Registration happens inside the handler goroutine; wait for it.
	require.Eventually(t, func() bool {
		return env.srv.hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	env.srv.hub.Broadcast(push.EventBuild, map[string]string{"conclusion": "failure"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env2 push.Envelope
	require.NoError(t, json.Unmarshal(data, &env2))
	assert.Equal(t, push.EventBuild, env2.Type)
	assert.JSONEq(t, `{"conclusion":"failure"}`, string(env2.Data))
}
