// Package api serves the pipewatch HTTP API: pipeline status,
// analytics reports, build listings, notification management and the
// websocket push channel.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devpulse/pipewatch/pkg/analyzer"
	"github.com/devpulse/pipewatch/pkg/config"
	"github.com/devpulse/pipewatch/pkg/github"
	"github.com/devpulse/pipewatch/pkg/notify"
	"github.com/devpulse/pipewatch/pkg/push"
	"github.com/devpulse/pipewatch/pkg/slack"
)

const shutdownTimeout = 10 * time.Second

// BuildSource supplies per-build detail beyond what the analyzer
// aggregates.
type BuildSource interface {
	GetWorkflowRun(ctx context.Context, id int64) (*github.RunDetail, error)
	GetWorkflowRunJobs(ctx context.Context, runID int64) ([]github.Job, error)
	GetJobLogs(ctx context.Context, jobID int64) (string, error)
}

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.Config
	analyzer   *analyzer.Analyzer
	builds     BuildSource
	repo       notify.Repository
	poster     slack.Poster
	hub        *push.Hub
	refresher  *refresher
	httpServer *http.Server
	wg         sync.WaitGroup
	done       chan struct{}
}

// NewServer creates a new API server. The poster may be nil when no
// Slack webhook is configured.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.Config,
	an *analyzer.Analyzer,
	builds BuildSource,
	repo notify.Repository,
	poster slack.Poster,
) Server {
	return &server{
		log:      log.WithField("component", "api"),
		cfg:      cfg,
		analyzer: an,
		builds:   builds,
		repo:     repo,
		poster:   poster,
		hub:      push.NewHub(log),
		done:     make(chan struct{}),
	}
}

// Start opens the notification store and starts the HTTP server and
// the dashboard refresher.
func (s *server) Start(ctx context.Context) error {
	if err := s.repo.Start(ctx); err != nil {
		return fmt.Errorf("starting notification repository: %w", err)
	}

	router := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.cfg.Server.Listen).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	// Start the refresher after the API is listening so the first,
	// potentially slow, upstream fetch does not delay readiness.
	s.refresher = newRefresher(
		s.log, s.analyzer, s.hub, s.cfg.Server.RefreshIntervalDuration(),
	)
	if err := s.refresher.Start(ctx); err != nil {
		return fmt.Errorf("starting refresher: %w", err)
	}

	return nil
}

// Stop gracefully shuts down the HTTP server and closes everything it
// owns.
func (s *server) Stop() error {
	close(s.done)

	if s.refresher != nil {
		if err := s.refresher.Stop(); err != nil {
			s.log.WithError(err).Warn("Refresher stop error")
		}
	}

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()
	s.hub.Close()

	if err := s.repo.Stop(); err != nil {
		return fmt.Errorf("stopping notification repository: %w", err)
	}

	s.log.Info("API server stopped")

	return nil
}
