package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/devpulse/pipewatch/pkg/analytics"
	"github.com/devpulse/pipewatch/pkg/analyzer"
	"github.com/devpulse/pipewatch/pkg/push"
)

// pipelineUpdate is the payload broadcast on every refresh tick.
type pipelineUpdate struct {
	Overview analytics.PipelineOverview `json:"overview"`
	Status   analytics.PipelineStatus   `json:"status"`
}

// refresher periodically recomputes the live pipeline view and pushes
// it to websocket subscribers.
type refresher struct {
	log      logrus.FieldLogger
	analyzer *analyzer.Analyzer
	hub      *push.Hub
	interval time.Duration
	wg       sync.WaitGroup
	done     chan struct{}
}

func newRefresher(
	log logrus.FieldLogger,
	an *analyzer.Analyzer,
	hub *push.Hub,
	interval time.Duration,
) *refresher {
	return &refresher{
		log:      log.WithField("component", "refresher"),
		analyzer: an,
		hub:      hub,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start launches the refresh loop. The first pass runs immediately so
// a client connecting right after startup sees data on the next tick.
func (rf *refresher) Start(ctx context.Context) error {
	rf.log.WithField("interval", rf.interval.String()).
		Info("Starting dashboard refresher")

	rf.wg.Add(1)

	go func() {
		defer rf.wg.Done()

		rf.runPass(ctx)

		ticker := time.NewTicker(rf.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rf.runPass(ctx)
			case <-rf.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop signals the refresh loop to stop and waits for it.
func (rf *refresher) Stop() error {
	close(rf.done)
	rf.wg.Wait()

	rf.log.Info("Dashboard refresher stopped")

	return nil
}

// runPass computes one live snapshot and broadcasts it. With nobody
// connected the upstream fetch is skipped entirely.
func (rf *refresher) runPass(ctx context.Context) {
	if rf.hub.ClientCount() == 0 {
		return
	}

	var update pipelineUpdate

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		overview, err := rf.analyzer.PipelineOverview(gCtx)
		if err != nil {
			return err
		}

		update.Overview = overview

		return nil
	})

	g.Go(func() error {
		status, err := rf.analyzer.PipelineStatus(gCtx)
		if err != nil {
			return err
		}

		update.Status = status

		return nil
	})

	if err := g.Wait(); err != nil {
		rf.log.WithError(err).Warn("Dashboard refresh failed")

		return
	}

	rf.hub.Broadcast(push.EventPipelineUpdate, update)
}
