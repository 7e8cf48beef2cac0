package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/devpulse/pipewatch/pkg/analytics"
	"github.com/devpulse/pipewatch/pkg/monitor"
	"github.com/devpulse/pipewatch/pkg/notify"
)

var monitorOnce bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Start the pipeline monitor",
	Long: `Start the scheduled poll job that watches workflow runs, posts Slack
alerts for newly failed builds and publishes periodic digests.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().BoolVar(&monitorOnce, "once", false,
		"run a single poll pass and post the digest, then exit")

	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	an, _ := newAnalyzer(cfg)

	repo := notify.NewRepository(log, &cfg.Database)
	if err := repo.Start(ctx); err != nil {
		return fmt.Errorf("opening notification store: %w", err)
	}

	defer func() {
		if err := repo.Stop(); err != nil {
			log.WithError(err).Warn("Failed to close notification store")
		}
	}()

	repoSlug := fmt.Sprintf("%s/%s", cfg.GitHub.Owner, cfg.GitHub.Repo)

	svc := monitor.New(log, cfg.Monitor, analytics.Options{
		CancelledAsFailure: cfg.Analytics.CancelledAsFailure,
	}, repoSlug, an, repo, newPoster(cfg), nil)

	if monitorOnce {
		return svc.RunOnce(ctx)
	}

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("starting monitor: %w", err)
	}

	sig := <-sigCh
	log.WithField("signal", sig).Info("Shutting down monitor")
	cancel()

	if err := svc.Stop(); err != nil {
		return fmt.Errorf("stopping monitor: %w", err)
	}

	return nil
}
