package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/devpulse/pipewatch/pkg/analytics"
	"github.com/devpulse/pipewatch/pkg/analyzer"
	"github.com/devpulse/pipewatch/pkg/config"
	"github.com/devpulse/pipewatch/pkg/github"
	"github.com/devpulse/pipewatch/pkg/slack"
)

var (
	// Version information set at build time.
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cfgFile string
	log     *logrus.Logger
)

func main() {
	log = logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatal("Failed to execute command")
	}
}

var rootCmd = &cobra.Command{
	Use:   "pipewatch",
	Short: "CI/CD pipeline telemetry and alerting service",
	Long: `Pipewatch aggregates GitHub Actions workflow telemetry into pipeline
analytics, serves them over an HTTP and websocket API, and posts
failure alerts and digests to Slack.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pipewatch %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file and applies the configured log
// level to the process logger.
func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("config file is required (use --config)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q (one of %s): %w",
			cfg.LogLevel, strings.Join(logLevels(), ", "), err)
	}

	log.SetLevel(level)

	return cfg, nil
}

// newAnalyzer wires the GitHub client and metrics engine from config.
func newAnalyzer(cfg *config.Config) (*analyzer.Analyzer, *github.Client) {
	var opts []github.Option
	if cfg.GitHub.APIBaseURL != "" {
		opts = append(opts, github.WithBaseURL(cfg.GitHub.APIBaseURL))
	}

	client := github.NewClient(log,
		cfg.GitHub.Owner, cfg.GitHub.Repo, cfg.GitHub.Token, opts...)

	an := analyzer.New(log, client, analytics.Options{
		CancelledAsFailure: cfg.Analytics.CancelledAsFailure,
	})

	return an, client
}

// newPoster returns the Slack webhook poster, or nil when no webhook
// is configured.
func newPoster(cfg *config.Config) slack.Poster {
	if cfg.Slack.WebhookURL == "" {
		return nil
	}

	return slack.NewWebhook(log, cfg.Slack.WebhookURL)
}

func logLevels() []string {
	levels := make([]string, 0, len(logrus.AllLevels))
	for _, level := range logrus.AllLevels {
		levels = append(levels, level.String())
	}

	return levels
}
