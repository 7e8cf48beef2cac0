package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

const minimalConfig = `
log_level: info
github:
  owner: devpulse
  repo: pipewatch
  token: file-token
server:
  listen: ":9000"
database:
  driver: sqlite
  sqlite:
    path: /tmp/test.db
monitor:
  poll_interval: 45s
`

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "devpulse", cfg.GitHub.Owner)
	assert.Equal(t, "pipewatch", cfg.GitHub.Repo)
	assert.Equal(t, ":9000", cfg.Server.Listen)
	assert.Equal(t, "/tmp/test.db", cfg.Database.SQLite.Path)
	assert.Equal(t, "45s", cfg.Monitor.PollInterval)
}

func TestLoadEnvVarOverrides(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "no env vars uses yaml values",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "file-token", cfg.GitHub.Token)
				assert.Equal(t, ":9000", cfg.Server.Listen)
			},
		},
		{
			name: "string override",
			envVars: map[string]string{
				"PIPEWATCH_GITHUB_TOKEN": "env-token",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "env-token", cfg.GitHub.Token)
			},
		},
		{
			name: "nested override",
			envVars: map[string]string{
				"PIPEWATCH_DATABASE_SQLITE_PATH": "/env/override.db",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/env/override.db", cfg.Database.SQLite.Path)
			},
		},
		{
			name: "log level override",
			envVars: map[string]string{
				"PIPEWATCH_LOG_LEVEL": "debug",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.LogLevel)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := Load(writeConfig(t, minimalConfig))
			require.NoError(t, err)

			tt.validate(t, cfg)
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
github:
  owner: devpulse
  repo: pipewatch
`))
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultListen, cfg.Server.Listen)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, DefaultRefreshInterval, cfg.Server.RefreshInterval)
	assert.Equal(t, DefaultLookbackDays, cfg.Analytics.LookbackDays)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, DefaultSQLitePath, cfg.Database.SQLite.Path)
	assert.Equal(t, DefaultPollInterval, cfg.Monitor.PollInterval)
	assert.Equal(t, DefaultRunsPerPoll, cfg.Monitor.RunsPerPoll)
	assert.Equal(t, DefaultDigestWindow, cfg.Monitor.DigestWindow)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:    "missing owner",
			mutate:  func(cfg *Config) { cfg.GitHub.Owner = "" },
			wantErr: "github.owner is required",
		},
		{
			name:    "missing repo",
			mutate:  func(cfg *Config) { cfg.GitHub.Repo = "" },
			wantErr: "github.repo is required",
		},
		{
			name:    "bad driver",
			mutate:  func(cfg *Config) { cfg.Database.Driver = "mysql" },
			wantErr: "unsupported database driver",
		},
		{
			name:    "bad poll interval",
			mutate:  func(cfg *Config) { cfg.Monitor.PollInterval = "soon" },
			wantErr: "invalid monitor.poll_interval",
		},
		{
			name:    "runs per poll out of range",
			mutate:  func(cfg *Config) { cfg.Monitor.RunsPerPoll = 10000 },
			wantErr: "runs_per_poll",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, minimalConfig))
			require.NoError(t, err)

			tt.mutate(cfg)

			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDumpRedactsSecrets(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	cfg.Slack.WebhookURL = "https://hooks.slack.com/services/secret"

	out, err := cfg.Dump()
	require.NoError(t, err)

	assert.NotContains(t, out, "file-token")
	assert.NotContains(t, out, "hooks.slack.com")
	assert.Contains(t, out, "<redacted>")
	assert.Contains(t, out, "owner: devpulse")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
}
