// Package config loads control-plane configuration. Values come from an
// optional TOML file named by SYNCDECK_CONFIG, with environment variables
// taking precedence over the file and built-in defaults filling the rest.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/avelier/syncdeck/internal/model"
)

const (
	defaultListenAddr      = ":8080"
	defaultDBPath          = "syncdeck.db"
	defaultMode            = model.ModeLocal
	defaultRunnerBaseDir   = "/var/run/syncdeck"
	defaultRunnerBinary    = "syncrunner"
	defaultRemoteRunnerURL = "http://localhost:8090"

	envConfigFile          = "SYNCDECK_CONFIG"
	envListenAddr          = "SYNCDECK_LISTEN_ADDR"
	envDBPath              = "SYNCDECK_DB_PATH"
	envLogLevel            = "SYNCDECK_LOG_LEVEL"
	envMode                = "SYNCDECK_MODE"
	envRunnerBaseDir       = "SYNCDECK_RUNNER_BASE_DIR"
	envRunnerBinary        = "SYNCDECK_RUNNER_BINARY"
	envRemoteRunnerURL     = "SYNCDECK_REMOTE_RUNNER_URL"
	envFileStoreURL        = "SYNCDECK_FILESTORE_URL"
	envRunnerPollInterval  = "SYNCDECK_RUNNER_POLL_INTERVAL"
	envRunnerLocalTimeout  = "SYNCDECK_RUNNER_LOCAL_TIMEOUT"
	envRunnerRemoteTimeout = "SYNCDECK_RUNNER_REMOTE_TIMEOUT"
)

// Duration wraps time.Duration so TOML files can carry values like "90s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Config holds application configuration.
type Config struct {
	ListenAddr string `toml:"listen_addr"`
	DBPath     string `toml:"db_path"`

	// LogLevelName is the textual level from the TOML file; LogLevel is
	// the parsed form the rest of the application consumes.
	LogLevelName string     `toml:"log_level"`
	LogLevel     slog.Level `toml:"-"`

	// Mode selects the runner deployment target: "local" spawns runner
	// processes on this host, "remote" talks to a hosted runner fleet.
	Mode string `toml:"mode"`

	RunnerBaseDir   string `toml:"runner_base_dir"`
	RunnerBinary    string `toml:"runner_binary"`
	RemoteRunnerURL string `toml:"remote_runner_url"`

	// Resolver knobs. Zero values fall back to the runner package defaults
	// (1s poll, 10s local timeout, 90s remote timeout).
	RunnerPollInterval  Duration `toml:"runner_poll_interval"`
	RunnerLocalTimeout  Duration `toml:"runner_local_timeout"`
	RunnerRemoteTimeout Duration `toml:"runner_remote_timeout"`

	// FileStoreURL is the base URL of the artifact file store. Empty
	// disables artifact uploads.
	FileStoreURL string `toml:"filestore_url"`
}

// Load reads configuration from the optional TOML file and environment
// variables. The file path itself comes from SYNCDECK_CONFIG; a missing or
// malformed file is an error, an unset variable is not.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:      defaultListenAddr,
		DBPath:          defaultDBPath,
		LogLevel:        slog.LevelInfo,
		Mode:            defaultMode,
		RunnerBaseDir:   defaultRunnerBaseDir,
		RunnerBinary:    defaultRunnerBinary,
		RemoteRunnerURL: defaultRemoteRunnerURL,
	}

	if path := os.Getenv(envConfigFile); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config file %s: %w", path, err)
		}
		if cfg.LogLevelName != "" {
			cfg.LogLevel = parseLogLevel(cfg.LogLevelName)
		}
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envMode); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv(envRunnerBaseDir); v != "" {
		cfg.RunnerBaseDir = v
	}
	if v := os.Getenv(envRunnerBinary); v != "" {
		cfg.RunnerBinary = v
	}
	if v := os.Getenv(envRemoteRunnerURL); v != "" {
		cfg.RemoteRunnerURL = v
	}
	if v := os.Getenv(envFileStoreURL); v != "" {
		cfg.FileStoreURL = v
	}
	for _, d := range []struct {
		env string
		dst *Duration
	}{
		{envRunnerPollInterval, &cfg.RunnerPollInterval},
		{envRunnerLocalTimeout, &cfg.RunnerLocalTimeout},
		{envRunnerRemoteTimeout, &cfg.RunnerRemoteTimeout},
	} {
		if v := os.Getenv(d.env); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", d.env, err)
			}
			*d.dst = Duration(parsed)
		}
	}

	if !model.ValidMode(cfg.Mode) {
		return Config{}, fmt.Errorf("unknown deployment mode %q", cfg.Mode)
	}

	return cfg, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
