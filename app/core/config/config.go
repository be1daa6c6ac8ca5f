// Package config loads the governor's runtime configuration from a .env
// file and the process environment, validating it before the daemon binds
// its endpoint.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/buildgovernor/governor/app/core/budget"
	"github.com/buildgovernor/governor/app/core/classify"
	"github.com/buildgovernor/governor/app/core/validator"
)

// RuntimeConfig is the full set of knobs the governor daemon needs at
// startup: the token budget model, the classifier weights, and the
// process-level settings that are not part of the budget math.
type RuntimeConfig struct {
	Budget  budget.Config
	Weights classify.Weights
	Runtime ProcessConfig
}

// ProcessConfig holds the knobs that govern the process itself rather than
// the admission math: where it listens, when it gives up and exits, and its
// log level. ProbeInterval, GraylogEnabled and GraylogServer are loaded but
// nothing reads them: the pool's maintenance sweep always runs every
// pool.MaintenanceInterval, and logs go only to the console handler.
type ProcessConfig struct {
	EndpointPath      string
	ProbeInterval     time.Duration
	IdleShutdownAfter time.Duration
	LogLevel          string
	GraylogEnabled    bool
	GraylogServer     string
}

// DefaultProcessConfig returns the documented defaults: 500ms probe
// interval matching the pool's maintenance tick, 30 minute idle shutdown.
func DefaultProcessConfig() ProcessConfig {
	return ProcessConfig{
		EndpointPath:      DefaultEndpointPath(),
		ProbeInterval:     500 * time.Millisecond,
		IdleShutdownAfter: 30 * time.Minute,
		LogLevel:          "info",
	}
}

// Load reads a .env file at path (if present; a missing file is not an
// error, since every value can also come from the process environment),
// overlays the process environment, and returns a validated RuntimeConfig.
func Load(ctx context.Context, path string) (*RuntimeConfig, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				return nil, fmt.Errorf("config: loading %s: %w", path, err)
			}
		}
	}

	v := validator.New()

	cfg := budget.DefaultConfig()
	cfg.GBPerToken = envFloat("GOVERNOR_GB_PER_TOKEN", cfg.GBPerToken)
	cfg.SafetyReserveGB = envFloat("GOVERNOR_SAFETY_RESERVE_GB", cfg.SafetyReserveGB)
	cfg.MinTokens = envInt("GOVERNOR_MIN_TOKENS", cfg.MinTokens)
	cfg.MaxTokens = envInt("GOVERNOR_MAX_TOKENS", cfg.MaxTokens)
	cfg.CautionRatio = envFloat("GOVERNOR_CAUTION_RATIO", cfg.CautionRatio)
	cfg.SoftStopRatio = envFloat("GOVERNOR_SOFT_STOP_RATIO", cfg.SoftStopRatio)
	cfg.HardStopRatio = envFloat("GOVERNOR_HARD_STOP_RATIO", cfg.HardStopRatio)

	if err := v.ValidateTokenBounds(ctx, cfg.MinTokens, cfg.MaxTokens); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := v.ValidateThrottleThresholds(ctx, cfg.CautionRatio, cfg.SoftStopRatio, cfg.HardStopRatio); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	weights := classify.DefaultWeights()

	proc := DefaultProcessConfig()
	if p := os.Getenv("GOVERNOR_ENDPOINT"); p != "" {
		proc.EndpointPath = p
	}
	proc.ProbeInterval = envDuration("GOVERNOR_PROBE_INTERVAL", proc.ProbeInterval)
	proc.IdleShutdownAfter = envDuration("GOVERNOR_IDLE_SHUTDOWN", proc.IdleShutdownAfter)
	proc.GraylogEnabled = envBool("GOVERNOR_GRAYLOG_ENABLED", proc.GraylogEnabled)
	proc.GraylogServer = envString("GOVERNOR_GRAYLOG_SERVER", proc.GraylogServer)

	level, err := v.ValidateLoglevel(ctx, envString("GOVERNOR_LOG_LEVEL", proc.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	proc.LogLevel = level

	if err := v.ValidateTimeout(ctx, "probe interval", proc.ProbeInterval, 50*time.Millisecond, 10*time.Second); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := v.ValidateTimeout(ctx, "idle shutdown", proc.IdleShutdownAfter, time.Minute, 24*time.Hour); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return &RuntimeConfig{Budget: cfg, Weights: weights, Runtime: proc}, nil
}

// DefaultEnvPath returns the conventional .env location next to the
// governor's state directory.
func DefaultEnvPath() string {
	return filepath.Join(StateDir(), ".env")
}

// StateDir returns the governor's root state directory, overridable via
// GOVERNOR_ROOT_PATH for tests and non-standard installs.
func StateDir() string {
	if p := os.Getenv("GOVERNOR_ROOT_PATH"); p != "" {
		return p
	}
	return defaultStateDir()
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
