// Package validator centralizes the validation rules that, if violated,
// constitute a ConfigurationInvalid error at governor startup.
package validator

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Validator defines the configuration-time checks that config.Load runs
// before the governor daemon starts.
type Validator interface {
	// ValidateLoglevel validates a log level string against the slog levels.
	// An empty input defaults to "info".
	ValidateLoglevel(ctx context.Context, logLevel string) (string, error)

	// ValidateThrottleThresholds checks that caution < softStop < hardStop,
	// and that all three lie in (0, 1].
	ValidateThrottleThresholds(ctx context.Context, caution, softStop, hardStop float64) error

	// ValidateTokenBounds checks that 0 < min <= max.
	ValidateTokenBounds(ctx context.Context, min, max int) error

	// ValidateTimeout checks that a duration lies within [minimum, maximum].
	ValidateTimeout(ctx context.Context, name string, timeout, minimum, maximum time.Duration) error
}

type validatorImpl struct{}

// New creates a new Validator.
func New() Validator {
	return &validatorImpl{}
}

func (v *validatorImpl) ValidateLoglevel(_ context.Context, logLevel string) (string, error) {
	logLevel = strings.ToLower(strings.TrimSpace(logLevel))
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

	if logLevel == "" {
		return "info", nil
	}
	if validLevels[logLevel] {
		return logLevel, nil
	}
	return "", fmt.Errorf("loglevel must be 'debug', 'info', 'warn' or 'error'")
}

func (v *validatorImpl) ValidateThrottleThresholds(_ context.Context, caution, softStop, hardStop float64) error {
	if caution <= 0 || caution > 1 || softStop <= 0 || softStop > 1 || hardStop <= 0 || hardStop > 1 {
		return fmt.Errorf("throttle thresholds must lie in (0, 1]: caution=%.2f softStop=%.2f hardStop=%.2f", caution, softStop, hardStop)
	}
	if !(caution < softStop && softStop < hardStop) {
		return fmt.Errorf("throttle thresholds must be strictly increasing: caution=%.2f < softStop=%.2f < hardStop=%.2f", caution, softStop, hardStop)
	}
	return nil
}

func (v *validatorImpl) ValidateTokenBounds(_ context.Context, min, max int) error {
	if min <= 0 {
		return fmt.Errorf("min_tokens must be positive, got %d", min)
	}
	if max < min {
		return fmt.Errorf("max_tokens (%d) must be >= min_tokens (%d)", max, min)
	}
	return nil
}

func (v *validatorImpl) ValidateTimeout(_ context.Context, name string, timeout, minimum, maximum time.Duration) error {
	if timeout < minimum {
		return fmt.Errorf("%s must be at least %v", name, minimum)
	}
	if timeout > maximum {
		return fmt.Errorf("%s must not exceed %v", name, maximum)
	}
	return nil
}
