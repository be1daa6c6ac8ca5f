package validator

import (
	"context"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	v := New()
	if v == nil {
		t.Fatal("New() returned nil")
	}
	if _, ok := v.(*validatorImpl); !ok {
		t.Errorf("New() returned unexpected type: %T", v)
	}
}

func TestValidateLoglevel(t *testing.T) {
	v := New()
	ctx := context.Background()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "empty defaults to info", input: "", want: "info"},
		{name: "debug", input: "debug", want: "debug"},
		{name: "mixed case warn", input: "WaRn", want: "warn"},
		{name: "invalid", input: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.ValidateLoglevel(ctx, tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateThrottleThresholds(t *testing.T) {
	v := New()
	ctx := context.Background()

	tests := []struct {
		name                          string
		caution, softStop, hardStop  float64
		wantErr                       bool
	}{
		{name: "defaults are valid", caution: 0.80, softStop: 0.88, hardStop: 0.92},
		{name: "not strictly increasing", caution: 0.80, softStop: 0.80, hardStop: 0.92, wantErr: true},
		{name: "out of order", caution: 0.90, softStop: 0.80, hardStop: 0.92, wantErr: true},
		{name: "out of range", caution: 0, softStop: 0.88, hardStop: 0.92, wantErr: true},
		{name: "above one", caution: 0.80, softStop: 0.88, hardStop: 1.5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateThrottleThresholds(ctx, tt.caution, tt.softStop, tt.hardStop)
			if tt.wantErr != (err != nil) {
				t.Errorf("got err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTokenBounds(t *testing.T) {
	v := New()
	ctx := context.Background()

	if err := v.ValidateTokenBounds(ctx, 1, 32); err != nil {
		t.Errorf("expected defaults to be valid, got %v", err)
	}
	if err := v.ValidateTokenBounds(ctx, 0, 32); err == nil {
		t.Errorf("expected error for non-positive min")
	}
	if err := v.ValidateTokenBounds(ctx, 10, 5); err == nil {
		t.Errorf("expected error for max < min")
	}
}

func TestValidateTimeout(t *testing.T) {
	v := New()
	ctx := context.Background()

	tests := []struct {
		name    string
		timeout time.Duration
		wantErr bool
	}{
		{name: "valid", timeout: 5 * time.Second},
		{name: "too small", timeout: 10 * time.Millisecond, wantErr: true},
		{name: "too large", timeout: time.Hour, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateTimeout(ctx, "acquire-timeout", tt.timeout, time.Second, 15*time.Minute)
			if tt.wantErr != (err != nil) {
				t.Errorf("got err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}
