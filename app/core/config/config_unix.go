//go:build !windows

package config

import (
	"os"
	"path/filepath"
)

// DefaultEndpointPath returns the Unix domain socket path the governor
// listens on: $XDG_RUNTIME_DIR/build-governor/governor.sock, falling back
// to /tmp/build-governor/governor.sock when XDG_RUNTIME_DIR is unset.
func DefaultEndpointPath() string {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = "/tmp"
	}
	return filepath.Join(runtimeDir, "build-governor", "governor.sock")
}

func defaultStateDir() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".build-governor")
	}
	return "/var/lib/build-governor"
}
