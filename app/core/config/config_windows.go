//go:build windows

package config

import (
	"os"
	"path/filepath"
)

// DefaultEndpointPath returns the named pipe the governor listens on. This
// is the literal wire name "BuildGovernor" from the shim-governor protocol.
func DefaultEndpointPath() string {
	return `\\.\pipe\BuildGovernor`
}

func defaultStateDir() string {
	if appData := os.Getenv("ProgramData"); appData != "" {
		return filepath.Join(appData, "BuildGovernor")
	}
	return `C:\BuildGovernor`
}
