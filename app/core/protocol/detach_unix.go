//go:build !windows

package protocol

import (
	"os/exec"
	"syscall"
)

// detachProcess puts the child in its own session so it outlives the
// shim's process group.
func detachProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
