//go:build windows

package protocol

import (
	"os/exec"

	"golang.org/x/sys/windows"
)

// detachProcess starts the child without a console window and detached
// from the shim's job/console, matching --background's quiet-mode intent.
func detachProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &windows.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP | windows.DETACHED_PROCESS,
	}
}
