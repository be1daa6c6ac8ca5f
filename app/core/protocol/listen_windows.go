//go:build windows

package protocol

import (
	"fmt"
	"net"

	winio "github.com/Microsoft/go-winio"
)

// listen binds the named pipe at path (e.g. \\.\pipe\BuildGovernor).
func listen(path string) (net.Listener, error) {
	lis, err := winio.ListenPipe(path, nil)
	if err != nil {
		return nil, fmt.Errorf("protocol: listen on pipe %s: %w", path, err)
	}
	return lis, nil
}
