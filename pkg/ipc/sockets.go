// Package ipc exposes the layout controller over two unix sockets:
// one command socket speaking a line protocol (one command in, one
// response line out, "ok" on success in the compositor-IPC tradition)
// and one event socket broadcasting "name>>payload" lines to
// subscribers such as bar widgets.
package ipc

import (
	"fmt"

	"github.com/adrg/xdg"
)

type socketKind int

const (
	commandSocket socketKind = iota
	eventSocket
)

// DefaultSocketPath resolves the command socket under the XDG runtime
// directory.
func DefaultSocketPath() (string, error) {
	return socketPath(commandSocket)
}

// DefaultEventSocketPath resolves the event broadcast socket.
func DefaultEventSocketPath() (string, error) {
	return socketPath(eventSocket)
}

func socketPath(kind socketKind) (string, error) {
	if xdg.RuntimeDir == "" {
		return "", fmt.Errorf("XDG runtime directory is not available")
	}

	switch kind {
	case commandSocket:
		return fmt.Sprintf("%s/kbgroupd/ipc.sock", xdg.RuntimeDir), nil
	case eventSocket:
		return fmt.Sprintf("%s/kbgroupd/events.sock", xdg.RuntimeDir), nil
	}

	return "", fmt.Errorf("unknown socket kind: %d", kind)
}
