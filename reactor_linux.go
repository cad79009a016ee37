//go:build linux

package warden

import (
	"golang.org/x/sys/unix"

	"github.com/brickingsoft/warden/pkg/sys"
)

func createSocket(domain int, sotype int, proto int) (*sys.Fd, error) {
	sock, err := sys.NewSocket(domain, sotype, proto)
	if err != nil {
		return nil, err
	}
	return sys.NewFd(sys.NetworkOf(domain, sotype), sock, domain, sotype), nil
}

// fdClosed reports whether a descriptor number no longer names an open
// file. Level-triggered multiplexers drop closed fds from their interest
// sets silently, so the reactors probe their waiting fds each tick to turn
// a close under a pending operation into a completion instead of a hang.
func fdClosed(fd int) bool {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	return err == unix.EBADF
}
