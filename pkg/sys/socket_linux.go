//go:build linux

package sys

import (
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// NewSocket opens a non-blocking close-on-exec socket.
func NewSocket(family int, sotype int, protocol int) (int, error) {
	sock, err := syscall.Socket(family, sotype|syscall.SOCK_NONBLOCK|syscall.SOCK_CLOEXEC, protocol)
	if err == nil {
		return sock, nil
	}
	if !errors.Is(err, syscall.EPROTONOSUPPORT) && !errors.Is(err, syscall.EINVAL) {
		return -1, os.NewSyscallError("socket", err)
	}
	// kernel predates combined socket flags; set them after the fact
	syscall.ForkLock.RLock()
	sock, err = syscall.Socket(family, sotype, protocol)
	if err == nil {
		syscall.CloseOnExec(sock)
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		return -1, os.NewSyscallError("socket", err)
	}
	if err = syscall.SetNonblock(sock, true); err != nil {
		_ = syscall.Close(sock)
		return -1, os.NewSyscallError("setnonblock", err)
	}
	return sock, nil
}

func SetReusePort(sock int) error {
	if err := syscall.SetsockoptInt(sock, syscall.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		return os.NewSyscallError("setsockopt", err)
	}
	return nil
}

// NetworkOf names the network a socket belongs to from its creation params.
func NetworkOf(family int, sotype int) string {
	switch family {
	case syscall.AF_UNIX:
		return "unix"
	default:
		switch sotype {
		case syscall.SOCK_DGRAM:
			return "udp"
		default:
			return "tcp"
		}
	}
}
