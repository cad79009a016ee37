package sys

import (
	"os"
	"syscall"
)

func NewFd(network string, sock int, family int, sotype int) (fd *Fd) {
	fd = &Fd{
		sock:   sock,
		family: family,
		sotype: sotype,
		net:    network,
	}
	return
}

// Fd owns one kernel file descriptor. At most one live Fd refers to a given
// descriptor; Close releases it and invalidates the handle.
type Fd struct {
	sock   int
	family int
	sotype int
	net    string
}

func (fd *Fd) Socket() int {
	return fd.sock
}

func (fd *Fd) Family() int {
	return fd.family
}

func (fd *Fd) SocketType() int {
	return fd.sotype
}

func (fd *Fd) Net() string {
	return fd.net
}

func (fd *Fd) Valid() bool {
	return fd.sock >= 0
}

func (fd *Fd) ZeroReadIsEOF() bool {
	return fd.sotype != syscall.SOCK_DGRAM && fd.sotype != syscall.SOCK_RAW
}

// Port reports the locally bound port, or zero for non-inet sockets.
func (fd *Fd) Port() (int, error) {
	sa, err := syscall.Getsockname(fd.sock)
	if err != nil {
		return 0, os.NewSyscallError("getsockname", err)
	}
	switch a := sa.(type) {
	case *syscall.SockaddrInet4:
		return a.Port, nil
	case *syscall.SockaddrInet6:
		return a.Port, nil
	default:
		return 0, nil
	}
}

func (fd *Fd) SetReuseAddr() error {
	if err := syscall.SetsockoptInt(fd.sock, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
		return os.NewSyscallError("setsockopt", err)
	}
	return nil
}

func (fd *Fd) Bind(sa syscall.Sockaddr) error {
	if err := syscall.Bind(fd.sock, sa); err != nil {
		return os.NewSyscallError("bind", err)
	}
	return nil
}

func (fd *Fd) Listen(backlog int) error {
	if backlog < 1 {
		backlog = MaxListenerBacklog()
	}
	if err := syscall.Listen(fd.sock, backlog); err != nil {
		return os.NewSyscallError("listen", err)
	}
	return nil
}

func (fd *Fd) SetNoDelay(noDelay bool) error {
	if fd.sotype != syscall.SOCK_STREAM {
		return nil
	}
	v := 0
	if noDelay {
		v = 1
	}
	if err := syscall.SetsockoptInt(fd.sock, syscall.IPPROTO_TCP, syscall.TCP_NODELAY, v); err != nil {
		return os.NewSyscallError("setsockopt", err)
	}
	return nil
}

func (fd *Fd) CloseRead() error {
	return syscall.Shutdown(fd.sock, syscall.SHUT_RD)
}

func (fd *Fd) CloseWrite() error {
	return syscall.Shutdown(fd.sock, syscall.SHUT_WR)
}

func (fd *Fd) Close() error {
	if fd.sock < 0 {
		return nil
	}
	sock := fd.sock
	fd.sock = -1
	return syscall.Close(sock)
}
