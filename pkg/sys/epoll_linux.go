//go:build linux

package sys

import (
	"os"
	"syscall"
)

func OpenEPoll(batch int) (*EPoll, error) {
	if batch < 1 {
		batch = 64
	}
	p, err := syscall.EpollCreate1(syscall.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	return &EPoll{fd: p, events: make([]syscall.EpollEvent, batch)}, nil
}

// EPoll is a thin level-triggered multiplexer. Interest is managed per fd
// with Add/Mod/Del; Wait performs a single epoll_wait bounded by timeoutMs
// (-1 blocks indefinitely, 0 returns immediately).
type EPoll struct {
	fd     int
	events []syscall.EpollEvent
}

const (
	Readable = uint32(syscall.EPOLLIN)
	Writable = uint32(syscall.EPOLLOUT)
)

func (p *EPoll) Add(fd int, events uint32) error {
	if err := syscall.EpollCtl(p.fd, syscall.EPOLL_CTL_ADD, fd,
		&syscall.EpollEvent{Fd: int32(fd), Events: events},
	); err != nil {
		return os.NewSyscallError("epoll_ctl", err)
	}
	return nil
}

func (p *EPoll) Mod(fd int, events uint32) error {
	if err := syscall.EpollCtl(p.fd, syscall.EPOLL_CTL_MOD, fd,
		&syscall.EpollEvent{Fd: int32(fd), Events: events},
	); err != nil {
		return os.NewSyscallError("epoll_ctl", err)
	}
	return nil
}

func (p *EPoll) Del(fd int) error {
	if err := syscall.EpollCtl(p.fd, syscall.EPOLL_CTL_DEL, fd,
		&syscall.EpollEvent{Fd: int32(fd), Events: Readable | Writable},
	); err != nil {
		return os.NewSyscallError("epoll_ctl", err)
	}
	return nil
}

func (p *EPoll) Wait(timeoutMs int, iter func(fd int, events uint32)) error {
	n, err := syscall.EpollWait(p.fd, p.events, timeoutMs)
	if err != nil {
		if err == syscall.EINTR {
			return nil
		}
		return os.NewSyscallError("epoll_wait", err)
	}
	for i := 0; i < n; i++ {
		iter(int(p.events[i].Fd), p.events[i].Events)
	}
	return nil
}

func (p *EPoll) Close() error {
	return syscall.Close(p.fd)
}
