//go:build linux

package warden

import (
	"context"
	"syscall"
	"time"

	"github.com/brickingsoft/errors"
	"golang.org/x/sys/unix"

	"github.com/brickingsoft/warden/pkg/sys"
	"github.com/brickingsoft/warden/pkg/timewheel"
	"github.com/brickingsoft/warden/pkg/waitq"
)

type direction int

const (
	readDir direction = iota
	writeDir
)

// NewPoll opens a readiness reactor over a level-triggered epoll instance.
func NewPoll(opts ...Option) (*PollWarden, error) {
	o := evalOptions(opts)
	ep, err := sys.OpenEPoll(o.WaitEvents)
	if err != nil {
		return nil, err
	}
	return &PollWarden{
		ep:       ep,
		ready:    waitq.New[*pollIop](),
		wheel:    timewheel.New(),
		interest: make(map[int]uint32),
	}, nil
}

// PollWarden attempts every syscall eagerly and, when the kernel reports it
// would block, queues the operation on the fd's waiter queue and retries it
// once the multiplexer signals readiness. Waiters on one fd and direction
// resume in submission order.
type PollWarden struct {
	ep       *sys.EPoll
	ready    *waitq.Map[*pollIop]
	wheel    *timewheel.Wheel
	interest map[int]uint32
	stats    Stats
}

type pollIop struct {
	completion
	w        *PollWarden
	kind     opKind
	b        []byte
	sa       syscall.Sockaddr
	timer    *timewheel.Timer
	queued   bool
	inFlight bool
}

func (w *PollWarden) newIop(kind opKind, fd int, loc Location) *pollIop {
	c := &pollIop{w: w, kind: kind}
	c.op = kind.String()
	c.fd = fd
	c.loc = loc
	return c
}

func (w *PollWarden) Sleep(d time.Duration) Iop {
	c := w.newIop(opSleep, -1, capture(1))
	if d < 0 {
		d = 0
	}
	c.timer = w.wheel.Add(time.Now().Add(d), c)
	return c
}

func (w *PollWarden) ReadSome(fd int, b []byte, opts ...OpOption) Iop {
	c := w.newIop(opRead, fd, capture(1))
	c.b = b
	w.submit(c, evalOpOptions(opts))
	return c
}

func (w *PollWarden) WriteSome(fd int, b []byte, opts ...OpOption) Iop {
	c := w.newIop(opWrite, fd, capture(1))
	c.b = b
	w.submit(c, evalOpOptions(opts))
	return c
}

func (w *PollWarden) Accept(fd int, opts ...OpOption) Iop {
	c := w.newIop(opAccept, fd, capture(1))
	w.submit(c, evalOpOptions(opts))
	return c
}

func (w *PollWarden) Connect(fd int, sa syscall.Sockaddr, opts ...OpOption) Iop {
	c := w.newIop(opConnect, fd, capture(1))
	c.sa = sa
	w.submit(c, evalOpOptions(opts))
	return c
}

func (w *PollWarden) ReadReady(fd int) Iop {
	c := w.newIop(opReadReady, fd, capture(1))
	w.submit(c, OpOptions{})
	return c
}

func (w *PollWarden) WriteReady(fd int) Iop {
	c := w.newIop(opWriteReady, fd, capture(1))
	w.submit(c, OpOptions{})
	return c
}

func (w *PollWarden) CreateSocket(domain int, sotype int, proto int) (*sys.Fd, error) {
	return createSocket(domain, sotype, proto)
}

func (w *PollWarden) Run(fn TaskFunc) error {
	return drive(w.tick, fn)
}

func (w *PollWarden) Stats() Stats {
	return w.stats
}

func (w *PollWarden) Close() error {
	return w.ep.Close()
}

// submit tries the operation eagerly; a blocked one is parked on the fd's
// waiter queue with matching multiplexer interest and, if bounded, a wheel
// entry. Registration failures are captured in the completion and surface
// on Await, never here.
func (w *PollWarden) submit(c *pollIop, o OpOptions) {
	eager := c.kind != opReadReady && c.kind != opWriteReady
	if eager && !c.attempt() {
		return
	}
	dir := c.dir()
	if err := w.watch(c.fd, dir); err != nil {
		c.settle(0, err, statusCompleted)
		return
	}
	w.queue(c.fd, dir).Push(c)
	c.queued = true
	if !o.deadline.IsZero() {
		c.timer = w.wheel.Add(o.deadline, c)
	}
}

func (c *pollIop) dir() direction {
	switch c.kind {
	case opWrite, opConnect, opWriteReady:
		return writeDir
	default:
		return readDir
	}
}

// attempt performs the non-blocking syscall once and settles the completion
// unless the kernel reports it would block.
func (c *pollIop) attempt() (blocked bool) {
	switch c.kind {
	case opRead:
		for {
			n, err := syscall.Read(c.fd, c.b)
			if err == nil {
				c.settle(n, nil, statusCompleted)
				return false
			}
			switch err {
			case syscall.EINTR:
				continue
			case syscall.EAGAIN:
				return true
			default:
				c.settle(0, err, statusCompleted)
				return false
			}
		}
	case opWrite:
		for {
			n, err := syscall.Write(c.fd, c.b)
			if err == nil {
				c.settle(n, nil, statusCompleted)
				return false
			}
			switch err {
			case syscall.EINTR:
				continue
			case syscall.EAGAIN:
				return true
			default:
				c.settle(0, err, statusCompleted)
				return false
			}
		}
	case opAccept:
		for {
			nfd, _, err := unix.Accept4(c.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
			if err == nil {
				c.settle(nfd, nil, statusCompleted)
				return false
			}
			switch err {
			case unix.EINTR, unix.ECONNABORTED:
				continue
			case unix.EAGAIN:
				return true
			case unix.EBADF, unix.EINVAL:
				c.settle(0, errors.From(ErrClosed, errors.WithWrap(err)), statusCompleted)
				return false
			default:
				c.settle(0, err, statusCompleted)
				return false
			}
		}
	case opConnect:
		if !c.inFlight {
			err := syscall.Connect(c.fd, c.sa)
			switch err {
			case nil, syscall.EISCONN:
				c.settle(0, nil, statusCompleted)
				return false
			case syscall.EINPROGRESS, syscall.EAGAIN, syscall.EALREADY, syscall.EINTR:
				c.inFlight = true
				return true
			default:
				c.settle(0, err, statusCompleted)
				return false
			}
		}
		v, err := syscall.GetsockoptInt(c.fd, syscall.SOL_SOCKET, syscall.SO_ERROR)
		if err != nil {
			c.settle(0, err, statusCompleted)
			return false
		}
		switch syscall.Errno(v) {
		case 0, syscall.EISCONN:
			c.settle(0, nil, statusCompleted)
			return false
		case syscall.EINPROGRESS, syscall.EALREADY, syscall.EINTR:
			return true
		default:
			c.settle(0, syscall.Errno(v), statusCompleted)
			return false
		}
	case opReadReady, opWriteReady:
		c.settle(0, nil, statusCompleted)
		return false
	default:
		c.settle(0, errors.From(ErrLogic, errors.WithMeta("reason", "unknown operation kind")), statusCompleted)
		return false
	}
}

func (c *pollIop) Await(ctx context.Context) (int, error) {
	return c.consume(ctx, c)
}

// Cancel drops a pending operation: the waiter queue entry is marked dead,
// the wheel entry removed and the fd's interest recomputed. Repeated
// cancellation, or cancellation after resolution, does nothing.
func (c *pollIop) Cancel() {
	if !c.settle(0, ErrCancelled, statusCancelled) {
		return
	}
	c.w.wheel.Cancel(c.timer)
	c.timer = nil
	if c.queued {
		c.w.queue(c.fd, c.dir()).MarkDead()
		c.queued = false
		c.w.unwatch(c.fd)
	}
}

func (w *PollWarden) queue(fd int, dir direction) *waitq.Queue[*pollIop] {
	if dir == readDir {
		return w.ready.Reads(fd)
	}
	return w.ready.Writes(fd)
}

func (w *PollWarden) watch(fd int, dir direction) error {
	bit := sys.Readable
	if dir == writeDir {
		bit = sys.Writable
	}
	mask, registered := w.interest[fd]
	want := mask | bit
	if !registered {
		if err := w.ep.Add(fd, want); err != nil {
			return err
		}
	} else if want != mask {
		if err := w.ep.Mod(fd, want); err != nil {
			return err
		}
	}
	w.interest[fd] = want
	return nil
}

// unwatch narrows or removes multiplexer interest after waiters drained or
// cancelled. An fd with no live waiters left is deregistered entirely.
func (w *PollWarden) unwatch(fd int) {
	mask, registered := w.interest[fd]
	if !registered {
		return
	}
	if w.ready.Compact(fd) {
		_ = w.ep.Del(fd)
		delete(w.interest, fd)
		return
	}
	want := uint32(0)
	if w.ready.Reads(fd).Len() > 0 {
		want |= sys.Readable
	}
	if w.ready.Writes(fd).Len() > 0 {
		want |= sys.Writable
	}
	if want != 0 && want != mask {
		if err := w.ep.Mod(fd, want); err == nil {
			w.interest[fd] = want
		}
	}
}

// tick is one driver iteration: reap closed fds, wait on the multiplexer
// until the earliest deadline, retry ready waiters in FIFO order, then fire
// due timers.
func (w *PollWarden) tick() error {
	probed := w.probeClosed()
	timeout := -1
	if dl, ok := w.wheel.Peek(); ok {
		d := time.Until(dl)
		if d < 0 {
			d = 0
		}
		timeout = int((d + time.Millisecond - 1) / time.Millisecond)
	}
	if probed {
		// something resumed already; the root may be done, do not block
		timeout = 0
	}
	type readyEvent struct {
		fd     int
		events uint32
	}
	var fired []readyEvent
	if err := w.ep.Wait(timeout, func(fd int, events uint32) {
		fired = append(fired, readyEvent{fd: fd, events: events})
	}); err != nil {
		return err
	}
	errMask := uint32(syscall.EPOLLERR | syscall.EPOLLHUP)
	for _, e := range fired {
		if !w.ready.Contains(e.fd) {
			w.stats.Unattributed++
			continue
		}
		served := false
		if e.events&(sys.Readable|errMask) != 0 {
			served = w.drain(e.fd, readDir) || served
		}
		if e.events&(sys.Writable|errMask) != 0 {
			served = w.drain(e.fd, writeDir) || served
		}
		if !served {
			// readiness for waiters that were cancelled or timed out
			// since registration; dropped per the contract
			w.stats.Discarded++
		}
	}
	w.expire()
	return nil
}

// drain retries waiters at the head of the fd's queue until one blocks
// again or the queue empties, resuming each settled task immediately. It
// reports whether any live waiter was found at all, so the caller can count
// readiness that matched nothing but dead entries.
func (w *PollWarden) drain(fd int, dir direction) (served bool) {
	q := w.queue(fd, dir)
	for {
		c, ok := q.Head()
		if !ok {
			break
		}
		served = true
		if c.attempt() {
			break
		}
		q.Pop()
		c.queued = false
		w.wheel.Cancel(c.timer)
		c.timer = nil
		resume(&c.completion)
	}
	w.unwatch(fd)
	return
}

func (w *PollWarden) expire() {
	now := time.Now()
	w.wheel.ExpireDue(now, func(data any) {
		c := data.(*pollIop)
		c.timer = nil
		if c.kind == opSleep {
			if c.settle(0, nil, statusCompleted) {
				resume(&c.completion)
			}
			return
		}
		if c.settle(0, ErrTimeout, statusTimedOut) {
			if c.queued {
				w.queue(c.fd, c.dir()).MarkDead()
				c.queued = false
				w.unwatch(c.fd)
			}
			resume(&c.completion)
		}
	})
}

// probeClosed completes the waiters of descriptors that were closed while
// registered. epoll forgets a closed fd on its own, so without the probe
// those waiters would never wake.
func (w *PollWarden) probeClosed() (resumed bool) {
	for _, fd := range w.ready.Fds() {
		if !fdClosed(fd) {
			continue
		}
		resumed = true
		for _, dir := range []direction{readDir, writeDir} {
			q := w.queue(fd, dir)
			for {
				c, ok := q.Head()
				if !ok {
					break
				}
				q.Pop()
				c.queued = false
				w.wheel.Cancel(c.timer)
				c.timer = nil
				if c.settle(0, errors.From(ErrClosed, errors.WithWrap(syscall.EBADF)), statusCompleted) {
					resume(&c.completion)
				}
			}
		}
		w.ready.Drop(fd)
		delete(w.interest, fd)
	}
	return
}
