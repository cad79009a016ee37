//go:build linux

package warden

import (
	"context"
	"syscall"
	"time"
	"unsafe"

	"github.com/brickingsoft/errors"
	"github.com/pawelgaczynski/giouring"
	"golang.org/x/sys/unix"

	"github.com/brickingsoft/warden/pkg/kernel"
	"github.com/brickingsoft/warden/pkg/sys"
	"github.com/brickingsoft/warden/pkg/timewheel"
)

// NewURing opens a completion reactor over an io_uring instance. Each
// operation is submitted to the kernel carrying an opaque token; harvested
// completions are matched back to their records through the token table.
func NewURing(opts ...Option) (*URingWarden, error) {
	if !kernel.Enable(5, 10, 0) {
		return nil, errors.New("kernel version must >= 5.10")
	}
	o := evalOptions(opts)
	ring, ringErr := giouring.CreateRing(o.RingEntries)
	if ringErr != nil {
		return nil, ringErr
	}
	return &URingWarden{
		ring:  ring,
		table: make(map[uint64]*uringIop),
		wheel: timewheel.New(),
		cqes:  make([]*giouring.CompletionQueueEvent, o.RingEntries),
	}, nil
}

type URingWarden struct {
	ring  *giouring.Ring
	table map[uint64]*uringIop
	wheel *timewheel.Wheel
	cqes  []*giouring.CompletionQueueEvent
	token uint64
	stats Stats
}

type uringIop struct {
	completion
	w      *URingWarden
	kind   opKind
	token  uint64
	b      []byte
	rsa    *syscall.RawSockaddrAny
	rsaLen uint32
	timer  *timewheel.Timer
}

func (w *URingWarden) newIop(kind opKind, fd int, loc Location) *uringIop {
	c := &uringIop{w: w, kind: kind}
	c.op = kind.String()
	c.fd = fd
	c.loc = loc
	return c
}

func (w *URingWarden) Sleep(d time.Duration) Iop {
	c := w.newIop(opSleep, -1, capture(1))
	if d < 0 {
		d = 0
	}
	c.timer = w.wheel.Add(time.Now().Add(d), c)
	return c
}

func (w *URingWarden) ReadSome(fd int, b []byte, opts ...OpOption) Iop {
	c := w.newIop(opRead, fd, capture(1))
	c.b = b
	w.push(c, evalOpOptions(opts))
	return c
}

func (w *URingWarden) WriteSome(fd int, b []byte, opts ...OpOption) Iop {
	c := w.newIop(opWrite, fd, capture(1))
	c.b = b
	w.push(c, evalOpOptions(opts))
	return c
}

func (w *URingWarden) Accept(fd int, opts ...OpOption) Iop {
	c := w.newIop(opAccept, fd, capture(1))
	c.rsa = &syscall.RawSockaddrAny{}
	c.rsaLen = uint32(syscall.SizeofSockaddrAny)
	w.push(c, evalOpOptions(opts))
	return c
}

func (w *URingWarden) Connect(fd int, sa syscall.Sockaddr, opts ...OpOption) Iop {
	c := w.newIop(opConnect, fd, capture(1))
	rsa, rsaLen, saErr := sys.RawAddr(sa)
	if saErr != nil {
		c.settle(0, saErr, statusCompleted)
		return c
	}
	c.rsa = rsa
	c.rsaLen = rsaLen
	w.push(c, evalOpOptions(opts))
	return c
}

func (w *URingWarden) ReadReady(fd int) Iop {
	c := w.newIop(opReadReady, fd, capture(1))
	w.push(c, OpOptions{})
	return c
}

func (w *URingWarden) WriteReady(fd int) Iop {
	c := w.newIop(opWriteReady, fd, capture(1))
	w.push(c, OpOptions{})
	return c
}

func (w *URingWarden) CreateSocket(domain int, sotype int, proto int) (*sys.Fd, error) {
	return createSocket(domain, sotype, proto)
}

func (w *URingWarden) Run(fn TaskFunc) error {
	return drive(w.tick, fn)
}

func (w *URingWarden) Stats() Stats {
	return w.stats
}

func (w *URingWarden) Close() error {
	w.ring.QueueExit()
	return nil
}

// push prepares one submission queue entry for the operation and parks the
// record in the token table until its completion is harvested. Failures to
// obtain a slot are captured in the completion and surface on Await.
func (w *URingWarden) push(c *uringIop, o OpOptions) {
	sqe := w.sqe()
	if sqe == nil {
		c.settle(0, errors.From(ErrLogic, errors.WithMeta("reason", "submission queue full")), statusCompleted)
		return
	}
	switch c.kind {
	case opRead:
		var p uintptr
		if len(c.b) > 0 {
			p = uintptr(unsafe.Pointer(&c.b[0]))
		}
		sqe.PrepareRecv(c.fd, p, uint32(len(c.b)), 0)
	case opWrite:
		var p uintptr
		if len(c.b) > 0 {
			p = uintptr(unsafe.Pointer(&c.b[0]))
		}
		sqe.PrepareSend(c.fd, p, uint32(len(c.b)), 0)
	case opAccept:
		addrPtr := uintptr(unsafe.Pointer(c.rsa))
		addrLenPtr := uint64(uintptr(unsafe.Pointer(&c.rsaLen)))
		sqe.PrepareAccept(c.fd, addrPtr, addrLenPtr, 0)
	case opConnect:
		sqe.PrepareConnect(c.fd, uintptr(unsafe.Pointer(c.rsa)), uint64(c.rsaLen))
	case opReadReady:
		sqe.PreparePollAdd(c.fd, uint32(unix.POLLIN))
	case opWriteReady:
		sqe.PreparePollAdd(c.fd, uint32(unix.POLLOUT))
	default:
		sqe.PrepareNop()
	}
	w.token++
	c.token = w.token
	sqe.SetData64(c.token)
	w.table[c.token] = c
	if !o.deadline.IsZero() {
		c.timer = w.wheel.Add(o.deadline, c)
	}
}

func (w *URingWarden) sqe() *giouring.SubmissionQueueEntry {
	sqe := w.ring.GetSQE()
	if sqe == nil {
		w.flush()
		sqe = w.ring.GetSQE()
	}
	return sqe
}

func (w *URingWarden) flush() {
	for {
		_, err := w.ring.Submit()
		if err != nil {
			if errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN) {
				continue
			}
		}
		return
	}
}

// cancelToken asks the kernel to abort the submission carrying token. The
// cancel request itself carries no token; its completion is skipped on
// harvest.
func (w *URingWarden) cancelToken(token uint64) {
	if token == 0 {
		return
	}
	sqe := w.sqe()
	if sqe == nil {
		return
	}
	sqe.PrepareCancel64(token, 0)
	sqe.SetData64(0)
}

func (c *uringIop) Await(ctx context.Context) (int, error) {
	return c.consume(ctx, c)
}

// Cancel drops a pending operation. The token stays in the table until the
// kernel's cancellation completion is harvested and discarded, so a late
// result cannot be misattributed.
func (c *uringIop) Cancel() {
	if !c.settle(0, ErrCancelled, statusCancelled) {
		return
	}
	c.w.wheel.Cancel(c.timer)
	c.timer = nil
	if c.kind != opSleep {
		c.w.cancelToken(c.token)
	}
}

// tick is one driver iteration: reap closed fds, submit prepared entries,
// wait until at least one completion or the earliest deadline, harvest the
// completion queue and fire due timers.
func (w *URingWarden) tick() error {
	probed := w.probeClosed()
	w.flush()
	var ts *syscall.Timespec
	if dl, ok := w.wheel.Peek(); ok {
		d := time.Until(dl)
		if d < 0 {
			d = 0
		}
		t := syscall.NsecToTimespec(d.Nanoseconds())
		ts = &t
	}
	if probed {
		// something resumed already; the root may be done, do not block
		zero := syscall.Timespec{}
		ts = &zero
	}
	if _, waitErr := w.ring.WaitCQEs(1, ts, nil); waitErr != nil {
		if !errors.Is(waitErr, syscall.ETIME) && !errors.Is(waitErr, syscall.EINTR) && !errors.Is(waitErr, syscall.EAGAIN) {
			return waitErr
		}
	}
	harvested := w.ring.PeekBatchCQE(w.cqes)
	for i := uint32(0); i < harvested; i++ {
		cqe := w.cqes[i]
		w.cqes[i] = nil
		w.harvest(cqe)
	}
	w.ring.CQAdvance(harvested)
	w.expire()
	return nil
}

func (w *URingWarden) harvest(cqe *giouring.CompletionQueueEvent) {
	token := cqe.UserData
	if token == 0 {
		return
	}
	c, ok := w.table[token]
	if !ok {
		w.stats.Unattributed++
		return
	}
	delete(w.table, token)
	if c.status != statusPending {
		// late completion of an operation that timed out or was
		// cancelled; an accepted fd must not leak with it
		if c.kind == opAccept && cqe.Res >= 0 {
			_ = syscall.Close(int(cqe.Res))
		}
		w.stats.Discarded++
		return
	}
	w.wheel.Cancel(c.timer)
	c.timer = nil
	if cqe.Res < 0 {
		errno := syscall.Errno(-cqe.Res)
		switch errno {
		case syscall.ECANCELED:
			c.settle(0, errors.From(ErrCancelled, errors.WithWrap(errno)), statusCancelled)
		case syscall.EBADF:
			if c.kind == opAccept {
				c.settle(0, errors.From(ErrClosed, errors.WithWrap(errno)), statusCompleted)
			} else {
				c.settle(0, errno, statusCompleted)
			}
		default:
			c.settle(0, errno, statusCompleted)
		}
	} else {
		switch c.kind {
		case opConnect, opReadReady, opWriteReady:
			c.settle(0, nil, statusCompleted)
		default:
			c.settle(int(cqe.Res), nil, statusCompleted)
		}
	}
	resume(&c.completion)
}

func (w *URingWarden) expire() {
	now := time.Now()
	w.wheel.ExpireDue(now, func(data any) {
		c := data.(*uringIop)
		c.timer = nil
		if c.kind == opSleep {
			if c.settle(0, nil, statusCompleted) {
				resume(&c.completion)
			}
			return
		}
		if c.settle(0, ErrTimeout, statusTimedOut) {
			w.cancelToken(c.token)
			resume(&c.completion)
		}
	})
}

// probeClosed turns a descriptor closed under a pending submission into a
// completion. The kernel keeps its file reference alive until the request
// finishes, so the request is cancelled by token as well.
func (w *URingWarden) probeClosed() (resumed bool) {
	tokens := make([]uint64, 0, len(w.table))
	for token := range w.table {
		tokens = append(tokens, token)
	}
	for _, token := range tokens {
		c, ok := w.table[token]
		if !ok || c.status != statusPending || c.fd < 0 {
			continue
		}
		if !fdClosed(c.fd) {
			continue
		}
		w.wheel.Cancel(c.timer)
		c.timer = nil
		if c.settle(0, errors.From(ErrClosed, errors.WithWrap(syscall.EBADF)), statusCompleted) {
			w.cancelToken(token)
			resume(&c.completion)
			resumed = true
		}
	}
	return
}
