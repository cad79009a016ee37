// Package warden drives suspendable tasks to completion by multiplexing
// socket and timer operations on file descriptors. Two interchangeable
// reactors implement the contract: PollWarden retries syscalls on
// level-triggered readiness, URingWarden submits them to the kernel and
// harvests completions. User tasks cannot tell them apart.
package warden

import (
	"context"
	"syscall"
	"time"

	"github.com/brickingsoft/warden/pkg/sys"
)

// TaskFunc is the body of a task. It runs cooperatively: between awaits it
// owns the reactor thread, and it suspends only inside Iop.Await.
type TaskFunc func(ctx context.Context) error

// Iop is one in-flight operation. Await suspends the calling task until the
// operation resolves and consumes the handle. Cancel before resolution
// unregisters the operation everywhere; cancelling twice, or after the
// operation resolved, is a no-op.
type Iop interface {
	Await(ctx context.Context) (n int, err error)
	Cancel()
}

type Warden interface {
	// Sleep resolves no earlier than d from now. Sleep(0) resumes on the
	// next driver iteration without waiting in the kernel.
	Sleep(d time.Duration) Iop
	// ReadSome reads at least one byte into b. A result of zero bytes is a
	// clean end of stream, not an error.
	ReadSome(fd int, b []byte, opts ...OpOption) Iop
	// WriteSome writes at least one byte from b, reporting the partial
	// count the kernel accepted.
	WriteSome(fd int, b []byte, opts ...OpOption) Iop
	// Accept resolves with one inbound connection descriptor.
	Accept(fd int, opts ...OpOption) Iop
	// Connect establishes an outbound connection on fd.
	Connect(fd int, sa syscall.Sockaddr, opts ...OpOption) Iop
	// ReadReady resolves once fd is readable, without consuming anything.
	ReadReady(fd int) Iop
	// WriteReady resolves once fd is writable.
	WriteReady(fd int) Iop
	// CreateSocket opens a non-blocking socket owned by the returned handle.
	CreateSocket(domain int, sotype int, proto int) (*sys.Fd, error)
	// Run drives the event loop until the root task returns, and returns
	// whatever the root task returned.
	Run(fn TaskFunc) error
	// Stats reports reactor-local failure counters.
	Stats() Stats
}

// Stats counts events the reactor could not attribute to any operation.
// Discarded counts late kernel events for operations that already timed out
// or were cancelled; those are dropped silently by design of the contract.
type Stats struct {
	Discarded    uint64
	Unattributed uint64
}
