//go:build linux

package warden

import (
	"context"
	"syscall"
	"testing"
)

// Dropping a task mid-read must leave no trace of its fd in the reactor:
// no waiter queue entry and no multiplexer interest.
func TestCancelledReadLeavesNoRegistration(t *testing.T) {
	w, err := NewPoll()
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = w.Close()
	}()

	fds, pairErr := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM|syscall.SOCK_NONBLOCK|syscall.SOCK_CLOEXEC, 0)
	if pairErr != nil {
		t.Fatal(pairErr)
	}
	defer func() {
		_ = syscall.Close(fds[0])
		_ = syscall.Close(fds[1])
	}()

	s := NewStarter()
	s.Post(context.Background(), func(ctx context.Context) error {
		b := make([]byte, 8)
		_, readErr := w.ReadSome(fds[0], b).Await(ctx)
		return readErr
	})
	if !w.ready.Contains(fds[0]) {
		t.Fatal("read waiter was not registered")
	}
	s.Close()

	if w.ready.Contains(fds[0]) {
		t.Error("waiter queue survived cancellation")
	}
	if _, registered := w.interest[fds[0]]; registered {
		t.Error("multiplexer interest survived cancellation")
	}
	if w.wheel.Len() != 0 {
		t.Error("timer wheel not empty:", w.wheel.Len())
	}
}

func TestCancelAfterCompletionIsIgnored(t *testing.T) {
	w, err := NewPoll()
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = w.Close()
	}()

	fds, pairErr := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM|syscall.SOCK_NONBLOCK|syscall.SOCK_CLOEXEC, 0)
	if pairErr != nil {
		t.Fatal(pairErr)
	}
	defer func() {
		_ = syscall.Close(fds[0])
		_ = syscall.Close(fds[1])
	}()

	if _, writeErr := syscall.Write(fds[1], []byte("y")); writeErr != nil {
		t.Fatal(writeErr)
	}
	b := make([]byte, 8)
	iop := w.ReadSome(fds[0], b)
	c := iop.(*pollIop)
	if c.status != statusCompleted {
		t.Fatal("eager read did not complete")
	}
	iop.Cancel()
	if c.status != statusCompleted {
		t.Error("cancel mutated a terminal status")
	}
	if c.n != 1 {
		t.Error("result clobbered:", c.n)
	}
}
