package warden

import (
	"context"
	"fmt"

	"github.com/brickingsoft/errors"
)

// A task is one cooperative coroutine backed by a goroutine. Exactly one
// goroutine owns the reactor thread at any instant; ownership is handed
// over through the wake/yielded channel pair. dispatch wakes the task and
// blocks until it parks again or finishes; park is the task-side inverse.
type task struct {
	wake    chan struct{}
	yielded chan struct{}
	pending Iop
	done    bool
	err     error
}

func newTask() *task {
	return &task{
		wake:    make(chan struct{}),
		yielded: make(chan struct{}),
	}
}

func (t *task) start(ctx context.Context, fn TaskFunc) {
	go func() {
		<-t.wake
		defer func() {
			if r := recover(); r != nil {
				t.err = errors.From(ErrLogic, errors.WithMeta("panic", fmt.Sprint(r)))
			}
			t.done = true
			t.yielded <- struct{}{}
		}()
		t.err = fn(ctx)
	}()
}

func (t *task) dispatch() {
	t.wake <- struct{}{}
	<-t.yielded
}

func (t *task) park() {
	t.yielded <- struct{}{}
	<-t.wake
}

type taskCtxKey struct{}

func withTask(ctx context.Context, t *task) context.Context {
	return context.WithValue(ctx, taskCtxKey{}, t)
}

func taskOf(ctx context.Context) *task {
	t, _ := ctx.Value(taskCtxKey{}).(*task)
	return t
}
