package warden

import (
	"context"
)

// Starter owns fire-and-forget background tasks. Post launches one and runs
// it up to its first suspension; GC reaps the finished ones; Close aborts
// whatever still runs by cancelling its pending operation until the task
// unwinds.
type Starter struct {
	tasks []*task
}

func NewStarter() *Starter {
	return &Starter{}
}

// Post starts fn as a detached task. It runs immediately until its first
// await registers with the warden, then control returns to the caller.
func (s *Starter) Post(ctx context.Context, fn TaskFunc) {
	t := newTask()
	t.start(withTask(ctx, t), fn)
	t.dispatch()
	s.tasks = append(s.tasks, t)
}

// GC drops finished tasks from the list. Calling it again on an unchanged
// list is a no-op.
func (s *Starter) GC() {
	live := s.tasks[:0]
	for _, t := range s.tasks {
		if !t.done {
			live = append(live, t)
		}
	}
	for i := len(live); i < len(s.tasks); i++ {
		s.tasks[i] = nil
	}
	s.tasks = live
}

// Live counts tasks that have not finished yet.
func (s *Starter) Live() int {
	n := 0
	for _, t := range s.tasks {
		if !t.done {
			n++
		}
	}
	return n
}

// Close aborts every running task: its pending operation is cancelled and
// the task resumed so the cancellation error unwinds its body. Tasks that
// swallow the error and suspend again are cancelled again until they
// return.
func (s *Starter) Close() {
	for _, t := range s.tasks {
		for !t.done {
			p := t.pending
			if p == nil {
				break
			}
			p.Cancel()
			t.dispatch()
		}
	}
	s.tasks = s.tasks[:0]
}
