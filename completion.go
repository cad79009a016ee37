package warden

import (
	"context"

	"github.com/brickingsoft/errors"
)

const (
	statusPending int32 = iota
	statusCompleted
	statusTimedOut
	statusCancelled
)

// completion is the record backing one Iop: the suspended task handle, the
// result slot, the originating call-site and the current status. Each
// reactor embeds it in its own operation representation. Transitions out of
// a terminal status are forbidden; settle enforces that.
type completion struct {
	t      *task
	status int32
	n      int
	err    error
	op     string
	fd     int
	loc    Location
}

func (c *completion) settle(n int, err error, status int32) bool {
	if c.status != statusPending {
		return false
	}
	c.n = n
	c.err = err
	c.status = status
	return true
}

// Dead reports whether the completion left the pending state; dead entries
// are skipped and dropped by the waiter queues.
func (c *completion) Dead() bool {
	return c.status != statusPending
}

// consume implements Await: park the calling task until the reactor settles
// the completion, then hand the result out with the operation's diagnostic
// context attached.
func (c *completion) consume(ctx context.Context, self Iop) (int, error) {
	if c.status == statusPending {
		t := taskOf(ctx)
		if t == nil {
			self.Cancel()
			return 0, opError(c.op, c.fd, c.loc, errors.From(ErrLogic, errors.WithMeta("reason", "await outside a warden task")))
		}
		c.t = t
		t.pending = self
		t.park()
		t.pending = nil
	}
	if c.err != nil {
		return c.n, opError(c.op, c.fd, c.loc, c.err)
	}
	return c.n, nil
}

// resume wakes the task awaiting the completion, if any. A completion
// settled before its Iop was awaited has no task yet; its Await will
// observe the result without suspending.
func resume(c *completion) {
	if c.t != nil {
		c.t.dispatch()
	}
}
