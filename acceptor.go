package warden

import (
	"context"
)

// AcceptStream lazily yields inbound connections from a listening
// descriptor. The stream ends when the listener is closed underneath it;
// that is reported as exhaustion, not as an error.
type AcceptStream struct {
	w  Warden
	fd int
}

func NewAcceptStream(w Warden, fd int) *AcceptStream {
	return &AcceptStream{w: w, fd: fd}
}

// Next awaits one accepted connection. ok is false once the stream is
// exhausted; err reports hard accept failures only.
func (s *AcceptStream) Next(ctx context.Context, opts ...OpOption) (conn int, ok bool, err error) {
	conn, err = s.w.Accept(s.fd, opts...).Await(ctx)
	if err != nil {
		if IsClosed(err) || IsCancelled(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return conn, true, nil
}
