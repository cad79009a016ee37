package warden

import (
	"context"

	"github.com/brickingsoft/errors"
)

// ReadExactly fills b completely, looping over ReadSome. A clean end of
// stream before b is full surfaces ErrUnexpectedEOF.
func ReadExactly(ctx context.Context, w Warden, fd int, b []byte, opts ...OpOption) error {
	read := 0
	for read < len(b) {
		n, err := w.ReadSome(fd, b[read:], opts...).Await(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.From(ErrUnexpectedEOF)
		}
		read += n
	}
	return nil
}

// WriteAll writes all of b, looping over WriteSome until every byte is
// accepted. On error it returns only the error, not the count written so far.
func WriteAll(ctx context.Context, w Warden, fd int, b []byte, opts ...OpOption) error {
	wrote := 0
	for wrote < len(b) {
		n, err := w.WriteSome(fd, b[wrote:], opts...).Await(ctx)
		if err != nil {
			return err
		}
		wrote += n
	}
	return nil
}
