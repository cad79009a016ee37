package warden

import (
	"strconv"
	"syscall"

	"github.com/brickingsoft/errors"
)

var (
	ErrTimeout       = errors.Define("operation timed out")
	ErrCancelled     = errors.Define("operation cancelled")
	ErrClosed        = errors.Define("use of closed file descriptor")
	ErrLogic         = errors.Define("reactor invariant violated")
	ErrUnexpectedEOF = errors.Define("unexpected end of stream")
)

func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

const (
	errMetaOpKey    = "op"
	errMetaFdKey    = "fd"
	errMetaErrnoKey = "errno"
	errMetaFileKey  = "file"
	errMetaLineKey  = "line"
	errMetaFnKey    = "fn"
)

func errnoOf(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return 0
}

func opError(op string, fd int, loc Location, cause error) error {
	return errors.New(
		op+" failed",
		errors.WithMeta(errMetaOpKey, op),
		errors.WithMeta(errMetaFdKey, strconv.Itoa(fd)),
		errors.WithMeta(errMetaErrnoKey, strconv.Itoa(errnoOf(cause))),
		errors.WithMeta(errMetaFileKey, loc.File),
		errors.WithMeta(errMetaLineKey, strconv.Itoa(loc.Line)),
		errors.WithMeta(errMetaFnKey, loc.Function),
		errors.WithWrap(cause),
	)
}
