package warden

import "context"

type opKind int

const (
	opSleep opKind = iota
	opRead
	opWrite
	opAccept
	opConnect
	opReadReady
	opWriteReady
)

func (k opKind) String() string {
	switch k {
	case opSleep:
		return "sleep"
	case opRead:
		return "read"
	case opWrite:
		return "write"
	case opAccept:
		return "accept"
	case opConnect:
		return "connect"
	case opReadReady:
		return "read_ready"
	case opWriteReady:
		return "write_ready"
	default:
		return "unknown"
	}
}

// drive is the top-level run loop shared by both reactors: start the root
// task, run it to its first suspension, then tick the reactor until the
// root returns. Reactor-fatal failures abort the loop; everything else is
// delivered through completions.
func drive(tick func() error, fn TaskFunc) error {
	root := newTask()
	root.start(withTask(context.Background(), root), fn)
	root.dispatch()
	for !root.done {
		if err := tick(); err != nil {
			return err
		}
	}
	return root.err
}
