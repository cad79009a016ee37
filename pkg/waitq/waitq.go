// Package waitq maps file descriptors to FIFO queues of waiters, one queue
// per direction. Enqueue order is resume order. Waiters are never removed
// from the middle of a queue; a cancelled waiter reports itself dead and is
// skipped when the head is taken, which keeps cancellation O(1) amortised.
package waitq

import (
	"github.com/eapache/queue"
)

type Waiter interface {
	Dead() bool
}

type Queue[T Waiter] struct {
	q    *queue.Queue
	dead int
}

func (q *Queue[T]) Push(v T) {
	if q.q == nil {
		q.q = queue.New()
	}
	q.q.Add(v)
}

// Head returns the first live waiter without removing it, discarding dead
// entries on the way.
func (q *Queue[T]) Head() (v T, ok bool) {
	if q.q == nil {
		return
	}
	for q.q.Length() > 0 {
		head := q.q.Peek().(T)
		if !head.Dead() {
			return head, true
		}
		q.q.Remove()
		if q.dead > 0 {
			q.dead--
		}
	}
	return
}

func (q *Queue[T]) Pop() {
	if q.q != nil && q.q.Length() > 0 {
		q.q.Remove()
	}
}

// Len counts live waiters.
func (q *Queue[T]) Len() int {
	if q.q == nil {
		return 0
	}
	return q.q.Length() - q.dead
}

// MarkDead records that one queued waiter was cancelled. When no live
// waiter remains the backing storage is dropped at once, so an fd whose
// last waiter cancels releases its queue immediately.
func (q *Queue[T]) MarkDead() {
	if q.q == nil {
		return
	}
	q.dead++
	if q.dead >= q.q.Length() {
		q.q = nil
		q.dead = 0
	}
}

type entry[T Waiter] struct {
	reads  Queue[T]
	writes Queue[T]
}

// Map is the fd registry: per fd, a read-waiter queue and a write-waiter
// queue.
type Map[T Waiter] struct {
	entries map[int]*entry[T]
}

func New[T Waiter]() *Map[T] {
	return &Map[T]{entries: make(map[int]*entry[T])}
}

func (m *Map[T]) Reads(fd int) *Queue[T] {
	return &m.of(fd).reads
}

func (m *Map[T]) Writes(fd int) *Queue[T] {
	return &m.of(fd).writes
}

func (m *Map[T]) of(fd int) *entry[T] {
	e := m.entries[fd]
	if e == nil {
		e = &entry[T]{}
		m.entries[fd] = e
	}
	return e
}

func (m *Map[T]) Contains(fd int) bool {
	_, ok := m.entries[fd]
	return ok
}

// Compact drops the fd's entry when both queues are empty and reports
// whether it was dropped.
func (m *Map[T]) Compact(fd int) bool {
	e := m.entries[fd]
	if e == nil {
		return true
	}
	if _, ok := e.reads.Head(); ok {
		return false
	}
	if _, ok := e.writes.Head(); ok {
		return false
	}
	delete(m.entries, fd)
	return true
}

func (m *Map[T]) Drop(fd int) {
	delete(m.entries, fd)
}

func (m *Map[T]) Fds() []int {
	fds := make([]int, 0, len(m.entries))
	for fd := range m.entries {
		fds = append(fds, fd)
	}
	return fds
}

func (m *Map[T]) Len() int {
	return len(m.entries)
}
