package waitq_test

import (
	"testing"

	"github.com/brickingsoft/warden/pkg/waitq"
)

type waiter struct {
	name string
	dead bool
}

func (w *waiter) Dead() bool {
	return w.dead
}

func TestFIFO(t *testing.T) {
	m := waitq.New[*waiter]()
	q := m.Reads(3)
	a := &waiter{name: "a"}
	b := &waiter{name: "b"}
	q.Push(a)
	q.Push(b)

	head, ok := q.Head()
	if !ok || head.name != "a" {
		t.Fatal("expected a at head")
	}
	q.Pop()
	head, ok = q.Head()
	if !ok || head.name != "b" {
		t.Fatal("expected b at head")
	}
	q.Pop()
	if _, ok = q.Head(); ok {
		t.Error("queue should be empty")
	}
}

func TestDeadSkipped(t *testing.T) {
	m := waitq.New[*waiter]()
	q := m.Writes(4)
	a := &waiter{name: "a", dead: true}
	b := &waiter{name: "b"}
	q.Push(a)
	q.Push(b)

	head, ok := q.Head()
	if !ok || head.name != "b" {
		t.Fatal("dead head not skipped")
	}
	if q.Len() != 1 {
		t.Error("live length wrong:", q.Len())
	}
}

func TestMarkDeadReleases(t *testing.T) {
	m := waitq.New[*waiter]()
	q := m.Reads(5)
	a := &waiter{name: "a"}
	q.Push(a)
	a.dead = true
	q.MarkDead()
	if q.Len() != 0 {
		t.Error("queue kept dead waiter:", q.Len())
	}
	if !m.Compact(5) {
		t.Error("fd entry not dropped after last waiter cancelled")
	}
	if m.Contains(5) {
		t.Error("map still contains fd")
	}
}

func TestCompactKeepsLive(t *testing.T) {
	m := waitq.New[*waiter]()
	m.Reads(6).Push(&waiter{name: "a"})
	if m.Compact(6) {
		t.Error("compact dropped a live waiter")
	}
	if !m.Contains(6) {
		t.Error("entry vanished")
	}
}
