package timewheel_test

import (
	"testing"
	"time"

	"github.com/brickingsoft/warden/pkg/timewheel"
)

func TestExpireOrder(t *testing.T) {
	w := timewheel.New()
	now := time.Now()
	w.Add(now.Add(30*time.Millisecond), "c")
	w.Add(now.Add(10*time.Millisecond), "a")
	w.Add(now.Add(20*time.Millisecond), "b")

	fired := make([]string, 0, 3)
	w.ExpireDue(now.Add(time.Second), func(data any) {
		fired = append(fired, data.(string))
	})
	if len(fired) != 3 {
		t.Fatal("expected 3 fired, got", len(fired))
	}
	if fired[0] != "a" || fired[1] != "b" || fired[2] != "c" {
		t.Error("wrong order:", fired)
	}
	if w.Len() != 0 {
		t.Error("wheel not drained:", w.Len())
	}
}

func TestExpireTieInsertionOrder(t *testing.T) {
	w := timewheel.New()
	deadline := time.Now().Add(10 * time.Millisecond)
	w.Add(deadline, "first")
	w.Add(deadline, "second")

	fired := make([]string, 0, 2)
	w.ExpireDue(deadline, func(data any) {
		fired = append(fired, data.(string))
	})
	if len(fired) != 2 || fired[0] != "first" || fired[1] != "second" {
		t.Error("tie not broken by insertion order:", fired)
	}
}

func TestNeverFiresEarly(t *testing.T) {
	w := timewheel.New()
	now := time.Now()
	w.Add(now.Add(50*time.Millisecond), "late")
	w.ExpireDue(now, func(data any) {
		t.Error("fired before deadline:", data)
	})
	if w.Len() != 1 {
		t.Error("pending timer lost")
	}
}

func TestCancel(t *testing.T) {
	w := timewheel.New()
	now := time.Now()
	a := w.Add(now.Add(10*time.Millisecond), "a")
	w.Add(now.Add(20*time.Millisecond), "b")

	w.Cancel(a)
	w.Cancel(a) // repeated cancel is a no-op
	w.Cancel(nil)

	if dl, ok := w.Peek(); !ok || !dl.Equal(now.Add(20*time.Millisecond)) {
		t.Error("peek after cancel is wrong")
	}

	fired := make([]string, 0, 1)
	w.ExpireDue(now.Add(time.Second), func(data any) {
		fired = append(fired, data.(string))
	})
	if len(fired) != 1 || fired[0] != "b" {
		t.Error("cancelled timer fired:", fired)
	}
}

func TestPeekEmpty(t *testing.T) {
	w := timewheel.New()
	if _, ok := w.Peek(); ok {
		t.Error("peek on empty wheel")
	}
}
