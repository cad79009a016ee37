//go:build linux

package warden_test

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/brickingsoft/warden"
)

func TestShortSleep(t *testing.T) {
	eachWarden(t, func(t *testing.T, w warden.Warden) {
		var slept time.Duration
		err := w.Run(func(ctx context.Context) error {
			start := time.Now()
			if _, err := w.Sleep(20 * time.Millisecond).Await(ctx); err != nil {
				return err
			}
			slept = time.Since(start)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if slept < 20*time.Millisecond {
			t.Error("woke early:", slept)
		}
		if slept > 100*time.Millisecond {
			t.Error("woke far too late:", slept)
		}
	})
}

func TestSleepZero(t *testing.T) {
	eachWarden(t, func(t *testing.T, w warden.Warden) {
		err := w.Run(func(ctx context.Context) error {
			start := time.Now()
			if _, err := w.Sleep(0).Await(ctx); err != nil {
				return err
			}
			if waited := time.Since(start); waited > 20*time.Millisecond {
				t.Error("sleep(0) waited in the kernel:", waited)
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	})
}

func TestTimerTieResumesInPostOrder(t *testing.T) {
	eachWarden(t, func(t *testing.T, w warden.Warden) {
		var order []string
		s := warden.NewStarter()
		defer s.Close()
		s.Post(context.Background(), func(ctx context.Context) error {
			if _, err := w.Sleep(10 * time.Millisecond).Await(ctx); err != nil {
				return err
			}
			order = append(order, "a")
			return nil
		})
		s.Post(context.Background(), func(ctx context.Context) error {
			if _, err := w.Sleep(10 * time.Millisecond).Await(ctx); err != nil {
				return err
			}
			order = append(order, "b")
			return nil
		})
		err := w.Run(func(ctx context.Context) error {
			_, err := w.Sleep(50 * time.Millisecond).Await(ctx)
			return err
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(order) != 2 || order[0] != "a" || order[1] != "b" {
			t.Error("wrong resume order:", order)
		}
	})
}

func TestElapsedDeadlineFiresImmediately(t *testing.T) {
	eachWarden(t, func(t *testing.T, w warden.Warden) {
		fds, err := socketpair()
		if err != nil {
			t.Fatal(err)
		}
		defer closePair(fds)

		runErr := w.Run(func(ctx context.Context) error {
			b := make([]byte, 8)
			start := time.Now()
			_, err := w.ReadSome(fds[0], b, warden.WithDeadline(time.Now().Add(-time.Millisecond))).Await(ctx)
			if !warden.IsTimeout(err) {
				t.Error("expected timeout, got:", err)
			}
			if waited := time.Since(start); waited > 50*time.Millisecond {
				t.Error("elapsed deadline waited:", waited)
			}
			return nil
		})
		if runErr != nil {
			t.Fatal(runErr)
		}
	})
}

func socketpair() ([2]int, error) {
	return syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM|syscall.SOCK_NONBLOCK|syscall.SOCK_CLOEXEC, 0)
}

func closePair(fds [2]int) {
	_ = syscall.Close(fds[0])
	_ = syscall.Close(fds[1])
}
