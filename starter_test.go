//go:build linux

package warden_test

import (
	"context"
	"testing"
	"time"

	"github.com/brickingsoft/warden"
)

func TestStarterGCReapsFinishedTasks(t *testing.T) {
	eachWarden(t, func(t *testing.T, w warden.Warden) {
		s := warden.NewStarter()
		for i := 0; i < 3; i++ {
			s.Post(context.Background(), func(ctx context.Context) error {
				_, err := w.Sleep(time.Millisecond).Await(ctx)
				return err
			})
		}
		if s.Live() != 3 {
			t.Fatal("expected 3 live tasks, got", s.Live())
		}

		err := w.Run(func(ctx context.Context) error {
			_, err := w.Sleep(30 * time.Millisecond).Await(ctx)
			return err
		})
		if err != nil {
			t.Fatal(err)
		}
		if s.Live() != 0 {
			t.Error("tasks still live after their sleeps expired:", s.Live())
		}

		s.GC()
		s.GC() // idempotent on a stable list
		s.Close()
	})
}

func TestStarterCloseAbortsRunningTasks(t *testing.T) {
	eachWarden(t, func(t *testing.T, w warden.Warden) {
		s := warden.NewStarter()
		aborted := false
		s.Post(context.Background(), func(ctx context.Context) error {
			_, err := w.Sleep(time.Hour).Await(ctx)
			if warden.IsCancelled(err) {
				aborted = true
			}
			return err
		})
		s.Close()
		if !aborted {
			t.Error("task was not resumed with a cancellation error")
		}
		if s.Live() != 0 {
			t.Error("starter kept tasks after Close")
		}
	})
}
