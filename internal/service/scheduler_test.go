package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerRunsAndStopsOnCancel(t *testing.T) {
	s := NewScheduler()
	ctx, cancel := context.WithCancel(context.Background())

	var runs int32
	s.Every(ctx, "tick", 5*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})

	deadline := time.After(time.Second)
	for atomic.LoadInt32(&runs) < 3 {
		select {
		case <-deadline:
			t.Fatal("task never reached 3 runs")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	s.Wait()
	after := atomic.LoadInt32(&runs)
	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&runs) != after {
		t.Error("task kept running after cancel")
	}
}

func TestSchedulerSurvivesTaskErrors(t *testing.T) {
	s := NewScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs int32
	s.Every(ctx, "flaky", 5*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return errors.New("transient")
	})

	deadline := time.After(time.Second)
	for atomic.LoadInt32(&runs) < 2 {
		select {
		case <-deadline:
			t.Fatal("task stopped after first error")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	s.Wait()
}
