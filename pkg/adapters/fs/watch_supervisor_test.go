package fs

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/supervisor"
	"github.com/aretw0/lifecycle/pkg/core/worker"
)

func TestWatcherSupervisorRestarts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir, err := NewPageDir(Config{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to open page dir: %v", err)
	}

	signals := make(chan struct{}, 1)
	created := make(chan *watchWorker, 2)

	spec := supervisor.Spec{
		Name: "page-watcher",
		Type: string(worker.TypeGoroutine),
		Factory: func() (worker.Worker, error) {
			w := newWatchWorker(dir, signals)
			created <- w
			return w, nil
		},
		Backoff: supervisor.Backoff{
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     50 * time.Millisecond,
			Multiplier:      1,
			ResetDuration:   50 * time.Millisecond,
			MaxRestarts:     2,
			MaxDuration:     200 * time.Millisecond,
		},
		RestartPolicy: supervisor.RestartOnFailure,
	}

	sup := supervisor.New("test-watcher", supervisor.StrategyOneForOne, spec)
	if err := sup.Start(ctx); err != nil {
		t.Fatalf("failed to start supervisor: %v", err)
	}

	first := waitForWorker(t, created, "first")
	waitForWatcher(t, dir, true)

	waitForWatcherInit(t, first)
	_ = first.watcher.Close()

	second := waitForWorker(t, created, "second")
	if first == second {
		t.Fatalf("expected supervisor to restart watcher with a new instance")
	}
	waitForWatcher(t, dir, true)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	if err := sup.Stop(stopCtx); err != nil {
		t.Fatalf("failed to stop supervisor: %v", err)
	}
}

func waitForWorker(t *testing.T, ch <-chan *watchWorker, label string) *watchWorker {
	t.Helper()

	select {
	case w := <-ch:
		return w
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s worker", label)
		return nil
	}
}

func waitForWatcherInit(t *testing.T, w *watchWorker) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		if w.watcher != nil {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for watcher initialization")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func waitForWatcher(t *testing.T, dir *PageDir, expected bool) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		state, ok := dir.State().(PageDirState)
		if ok && state.WatcherActive == expected {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for watcher state = %v", expected)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestDebouncer_CollapsesBursts(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)
	fired := make(chan struct{}, 10)
	for i := 0; i < 5; i++ {
		d.add(func() { fired <- struct{}{} })
	}
	d.stopAndWait(time.Second)

	// Stopping cancels the pending timer; nothing more may fire.
	d.add(func() { fired <- struct{}{} })
	time.Sleep(50 * time.Millisecond)
	if n := len(fired); n > 1 {
		t.Fatalf("expected at most one callback, got %d", n)
	}
}
