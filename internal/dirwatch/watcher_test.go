package dirwatch

import (
	"context"
	"testing"
	"time"
)

func TestWatcherRunsInitialPassAndStopsOnCancel(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var passes int
	done := make(chan struct{})
	go func() {
		w.Run(ctx, func(context.Context) {
			passes++
			cancel()
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after its context was cancelled")
	}
	if passes != 1 {
		t.Errorf("passes = %d, want 1", passes)
	}
}

func TestWatcherPeriodicRescan(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var passes int
	done := make(chan struct{})
	go func() {
		w.Run(ctx, func(context.Context) {
			passes++
			if passes == 3 {
				cancel()
			}
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("rescan ticker never drove further passes")
	}
	if passes != 3 {
		t.Errorf("passes = %d, want 3", passes)
	}
}
