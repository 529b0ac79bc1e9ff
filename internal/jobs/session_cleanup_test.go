package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeSessionStore struct {
	mu      sync.Mutex
	calls   int
	deleted int64
	err     error
}

func (f *fakeSessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.deleted, f.err
}

func (f *fakeSessionStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSessionCleanupJob_RunsInitialPass(t *testing.T) {
	store := &fakeSessionStore{deleted: 3}
	job := NewSessionCleanupJob(store, time.Hour, slog.Default())

	job.Start(context.Background())
	defer job.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for store.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected an initial cleanup pass, got none")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSessionCleanupJob_StopHaltsLoop(t *testing.T) {
	store := &fakeSessionStore{}
	job := NewSessionCleanupJob(store, 10*time.Millisecond, slog.Default())

	job.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	job.Stop()

	calls := store.callCount()
	time.Sleep(50 * time.Millisecond)
	if store.callCount() != calls {
		t.Error("cleanup loop kept running after Stop")
	}
}

func TestSessionCleanupJob_StoreErrorDoesNotStopLoop(t *testing.T) {
	store := &fakeSessionStore{err: errors.New("db down")}
	job := NewSessionCleanupJob(store, 10*time.Millisecond, slog.Default())

	job.Start(context.Background())
	defer job.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for store.callCount() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected repeated passes despite store errors, got %d", store.callCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewSessionCleanupJob_DefaultsInterval(t *testing.T) {
	job := NewSessionCleanupJob(&fakeSessionStore{}, 0, slog.Default())
	if job.interval != time.Hour {
		t.Errorf("interval = %v, want 1h default", job.interval)
	}
}
