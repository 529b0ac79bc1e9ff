// session_cleanup.go removes expired session records. Expired sessions are
// already rejected at validation time; this keeps the revocation table from
// growing without bound.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ExpiredSessionStore is the deletion surface the job needs.
// *repositories.SessionRepository satisfies it.
type ExpiredSessionStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SessionCleanupJob periodically deletes expired session records.
type SessionCleanupJob struct {
	sessions ExpiredSessionStore
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewSessionCleanupJob creates a session cleanup job.
func NewSessionCleanupJob(sessions ExpiredSessionStore, interval time.Duration, logger *slog.Logger) *SessionCleanupJob {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SessionCleanupJob{
		sessions: sessions,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup loop. An initial pass runs immediately.
func (j *SessionCleanupJob) Start(ctx context.Context) {
	j.logger.Info("starting session cleanup job", "interval", j.interval)

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		j.run(ctx)

		for {
			select {
			case <-ticker.C:
				j.run(ctx)
			case <-j.stopCh:
				j.logger.Info("session cleanup job stopped")
				return
			case <-ctx.Done():
				j.logger.Info("session cleanup job context cancelled")
				return
			}
		}
	}()
}

// Stop stops the cleanup loop and waits for an in-flight pass to finish.
func (j *SessionCleanupJob) Stop() {
	close(j.stopCh)
	j.wg.Wait()
}

func (j *SessionCleanupJob) run(ctx context.Context) {
	count, err := j.sessions.DeleteExpired(ctx, time.Now())
	if err != nil {
		j.logger.Error("session cleanup pass failed", "error", err)
		return
	}
	if count > 0 {
		j.logger.Info("expired sessions removed", "count", count)
	}
}
