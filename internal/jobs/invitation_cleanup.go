// Package jobs contains background workers that run on a schedule.
// The invitation cleanup job garbage-collects expired, never-accepted
// invitations; the session cleanup job removes expired session records so the
// revocation table stays bounded. Both are idempotent. Re-running after a
// crash produces the same result as a clean run.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kpiflow/kpiflow/internal/invitations"
	"github.com/kpiflow/kpiflow/internal/telemetry"
)

// InvitationCleanupJob periodically deletes expired invitations. Accepted
// invitations are never touched regardless of age.
type InvitationCleanupJob struct {
	manager  *invitations.Manager
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewInvitationCleanupJob creates an invitation cleanup job.
func NewInvitationCleanupJob(manager *invitations.Manager, interval time.Duration, logger *slog.Logger) *InvitationCleanupJob {
	if interval <= 0 {
		interval = time.Hour
	}
	return &InvitationCleanupJob{
		manager:  manager,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup loop. An initial pass runs immediately.
func (j *InvitationCleanupJob) Start(ctx context.Context) {
	j.logger.Info("starting invitation cleanup job", "interval", j.interval)

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
				j.logger.Info("invitation cleanup job stopped")
				return
			case <-ctx.Done():
				j.logger.Info("invitation cleanup job context cancelled")
				return
			}
		}
	}()
}

// Stop stops the cleanup loop and waits for an in-flight pass to finish.
func (j *InvitationCleanupJob) Stop() {
	close(j.stopCh)
	j.wg.Wait()
}

func (j *InvitationCleanupJob) run(ctx context.Context) {
	count, err := j.manager.CleanupExpired(ctx)
	if err != nil {
		j.logger.Error("invitation cleanup pass failed", "error", err)
		return
	}
	if count > 0 {
		telemetry.InvitationsExpiredCleanedTotal.Add(float64(count))
	}
}
