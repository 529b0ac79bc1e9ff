package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/kpiflow/kpiflow/internal/db/models"
	"github.com/kpiflow/kpiflow/internal/safego"
)

// Store persists entries durably. *repositories.AuditRepository satisfies it.
type Store interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Logger is the single entry point for recording access decisions. Every
// entry lands in the in-memory ring synchronously; the durable store and the
// external shippers are written from a background goroutine so a slow
// destination never delays the request.
type Logger struct {
	recorder *Recorder
	store    Store
	shipper  Shipper
	logger   *slog.Logger
}

// NewLogger wires the recorder to its optional durable store and shipper.
// Either may be nil.
func NewLogger(recorder *Recorder, store Store, shipper Shipper, logger *slog.Logger) *Logger {
	return &Logger{
		recorder: recorder,
		store:    store,
		shipper:  shipper,
		logger:   logger,
	}
}

// Record captures one access decision.
func (l *Logger) Record(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	l.recorder.Record(e)

	if e.Action.Granted() {
		l.logger.Debug("access granted",
			"user_id", e.UserID, "workspace_id", e.WorkspaceID,
			"method", e.Method, "endpoint", e.Endpoint)
	} else {
		l.logger.Warn("access denied",
			"action", string(e.Action), "user_id", e.UserID, "workspace_id", e.WorkspaceID,
			"method", e.Method, "endpoint", e.Endpoint, "reason", e.Reason)
	}

	if l.store == nil && l.shipper == nil {
		return
	}

	entry := e
	safego.Go("audit_persist", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if l.store != nil {
			if err := l.store.CreateAuditLog(ctx, toModel(&entry)); err != nil {
				l.logger.Error("failed to persist audit entry", "error", err)
			}
		}
		if l.shipper != nil {
			if err := l.shipper.Ship(ctx, &entry); err != nil {
				l.logger.Warn("failed to ship audit entry", "error", err)
			}
		}
	})
}

// Recorder exposes the underlying ring for query endpoints.
func (l *Logger) Recorder() *Recorder {
	return l.recorder
}

func toModel(e *Entry) *models.AuditLog {
	log := &models.AuditLog{
		Endpoint:  e.Endpoint,
		Method:    e.Method,
		Action:    string(e.Action),
		CreatedAt: e.Timestamp,
	}
	if e.UserID != "" {
		log.UserID = &e.UserID
	}
	if e.WorkspaceID != "" {
		log.WorkspaceID = &e.WorkspaceID
	}
	if e.Reason != "" {
		log.Reason = &e.Reason
	}
	if e.IPAddress != "" {
		log.IPAddress = &e.IPAddress
	}
	if e.UserAgent != "" {
		log.UserAgent = &e.UserAgent
	}
	return log
}
