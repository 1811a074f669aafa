package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nimbus-edu/timetable-api/internal/models"
	"github.com/nimbus-edu/timetable-api/pkg/config"
	"github.com/nimbus-edu/timetable-api/pkg/jobs"
)

type auditWriter interface {
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
}

// AuditService writes the audit trail asynchronously through an in-memory
// worker queue so request latency never pays for audit inserts. A dropped
// record is logged, never fatal.
type AuditService struct {
	queue   *jobs.Queue
	enabled bool
	logger  *zap.Logger
}

// NewAuditService builds the service and its backing queue. Call Start
// before recording and Stop on shutdown.
func NewAuditService(writer auditWriter, cfg config.AuditConfig, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuditService{enabled: cfg.Enabled, logger: logger}
	s.queue = jobs.NewQueue("audit", func(ctx context.Context, job jobs.Job) error {
		entry, ok := job.Payload.(models.AuditLog)
		if !ok {
			return fmt.Errorf("unexpected audit payload type %T", job.Payload)
		}
		return writer.CreateAuditLog(ctx, &entry)
	}, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		Logger:     logger,
	})
	return s
}

// Start launches the queue workers.
func (s *AuditService) Start(ctx context.Context) {
	if s.enabled {
		s.queue.Start(ctx)
	}
}

// Stop drains the workers.
func (s *AuditService) Stop() {
	if s.enabled {
		s.queue.Stop()
	}
}

// Record enqueues an audit entry. The caller's identity is lifted from the
// request context when the entry does not already carry one; enqueueing
// itself never blocks on storage.
func (s *AuditService) Record(ctx context.Context, entry models.AuditLog) {
	if !s.enabled {
		return
	}
	if entry.UserID == nil {
		if claims := models.ClaimsFromContext(ctx); claims != nil {
			id := claims.UserID
			entry.UserID = &id
		}
	}
	if err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    entry.Action,
		Payload: entry,
	}); err != nil {
		s.logger.Warn("failed to enqueue audit record",
			zap.String("action", entry.Action),
			zap.String("school_id", entry.SchoolID),
			zap.Error(err))
	}
}
