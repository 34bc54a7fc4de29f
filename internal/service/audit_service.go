package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/gym-auth-api/internal/models"
	"github.com/noah-isme/gym-auth-api/pkg/jobs"
)

const auditJobType = "audit_log"

// AuditRepository persists audit trail entries.
type AuditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuditRecorder accepts audit events without blocking the caller.
type AuditRecorder interface {
	Record(event AuditEvent)
}

// AuditEvent describes a security relevant action.
type AuditEvent struct {
	UserID     string
	Action     string
	Resource   string
	ResourceID string
	Meta       models.RequestMeta
	Details    map[string]interface{}
}

// AuditService writes audit events through a background job queue so request
// latency never depends on the audit table.
type AuditService struct {
	repo   AuditRepository
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewAuditService builds an audit writer. The queue is started with Start.
func NewAuditService(repo AuditRepository, cfg jobs.QueueConfig) *AuditService {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	svc := &AuditService{repo: repo, logger: cfg.Logger}
	svc.queue = jobs.NewQueue("audit", svc.handle, cfg)
	return svc
}

// Start launches the queue workers.
func (s *AuditService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop waits for the queue workers to exit.
func (s *AuditService) Stop() {
	s.queue.Stop()
}

// Record enqueues the event. Failures are logged and otherwise ignored.
func (s *AuditService) Record(event AuditEvent) {
	entry, err := buildAuditLog(event)
	if err != nil {
		s.logger.Warn("failed to build audit log", zap.String("action", event.Action), zap.Error(err))
		return
	}
	job := jobs.Job{ID: entry.ID, Type: auditJobType, Payload: entry}
	if err := s.queue.TryEnqueue(job); err != nil {
		s.logger.Warn("failed to enqueue audit log", zap.String("action", event.Action), zap.Error(err))
	}
}

func (s *AuditService) handle(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(*models.AuditLog)
	if !ok {
		return fmt.Errorf("unexpected audit payload %T", job.Payload)
	}
	return s.repo.CreateAuditLog(ctx, entry)
}

func buildAuditLog(event AuditEvent) (*models.AuditLog, error) {
	entry := &models.AuditLog{
		ID:        uuid.NewString(),
		Action:    event.Action,
		Resource:  event.Resource,
		IPAddress: event.Meta.IP,
		UserAgent: event.Meta.UserAgent,
		CreatedAt: time.Now().UTC(),
	}
	if entry.Resource == "" {
		entry.Resource = "session"
	}
	if event.UserID != "" {
		userID := event.UserID
		entry.UserID = &userID
	}
	if event.ResourceID != "" {
		resourceID := event.ResourceID
		entry.ResourceID = &resourceID
	}
	if len(event.Details) > 0 {
		body, err := json.Marshal(event.Details)
		if err != nil {
			return nil, err
		}
		entry.NewValues = body
	}
	return entry, nil
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(AuditEvent) {}
