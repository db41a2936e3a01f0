package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"watch_party/internal/domain"
	"watch_party/internal/repository"
	"watch_party/pkg/logger"
)

type AuditService interface {
	Record(ctx context.Context, actorID *uuid.UUID, actorRole string, roomID *uuid.UUID, eventType string, payload map[string]interface{})
}

type auditService struct {
	auditRepo repository.AuditRepository
	log       logger.Logger
}

func NewAuditService(auditRepo repository.AuditRepository, log logger.Logger) AuditService {
	return &auditService{auditRepo: auditRepo, log: log}
}

// Record writes an audit entry. Failures are logged, never propagated;
// auditing must not fail the action it describes.
func (s *auditService) Record(ctx context.Context, actorID *uuid.UUID, actorRole string, roomID *uuid.UUID, eventType string, payload map[string]interface{}) {
	entry := &domain.AuditLog{
		EventTime:   time.Now(),
		ActorUserID: actorID,
		ActorRole:   actorRole,
		RoomID:      roomID,
		EventType:   eventType,
		Payload:     payload,
	}
	if err := s.auditRepo.CreateLog(ctx, entry); err != nil {
		s.log.Warn("Failed to record audit entry", "error", err, "event_type", eventType)
	}
}
