package services

import (
	"context"
	"log"

	"hackathon-payout-system/models"
	"hackathon-payout-system/storage"

	"github.com/google/uuid"
)

// AuditService writes and queries the append-only audit trail. Writes are
// best-effort: a failed append is logged and swallowed so that audit storage
// trouble never rolls back or blocks the state change it describes.
type AuditService struct {
	Store storage.AuditStore
}

func NewAuditService(store storage.AuditStore) *AuditService {
	return &AuditService{Store: store}
}

// Append records one state change. Never returns an error to the caller.
func (s *AuditService) Append(ctx context.Context, entry models.AuditLogEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Actor == "" {
		entry.Actor = models.ActorSystem
	}
	if err := s.Store.AppendAudit(ctx, &entry); err != nil {
		log.Printf("[AUDIT] ❌ Failed to append %s entry for hackathon %s: %v",
			entry.Action, entry.HackathonID, err)
	}
}

// Trail returns the chronological audit trail for one hackathon, optionally
// filtered and paginated.
func (s *AuditService) Trail(ctx context.Context, filter storage.AuditFilter) ([]models.AuditLogEntry, error) {
	return s.Store.ListAudit(ctx, filter)
}

// Summary aggregates entry counts per action kind for one hackathon.
func (s *AuditService) Summary(ctx context.Context, hackathonID string) (map[models.AuditAction]int64, error) {
	return s.Store.AuditSummary(ctx, hackathonID)
}
