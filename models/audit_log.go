package models

import (
	"time"
)

// AuditAction identifies what kind of state change an audit entry records.
type AuditAction string

const (
	AuditAutomaticTransition   AuditAction = "automatic_transition"
	AuditManualTransition      AuditAction = "manual_transition"
	AuditDistributionScheduled AuditAction = "distribution_scheduled"
	AuditDistributionCancelled AuditAction = "distribution_cancelled"
	AuditDistributionStep      AuditAction = "distribution_step"
	AuditTransactionSubmitted  AuditAction = "transaction_submitted"
	AuditTransactionConfirmed  AuditAction = "transaction_confirmed"
	AuditTransactionFailed     AuditAction = "transaction_failed"
)

// AuditActor says who caused the change.
type AuditActor string

const (
	ActorSystem    AuditActor = "system"
	ActorOrganizer AuditActor = "organizer"
	ActorAdmin     AuditActor = "admin"
)

// AuditLogEntry is an append-only record of one lifecycle or distribution
// state change. Entries are never updated or deleted after creation.
type AuditLogEntry struct {
	ID          string      `json:"id" gorm:"primaryKey"`
	HackathonID string      `json:"hackathon_id" gorm:"not null;index"`
	Action      AuditAction `json:"action" gorm:"type:varchar(32);not null;index"`
	FromState   string      `json:"from_state,omitempty" gorm:"type:varchar(32)"`
	ToState     string      `json:"to_state,omitempty" gorm:"type:varchar(32)"`
	Reason      string      `json:"reason,omitempty" gorm:"type:text"`
	Actor       AuditActor  `json:"actor" gorm:"type:varchar(16);not null;index"`
	ActorID     string      `json:"actor_id,omitempty"` // empty when Actor is system
	CreatedAt   time.Time   `json:"created_at" gorm:"autoCreateTime;index"`
}
