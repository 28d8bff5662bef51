package models

import (
	"time"
)

// JobStatus tracks a prize distribution job for one hackathon.
type JobStatus string

const (
	JobStatusNotScheduled JobStatus = "not_scheduled"
	JobStatusScheduled    JobStatus = "scheduled"
	JobStatusProcessing   JobStatus = "processing"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusFailed       JobStatus = "failed"
	JobStatusCancelled    JobStatus = "cancelled"
)

// IsActive reports whether the job still owns the "one job per hackathon"
// slot. Terminal jobs never block a re-trigger.
func (s JobStatus) IsActive() bool {
	return s == JobStatusScheduled || s == JobStatusProcessing
}

type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "pending"
	PayoutStatusCompleted PayoutStatus = "completed"
	PayoutStatusFailed    PayoutStatus = "failed"
	PayoutStatusCancelled PayoutStatus = "cancelled"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// DistributionJob is the unit of work that pays out one completed hackathon.
// At most one job in an active status exists per hackathon at any time.
type DistributionJob struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	HackathonID string    `json:"hackathon_id" gorm:"not null;index"`
	Status      JobStatus `json:"status" gorm:"type:varchar(16);default:'scheduled';index"`
	LastError   string    `json:"last_error,omitempty" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Payouts []WinnerPayout `json:"payouts,omitempty" gorm:"foreignKey:JobID"`
}

// WinnerPayout is one winner's computed share of the prize pool.
type WinnerPayout struct {
	ID            string       `json:"id" gorm:"primaryKey"`
	JobID         string       `json:"job_id" gorm:"not null;index"`
	HackathonID   string       `json:"hackathon_id" gorm:"not null;index"`
	Position      int          `json:"position" gorm:"not null"`
	RecipientID   string       `json:"recipient_id" gorm:"not null"`
	WalletAddress string       `json:"wallet_address" gorm:"type:varchar(128);not null"`
	Amount        float64      `json:"amount" gorm:"not null"`
	Percentage    float64      `json:"percentage" gorm:"not null"`
	Status        PayoutStatus `json:"status" gorm:"type:varchar(16);default:'pending'"`
	CreatedAt     time.Time    `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time    `json:"updated_at" gorm:"autoUpdateTime"`

	Transaction *TransactionRecord `json:"transaction,omitempty" gorm:"foreignKey:PayoutID"`
}

// TransactionRecord tracks one ledger transaction from submission to
// finality. One-to-one with a WinnerPayout once submitted; never reused.
type TransactionRecord struct {
	ID          string            `json:"id" gorm:"primaryKey"`
	PayoutID    string            `json:"payout_id" gorm:"not null;uniqueIndex"`
	JobID       string            `json:"job_id" gorm:"not null;index"`
	TxHash      string            `json:"tx_hash,omitempty" gorm:"type:varchar(128);index"` // empty until submitted
	Status      TransactionStatus `json:"status" gorm:"type:varchar(16);default:'pending';index"`
	SubmittedAt time.Time         `json:"submitted_at"`
	ConfirmedAt *time.Time        `json:"confirmed_at,omitempty"`
	RetryCount  int               `json:"retry_count" gorm:"default:0"`
	LastError   string            `json:"last_error,omitempty" gorm:"type:text"`
}
