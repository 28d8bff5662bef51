package storage

import (
	"context"
	"errors"
	"time"

	"hackathon-payout-system/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// EventStore is the read/write boundary for hackathon lifecycle state. The
// store is the single source of truth for the phase; callers never cache it
// across operations.
type EventStore interface {
	GetHackathon(ctx context.Context, id string) (*models.Hackathon, error)
	ListHackathonsByPhase(ctx context.Context, phases ...models.HackathonPhase) ([]models.Hackathon, error)

	// UpdateHackathonPhase atomically moves the hackathon from expected to
	// next. It returns false without error when the persisted phase no longer
	// matches expected (another writer got there first).
	UpdateHackathonPhase(ctx context.Context, id string, expected, next models.HackathonPhase) (bool, error)

	GetRankedParticipants(ctx context.Context, hackathonID string) ([]models.RankedParticipant, error)
}

// JobStore persists distribution jobs, payouts and their ledger transactions.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.DistributionJob) error
	GetJob(ctx context.Context, jobID string) (*models.DistributionJob, error)

	// GetActiveJob returns the scheduled or processing job for the hackathon,
	// or nil when none exists.
	GetActiveJob(ctx context.Context, hackathonID string) (*models.DistributionJob, error)

	// HasJob reports whether any job, in any status, exists for the hackathon.
	HasJob(ctx context.Context, hackathonID string) (bool, error)

	// GetLatestJob returns the most recently created job for the hackathon in
	// any status, or nil when none exists.
	GetLatestJob(ctx context.Context, hackathonID string) (*models.DistributionJob, error)

	// UpdateJobStatus atomically moves the job from one status to another.
	// Returns false without error when the stored status no longer matches.
	UpdateJobStatus(ctx context.Context, jobID string, from, to models.JobStatus, lastErr string) (bool, error)

	CreatePayout(ctx context.Context, payout *models.WinnerPayout) error
	UpdatePayoutStatus(ctx context.Context, payoutID string, status models.PayoutStatus) error
	ListPayouts(ctx context.Context, jobID string) ([]models.WinnerPayout, error)

	// ListPayoutsByHackathon returns every payout across all jobs for the
	// hackathon. Re-triggered distributions use it to see what earlier jobs
	// already settled.
	ListPayoutsByHackathon(ctx context.Context, hackathonID string) ([]models.WinnerPayout, error)

	CreateTransaction(ctx context.Context, record *models.TransactionRecord) error
	SaveTransaction(ctx context.Context, record *models.TransactionRecord) error
	GetTransaction(ctx context.Context, recordID string) (*models.TransactionRecord, error)
	ListTransactions(ctx context.Context) ([]models.TransactionRecord, error)
}

// AuditFilter narrows an audit trail query. Zero values mean "no filter".
type AuditFilter struct {
	HackathonID string
	Action      models.AuditAction
	Actor       models.AuditActor
	Since       *time.Time
	Until       *time.Time
	Limit       int
	Offset      int
}

// AuditStore is the append-only audit trail. Entries are never updated or
// deleted once written.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry *models.AuditLogEntry) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]models.AuditLogEntry, error)
	AuditSummary(ctx context.Context, hackathonID string) (map[models.AuditAction]int64, error)
}

// Store bundles all persistence boundaries backed by one database.
type Store interface {
	EventStore
	JobStore
	AuditStore
}
