package storage

import (
	"context"
	"errors"
	"time"

	"hackathon-payout-system/models"

	"gorm.io/gorm"
)

// GormStore is the PostgreSQL-backed Store.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) GetHackathon(ctx context.Context, id string) (*models.Hackathon, error) {
	var h models.Hackathon
	if err := s.DB.WithContext(ctx).First(&h, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &h, nil
}

func (s *GormStore) ListHackathonsByPhase(ctx context.Context, phases ...models.HackathonPhase) ([]models.Hackathon, error) {
	var hackathons []models.Hackathon
	if err := s.DB.WithContext(ctx).
		Where("phase IN ?", phases).
		Order("created_at ASC").
		Find(&hackathons).Error; err != nil {
		return nil, err
	}
	return hackathons, nil
}

// UpdateHackathonPhase is a single-statement compare-and-swap: the WHERE
// clause re-checks the expected phase so a concurrent writer makes this a
// no-op instead of a double apply.
func (s *GormStore) UpdateHackathonPhase(ctx context.Context, id string, expected, next models.HackathonPhase) (bool, error) {
	result := s.DB.WithContext(ctx).
		Model(&models.Hackathon{}).
		Where("id = ? AND phase = ?", id, expected).
		Update("phase", next)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *GormStore) GetRankedParticipants(ctx context.Context, hackathonID string) ([]models.RankedParticipant, error) {
	var participants []models.RankedParticipant
	if err := s.DB.WithContext(ctx).
		Where("hackathon_id = ?", hackathonID).
		Order("rank ASC").
		Find(&participants).Error; err != nil {
		return nil, err
	}
	return participants, nil
}

func (s *GormStore) CreateJob(ctx context.Context, job *models.DistributionJob) error {
	return s.DB.WithContext(ctx).Create(job).Error
}

func (s *GormStore) GetJob(ctx context.Context, jobID string) (*models.DistributionJob, error) {
	var job models.DistributionJob
	err := s.DB.WithContext(ctx).
		Preload("Payouts", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Payouts.Transaction").
		First(&job, "id = ?", jobID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (s *GormStore) GetActiveJob(ctx context.Context, hackathonID string) (*models.DistributionJob, error) {
	var job models.DistributionJob
	err := s.DB.WithContext(ctx).
		Where("hackathon_id = ? AND status IN ?", hackathonID,
			[]models.JobStatus{models.JobStatusScheduled, models.JobStatusProcessing}).
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (s *GormStore) HasJob(ctx context.Context, hackathonID string) (bool, error) {
	var count int64
	if err := s.DB.WithContext(ctx).
		Model(&models.DistributionJob{}).
		Where("hackathon_id = ?", hackathonID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GormStore) GetLatestJob(ctx context.Context, hackathonID string) (*models.DistributionJob, error) {
	var job models.DistributionJob
	err := s.DB.WithContext(ctx).
		Where("hackathon_id = ?", hackathonID).
		Order("created_at DESC").
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// UpdateJobStatus re-checks the current status in the WHERE clause, same
// discipline as UpdateHackathonPhase.
func (s *GormStore) UpdateJobStatus(ctx context.Context, jobID string, from, to models.JobStatus, lastErr string) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"last_error": lastErr,
	}
	result := s.DB.WithContext(ctx).
		Model(&models.DistributionJob{}).
		Where("id = ? AND status = ?", jobID, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *GormStore) CreatePayout(ctx context.Context, payout *models.WinnerPayout) error {
	return s.DB.WithContext(ctx).Create(payout).Error
}

func (s *GormStore) UpdatePayoutStatus(ctx context.Context, payoutID string, status models.PayoutStatus) error {
	return s.DB.WithContext(ctx).
		Model(&models.WinnerPayout{}).
		Where("id = ?", payoutID).
		Update("status", status).Error
}

func (s *GormStore) ListPayouts(ctx context.Context, jobID string) ([]models.WinnerPayout, error) {
	var payouts []models.WinnerPayout
	if err := s.DB.WithContext(ctx).
		Preload("Transaction").
		Where("job_id = ?", jobID).
		Order("position ASC").
		Find(&payouts).Error; err != nil {
		return nil, err
	}
	return payouts, nil
}

func (s *GormStore) ListPayoutsByHackathon(ctx context.Context, hackathonID string) ([]models.WinnerPayout, error) {
	var payouts []models.WinnerPayout
	if err := s.DB.WithContext(ctx).
		Where("hackathon_id = ?", hackathonID).
		Order("created_at ASC").
		Find(&payouts).Error; err != nil {
		return nil, err
	}
	return payouts, nil
}

func (s *GormStore) CreateTransaction(ctx context.Context, record *models.TransactionRecord) error {
	return s.DB.WithContext(ctx).Create(record).Error
}

func (s *GormStore) SaveTransaction(ctx context.Context, record *models.TransactionRecord) error {
	return s.DB.WithContext(ctx).Save(record).Error
}

func (s *GormStore) GetTransaction(ctx context.Context, recordID string) (*models.TransactionRecord, error) {
	var record models.TransactionRecord
	if err := s.DB.WithContext(ctx).First(&record, "id = ?", recordID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (s *GormStore) ListTransactions(ctx context.Context) ([]models.TransactionRecord, error) {
	var records []models.TransactionRecord
	if err := s.DB.WithContext(ctx).
		Order("submitted_at ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (s *GormStore) AppendAudit(ctx context.Context, entry *models.AuditLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return s.DB.WithContext(ctx).Create(entry).Error
}

func (s *GormStore) ListAudit(ctx context.Context, filter AuditFilter) ([]models.AuditLogEntry, error) {
	query := s.DB.WithContext(ctx).Model(&models.AuditLogEntry{})
	if filter.HackathonID != "" {
		query = query.Where("hackathon_id = ?", filter.HackathonID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.Actor != "" {
		query = query.Where("actor = ?", filter.Actor)
	}
	if filter.Since != nil {
		query = query.Where("created_at >= ?", *filter.Since)
	}
	if filter.Until != nil {
		query = query.Where("created_at < ?", *filter.Until)
	}
	query = query.Order("created_at ASC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	var entries []models.AuditLogEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *GormStore) AuditSummary(ctx context.Context, hackathonID string) (map[models.AuditAction]int64, error) {
	type row struct {
		Action models.AuditAction
		Count  int64
	}
	var rows []row
	if err := s.DB.WithContext(ctx).
		Model(&models.AuditLogEntry{}).
		Select("action, COUNT(*) as count").
		Where("hackathon_id = ?", hackathonID).
		Group("action").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	summary := make(map[models.AuditAction]int64, len(rows))
	for _, r := range rows {
		summary[r.Action] = r.Count
	}
	return summary, nil
}
