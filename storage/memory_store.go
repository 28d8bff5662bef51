package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"hackathon-payout-system/models"
)

// MemoryStore is an in-memory Store used by tests and local development.
// All methods are safe for concurrent use.
type MemoryStore struct {
	mu           sync.Mutex
	hackathons   map[string]models.Hackathon
	participants map[string][]models.RankedParticipant // keyed by hackathon id
	jobs         map[string]models.DistributionJob
	payouts      map[string]models.WinnerPayout
	transactions map[string]models.TransactionRecord
	audits       []models.AuditLogEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hackathons:   make(map[string]models.Hackathon),
		participants: make(map[string][]models.RankedParticipant),
		jobs:         make(map[string]models.DistributionJob),
		payouts:      make(map[string]models.WinnerPayout),
		transactions: make(map[string]models.TransactionRecord),
	}
}

// PutHackathon seeds or replaces a hackathon record.
func (s *MemoryStore) PutHackathon(h models.Hackathon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hackathons[h.ID] = h
}

// PutParticipants seeds the ranked leaderboard for a hackathon.
func (s *MemoryStore) PutParticipants(hackathonID string, participants []models.RankedParticipant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[hackathonID] = append([]models.RankedParticipant(nil), participants...)
}

func (s *MemoryStore) GetHackathon(_ context.Context, id string) (*models.Hackathon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hackathons[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := h
	return &copied, nil
}

func (s *MemoryStore) ListHackathonsByPhase(_ context.Context, phases ...models.HackathonPhase) ([]models.Hackathon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Hackathon
	for _, h := range s.hackathons {
		for _, p := range phases {
			if h.Phase == p {
				out = append(out, h)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateHackathonPhase(_ context.Context, id string, expected, next models.HackathonPhase) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hackathons[id]
	if !ok || h.Phase != expected {
		return false, nil
	}
	h.Phase = next
	h.UpdatedAt = time.Now().UTC()
	s.hackathons[id] = h
	return true, nil
}

func (s *MemoryStore) GetRankedParticipants(_ context.Context, hackathonID string) ([]models.RankedParticipant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]models.RankedParticipant(nil), s.participants[hackathonID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

func (s *MemoryStore) CreateJob(_ context.Context, job *models.DistributionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, jobID string) (*models.DistributionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := job
	copied.Payouts = s.payoutsForJobLocked(jobID)
	return &copied, nil
}

func (s *MemoryStore) GetActiveJob(_ context.Context, hackathonID string) (*models.DistributionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.HackathonID == hackathonID && job.Status.IsActive() {
			copied := job
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) HasJob(_ context.Context, hackathonID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.HackathonID == hackathonID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) GetLatestJob(_ context.Context, hackathonID string) (*models.DistributionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.DistributionJob
	for _, job := range s.jobs {
		if job.HackathonID != hackathonID {
			continue
		}
		if latest == nil || job.CreatedAt.After(latest.CreatedAt) {
			copied := job
			latest = &copied
		}
	}
	return latest, nil
}

func (s *MemoryStore) UpdateJobStatus(_ context.Context, jobID string, from, to models.JobStatus, lastErr string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.Status != from {
		return false, nil
	}
	job.Status = to
	job.LastError = lastErr
	job.UpdatedAt = time.Now().UTC()
	s.jobs[jobID] = job
	return true, nil
}

func (s *MemoryStore) CreatePayout(_ context.Context, payout *models.WinnerPayout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if payout.CreatedAt.IsZero() {
		payout.CreatedAt = now
	}
	payout.UpdatedAt = now
	s.payouts[payout.ID] = *payout
	return nil
}

func (s *MemoryStore) UpdatePayoutStatus(_ context.Context, payoutID string, status models.PayoutStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payout, ok := s.payouts[payoutID]
	if !ok {
		return ErrNotFound
	}
	payout.Status = status
	payout.UpdatedAt = time.Now().UTC()
	s.payouts[payoutID] = payout
	return nil
}

func (s *MemoryStore) ListPayouts(_ context.Context, jobID string) ([]models.WinnerPayout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payoutsForJobLocked(jobID), nil
}

func (s *MemoryStore) payoutsForJobLocked(jobID string) []models.WinnerPayout {
	var out []models.WinnerPayout
	for _, payout := range s.payouts {
		if payout.JobID != jobID {
			continue
		}
		copied := payout
		for _, record := range s.transactions {
			if record.PayoutID == payout.ID {
				rc := record
				copied.Transaction = &rc
				break
			}
		}
		out = append(out, copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (s *MemoryStore) ListPayoutsByHackathon(_ context.Context, hackathonID string) ([]models.WinnerPayout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.WinnerPayout
	for _, payout := range s.payouts {
		if payout.HackathonID == hackathonID {
			out = append(out, payout)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateTransaction(_ context.Context, record *models.TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[record.ID] = *record
	return nil
}

func (s *MemoryStore) SaveTransaction(_ context.Context, record *models.TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[record.ID] = *record
	return nil
}

func (s *MemoryStore) GetTransaction(_ context.Context, recordID string) (*models.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.transactions[recordID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := record
	return &copied, nil
}

func (s *MemoryStore) ListTransactions(_ context.Context) ([]models.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TransactionRecord, 0, len(s.transactions))
	for _, record := range s.transactions {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (s *MemoryStore) AppendAudit(_ context.Context, entry *models.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.audits = append(s.audits, *entry)
	return nil
}

func (s *MemoryStore) ListAudit(_ context.Context, filter AuditFilter) ([]models.AuditLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []models.AuditLogEntry
	for _, entry := range s.audits {
		if filter.HackathonID != "" && entry.HackathonID != filter.HackathonID {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		if filter.Actor != "" && entry.Actor != filter.Actor {
			continue
		}
		if filter.Since != nil && entry.CreatedAt.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && !entry.CreatedAt.Before(*filter.Until) {
			continue
		}
		matched = append(matched, entry)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *MemoryStore) AuditSummary(_ context.Context, hackathonID string) (map[models.AuditAction]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary := make(map[models.AuditAction]int64)
	for _, entry := range s.audits {
		if entry.HackathonID == hackathonID {
			summary[entry.Action]++
		}
	}
	return summary, nil
}
