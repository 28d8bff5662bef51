package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"hackathon-payout-system/models"
	"hackathon-payout-system/storage"

	"github.com/google/uuid"
)

// ErrNotCompleted is returned when distribution is requested for a hackathon
// that has not reached its terminal phase.
var ErrNotCompleted = errors.New("hackathon has not completed")

// JobRunner executes one distribution job to completion. Implemented by
// workers.DistributionWorker.
type JobRunner interface {
	Run(ctx context.Context, jobID string) error
}

// DistributionService decides when a payout job runs. It owns the
// "at most one active job per hackathon" invariant through a registry of
// per-hackathon locks: the existence check and the job creation happen under
// the same lock, so the event-bus path, a manual trigger and the
// reconciliation sweep can race freely.
type DistributionService struct {
	Events storage.EventStore
	Jobs   storage.JobStore
	Audits *AuditService
	Runner JobRunner

	// GraceDelay is the window between scheduling and processing during which
	// a job may still be cancelled.
	GraceDelay time.Duration

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	rootCtx context.Context
}

func NewDistributionService(events storage.EventStore, jobs storage.JobStore, audits *AuditService, runner JobRunner, graceDelay time.Duration) *DistributionService {
	return &DistributionService{
		Events:     events,
		Jobs:       jobs,
		Audits:     audits,
		Runner:     runner,
		GraceDelay: graceDelay,
		locks:      make(map[string]*sync.Mutex),
		rootCtx:    context.Background(),
	}
}

// Start subscribes to the phase bus and schedules a distribution whenever a
// hackathon reaches the completed phase. ctx bounds every job spawned from
// here on.
func (s *DistributionService) Start(ctx context.Context, bus *PhaseBus) {
	s.mu.Lock()
	s.rootCtx = ctx
	s.mu.Unlock()

	changes := bus.Subscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case change, ok := <-changes:
				if !ok {
					return
				}
				if change.To != models.PhaseCompleted {
					continue
				}
				if _, err := s.Schedule(ctx, change.HackathonID); err != nil {
					log.Printf("[DISTRIBUTION] ❌ Failed to schedule payout for hackathon %s: %v",
						change.HackathonID, err)
				}
			}
		}
	}()
}

// lockFor returns the per-hackathon lock, creating it on first use.
func (s *DistributionService) lockFor(hackathonID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[hackathonID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[hackathonID] = lock
	}
	return lock
}

func (s *DistributionService) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rootCtx
}

// Schedule creates a scheduled job for the hackathon unless an active one
// already exists, in which case it is a no-op returning the existing job.
// The worker picks the job up after GraceDelay.
func (s *DistributionService) Schedule(ctx context.Context, hackathonID string) (*models.DistributionJob, error) {
	lock := s.lockFor(hackathonID)
	lock.Lock()
	defer lock.Unlock()

	job, created, err := s.ensureJob(ctx, hackathonID)
	if err != nil {
		return nil, err
	}
	if created {
		go s.runAfterGrace(job.ID)
	}
	return job, nil
}

// ensureJob performs the existence check and creation as one step under the
// caller-held per-hackathon lock.
func (s *DistributionService) ensureJob(ctx context.Context, hackathonID string) (*models.DistributionJob, bool, error) {
	active, err := s.Jobs.GetActiveJob(ctx, hackathonID)
	if err != nil {
		return nil, false, err
	}
	if active != nil {
		return active, false, nil
	}

	h, err := s.Events.GetHackathon(ctx, hackathonID)
	if err != nil {
		return nil, false, err
	}
	if h.Phase != models.PhaseCompleted {
		return nil, false, fmt.Errorf("%w: hackathon %s is %s", ErrNotCompleted, hackathonID, h.Phase)
	}

	job := &models.DistributionJob{
		ID:          uuid.NewString(),
		HackathonID: hackathonID,
		Status:      models.JobStatusScheduled,
	}
	if err := s.Jobs.CreateJob(ctx, job); err != nil {
		return nil, false, fmt.Errorf("failed to create distribution job: %w", err)
	}

	s.Audits.Append(ctx, models.AuditLogEntry{
		HackathonID: hackathonID,
		Action:      models.AuditDistributionScheduled,
		ToState:     string(models.JobStatusScheduled),
		Reason:      fmt.Sprintf("prize pool %.2f %s", h.PrizePool, h.PrizeToken),
		Actor:       models.ActorSystem,
	})
	log.Printf("[DISTRIBUTION] ✅ Scheduled payout job %s for hackathon %s", job.ID, hackathonID)
	return job, true, nil
}

func (s *DistributionService) runAfterGrace(jobID string) {
	ctx := s.runContext()
	if s.GraceDelay > 0 {
		timer := time.NewTimer(s.GraceDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
	if err := s.Runner.Run(ctx, jobID); err != nil {
		log.Printf("[DISTRIBUTION] ❌ Job %s failed: %v", jobID, err)
	}
}

// Cancel stops a job that has not started processing. Returns false when no
// cancellable job exists; transactions already submitted are unaffected.
func (s *DistributionService) Cancel(ctx context.Context, hackathonID string, actor models.AuditActor, actorID string) (bool, error) {
	lock := s.lockFor(hackathonID)
	lock.Lock()
	defer lock.Unlock()

	job, err := s.Jobs.GetActiveJob(ctx, hackathonID)
	if err != nil {
		return false, err
	}
	if job == nil || job.Status != models.JobStatusScheduled {
		return false, nil
	}

	cancelled, err := s.Jobs.UpdateJobStatus(ctx, job.ID, models.JobStatusScheduled, models.JobStatusCancelled, "")
	if err != nil {
		return false, err
	}
	if !cancelled {
		// Worker won the race and moved the job to processing.
		return false, nil
	}

	s.Audits.Append(ctx, models.AuditLogEntry{
		HackathonID: hackathonID,
		Action:      models.AuditDistributionCancelled,
		FromState:   string(models.JobStatusScheduled),
		ToState:     string(models.JobStatusCancelled),
		Actor:       actor,
		ActorID:     actorID,
	})
	log.Printf("[DISTRIBUTION] ✅ Cancelled payout job %s for hackathon %s", job.ID, hackathonID)
	return true, nil
}

// ManualDistribute schedules the hackathon if needed and runs the job
// immediately, skipping the grace window. Used by admins to re-trigger after
// a failed distribution.
func (s *DistributionService) ManualDistribute(ctx context.Context, hackathonID string, actor models.AuditActor, actorID string) (*models.DistributionJob, error) {
	lock := s.lockFor(hackathonID)
	lock.Lock()
	job, created, err := s.ensureJob(ctx, hackathonID)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	if created || job.Status == models.JobStatusScheduled {
		s.Audits.Append(ctx, models.AuditLogEntry{
			HackathonID: hackathonID,
			Action:      models.AuditDistributionStep,
			Reason:      "manual distribution triggered",
			Actor:       actor,
			ActorID:     actorID,
		})
	}
	lock.Unlock()

	if err := s.Runner.Run(ctx, job.ID); err != nil {
		return nil, err
	}
	return s.Jobs.GetJob(ctx, job.ID)
}

// ScanForCompletedEvents is the reconciliation sweep: it schedules any
// completed hackathon with no distribution job at all, covering missed bus
// deliveries after a restart. Returns the number of jobs scheduled.
func (s *DistributionService) ScanForCompletedEvents(ctx context.Context) (int, error) {
	completed, err := s.Events.ListHackathonsByPhase(ctx, models.PhaseCompleted)
	if err != nil {
		return 0, fmt.Errorf("failed to list completed hackathons: %w", err)
	}

	scheduled := 0
	for _, h := range completed {
		exists, err := s.Jobs.HasJob(ctx, h.ID)
		if err != nil {
			log.Printf("[DISTRIBUTION] ❌ Reconcile check failed for hackathon %s: %v", h.ID, err)
			continue
		}
		if exists {
			continue
		}
		if _, err := s.Schedule(ctx, h.ID); err != nil {
			log.Printf("[DISTRIBUTION] ❌ Reconcile schedule failed for hackathon %s: %v", h.ID, err)
			continue
		}
		scheduled++
	}
	return scheduled, nil
}

// JobStatus returns the job with payouts and transactions for one hackathon,
// or nil when none exists.
func (s *DistributionService) JobStatus(ctx context.Context, hackathonID string) (*models.DistributionJob, error) {
	job, err := s.Jobs.GetActiveJob(ctx, hackathonID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		// Fall back to the most recent terminal job.
		job, err = s.Jobs.GetLatestJob(ctx, hackathonID)
		if err != nil || job == nil {
			return nil, err
		}
	}
	return s.Jobs.GetJob(ctx, job.ID)
}
