package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"hackathon-payout-system/models"
	"hackathon-payout-system/storage"
)

var (
	// ErrInvalidTransition is returned when a manual transition target is not
	// reachable from the current phase.
	ErrInvalidTransition = errors.New("invalid phase transition")

	// ErrStaleTransition is returned on the manual path when another writer
	// moved the hackathon between read and write. Retryable.
	ErrStaleTransition = errors.New("phase changed concurrently, retry")
)

// automaticRule advances a hackathon out of a deadline-bearing phase once the
// deadline passes. Exactly one automatic rule exists per such phase, so the
// rule set is deterministic.
type automaticRule struct {
	To       models.HackathonPhase
	Deadline func(h *models.Hackathon) *time.Time
}

var automaticRules = map[models.HackathonPhase]automaticRule{
	models.PhaseRegistrationOpen: {
		To:       models.PhaseRegistrationClosed,
		Deadline: func(h *models.Hackathon) *time.Time { return h.RegistrationDeadline },
	},
	models.PhaseSubmissionOpen: {
		To:       models.PhaseSubmissionClosed,
		Deadline: func(h *models.Hackathon) *time.Time { return h.SubmissionDeadline },
	},
	models.PhaseVotingOpen: {
		To:       models.PhaseVotingClosed,
		Deadline: func(h *models.Hackathon) *time.Time { return h.VotingDeadline },
	},
}

// manualTransitions is the table of phase changes an organizer or admin may
// request. Each phase may advance one step forward; multi-step jumps stay
// off the table until the product owner confirms them.
var manualTransitions = map[models.HackathonPhase]models.HackathonPhase{
	models.PhaseDraft:              models.PhaseRegistrationOpen,
	models.PhaseRegistrationOpen:   models.PhaseRegistrationClosed,
	models.PhaseRegistrationClosed: models.PhaseSubmissionOpen,
	models.PhaseSubmissionOpen:     models.PhaseSubmissionClosed,
	models.PhaseSubmissionClosed:   models.PhaseVotingOpen,
	models.PhaseVotingOpen:         models.PhaseVotingClosed,
	models.PhaseVotingClosed:       models.PhaseCompleted,
}

// LifecycleService is the hackathon phase state machine. The periodic scan
// and manual transition calls both funnel through the store's
// compare-and-swap, so concurrent triggers never double-apply a transition.
type LifecycleService struct {
	Events storage.EventStore
	Audits *AuditService
	Bus    *PhaseBus
}

func NewLifecycleService(events storage.EventStore, audits *AuditService, bus *PhaseBus) *LifecycleService {
	return &LifecycleService{Events: events, Audits: audits, Bus: bus}
}

// ScanAndAdvance evaluates the automatic rule set against every hackathon in
// a non-terminal phase and applies at most one transition per hackathon.
// A failure on one hackathon is logged and skipped; the next scan retries it.
// Returns the number of transitions applied.
func (s *LifecycleService) ScanAndAdvance(ctx context.Context) (int, error) {
	var nonTerminal []models.HackathonPhase
	for _, phase := range models.PhaseOrder {
		if !phase.IsTerminal() {
			nonTerminal = append(nonTerminal, phase)
		}
	}
	hackathons, err := s.Events.ListHackathonsByPhase(ctx, nonTerminal...)
	if err != nil {
		return 0, fmt.Errorf("failed to list hackathons for scan: %w", err)
	}

	advanced := 0
	for _, h := range hackathons {
		applied, err := s.advanceOne(ctx, h.ID)
		if err != nil {
			log.Printf("[LIFECYCLE] ❌ Scan failed for hackathon %s: %v", h.ID, err)
			continue
		}
		if applied {
			advanced++
		}
	}
	return advanced, nil
}

// advanceOne re-reads the current phase, evaluates the automatic guard and
// CAS-applies the transition. A stale CAS means another writer already moved
// the hackathon; the scan treats that as a no-op.
func (s *LifecycleService) advanceOne(ctx context.Context, hackathonID string) (bool, error) {
	h, err := s.Events.GetHackathon(ctx, hackathonID)
	if err != nil {
		return false, err
	}
	rule, ok := automaticRules[h.Phase]
	if !ok {
		return false, nil
	}
	deadline := rule.Deadline(h)
	if deadline == nil || !time.Now().After(*deadline) {
		return false, nil
	}

	applied, err := s.Events.UpdateHackathonPhase(ctx, h.ID, h.Phase, rule.To)
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	s.Audits.Append(ctx, models.AuditLogEntry{
		HackathonID: h.ID,
		Action:      models.AuditAutomaticTransition,
		FromState:   string(h.Phase),
		ToState:     string(rule.To),
		Reason:      fmt.Sprintf("deadline %s passed", deadline.Format(time.RFC3339)),
		Actor:       models.ActorSystem,
	})
	s.Bus.Publish(PhaseChange{
		HackathonID: h.ID,
		From:        h.Phase,
		To:          rule.To,
		At:          time.Now().UTC(),
	})
	log.Printf("[LIFECYCLE] ✅ Hackathon %s advanced %s → %s (deadline passed)", h.ID, h.Phase, rule.To)
	return true, nil
}

// ManualTransition applies an organizer/admin-requested phase change. An
// unreachable target fails with ErrInvalidTransition and leaves no trace; a
// concurrent phase change surfaces as ErrStaleTransition.
func (s *LifecycleService) ManualTransition(ctx context.Context, hackathonID string, target models.HackathonPhase, actor models.AuditActor, actorID, reason string) error {
	h, err := s.Events.GetHackathon(ctx, hackathonID)
	if err != nil {
		return err
	}
	if h.Phase.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, h.Phase)
	}
	if next, ok := manualTransitions[h.Phase]; !ok || next != target {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, h.Phase, target)
	}

	applied, err := s.Events.UpdateHackathonPhase(ctx, h.ID, h.Phase, target)
	if err != nil {
		return err
	}
	if !applied {
		return ErrStaleTransition
	}

	s.Audits.Append(ctx, models.AuditLogEntry{
		HackathonID: h.ID,
		Action:      models.AuditManualTransition,
		FromState:   string(h.Phase),
		ToState:     string(target),
		Reason:      reason,
		Actor:       actor,
		ActorID:     actorID,
	})
	s.Bus.Publish(PhaseChange{
		HackathonID: h.ID,
		From:        h.Phase,
		To:          target,
		At:          time.Now().UTC(),
	})
	log.Printf("[LIFECYCLE] ✅ Hackathon %s advanced %s → %s by %s %s", h.ID, h.Phase, target, actor, actorID)
	return nil
}
