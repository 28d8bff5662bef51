package workers

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"hackathon-payout-system/models"
	"hackathon-payout-system/services"
	"hackathon-payout-system/storage"

	"github.com/google/uuid"
)

// DefaultPrizeCurve splits the pool 50/30/20 across the top three ranks.
var DefaultPrizeCurve = []float64{50, 30, 20}

// roundingTolerance absorbs float error when checking payouts against the
// locked prize pool.
const roundingTolerance = 1e-6

// DistributionWorker executes one distribution job: computes winner payouts,
// submits one ledger transaction per payout, and hands each transaction to
// the monitor. Sibling payouts proceed independently; one failed submission
// never aborts the job.
type DistributionWorker struct {
	Events  storage.EventStore
	Jobs    storage.JobStore
	Audits  *services.AuditService
	Ledger  LedgerClient
	Monitor *TransactionMonitor

	// Curve holds the percentage of the pool per rank, best rank first.
	Curve []float64
	// Concurrency bounds in-flight ledger submissions, sized to the ledger's
	// rate limits.
	Concurrency int
}

func NewDistributionWorker(events storage.EventStore, jobs storage.JobStore, audits *services.AuditService, ledger LedgerClient, monitor *TransactionMonitor, curve []float64, concurrency int) *DistributionWorker {
	if len(curve) == 0 {
		curve = DefaultPrizeCurve
	}
	if concurrency <= 0 {
		concurrency = 3
	}
	return &DistributionWorker{
		Events:      events,
		Jobs:        jobs,
		Audits:      audits,
		Ledger:      ledger,
		Monitor:     monitor,
		Curve:       curve,
		Concurrency: concurrency,
	}
}

// Run moves the job from scheduled to processing and pays out every winner.
// A job no longer in scheduled status (cancelled, or claimed by a concurrent
// runner) is left untouched.
func (w *DistributionWorker) Run(ctx context.Context, jobID string) error {
	job, err := w.Jobs.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	claimed, err := w.Jobs.UpdateJobStatus(ctx, jobID, models.JobStatusScheduled, models.JobStatusProcessing, "")
	if err != nil {
		return err
	}
	if !claimed {
		log.Printf("[DISTRIBUTION] Job %s is no longer scheduled, skipping run", jobID)
		return nil
	}

	w.Audits.Append(ctx, models.AuditLogEntry{
		HackathonID: job.HackathonID,
		Action:      models.AuditDistributionStep,
		FromState:   string(models.JobStatusScheduled),
		ToState:     string(models.JobStatusProcessing),
		Reason:      "payout processing started",
		Actor:       models.ActorSystem,
	})

	h, err := w.Events.GetHackathon(ctx, job.HackathonID)
	if err != nil {
		return w.abortJob(ctx, job, fmt.Errorf("failed to load hackathon: %w", err))
	}
	participants, err := w.Events.GetRankedParticipants(ctx, job.HackathonID)
	if err != nil {
		return w.abortJob(ctx, job, fmt.Errorf("failed to load ranked participants: %w", err))
	}

	payouts, err := ComputePayouts(jobID, h, w.Curve, participants)
	if err != nil {
		return w.abortJob(ctx, job, err)
	}

	// A re-triggered distribution after a failed job must only retry the
	// winners that were never paid; earlier confirmed transfers are final.
	paid, err := w.alreadyPaidRecipients(ctx, job.HackathonID)
	if err != nil {
		return w.abortJob(ctx, job, fmt.Errorf("failed to load prior payouts: %w", err))
	}
	remaining := make([]models.WinnerPayout, 0, len(payouts))
	for _, payout := range payouts {
		if paid[payout.RecipientID] {
			log.Printf("[DISTRIBUTION] Rank %d already paid by an earlier job, skipping resubmission", payout.Position)
			continue
		}
		remaining = append(remaining, payout)
	}
	if len(remaining) == 0 {
		if _, err := w.Jobs.UpdateJobStatus(ctx, jobID, models.JobStatusProcessing, models.JobStatusCompleted, ""); err != nil {
			return err
		}
		w.Audits.Append(ctx, models.AuditLogEntry{
			HackathonID: job.HackathonID,
			Action:      models.AuditDistributionStep,
			FromState:   string(models.JobStatusProcessing),
			ToState:     string(models.JobStatusCompleted),
			Reason:      "every winner already paid by earlier jobs",
			Actor:       models.ActorSystem,
		})
		log.Printf("[DISTRIBUTION] Job %s has nothing left to pay, settling as completed", jobID)
		return nil
	}
	payouts = remaining

	for i := range payouts {
		if err := w.Jobs.CreatePayout(ctx, &payouts[i]); err != nil {
			return w.abortJob(ctx, job, fmt.Errorf("failed to persist payout: %w", err))
		}
	}

	sem := make(chan struct{}, w.Concurrency)
	var wg sync.WaitGroup
	for i := range payouts {
		payout := payouts[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			w.submitPayout(ctx, h, payout)
		}()
	}
	wg.Wait()

	// If every submission failed immediately there is nothing left to
	// monitor, so settle the job status here.
	return finalizeJob(ctx, w.Jobs, w.Audits, job.HackathonID, jobID)
}

// submitPayout submits one ledger transaction and hands it to the monitor.
// Submission failure is contained to this payout.
func (w *DistributionWorker) submitPayout(ctx context.Context, h *models.Hackathon, payout models.WinnerPayout) {
	record := models.TransactionRecord{
		ID:          uuid.NewString(),
		PayoutID:    payout.ID,
		JobID:       payout.JobID,
		Status:      models.TransactionStatusPending,
		SubmittedAt: time.Now().UTC(),
	}

	txHash, err := w.Ledger.SubmitTransaction(ctx, payout.WalletAddress, payout.Amount, h.PrizeToken)
	if err != nil {
		record.Status = models.TransactionStatusFailed
		record.LastError = err.Error()
		if storeErr := w.Jobs.CreateTransaction(ctx, &record); storeErr != nil {
			log.Printf("[DISTRIBUTION] ❌ Failed to persist failed submission for payout %s: %v", payout.ID, storeErr)
		}
		if storeErr := w.Jobs.UpdatePayoutStatus(ctx, payout.ID, models.PayoutStatusFailed); storeErr != nil {
			log.Printf("[DISTRIBUTION] ❌ Failed to fail payout %s: %v", payout.ID, storeErr)
		}
		w.Audits.Append(ctx, models.AuditLogEntry{
			HackathonID: payout.HackathonID,
			Action:      models.AuditTransactionFailed,
			ToState:     string(models.TransactionStatusFailed),
			Reason:      fmt.Sprintf("submission for rank %d failed: %v", payout.Position, err),
			Actor:       models.ActorSystem,
		})
		log.Printf("[DISTRIBUTION] ❌ Submission failed for payout %s (rank %d): %v", payout.ID, payout.Position, err)
		return
	}

	record.TxHash = txHash
	if err := w.Jobs.CreateTransaction(ctx, &record); err != nil {
		log.Printf("[DISTRIBUTION] ❌ Failed to persist transaction %s for payout %s: %v", txHash, payout.ID, err)
		return
	}

	w.Audits.Append(ctx, models.AuditLogEntry{
		HackathonID: payout.HackathonID,
		Action:      models.AuditTransactionSubmitted,
		ToState:     string(models.TransactionStatusPending),
		Reason:      fmt.Sprintf("tx %s submitted for rank %d (%.2f %s)", txHash, payout.Position, payout.Amount, h.PrizeToken),
		Actor:       models.ActorSystem,
	})
	log.Printf("[DISTRIBUTION] ✅ Submitted tx %s for payout %s (rank %d)", txHash, payout.ID, payout.Position)

	w.Monitor.Watch(payout.HackathonID, payout.JobID, payout.ID, record.ID, txHash)
}

// alreadyPaidRecipients returns the recipients holding a completed payout from
// any job for the hackathon.
func (w *DistributionWorker) alreadyPaidRecipients(ctx context.Context, hackathonID string) (map[string]bool, error) {
	prior, err := w.Jobs.ListPayoutsByHackathon(ctx, hackathonID)
	if err != nil {
		return nil, err
	}
	paid := make(map[string]bool)
	for _, payout := range prior {
		if payout.Status == models.PayoutStatusCompleted {
			paid[payout.RecipientID] = true
		}
	}
	return paid, nil
}

func (w *DistributionWorker) abortJob(ctx context.Context, job *models.DistributionJob, cause error) error {
	if _, err := w.Jobs.UpdateJobStatus(ctx, job.ID, models.JobStatusProcessing, models.JobStatusFailed, cause.Error()); err != nil {
		log.Printf("[DISTRIBUTION] ❌ Failed to mark job %s failed: %v", job.ID, err)
	}
	w.Audits.Append(ctx, models.AuditLogEntry{
		HackathonID: job.HackathonID,
		Action:      models.AuditDistributionStep,
		FromState:   string(models.JobStatusProcessing),
		ToState:     string(models.JobStatusFailed),
		Reason:      cause.Error(),
		Actor:       models.ActorSystem,
	})
	return cause
}

// ComputePayouts maps the distribution curve onto the ranked participants.
// The curve must sum to at most 100% and the resulting amounts never exceed
// the locked prize pool.
func ComputePayouts(jobID string, h *models.Hackathon, curve []float64, participants []models.RankedParticipant) ([]models.WinnerPayout, error) {
	var curveTotal float64
	for _, pct := range curve {
		if pct <= 0 {
			return nil, fmt.Errorf("prize curve contains a non-positive percentage: %.2f", pct)
		}
		curveTotal += pct
	}
	if curveTotal > 100+roundingTolerance {
		return nil, fmt.Errorf("prize curve sums to %.2f%%, exceeds 100%%", curveTotal)
	}
	if h.PrizePool <= 0 {
		return nil, fmt.Errorf("hackathon %s has no prize pool", h.ID)
	}
	if len(participants) == 0 {
		return nil, fmt.Errorf("hackathon %s has no ranked participants", h.ID)
	}

	winners := len(curve)
	if len(participants) < winners {
		winners = len(participants)
	}

	payouts := make([]models.WinnerPayout, 0, winners)
	var total float64
	for i := 0; i < winners; i++ {
		amount := h.PrizePool * curve[i] / 100
		total += amount
		if total > h.PrizePool+roundingTolerance {
			return nil, fmt.Errorf("payouts would exceed prize pool %.2f", h.PrizePool)
		}
		payouts = append(payouts, models.WinnerPayout{
			ID:            uuid.NewString(),
			JobID:         jobID,
			HackathonID:   h.ID,
			Position:      participants[i].Rank,
			RecipientID:   participants[i].ExternalUserID,
			WalletAddress: participants[i].WalletAddress,
			Amount:        amount,
			Percentage:    curve[i],
			Status:        models.PayoutStatusPending,
		})
	}
	return payouts, nil
}

// ParsePrizeCurve reads a comma-separated percentage list, e.g. "50,30,20".
func ParsePrizeCurve(raw string) ([]float64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("empty prize curve")
	}
	parts := strings.Split(raw, ",")
	curve := make([]float64, 0, len(parts))
	for _, part := range parts {
		pct, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid prize curve entry %q: %w", part, err)
		}
		curve = append(curve, pct)
	}
	return curve, nil
}
