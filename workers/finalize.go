package workers

import (
	"context"
	"fmt"
	"log"

	"hackathon-payout-system/models"
	"hackathon-payout-system/services"
	"hackathon-payout-system/storage"
)

// finalizeJob settles a processing job once no payout is pending: all
// completed means the job completed, otherwise it failed. Called after every
// transaction reaches finality and after the submission pass; the
// compare-and-swap on the job status makes concurrent calls harmless.
func finalizeJob(ctx context.Context, jobs storage.JobStore, audits *services.AuditService, hackathonID, jobID string) error {
	payouts, err := jobs.ListPayouts(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to list payouts for job %s: %w", jobID, err)
	}
	if len(payouts) == 0 {
		return nil
	}

	var completed, failed int
	for _, payout := range payouts {
		switch payout.Status {
		case models.PayoutStatusPending:
			// Still being monitored; a later finality event finalizes.
			return nil
		case models.PayoutStatusCompleted:
			completed++
		case models.PayoutStatusFailed:
			failed++
		}
	}

	target := models.JobStatusCompleted
	lastErr := ""
	reason := fmt.Sprintf("all %d payout(s) confirmed", completed)
	if failed > 0 {
		target = models.JobStatusFailed
		lastErr = fmt.Sprintf("%d of %d payout(s) failed", failed, len(payouts))
		reason = lastErr
	}

	settled, err := jobs.UpdateJobStatus(ctx, jobID, models.JobStatusProcessing, target, lastErr)
	if err != nil {
		return err
	}
	if !settled {
		// Another finality event already settled the job.
		return nil
	}

	audits.Append(ctx, models.AuditLogEntry{
		HackathonID: hackathonID,
		Action:      models.AuditDistributionStep,
		FromState:   string(models.JobStatusProcessing),
		ToState:     string(target),
		Reason:      reason,
		Actor:       models.ActorSystem,
	})
	log.Printf("[DISTRIBUTION] Job %s settled as %s (%s)", jobID, target, reason)
	return nil
}
