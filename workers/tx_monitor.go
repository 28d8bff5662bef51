package workers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"hackathon-payout-system/models"
	"hackathon-payout-system/services"
	"hackathon-payout-system/storage"
)

// TransactionMonitor polls the ledger for every submitted transaction until
// it confirms, fails permanently, or exhausts its retry budget. Each watch
// runs in its own goroutine; cancelling a job upstream never stops a watch
// already started, because submitted transactions are not retractable.
type TransactionMonitor struct {
	Jobs   storage.JobStore
	Audits *services.AuditService
	Ledger LedgerClient

	// PollInterval is the base delay between receipt polls; retries back off
	// exponentially from it, plus jitter.
	PollInterval time.Duration
	// MaxAttempts bounds receipt polls per transaction before giving up.
	MaxAttempts int

	mu      sync.Mutex
	rootCtx context.Context
	wg      sync.WaitGroup
}

const maxBackoff = 2 * time.Minute

func NewTransactionMonitor(jobs storage.JobStore, audits *services.AuditService, ledger LedgerClient, pollInterval time.Duration, maxAttempts int) *TransactionMonitor {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &TransactionMonitor{
		Jobs:         jobs,
		Audits:       audits,
		Ledger:       ledger,
		PollInterval: pollInterval,
		MaxAttempts:  maxAttempts,
		rootCtx:      context.Background(),
	}
}

// Start binds every subsequent watch to ctx, which should span the process
// lifetime, not a request. A request-scoped context would be recycled while
// the watch is still polling.
func (m *TransactionMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	m.rootCtx = ctx
	m.mu.Unlock()
}

func (m *TransactionMonitor) runContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rootCtx
}

// Watch starts monitoring one submitted transaction to finality. The watch
// runs against the monitor's own context; the caller's request may end long
// before the transaction confirms.
func (m *TransactionMonitor) Watch(hackathonID, jobID, payoutID, recordID, txHash string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.watch(m.runContext(), hackathonID, jobID, payoutID, recordID, txHash)
	}()
}

// Wait blocks until every active watch has reached finality. Used by
// shutdown and tests.
func (m *TransactionMonitor) Wait() {
	m.wg.Wait()
}

func (m *TransactionMonitor) watch(ctx context.Context, hackathonID, jobID, payoutID, recordID, txHash string) {
	for attempt := 0; ; attempt++ {
		if err := m.sleep(ctx, m.backoff(attempt)); err != nil {
			log.Printf("[MONITOR] ⏹️ Watch for tx %s stopped: %v", txHash, err)
			return
		}

		receipt, err := m.Ledger.GetReceipt(ctx, txHash)
		switch {
		case err == nil && receipt.Status == ReceiptStatusConfirmed:
			m.markConfirmed(ctx, hackathonID, jobID, payoutID, recordID, txHash, attempt)
			return
		case err == nil && receipt.Status == ReceiptStatusFailed:
			m.markFailed(ctx, hackathonID, jobID, payoutID, recordID, txHash, attempt,
				"transaction reverted on ledger")
			return
		case errors.Is(err, ErrLedgerRejected):
			m.markFailed(ctx, hackathonID, jobID, payoutID, recordID, txHash, attempt, err.Error())
			return
		}
		// Still pending, or a transient error: account the retry and go again.
		if err != nil {
			log.Printf("[MONITOR] ⚠️ Receipt poll %d/%d for tx %s failed: %v",
				attempt+1, m.MaxAttempts, txHash, err)
		}
		m.recordRetry(ctx, recordID, attempt+1)

		if attempt+1 >= m.MaxAttempts {
			m.markFailed(ctx, hackathonID, jobID, payoutID, recordID, txHash, attempt+1,
				fmt.Sprintf("confirmation timed out after %d attempts", m.MaxAttempts))
			return
		}
	}
}

// backoff returns the delay before poll number attempt (0-based):
// PollInterval × 2^attempt with jitter, capped.
func (m *TransactionMonitor) backoff(attempt int) time.Duration {
	delay := m.PollInterval << uint(attempt)
	if delay > maxBackoff || delay <= 0 {
		delay = maxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(m.PollInterval)/2 + 1))
	return delay + jitter
}

func (m *TransactionMonitor) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (m *TransactionMonitor) recordRetry(ctx context.Context, recordID string, retries int) {
	record, err := m.Jobs.GetTransaction(ctx, recordID)
	if err != nil {
		log.Printf("[MONITOR] ⚠️ Failed to load transaction %s for retry accounting: %v", recordID, err)
		return
	}
	record.RetryCount = retries
	if err := m.Jobs.SaveTransaction(ctx, record); err != nil {
		log.Printf("[MONITOR] ⚠️ Failed to persist retry count for transaction %s: %v", recordID, err)
	}
}

func (m *TransactionMonitor) markConfirmed(ctx context.Context, hackathonID, jobID, payoutID, recordID, txHash string, attempt int) {
	record, err := m.Jobs.GetTransaction(ctx, recordID)
	if err != nil {
		log.Printf("[MONITOR] ❌ Failed to load transaction %s for confirmation: %v", recordID, err)
		return
	}
	now := time.Now().UTC()
	record.Status = models.TransactionStatusCompleted
	record.ConfirmedAt = &now
	record.RetryCount = attempt
	if err := m.Jobs.SaveTransaction(ctx, record); err != nil {
		log.Printf("[MONITOR] ❌ Failed to persist confirmation for transaction %s: %v", recordID, err)
		return
	}
	if err := m.Jobs.UpdatePayoutStatus(ctx, payoutID, models.PayoutStatusCompleted); err != nil {
		log.Printf("[MONITOR] ❌ Failed to complete payout %s: %v", payoutID, err)
	}

	m.Audits.Append(ctx, models.AuditLogEntry{
		HackathonID: hackathonID,
		Action:      models.AuditTransactionConfirmed,
		FromState:   string(models.TransactionStatusPending),
		ToState:     string(models.TransactionStatusCompleted),
		Reason:      fmt.Sprintf("tx %s confirmed", txHash),
		Actor:       models.ActorSystem,
	})
	log.Printf("[MONITOR] ✅ Tx %s confirmed (payout %s)", txHash, payoutID)

	if err := finalizeJob(ctx, m.Jobs, m.Audits, hackathonID, jobID); err != nil {
		log.Printf("[MONITOR] ⚠️ Finalize check for job %s failed: %v", jobID, err)
	}
}

func (m *TransactionMonitor) markFailed(ctx context.Context, hackathonID, jobID, payoutID, recordID, txHash string, retries int, reason string) {
	record, err := m.Jobs.GetTransaction(ctx, recordID)
	if err != nil {
		log.Printf("[MONITOR] ❌ Failed to load transaction %s for failure: %v", recordID, err)
		return
	}
	record.Status = models.TransactionStatusFailed
	record.RetryCount = retries
	record.LastError = reason
	if err := m.Jobs.SaveTransaction(ctx, record); err != nil {
		log.Printf("[MONITOR] ❌ Failed to persist failure for transaction %s: %v", recordID, err)
		return
	}
	if err := m.Jobs.UpdatePayoutStatus(ctx, payoutID, models.PayoutStatusFailed); err != nil {
		log.Printf("[MONITOR] ❌ Failed to fail payout %s: %v", payoutID, err)
	}

	m.Audits.Append(ctx, models.AuditLogEntry{
		HackathonID: hackathonID,
		Action:      models.AuditTransactionFailed,
		FromState:   string(models.TransactionStatusPending),
		ToState:     string(models.TransactionStatusFailed),
		Reason:      reason,
		Actor:       models.ActorSystem,
	})
	log.Printf("[MONITOR] ❌ Tx %s failed (payout %s): %s — manual intervention required", txHash, payoutID, reason)

	if err := finalizeJob(ctx, m.Jobs, m.Audits, hackathonID, jobID); err != nil {
		log.Printf("[MONITOR] ⚠️ Finalize check for job %s failed: %v", jobID, err)
	}
}

// MonitorStats aggregates transaction outcomes. Derived on demand from the
// stored records, never kept as independent counters.
type MonitorStats struct {
	Pending               int64   `json:"pending"`
	Completed             int64   `json:"completed"`
	Failed                int64   `json:"failed"`
	SuccessRate           float64 `json:"success_rate"`
	AvgConfirmationMillis float64 `json:"avg_confirmation_ms"`
}

func (m *TransactionMonitor) Stats(ctx context.Context) (MonitorStats, error) {
	records, err := m.Jobs.ListTransactions(ctx)
	if err != nil {
		return MonitorStats{}, err
	}

	var stats MonitorStats
	var latencyTotal time.Duration
	for _, record := range records {
		switch record.Status {
		case models.TransactionStatusCompleted:
			stats.Completed++
			if record.ConfirmedAt != nil {
				latencyTotal += record.ConfirmedAt.Sub(record.SubmittedAt)
			}
		case models.TransactionStatusFailed:
			stats.Failed++
		default:
			stats.Pending++
		}
	}
	if settled := stats.Completed + stats.Failed; settled > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(settled)
	}
	if stats.Completed > 0 {
		stats.AvgConfirmationMillis = float64(latencyTotal.Milliseconds()) / float64(stats.Completed)
	}
	return stats, nil
}
