package workers

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"hackathon-payout-system/models"
	"hackathon-payout-system/services"
	"hackathon-payout-system/storage"
)

func seedWatchedTransaction(store *storage.MemoryStore, txHash string) (jobID, payoutID, recordID string) {
	jobID, payoutID, recordID = "job-1", "payout-1", "record-1"
	_ = store.CreateJob(context.Background(), &models.DistributionJob{
		ID:          jobID,
		HackathonID: "h1",
		Status:      models.JobStatusProcessing,
	})
	_ = store.CreatePayout(context.Background(), &models.WinnerPayout{
		ID:            payoutID,
		JobID:         jobID,
		HackathonID:   "h1",
		Position:      1,
		WalletAddress: "w1",
		Amount:        500,
		Percentage:    50,
		Status:        models.PayoutStatusPending,
	})
	_ = store.CreateTransaction(context.Background(), &models.TransactionRecord{
		ID:          recordID,
		PayoutID:    payoutID,
		JobID:       jobID,
		TxHash:      txHash,
		Status:      models.TransactionStatusPending,
		SubmittedAt: time.Now().UTC(),
	})
	return jobID, payoutID, recordID
}

func TestWatchConfirmsAfterRetries(t *testing.T) {
	store := storage.NewMemoryStore()
	ledger := newFakeLedger()
	ledger.receipts["0xw1"] = []string{ReceiptStatusPending, ReceiptStatusPending, ReceiptStatusConfirmed}
	monitor := NewTransactionMonitor(store, services.NewAuditService(store), ledger, time.Millisecond, 10)
	jobID, payoutID, recordID := seedWatchedTransaction(store, "0xw1")

	monitor.Watch("h1", jobID, payoutID, recordID, "0xw1")
	monitor.Wait()

	record, err := store.GetTransaction(context.Background(), recordID)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if record.Status != models.TransactionStatusCompleted {
		t.Fatalf("expected %s, got %s (%s)", models.TransactionStatusCompleted, record.Status, record.LastError)
	}
	if record.ConfirmedAt == nil {
		t.Error("expected ConfirmedAt set")
	}
	if record.RetryCount != 2 {
		t.Errorf("expected 2 retries before confirmation, got %d", record.RetryCount)
	}

	job, _ := store.GetJob(context.Background(), jobID)
	if job.Status != models.JobStatusCompleted {
		t.Errorf("expected job %s, got %s", models.JobStatusCompleted, job.Status)
	}
	if len(job.Payouts) != 1 || job.Payouts[0].Status != models.PayoutStatusCompleted {
		t.Errorf("payout not completed: %+v", job.Payouts)
	}
}

func TestWatchExhaustsRetryBudget(t *testing.T) {
	store := storage.NewMemoryStore()
	ledger := newFakeLedger()
	ledger.receipts["0xw1"] = []string{ReceiptStatusPending}
	monitor := NewTransactionMonitor(store, services.NewAuditService(store), ledger, time.Millisecond, 3)
	jobID, payoutID, recordID := seedWatchedTransaction(store, "0xw1")

	monitor.Watch("h1", jobID, payoutID, recordID, "0xw1")
	monitor.Wait()

	record, _ := store.GetTransaction(context.Background(), recordID)
	if record.Status != models.TransactionStatusFailed {
		t.Fatalf("expected %s, got %s", models.TransactionStatusFailed, record.Status)
	}
	if !strings.Contains(record.LastError, "timed out after 3 attempts") {
		t.Errorf("unexpected error: %s", record.LastError)
	}
	if record.RetryCount != 3 {
		t.Errorf("expected retry count 3, got %d", record.RetryCount)
	}

	job, _ := store.GetJob(context.Background(), jobID)
	if job.Status != models.JobStatusFailed {
		t.Errorf("expected job %s, got %s", models.JobStatusFailed, job.Status)
	}

	failures, _ := store.ListAudit(context.Background(), storage.AuditFilter{
		HackathonID: "h1",
		Action:      models.AuditTransactionFailed,
	})
	if len(failures) != 1 {
		t.Errorf("expected 1 failure audit entry, got %d", len(failures))
	}
}

func TestWatchStopsOnPermanentRejection(t *testing.T) {
	store := storage.NewMemoryStore()
	ledger := newFakeLedger()
	ledger.receiptErr["0xw1"] = fmt.Errorf("%w: unknown transaction", ErrLedgerRejected)
	monitor := NewTransactionMonitor(store, services.NewAuditService(store), ledger, time.Millisecond, 10)
	jobID, payoutID, recordID := seedWatchedTransaction(store, "0xw1")

	monitor.Watch("h1", jobID, payoutID, recordID, "0xw1")
	monitor.Wait()

	record, _ := store.GetTransaction(context.Background(), recordID)
	if record.Status != models.TransactionStatusFailed {
		t.Fatalf("expected %s, got %s", models.TransactionStatusFailed, record.Status)
	}
	if !strings.Contains(record.LastError, "ledger rejected") {
		t.Errorf("unexpected error: %s", record.LastError)
	}
	// Permanent rejections never burn the full retry budget.
	if record.RetryCount >= 10 {
		t.Errorf("retried a permanent rejection %d times", record.RetryCount)
	}
}

func TestWatchRevertedTransaction(t *testing.T) {
	store := storage.NewMemoryStore()
	ledger := newFakeLedger()
	ledger.receipts["0xw1"] = []string{ReceiptStatusFailed}
	monitor := NewTransactionMonitor(store, services.NewAuditService(store), ledger, time.Millisecond, 10)
	jobID, payoutID, recordID := seedWatchedTransaction(store, "0xw1")

	monitor.Watch("h1", jobID, payoutID, recordID, "0xw1")
	monitor.Wait()

	record, _ := store.GetTransaction(context.Background(), recordID)
	if record.Status != models.TransactionStatusFailed {
		t.Fatalf("expected %s, got %s", models.TransactionStatusFailed, record.Status)
	}
	if !strings.Contains(record.LastError, "reverted") {
		t.Errorf("unexpected error: %s", record.LastError)
	}
}

func TestWatchSurvivesRequestContext(t *testing.T) {
	ledger := newFakeLedger()
	ledger.receipts["0xw1"] = []string{ReceiptStatusPending, ReceiptStatusConfirmed}
	worker, monitor, store := newWorkerFixture(ledger, nil)
	jobID := seedPayableHackathon(store, "h1", 1000, "w1")

	// A manual run arrives on a request-scoped context that dies as soon as
	// the handler returns. The watch must keep polling regardless.
	reqCtx, cancel := context.WithCancel(context.Background())
	if err := worker.Run(reqCtx, jobID); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	cancel()
	monitor.Wait()

	job, _ := store.GetJob(context.Background(), jobID)
	if job.Status != models.JobStatusCompleted {
		t.Fatalf("expected job %s after the request ended, got %s (%s)", models.JobStatusCompleted, job.Status, job.LastError)
	}
	record, _ := store.GetTransaction(context.Background(), job.Payouts[0].Transaction.ID)
	if record.Status != models.TransactionStatusCompleted {
		t.Fatalf("expected confirmed transaction, got %s", record.Status)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	monitor := NewTransactionMonitor(storage.NewMemoryStore(), services.NewAuditService(storage.NewMemoryStore()), newFakeLedger(), time.Second, 10)

	prev := time.Duration(0)
	for attempt := 0; attempt < 6; attempt++ {
		delay := monitor.backoff(attempt)
		if delay < prev {
			t.Fatalf("backoff shrank at attempt %d: %s < %s", attempt, delay, prev)
		}
		prev = delay
	}
	// Far beyond the cap, including jitter headroom.
	if delay := monitor.backoff(30); delay > maxBackoff+time.Second {
		t.Fatalf("backoff exceeded cap: %s", delay)
	}
}

func TestStatsDerivedFromRecords(t *testing.T) {
	store := storage.NewMemoryStore()
	monitor := NewTransactionMonitor(store, services.NewAuditService(store), newFakeLedger(), time.Millisecond, 10)

	submitted := time.Now().UTC().Add(-time.Minute)
	confirmed := submitted.Add(10 * time.Second)
	records := []models.TransactionRecord{
		{ID: "t1", PayoutID: "p1", JobID: "j1", Status: models.TransactionStatusCompleted, SubmittedAt: submitted, ConfirmedAt: &confirmed},
		{ID: "t2", PayoutID: "p2", JobID: "j1", Status: models.TransactionStatusCompleted, SubmittedAt: submitted, ConfirmedAt: &confirmed},
		{ID: "t3", PayoutID: "p3", JobID: "j1", Status: models.TransactionStatusFailed, SubmittedAt: submitted},
		{ID: "t4", PayoutID: "p4", JobID: "j2", Status: models.TransactionStatusPending, SubmittedAt: submitted},
	}
	for i := range records {
		if err := store.CreateTransaction(context.Background(), &records[i]); err != nil {
			t.Fatalf("CreateTransaction failed: %v", err)
		}
	}

	stats, err := monitor.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Completed != 2 || stats.Failed != 1 || stats.Pending != 1 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if want := 2.0 / 3.0; stats.SuccessRate != want {
		t.Errorf("expected success rate %.4f, got %.4f", want, stats.SuccessRate)
	}
	if stats.AvgConfirmationMillis != 10000 {
		t.Errorf("expected avg confirmation 10000ms, got %.0f", stats.AvgConfirmationMillis)
	}
}
