// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartSchedulers wires the periodic lifecycle scan and the distribution
// reconciliation sweep. Both jobs run in singleton mode: when a run is still
// in flight the next tick is skipped, not queued.
func StartSchedulers(ctx context.Context, lifecycle *LifecycleService, distribution *DistributionService, scanInterval, reconcileInterval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(scanInterval),
		gocron.NewTask(func() {
			advanced, err := lifecycle.ScanAndAdvance(ctx)
			if err != nil {
				log.Printf("[Scheduler] Lifecycle scan failed: %v", err)
				return
			}
			if advanced > 0 {
				log.Printf("✅ Lifecycle scan advanced %d hackathon(s)", advanced)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(reconcileInterval),
		gocron.NewTask(func() {
			scheduled, err := distribution.ScanForCompletedEvents(ctx)
			if err != nil {
				log.Printf("[Scheduler] Distribution reconcile failed: %v", err)
				return
			}
			if scheduled > 0 {
				log.Printf("✅ Reconcile scheduled %d missed distribution(s)", scheduled)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	return sched, nil
}
