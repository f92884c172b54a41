package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// JobScheduler manages recurring billing maintenance jobs
type JobScheduler struct {
	scheduler gocron.Scheduler
	sweeper   *SubscriptionSweeper
	exporter  *UsageExporter
	jobs      map[string]gocron.Job
	mu        sync.RWMutex
}

// NewJobScheduler creates a new job scheduler. The exporter may be nil
// when object storage is not configured.
func NewJobScheduler(sweeper *SubscriptionSweeper, exporter *UsageExporter) (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	js := &JobScheduler{
		scheduler: scheduler,
		sweeper:   sweeper,
		exporter:  exporter,
		jobs:      make(map[string]gocron.Job),
	}

	js.registerJobs()

	return js, nil
}

// Start starts the job scheduler
func (js *JobScheduler) Start() error {
	log.Printf("Starting background job scheduler")
	js.scheduler.Start()
	return nil
}

// Stop stops the job scheduler
func (js *JobScheduler) Stop() error {
	log.Printf("Stopping background job scheduler")
	return js.scheduler.Shutdown()
}

// registerJobs registers all background jobs
func (js *JobScheduler) registerJobs() {
	js.mu.Lock()
	defer js.mu.Unlock()

	// Subscription expiry sweep - every 15 minutes
	sweepJob, err := js.scheduler.NewJob(
		gocron.DurationJob(15*time.Minute),
		gocron.NewTask(js.runSweep, context.Background()),
		gocron.WithName("subscription-expiry-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create sweep job: %v", err)
	} else {
		js.jobs["sweep"] = sweepJob
	}

	if js.exporter == nil {
		return
	}

	// Usage export - daily at 02:00
	exportJob, err := js.scheduler.NewJob(
		gocron.CronJob("0 2 * * *", false),
		gocron.NewTask(js.runExport, context.Background()),
		gocron.WithName("usage-export"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create export job: %v", err)
	} else {
		js.jobs["export"] = exportJob
	}
}

func (js *JobScheduler) runSweep(ctx context.Context) {
	result, err := js.sweeper.Sweep(ctx)
	if err != nil {
		log.Printf("Subscription sweep failed: %v", err)
		return
	}
	if result.Expired > 0 || result.Errors > 0 {
		log.Printf("Subscription sweep: scanned=%d expired=%d errors=%d",
			result.Scanned, result.Expired, result.Errors)
	}
}

func (js *JobScheduler) runExport(ctx context.Context) {
	if err := js.exporter.ExportLastDay(ctx); err != nil {
		log.Printf("Usage export failed: %v", err)
	}
}
