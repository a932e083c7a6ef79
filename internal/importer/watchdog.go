package importer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kennangle/studio-insights-api/internal/models"
	"github.com/kennangle/studio-insights-api/internal/repository"
)

type stalledJobStore interface {
	GetStalled(ctx context.Context, threshold time.Duration) ([]models.ImportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateImportJobParams) error
}

// Watchdog sweeps for running jobs whose worker stopped heartbeating and
// marks them failed so they become resumable. Jobs that never heartbeated
// are still queued and are left alone.
type Watchdog struct {
	jobs      stalledJobStore
	metrics   Metrics
	logger    *zap.Logger
	interval  time.Duration
	threshold time.Duration
}

// NewWatchdog constructs the watchdog.
func NewWatchdog(jobsRepo stalledJobStore, metrics Metrics, interval, threshold time.Duration, logger *zap.Logger) *Watchdog {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	if threshold <= 0 {
		threshold = 10 * time.Minute
	}
	return &Watchdog{
		jobs:      jobsRepo,
		metrics:   metrics,
		logger:    logger,
		interval:  interval,
		threshold: threshold,
	}
}

// Start launches the periodic sweep until the context is cancelled.
func (w *Watchdog) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.sweep(ctx)
			}
		}
	}()
}

func (w *Watchdog) sweep(ctx context.Context) {
	stalled, err := w.jobs.GetStalled(ctx, w.threshold)
	if err != nil {
		w.logger.Warn("watchdog sweep failed", zap.Error(err))
		return
	}
	for i := range stalled {
		job := &stalled[i]
		minutes := int(w.threshold.Minutes())
		msg := fmt.Sprintf(
			"Import stalled: no heartbeat for over %d minutes. The worker likely crashed or lost connectivity; resume the import to continue from the last checkpoint.",
			minutes)
		failed := models.ImportStatusFailed
		err := w.jobs.Update(ctx, job.ID, repository.UpdateImportJobParams{
			Status:       &failed,
			ErrorMessage: &msg,
		})
		if err != nil {
			w.logger.Error("failed to mark stalled job", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		if w.metrics != nil {
			w.metrics.ObserveJobTransition(string(models.ImportStatusFailed))
		}
		w.logger.Warn("marked stalled import job as failed",
			zap.String("job_id", job.ID),
			zap.String("organization_id", job.OrganizationID),
			zap.Timep("last_heartbeat", job.HeartbeatAt))
	}
}
