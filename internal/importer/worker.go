package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kennangle/studio-insights-api/internal/mindbody"
	"github.com/kennangle/studio-insights-api/internal/models"
	"github.com/kennangle/studio-insights-api/internal/repository"
	"github.com/kennangle/studio-insights-api/pkg/config"
	"github.com/kennangle/studio-insights-api/pkg/jobs"
)

// errInterrupted signals that a pause or cancel was observed at a page
// boundary. The job row already carries the requested status.
var errInterrupted = errors.New("import interrupted")

// stage binds a data type to its page importer. Stages always run in the
// fixed clients, classes, visits, sales order; the later stages match
// against rows the earlier ones wrote.
type stage struct {
	dataType     models.DataType
	needsLookups bool
	run          func(ctx context.Context, job *models.ImportJob, offset int, lk *Lookups) (PageResult, error)
}

// Worker drains the import queue one job at a time. It owns the job
// lifecycle while a job runs: marking it running, checkpointing after every
// page, heartbeating, and recording the final status.
type Worker struct {
	jobsRepo jobStore
	students studentStore
	classes  classStore
	api      sourceClient
	quota    quotaStore
	metrics  Metrics
	logger   *zap.Logger
	cfg      config.ImportConfig
	queue    *jobs.Queue

	clientsImp *ClientImporter
	classesImp *ClassImporter
	visitsImp  *VisitImporter
	salesImp   *SalesImporter
}

// NewWorker wires the pipeline together.
func NewWorker(
	jobsRepo jobStore,
	students studentStore,
	classes classStore,
	attendance attendanceStore,
	revenue revenueStore,
	skipped skippedStore,
	api sourceClient,
	quota quotaStore,
	metrics Metrics,
	cfg config.ImportConfig,
	logger *zap.Logger,
) *Worker {
	w := &Worker{
		jobsRepo:   jobsRepo,
		students:   students,
		classes:    classes,
		api:        api,
		quota:      quota,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
		clientsImp: NewClientImporter(api, students, skipped, logger),
		classesImp: NewClassImporter(api, classes, logger),
		visitsImp:  NewVisitImporter(api, attendance, skipped, logger),
		salesImp:   NewSalesImporter(api, revenue, skipped, logger),
	}
	w.queue = jobs.NewQueue("imports", w.handle, jobs.QueueConfig{
		Workers:    1,
		BufferSize: cfg.QueueSize,
		MaxRetries: 0,
		Logger:     logger,
	})
	return w
}

// Start launches the single queue drainer.
func (w *Worker) Start(ctx context.Context) {
	w.queue.Start(ctx)
}

// Stop waits for the in-flight job to reach its next page boundary.
func (w *Worker) Stop() {
	w.queue.Stop()
}

// Enqueue schedules a job for processing.
func (w *Worker) Enqueue(jobID string) error {
	return w.queue.Enqueue(jobs.Job{ID: jobID, Type: "import"})
}

// Recover re-enqueues jobs a previous process left behind. The queue lives
// in memory, so pending jobs vanish from it on restart, and a job still
// marked running was cut off by shutdown or a crash. Running jobs go back
// to pending so processJob picks them up from the persisted checkpoint.
func (w *Worker) Recover(ctx context.Context) error {
	interrupted, err := w.jobsRepo.ListInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("list interrupted jobs: %w", err)
	}
	for i := range interrupted {
		job := &interrupted[i]
		if job.Status == models.ImportStatusRunning {
			pending := models.ImportStatusPending
			if err := w.jobsRepo.Update(ctx, job.ID, repository.UpdateImportJobParams{Status: &pending}); err != nil {
				w.logger.Error("failed to reset interrupted job",
					zap.String("job_id", job.ID), zap.Error(err))
				continue
			}
		}
		if err := w.Enqueue(job.ID); err != nil {
			w.logger.Error("failed to re-enqueue interrupted job",
				zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		w.logger.Info("recovered interrupted import job",
			zap.String("job_id", job.ID),
			zap.String("organization_id", job.OrganizationID),
			zap.Int("checkpoint_offset", job.CurrentOffset))
	}
	return nil
}

// handle adapts queue delivery to job processing. Domain failures are
// persisted on the job row, not surfaced to the queue; a queue retry of a
// failed import would bypass the explicit resume flow.
func (w *Worker) handle(ctx context.Context, job jobs.Job) error {
	w.processJob(ctx, job.ID)
	return nil
}

func (w *Worker) processJob(ctx context.Context, jobID string) {
	log := w.logger.With(zap.String("job_id", jobID))

	job, err := w.jobsRepo.GetByID(ctx, jobID)
	if err != nil {
		log.Error("failed to load import job", zap.Error(err))
		return
	}
	if job.Status != models.ImportStatusPending {
		// A stale queue entry; the job was paused or cancelled before the
		// worker got to it.
		log.Info("skipping job not in pending state", zap.String("status", string(job.Status)))
		return
	}

	w.api.ResetCallCount()

	progress := job.Progress
	now := time.Now().UTC()
	if progress.ImportStartTime == nil {
		progress.ImportStartTime = &now
	}
	running := models.ImportStatusRunning
	empty := ""
	err = w.jobsRepo.Update(ctx, job.ID, repository.UpdateImportJobParams{
		Status:        &running,
		Progress:      &progress,
		HeartbeatAt:   &now,
		ClearPausedAt: true,
		ErrorMessage:  &empty,
	})
	if err != nil {
		log.Error("failed to mark job running", zap.Error(err))
		return
	}
	w.observeTransition(models.ImportStatusRunning)
	log.Info("import started",
		zap.Strings("data_types", job.DataTypes),
		zap.Time("start_date", job.StartDate),
		zap.Time("end_date", job.EndDate))

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	go w.heartbeatLoop(hbCtx, job.ID)

	activeType, runErr := w.runStages(ctx, job, &progress)
	stopHeartbeat()
	w.flushAPIUsage(job.OrganizationID)

	switch {
	case runErr == nil:
		w.finishJob(job.ID, &progress, log)
	case errors.Is(runErr, errInterrupted):
		// Pause or cancel already recorded by the control endpoint; just
		// persist the counters accumulated so far.
		w.persistFinal(job.ID, repository.UpdateImportJobParams{Progress: &progress}, log)
		log.Info("import interrupted at page boundary")
	case errors.Is(runErr, context.Canceled):
		// Process shutdown. The job keeps its running status and resumes
		// from the checkpoint after restart; a stale transient error would
		// only confuse the status endpoint.
		w.persistFinal(job.ID, repository.UpdateImportJobParams{Progress: &progress, ErrorMessage: &empty}, log)
		log.Info("import interrupted by shutdown, checkpoint preserved")
	default:
		w.failJob(job.ID, activeType, runErr, &progress, log)
	}
}

// runStages walks the selected data types in order, importing page by page.
// Returns the data type active when an error occurred.
func (w *Worker) runStages(ctx context.Context, job *models.ImportJob, progress *models.ImportProgress) (models.DataType, error) {
	var lk *Lookups
	for _, st := range w.stages(job) {
		dp := progress.ForType(st.dataType)
		if dp.Completed {
			continue
		}

		offset := dp.Current
		if job.CurrentDataType != nil && *job.CurrentDataType == string(st.dataType) && job.CurrentOffset > offset {
			offset = job.CurrentOffset
		}

		if st.needsLookups && lk == nil {
			var err error
			lk, err = buildLookups(ctx, job.OrganizationID, w.students, w.classes)
			if err != nil {
				return st.dataType, err
			}
		}

		for {
			fresh, err := w.jobsRepo.GetByID(ctx, job.ID)
			if err != nil {
				return st.dataType, fmt.Errorf("reload job: %w", err)
			}
			if fresh.Status == models.ImportStatusPaused || fresh.Status == models.ImportStatusCancelled {
				return st.dataType, errInterrupted
			}

			res, err := st.run(ctx, job, offset, lk)
			if err != nil {
				return st.dataType, err
			}

			dp.Imported += res.Imported
			dp.Updated += res.Updated
			dp.Skipped += res.Skipped
			dp.Total = res.Total
			dp.Current = res.NextOffset
			dp.Completed = res.Completed
			progress.APICallCount = int(w.api.CallCount())
			if w.metrics != nil {
				w.metrics.ObserveImportPage(string(st.dataType), res.Imported, res.Updated, res.Skipped)
			}

			// Checkpoint before fetching the next page so a crash resumes
			// here instead of re-importing the whole data type.
			current := string(st.dataType)
			nextOffset := res.NextOffset
			err = w.jobsRepo.Update(ctx, job.ID, repository.UpdateImportJobParams{
				Progress:        progress,
				CurrentDataType: &current,
				CurrentOffset:   &nextOffset,
			})
			if err != nil {
				return st.dataType, fmt.Errorf("persist checkpoint: %w", err)
			}

			offset = res.NextOffset
			if res.Completed {
				break
			}
		}
	}
	return "", nil
}

func (w *Worker) stages(job *models.ImportJob) []stage {
	all := []stage{
		{dataType: models.DataTypeClients, run: w.clientsImp.ImportPage},
		{dataType: models.DataTypeClasses, run: w.classesImp.ImportPage},
		{dataType: models.DataTypeVisits, needsLookups: true, run: w.visitsImp.ImportPage},
		{dataType: models.DataTypeSales, needsLookups: true, run: w.salesImp.ImportPage},
	}
	selected := make(map[models.DataType]bool)
	for _, dt := range job.SelectedTypes() {
		selected[dt] = true
	}
	out := make([]stage, 0, len(all))
	for _, st := range all {
		if selected[st.dataType] {
			out = append(out, st)
		}
	}
	return out
}

func (w *Worker) finishJob(jobID string, progress *models.ImportProgress, log *zap.Logger) {
	completed := models.ImportStatusCompleted
	clearType := ""
	empty := ""
	w.persistFinal(jobID, repository.UpdateImportJobParams{
		Status:          &completed,
		Progress:        progress,
		CurrentDataType: &clearType,
		ErrorMessage:    &empty,
	}, log)
	w.observeTransition(models.ImportStatusCompleted)
	log.Info("import completed", zap.Int("api_calls", progress.APICallCount))
}

func (w *Worker) failJob(jobID string, dt models.DataType, runErr error, progress *models.ImportProgress, log *zap.Logger) {
	msg := failureMessage(dt, runErr)
	failed := models.ImportStatusFailed
	w.persistFinal(jobID, repository.UpdateImportJobParams{
		Status:       &failed,
		Progress:     progress,
		ErrorMessage: &msg,
	}, log)
	w.observeTransition(models.ImportStatusFailed)
	log.Error("import failed", zap.String("data_type", string(dt)), zap.Error(runErr))
}

// persistFinal writes end-of-run state on a fresh context; the run context
// may already be cancelled when shutting down.
func (w *Worker) persistFinal(jobID string, params repository.UpdateImportJobParams, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.jobsRepo.Update(ctx, jobID, params); err != nil {
		log.Error("failed to persist final job state", zap.Error(err))
	}
}

func (w *Worker) heartbeatLoop(ctx context.Context, jobID string) {
	interval := w.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.jobsRepo.Ping(ctx); err != nil {
				w.logger.Warn("heartbeat store probe failed", zap.String("job_id", jobID), zap.Error(err))
				continue
			}
			if err := w.jobsRepo.UpdateHeartbeat(ctx, jobID); err != nil {
				w.logger.Warn("failed to record heartbeat", zap.String("job_id", jobID), zap.Error(err))
			}
		}
	}
}

func (w *Worker) flushAPIUsage(organizationID string) {
	calls := w.api.CallCount()
	if calls == 0 {
		return
	}
	if w.metrics != nil {
		w.metrics.AddSourceAPICalls(calls)
	}
	if w.quota == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := w.quota.AddCalls(ctx, organizationID, calls); err != nil {
		w.logger.Warn("failed to record api quota usage", zap.Error(err))
	}
}

func (w *Worker) observeTransition(status models.ImportStatus) {
	if w.metrics != nil {
		w.metrics.ObserveJobTransition(string(status))
	}
}

// failureMessage builds the operator-facing error stored on a failed job:
// which data type broke, the underlying error, and a recovery hint keyed on
// the failure classification.
func failureMessage(dt models.DataType, err error) string {
	msg := fmt.Sprintf("%s import failed: %v", dt, err)
	var hint string
	switch mindbody.KindOf(err) {
	case mindbody.KindTimeout:
		hint = "The request timed out. Resume the import to continue from the last checkpoint."
	case mindbody.KindRateLimit:
		hint = "The source API rate limit was reached. Wait a few minutes before resuming."
	case mindbody.KindAuth:
		hint = "Authentication with the source API failed. Check the connection credentials."
	default:
		if strings.Contains(strings.ToLower(err.Error()), "memory") {
			hint = "The date range may be too large. Retry with a smaller range."
		}
	}
	if hint != "" {
		msg += " " + hint
	}
	return msg
}
