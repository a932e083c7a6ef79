package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kennangle/studio-insights-api/internal/dto"
	"github.com/kennangle/studio-insights-api/internal/models"
	"github.com/kennangle/studio-insights-api/internal/repository"
	"github.com/kennangle/studio-insights-api/pkg/config"
	apperrors "github.com/kennangle/studio-insights-api/pkg/errors"
)

const importDateFormat = "2006-01-02"

type importJobStore interface {
	Create(ctx context.Context, job *models.ImportJob) error
	GetByID(ctx context.Context, id string) (*models.ImportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateImportJobParams) error
	GetActive(ctx context.Context, organizationID string) (*models.ImportJob, error)
	List(ctx context.Context, organizationID string, limit int) ([]models.ImportJob, error)
}

type skippedRecordLister interface {
	ListByJob(ctx context.Context, jobID string, page, size int) ([]models.SkippedRecord, int, error)
}

type quotaReader interface {
	DailyCalls(ctx context.Context, organizationID string) (int64, error)
}

type jobEnqueuer interface {
	Enqueue(jobID string) error
}

// ImportService owns the import job lifecycle: creation, the pause, resume,
// and cancel controls, and status reads. Page-level work happens in the
// worker; the service only moves the job row between states and feeds the
// queue.
type ImportService struct {
	jobs     importJobStore
	skipped  skippedRecordLister
	quota    quotaReader
	queue    jobEnqueuer
	cfg      config.ImportConfig
	validate *validator.Validate
	logger   *zap.Logger
}

// NewImportService constructs the service.
func NewImportService(
	jobs importJobStore,
	skipped skippedRecordLister,
	quota quotaReader,
	queue jobEnqueuer,
	cfg config.ImportConfig,
	logger *zap.Logger,
) *ImportService {
	return &ImportService{
		jobs:     jobs,
		skipped:  skipped,
		quota:    quota,
		queue:    queue,
		cfg:      cfg,
		validate: validator.New(),
		logger:   logger,
	}
}

// Start validates the request, enforces the single-active-import rule, and
// enqueues a new pending job.
func (s *ImportService) Start(ctx context.Context, req dto.StartImportRequest) (*dto.ImportJobResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrValidation.Code, apperrors.ErrValidation.Status, "invalid import request")
	}

	startDate, err := time.ParseInLocation(importDateFormat, req.StartDate, time.UTC)
	if err != nil {
		return nil, apperrors.Clone(apperrors.ErrValidation, fmt.Sprintf("invalid start_date %q, expected YYYY-MM-DD", req.StartDate))
	}
	endDate, err := time.ParseInLocation(importDateFormat, req.EndDate, time.UTC)
	if err != nil {
		return nil, apperrors.Clone(apperrors.ErrValidation, fmt.Sprintf("invalid end_date %q, expected YYYY-MM-DD", req.EndDate))
	}
	if endDate.Before(startDate) {
		return nil, apperrors.Clone(apperrors.ErrValidation, "end_date must not be before start_date")
	}

	dataTypes, err := models.NormalizeDataTypes(req.DataTypes)
	if err != nil {
		return nil, apperrors.Clone(apperrors.ErrValidation, err.Error())
	}
	if len(dataTypes) == 0 {
		dataTypes = models.OrderedDataTypes()
	}

	return s.createAndEnqueue(ctx, req.OrganizationID, dataTypes, startDate, endDate)
}

// StartScheduled creates an import over the configured trailing window.
// Called by the cron scheduler.
func (s *ImportService) StartScheduled(ctx context.Context, organizationID string) error {
	days := s.cfg.DefaultWindowDays
	if days <= 0 {
		days = 7
	}
	endDate := time.Now().UTC().Truncate(24 * time.Hour)
	startDate := endDate.AddDate(0, 0, -days)
	_, err := s.createAndEnqueue(ctx, organizationID, models.OrderedDataTypes(), startDate, endDate)
	return err
}

func (s *ImportService) createAndEnqueue(ctx context.Context, organizationID string, dataTypes []models.DataType, startDate, endDate time.Time) (*dto.ImportJobResponse, error) {
	active, err := s.jobs.GetActive(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, apperrors.Clone(apperrors.ErrImportActive,
			fmt.Sprintf("import %s is already %s for this organization", active.ID, active.Status))
	}

	raw := make([]string, len(dataTypes))
	for i, dt := range dataTypes {
		raw[i] = string(dt)
	}
	job := &models.ImportJob{
		OrganizationID: organizationID,
		DataTypes:      raw,
		StartDate:      startDate,
		EndDate:        endDate,
		Status:         models.ImportStatusPending,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	if err := s.queue.Enqueue(job.ID); err != nil {
		failed := models.ImportStatusFailed
		msg := "failed to enqueue import job"
		if updateErr := s.jobs.Update(ctx, job.ID, repository.UpdateImportJobParams{Status: &failed, ErrorMessage: &msg}); updateErr != nil {
			s.logger.Error("failed to mark unenqueued job", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		return nil, fmt.Errorf("enqueue import job: %w", err)
	}

	s.logger.Info("import job created",
		zap.String("job_id", job.ID),
		zap.String("organization_id", organizationID),
		zap.Strings("data_types", raw))
	return dto.NewImportJobResponse(job), nil
}

// Resume re-queues a paused or failed job. The checkpoint on the row is kept
// so the worker continues where the previous run stopped; any stale error
// message is cleared.
func (s *ImportService) Resume(ctx context.Context, jobID string) (*dto.ImportJobResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.ImportStatusPaused && job.Status != models.ImportStatusFailed {
		return nil, apperrors.Clone(apperrors.ErrInvalidTransition,
			fmt.Sprintf("cannot resume a %s import; only paused or failed imports can be resumed", job.Status))
	}

	pending := models.ImportStatusPending
	empty := ""
	err = s.jobs.Update(ctx, jobID, repository.UpdateImportJobParams{
		Status:        &pending,
		ErrorMessage:  &empty,
		ClearPausedAt: true,
	})
	if err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(jobID); err != nil {
		return nil, fmt.Errorf("enqueue resumed job: %w", err)
	}

	job.Status = pending
	job.ErrorMessage = nil
	job.PausedAt = nil
	s.logger.Info("import job resumed", zap.String("job_id", jobID))
	return dto.NewImportJobResponse(job), nil
}

// Pause requests a stop at the next page boundary. The worker observes the
// status on its next read-through and exits without touching it.
func (s *ImportService) Pause(ctx context.Context, jobID string) (*dto.ImportJobResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.ImportStatusPending && job.Status != models.ImportStatusRunning {
		return nil, apperrors.Clone(apperrors.ErrInvalidTransition,
			fmt.Sprintf("cannot pause a %s import; only pending or running imports can be paused", job.Status))
	}

	paused := models.ImportStatusPaused
	now := time.Now().UTC()
	err = s.jobs.Update(ctx, jobID, repository.UpdateImportJobParams{
		Status:   &paused,
		PausedAt: &now,
	})
	if err != nil {
		return nil, err
	}

	job.Status = paused
	job.PausedAt = &now
	s.logger.Info("import job paused", zap.String("job_id", jobID))
	return dto.NewImportJobResponse(job), nil
}

// Cancel terminally stops a job. Cancelled jobs cannot be resumed; data
// already imported stays.
func (s *ImportService) Cancel(ctx context.Context, jobID string) (*dto.ImportJobResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, apperrors.Clone(apperrors.ErrInvalidTransition,
			fmt.Sprintf("cannot cancel a %s import", job.Status))
	}

	cancelled := models.ImportStatusCancelled
	err = s.jobs.Update(ctx, jobID, repository.UpdateImportJobParams{Status: &cancelled})
	if err != nil {
		return nil, err
	}

	job.Status = cancelled
	s.logger.Info("import job cancelled", zap.String("job_id", jobID))
	return dto.NewImportJobResponse(job), nil
}

// CancelAllActive cancels every in-flight job for an organization. Recovery
// hatch for operators when a job wedges; returns the number cancelled.
func (s *ImportService) CancelAllActive(ctx context.Context, organizationID string) (int, error) {
	cancelled := 0
	// One active job per organization is the invariant; the loop guard
	// covers rows that predate its enforcement.
	for i := 0; i < 10; i++ {
		active, err := s.jobs.GetActive(ctx, organizationID)
		if err != nil {
			return cancelled, err
		}
		if active == nil {
			return cancelled, nil
		}
		status := models.ImportStatusCancelled
		if err := s.jobs.Update(ctx, active.ID, repository.UpdateImportJobParams{Status: &status}); err != nil {
			return cancelled, err
		}
		s.logger.Warn("force-cancelled import job", zap.String("job_id", active.ID))
		cancelled++
	}
	return cancelled, nil
}

// Status returns the live job view with today's API usage for the
// organization.
func (s *ImportService) Status(ctx context.Context, jobID string) (*dto.ImportStatusResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	var apiCalls int64
	if s.quota != nil {
		apiCalls, err = s.quota.DailyCalls(ctx, job.OrganizationID)
		if err != nil {
			s.logger.Warn("failed to read api quota", zap.String("organization_id", job.OrganizationID), zap.Error(err))
			apiCalls = 0
		}
	}
	return dto.NewImportStatusResponse(job, apiCalls), nil
}

// List returns recent jobs for an organization.
func (s *ImportService) List(ctx context.Context, organizationID string, limit int) ([]dto.ImportJobResponse, error) {
	jobs, err := s.jobs.List(ctx, organizationID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]dto.ImportJobResponse, len(jobs))
	for i := range jobs {
		out[i] = *dto.NewImportJobResponse(&jobs[i])
	}
	return out, nil
}

// ListSkipped returns the paged skipped-record audit trail for a job.
func (s *ImportService) ListSkipped(ctx context.Context, jobID string, page, limit int) (*dto.SkippedRecordsResponse, error) {
	if _, err := s.getJob(ctx, jobID); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	records, total, err := s.skipped.ListByJob(ctx, jobID, page, limit)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.SkippedRecord{}
	}
	return &dto.SkippedRecordsResponse{
		Records: records,
		Total:   total,
		Page:    page,
		Limit:   limit,
	}, nil
}

func (s *ImportService) getJob(ctx context.Context, jobID string) (*models.ImportJob, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Clone(apperrors.ErrNotFound, fmt.Sprintf("import job %s not found", jobID))
		}
		return nil, err
	}
	return job, nil
}
