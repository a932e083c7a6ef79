package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kennangle/studio-insights-api/internal/dto"
	"github.com/kennangle/studio-insights-api/internal/models"
	"github.com/kennangle/studio-insights-api/internal/repository"
	"github.com/kennangle/studio-insights-api/pkg/config"
	apperrors "github.com/kennangle/studio-insights-api/pkg/errors"
)

type importJobStoreStub struct {
	jobs      map[string]*models.ImportJob
	active    *models.ImportJob
	created   []*models.ImportJob
	updates   map[string][]repository.UpdateImportJobParams
	createErr error
}

func newImportJobStoreStub() *importJobStoreStub {
	return &importJobStoreStub{
		jobs:    make(map[string]*models.ImportJob),
		updates: make(map[string][]repository.UpdateImportJobParams),
	}
}

func (s *importJobStoreStub) Create(_ context.Context, job *models.ImportJob) error {
	if s.createErr != nil {
		return s.createErr
	}
	if job.ID == "" {
		job.ID = fmt.Sprintf("job-%d", len(s.created)+1)
	}
	if job.Status == "" {
		job.Status = models.ImportStatusPending
	}
	s.created = append(s.created, job)
	s.jobs[job.ID] = job
	return nil
}

func (s *importJobStoreStub) GetByID(_ context.Context, id string) (*models.ImportJob, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("get import job: %w", sql.ErrNoRows)
	}
	copied := *job
	return &copied, nil
}

func (s *importJobStoreStub) Update(_ context.Context, id string, params repository.UpdateImportJobParams) error {
	s.updates[id] = append(s.updates[id], params)
	if job, ok := s.jobs[id]; ok && params.Status != nil {
		job.Status = *params.Status
		if *params.Status == models.ImportStatusCancelled && s.active != nil && s.active.ID == id {
			s.active = nil
		}
	}
	return nil
}

func (s *importJobStoreStub) GetActive(_ context.Context, _ string) (*models.ImportJob, error) {
	return s.active, nil
}

func (s *importJobStoreStub) List(_ context.Context, _ string, _ int) ([]models.ImportJob, error) {
	out := make([]models.ImportJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	return out, nil
}

type skippedListerStub struct {
	records []models.SkippedRecord
}

func (s *skippedListerStub) ListByJob(_ context.Context, _ string, _, _ int) ([]models.SkippedRecord, int, error) {
	return s.records, len(s.records), nil
}

type quotaReaderStub struct {
	calls int64
}

func (s *quotaReaderStub) DailyCalls(_ context.Context, _ string) (int64, error) {
	return s.calls, nil
}

type queueStub struct {
	enqueued []string
	err      error
}

func (s *queueStub) Enqueue(jobID string) error {
	if s.err != nil {
		return s.err
	}
	s.enqueued = append(s.enqueued, jobID)
	return nil
}

func newImportServiceForTest(store *importJobStoreStub, queue *queueStub) *ImportService {
	return NewImportService(store, &skippedListerStub{}, &quotaReaderStub{calls: 42}, queue,
		config.ImportConfig{DefaultWindowDays: 7}, zap.NewNop())
}

func validStartRequest() dto.StartImportRequest {
	return dto.StartImportRequest{
		OrganizationID: "org-1",
		StartDate:      "2026-08-01",
		EndDate:        "2026-08-28",
	}
}

func TestImportServiceStartDefaultsToAllDataTypes(t *testing.T) {
	store := newImportJobStoreStub()
	queue := &queueStub{}
	svc := newImportServiceForTest(store, queue)

	job, err := svc.Start(context.Background(), validStartRequest())
	require.NoError(t, err)
	require.Equal(t, []string{"clients", "classes", "visits", "sales"}, job.DataTypes)
	require.Equal(t, string(models.ImportStatusPending), job.Status)
	require.Equal(t, []string{job.ID}, queue.enqueued)
}

func TestImportServiceStartNormalizesSelection(t *testing.T) {
	store := newImportJobStoreStub()
	svc := newImportServiceForTest(store, &queueStub{})

	req := validStartRequest()
	req.DataTypes = []string{"sales", "clients", "sales"}
	job, err := svc.Start(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, []string{"clients", "sales"}, job.DataTypes)
}

func TestImportServiceStartRejectsSecondActiveImport(t *testing.T) {
	store := newImportJobStoreStub()
	store.active = &models.ImportJob{ID: "job-running", Status: models.ImportStatusRunning}
	svc := newImportServiceForTest(store, &queueStub{})

	_, err := svc.Start(context.Background(), validStartRequest())
	require.Error(t, err)
	require.Equal(t, apperrors.ErrImportActive.Code, apperrors.FromError(err).Code)
	require.Empty(t, store.created)
}

func TestImportServiceStartValidation(t *testing.T) {
	svc := newImportServiceForTest(newImportJobStoreStub(), &queueStub{})

	cases := map[string]dto.StartImportRequest{
		"missing organization": {StartDate: "2026-08-01", EndDate: "2026-08-28"},
		"bad start date":       {OrganizationID: "org-1", StartDate: "01/08/2026", EndDate: "2026-08-28"},
		"end before start":     {OrganizationID: "org-1", StartDate: "2026-08-28", EndDate: "2026-08-01"},
		"unknown data type":    {OrganizationID: "org-1", StartDate: "2026-08-01", EndDate: "2026-08-28", DataTypes: []string{"bookings"}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Start(context.Background(), req)
			require.Error(t, err)
			require.Equal(t, apperrors.ErrValidation.Code, apperrors.FromError(err).Code)
		})
	}
}

func TestImportServiceStartMarksJobFailedWhenEnqueueFails(t *testing.T) {
	store := newImportJobStoreStub()
	queue := &queueStub{err: fmt.Errorf("queue full")}
	svc := newImportServiceForTest(store, queue)

	_, err := svc.Start(context.Background(), validStartRequest())
	require.Error(t, err)
	require.Len(t, store.created, 1)
	require.Equal(t, models.ImportStatusFailed, store.created[0].Status)
}

func TestImportServiceResumeOnlyFromPausedOrFailed(t *testing.T) {
	store := newImportJobStoreStub()
	queue := &queueStub{}
	svc := newImportServiceForTest(store, queue)

	store.jobs["job-1"] = &models.ImportJob{ID: "job-1", Status: models.ImportStatusRunning}
	_, err := svc.Resume(context.Background(), "job-1")
	require.Error(t, err)
	require.Equal(t, apperrors.ErrInvalidTransition.Code, apperrors.FromError(err).Code)

	msg := "sales import failed: timeout"
	store.jobs["job-2"] = &models.ImportJob{ID: "job-2", Status: models.ImportStatusFailed, ErrorMessage: &msg}
	resumed, err := svc.Resume(context.Background(), "job-2")
	require.NoError(t, err)
	require.Equal(t, string(models.ImportStatusPending), resumed.Status)
	require.Equal(t, []string{"job-2"}, queue.enqueued)

	// the stale error is cleared so polling does not show it during the rerun
	params := store.updates["job-2"][0]
	require.NotNil(t, params.ErrorMessage)
	require.Empty(t, *params.ErrorMessage)
	require.True(t, params.ClearPausedAt)
}

func TestImportServicePauseOnlyFromPendingOrRunning(t *testing.T) {
	store := newImportJobStoreStub()
	svc := newImportServiceForTest(store, &queueStub{})

	store.jobs["job-1"] = &models.ImportJob{ID: "job-1", Status: models.ImportStatusRunning}
	paused, err := svc.Pause(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, string(models.ImportStatusPaused), paused.Status)

	store.jobs["job-2"] = &models.ImportJob{ID: "job-2", Status: models.ImportStatusCompleted}
	_, err = svc.Pause(context.Background(), "job-2")
	require.Error(t, err)
	require.Equal(t, apperrors.ErrInvalidTransition.Code, apperrors.FromError(err).Code)
}

func TestImportServiceCancelRejectsTerminalJobs(t *testing.T) {
	store := newImportJobStoreStub()
	svc := newImportServiceForTest(store, &queueStub{})

	store.jobs["job-1"] = &models.ImportJob{ID: "job-1", Status: models.ImportStatusPaused}
	cancelled, err := svc.Cancel(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, string(models.ImportStatusCancelled), cancelled.Status)

	store.jobs["job-2"] = &models.ImportJob{ID: "job-2", Status: models.ImportStatusCancelled}
	_, err = svc.Cancel(context.Background(), "job-2")
	require.Error(t, err)
	require.Equal(t, apperrors.ErrInvalidTransition.Code, apperrors.FromError(err).Code)
}

func TestImportServiceStatusIncludesQuotaUsage(t *testing.T) {
	store := newImportJobStoreStub()
	svc := newImportServiceForTest(store, &queueStub{})

	current := "visits"
	store.jobs["job-1"] = &models.ImportJob{
		ID:              "job-1",
		OrganizationID:  "org-1",
		Status:          models.ImportStatusRunning,
		CurrentDataType: &current,
		CurrentOffset:   120,
	}

	status, err := svc.Status(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, "running", status.Status)
	require.Equal(t, "visits", *status.CurrentDataType)
	require.Equal(t, 120, status.CurrentOffset)
	require.Equal(t, int64(42), status.APICallsToday)
}

func TestImportServiceStatusNotFound(t *testing.T) {
	svc := newImportServiceForTest(newImportJobStoreStub(), &queueStub{})

	_, err := svc.Status(context.Background(), "missing")
	require.Error(t, err)
	require.Equal(t, apperrors.ErrNotFound.Code, apperrors.FromError(err).Code)
}

func TestImportServiceStartScheduledUsesTrailingWindow(t *testing.T) {
	store := newImportJobStoreStub()
	queue := &queueStub{}
	svc := newImportServiceForTest(store, queue)

	require.NoError(t, svc.StartScheduled(context.Background(), "org-1"))
	require.Len(t, store.created, 1)
	job := store.created[0]
	require.Equal(t, 7, int(job.EndDate.Sub(job.StartDate).Hours()/24))
	require.Len(t, queue.enqueued, 1)
}

func TestImportServiceCancelAllActive(t *testing.T) {
	store := newImportJobStoreStub()
	svc := newImportServiceForTest(store, &queueStub{})

	active := &models.ImportJob{ID: "job-1", Status: models.ImportStatusRunning}
	store.jobs["job-1"] = active
	store.active = active

	count, err := svc.CancelAllActive(context.Background(), "org-1")
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, models.ImportStatusCancelled, store.jobs["job-1"].Status)
}

func TestImportServiceStartScheduledDates(t *testing.T) {
	store := newImportJobStoreStub()
	svc := newImportServiceForTest(store, &queueStub{})

	require.NoError(t, svc.StartScheduled(context.Background(), "org-1"))
	job := store.created[0]
	require.True(t, job.EndDate.After(job.StartDate))
	require.Equal(t, time.UTC, job.StartDate.Location())
}
