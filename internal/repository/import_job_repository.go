package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kennangle/studio-insights-api/internal/models"
)

const importJobColumns = `id, organization_id, data_types, start_date, end_date, status, progress, current_data_type, current_offset, heartbeat_at, paused_at, error_message, created_at, updated_at`

// ImportJobRepository persists import job rows. The job row is the single
// source of truth for status; every update is patch-style so concurrent
// heartbeat and progress writers never clobber each other.
type ImportJobRepository struct {
	db *sqlx.DB
}

// NewImportJobRepository constructs the repository.
func NewImportJobRepository(db *sqlx.DB) *ImportJobRepository {
	return &ImportJobRepository{db: db}
}

// Create inserts a new job row with generated defaults.
func (r *ImportJobRepository) Create(ctx context.Context, job *models.ImportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ImportStatusPending
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	const query = `INSERT INTO import_jobs (id, organization_id, data_types, start_date, end_date, status, progress, current_data_type, current_offset, heartbeat_at, paused_at, error_message, created_at, updated_at)
VALUES (:id, :organization_id, :data_types, :start_date, :end_date, :status, :progress, :current_data_type, :current_offset, :heartbeat_at, :paused_at, :error_message, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create import job: %w", err)
	}
	return nil
}

// GetByID returns a job row by its identifier.
func (r *ImportJobRepository) GetByID(ctx context.Context, id string) (*models.ImportJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM import_jobs WHERE id = $1`, importJobColumns)
	var job models.ImportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, fmt.Errorf("get import job: %w", err)
	}
	return &job, nil
}

// UpdateImportJobParams defines the mutable fields of a job row. Pointer
// fields left nil are not touched. Empty strings for CurrentDataType and
// ErrorMessage clear the column to NULL.
type UpdateImportJobParams struct {
	Status          *models.ImportStatus
	Progress        *models.ImportProgress
	CurrentDataType *string
	CurrentOffset   *int
	HeartbeatAt     *time.Time
	PausedAt        *time.Time
	ClearPausedAt   bool
	ErrorMessage    *string
}

// Update persists the provided changes for a job row.
func (r *ImportJobRepository) Update(ctx context.Context, id string, params UpdateImportJobParams) error {
	set := make([]string, 0, 8)
	args := make([]interface{}, 0, 9)
	argPos := 1

	add := func(column string, value interface{}) {
		set = append(set, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}

	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.Progress != nil {
		add("progress", *params.Progress)
	}
	if params.CurrentDataType != nil {
		if *params.CurrentDataType == "" {
			add("current_data_type", nil)
		} else {
			add("current_data_type", *params.CurrentDataType)
		}
	}
	if params.CurrentOffset != nil {
		add("current_offset", *params.CurrentOffset)
	}
	if params.HeartbeatAt != nil {
		add("heartbeat_at", *params.HeartbeatAt)
	}
	if params.ClearPausedAt {
		add("paused_at", nil)
	} else if params.PausedAt != nil {
		add("paused_at", *params.PausedAt)
	}
	if params.ErrorMessage != nil {
		if *params.ErrorMessage == "" {
			add("error_message", nil)
		} else {
			add("error_message", *params.ErrorMessage)
		}
	}

	if len(set) == 0 {
		return nil
	}
	add("updated_at", time.Now().UTC())

	query := fmt.Sprintf("UPDATE import_jobs SET %s WHERE id = $%d", strings.Join(set, ", "), argPos)
	args = append(args, id)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update import job: %w", err)
	}
	return nil
}

// GetActive returns the organization's pending, running, or paused job, or
// nil when no import is in flight.
func (r *ImportJobRepository) GetActive(ctx context.Context, organizationID string) (*models.ImportJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM import_jobs
WHERE organization_id = $1 AND status = ANY($2) ORDER BY created_at DESC LIMIT 1`, importJobColumns)
	statuses := make([]string, len(models.ActiveImportStatuses))
	for i, s := range models.ActiveImportStatuses {
		statuses[i] = string(s)
	}
	var job models.ImportJob
	if err := r.db.GetContext(ctx, &job, query, organizationID, pq.Array(statuses)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active import job: %w", err)
	}
	return &job, nil
}

// ListInterrupted returns jobs left pending or running by a previous
// process, oldest first. The queue is in-memory, so these rows are the only
// record of work that was in flight when the process stopped.
func (r *ImportJobRepository) ListInterrupted(ctx context.Context) ([]models.ImportJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM import_jobs
WHERE status = ANY($1) ORDER BY created_at ASC`, importJobColumns)
	statuses := []string{string(models.ImportStatusPending), string(models.ImportStatusRunning)}
	var jobs []models.ImportJob
	if err := r.db.SelectContext(ctx, &jobs, query, pq.Array(statuses)); err != nil {
		return nil, fmt.Errorf("list interrupted import jobs: %w", err)
	}
	return jobs, nil
}

// GetStalled returns running jobs that have heartbeated at least once but
// not within the staleness threshold. Jobs with a null heartbeat are queued
// work, not stalls, and are excluded.
func (r *ImportJobRepository) GetStalled(ctx context.Context, threshold time.Duration) ([]models.ImportJob, error) {
	cutoff := time.Now().UTC().Add(-threshold)
	query := fmt.Sprintf(`SELECT %s FROM import_jobs
WHERE status = $1 AND heartbeat_at IS NOT NULL AND heartbeat_at < $2 ORDER BY heartbeat_at ASC`, importJobColumns)
	var jobs []models.ImportJob
	if err := r.db.SelectContext(ctx, &jobs, query, models.ImportStatusRunning, cutoff); err != nil {
		return nil, fmt.Errorf("list stalled import jobs: %w", err)
	}
	return jobs, nil
}

// UpdateHeartbeat records a liveness signal for a running job.
func (r *ImportJobRepository) UpdateHeartbeat(ctx context.Context, id string) error {
	const query = `UPDATE import_jobs SET heartbeat_at = $2, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("update import job heartbeat: %w", err)
	}
	return nil
}

// List returns the organization's recent jobs, newest first.
func (r *ImportJobRepository) List(ctx context.Context, organizationID string, limit int) ([]models.ImportJob, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM import_jobs WHERE organization_id = $1 ORDER BY created_at DESC LIMIT $2`, importJobColumns)
	var jobs []models.ImportJob
	if err := r.db.SelectContext(ctx, &jobs, query, organizationID, limit); err != nil {
		return nil, fmt.Errorf("list import jobs: %w", err)
	}
	return jobs, nil
}

// Ping verifies store connectivity; used by the heartbeat tick as a
// lightweight probe.
func (r *ImportJobRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
