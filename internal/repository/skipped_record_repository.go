package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kennangle/studio-insights-api/internal/models"
)

// SkippedRecordRepository stores the audit trail of source records rejected
// during mapping.
type SkippedRecordRepository struct {
	db *sqlx.DB
}

// NewSkippedRecordRepository constructs the repository.
func NewSkippedRecordRepository(db *sqlx.DB) *SkippedRecordRepository {
	return &SkippedRecordRepository{db: db}
}

// Create inserts one audit entry. Entries are write-once.
func (r *SkippedRecordRepository) Create(ctx context.Context, rec *models.SkippedRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO skipped_records (id, import_job_id, organization_id, data_type, source_record_id, reason, raw_payload, created_at)
VALUES (:id, :import_job_id, :organization_id, :data_type, :source_record_id, :reason, :raw_payload, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("create skipped record: %w", err)
	}
	return nil
}

// ListByJob returns a page of skipped records for one import job.
func (r *SkippedRecordRepository) ListByJob(ctx context.Context, jobID string, page, size int) ([]models.SkippedRecord, int, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	const query = `SELECT id, import_job_id, organization_id, data_type, source_record_id, reason, raw_payload, created_at
FROM skipped_records WHERE import_job_id = $1 ORDER BY created_at ASC LIMIT $2 OFFSET $3`
	var records []models.SkippedRecord
	if err := r.db.SelectContext(ctx, &records, query, jobID, size, offset); err != nil {
		return nil, 0, fmt.Errorf("list skipped records: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM skipped_records WHERE import_job_id = $1`, jobID); err != nil {
		return nil, 0, fmt.Errorf("count skipped records: %w", err)
	}
	return records, total, nil
}
