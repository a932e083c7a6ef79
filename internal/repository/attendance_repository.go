package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kennangle/studio-insights-api/internal/models"
)

// AttendanceRepository persists attendance rows with idempotent conflict
// handling on the (organization, student, schedule, attended_on) key.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// CreateIfAbsent inserts an attendance row unless one already exists for the
// same student, schedule, and calendar day. The existing row's id is
// returned on conflict; duplicates never error. Returns true when a new row
// was created.
func (r *AttendanceRepository) CreateIfAbsent(ctx context.Context, rec *models.AttendanceRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	const insert = `INSERT INTO attendance_records (id, organization_id, student_id, schedule_id, attended_on, signed_in_at, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (organization_id, student_id, schedule_id, attended_on) DO NOTHING
RETURNING id`
	err := r.db.GetContext(ctx, &rec.ID, insert,
		rec.ID, rec.OrganizationID, rec.StudentID, rec.ScheduleID, rec.AttendedOn, rec.SignedInAt, rec.Status, rec.CreatedAt)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("create attendance record: %w", err)
	}

	const existing = `SELECT id FROM attendance_records
WHERE organization_id = $1 AND student_id = $2 AND schedule_id = $3 AND attended_on = $4`
	if err := r.db.GetContext(ctx, &rec.ID, existing, rec.OrganizationID, rec.StudentID, rec.ScheduleID, rec.AttendedOn); err != nil {
		return false, fmt.Errorf("load existing attendance record: %w", err)
	}
	return false, nil
}
