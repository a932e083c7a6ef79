package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kennangle/studio-insights-api/internal/models"
)

// StudentRepository manages persistence for imported studio members.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// UpsertBySourceID creates or updates a student keyed by the source client
// id. Existing rows get name/contact/status/join-date refreshed in place.
// Returns true when a new row was created.
func (r *StudentRepository) UpsertBySourceID(ctx context.Context, student *models.Student) (bool, error) {
	if student.SourceClientID == nil || *student.SourceClientID == "" {
		return false, fmt.Errorf("upsert student: source client id is required")
	}
	now := time.Now().UTC()
	student.UpdatedAt = now

	const update = `UPDATE students SET first_name = :first_name, last_name = :last_name, email = :email, phone = :phone, status = :status, joined_at = :joined_at, updated_at = :updated_at
WHERE organization_id = :organization_id AND source_client_id = :source_client_id`
	res, err := r.db.NamedExecContext(ctx, update, student)
	if err != nil {
		return false, fmt.Errorf("update student: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update student rows: %w", err)
	}
	if affected > 0 {
		return false, nil
	}

	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	student.CreatedAt = now
	const insert = `INSERT INTO students (id, organization_id, source_client_id, first_name, last_name, email, phone, status, joined_at, created_at, updated_at)
VALUES (:id, :organization_id, :source_client_id, :first_name, :last_name, :email, :phone, :status, :joined_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, insert, student); err != nil {
		return false, fmt.Errorf("create student: %w", err)
	}
	return true, nil
}

// SourceIDIndex returns a source-client-id to local-id map for every student
// in the organization. Built once per import run and treated as a read-only
// snapshot afterwards.
func (r *StudentRepository) SourceIDIndex(ctx context.Context, organizationID string) (map[string]string, error) {
	const query = `SELECT id, source_client_id FROM students
WHERE organization_id = $1 AND source_client_id IS NOT NULL`
	rows := []struct {
		ID             string `db:"id"`
		SourceClientID string `db:"source_client_id"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, organizationID); err != nil {
		return nil, fmt.Errorf("index students by source id: %w", err)
	}
	index := make(map[string]string, len(rows))
	for _, row := range rows {
		index[row.SourceClientID] = row.ID
	}
	return index, nil
}
