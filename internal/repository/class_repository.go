package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kennangle/studio-insights-api/internal/models"
)

// ClassRepository persists class definitions and their scheduled occurrences.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a ClassRepository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// UpsertDefinition creates or refreshes a class definition keyed by its
// source class id, filling in the local id on the way out.
func (r *ClassRepository) UpsertDefinition(ctx context.Context, def *models.ClassDefinition) error {
	if def.SourceClassID == nil || *def.SourceClassID == "" {
		return fmt.Errorf("upsert class definition: source class id is required")
	}
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now

	const query = `INSERT INTO class_definitions (id, organization_id, source_class_id, name, description, instructor_name, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (organization_id, source_class_id) DO UPDATE
SET name = EXCLUDED.name, description = EXCLUDED.description, instructor_name = EXCLUDED.instructor_name, updated_at = EXCLUDED.updated_at
RETURNING id`
	if err := r.db.GetContext(ctx, &def.ID, query,
		def.ID, def.OrganizationID, def.SourceClassID, def.Name, def.Description, def.InstructorName, def.CreatedAt, def.UpdatedAt); err != nil {
		return fmt.Errorf("upsert class definition: %w", err)
	}
	return nil
}

// CreateSchedule inserts one occurrence row. Occurrences are not
// deduplicated by time; each imported record gets its own row.
func (r *ClassRepository) CreateSchedule(ctx context.Context, schedule *models.ClassSchedule) error {
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO class_schedules (id, organization_id, class_definition_id, source_schedule_id, starts_at, ends_at, capacity, created_at)
VALUES (:id, :organization_id, :class_definition_id, :source_schedule_id, :starts_at, :ends_at, :capacity, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, schedule); err != nil {
		return fmt.Errorf("create class schedule: %w", err)
	}
	return nil
}

// ScheduleTimeIndex returns a start-time (UTC unix seconds) to schedule-id
// map for the whole organization. Visits are matched against occurrence
// start times, so the index is keyed by the exact instant.
func (r *ClassRepository) ScheduleTimeIndex(ctx context.Context, organizationID string) (map[int64]string, error) {
	const query = `SELECT id, starts_at FROM class_schedules WHERE organization_id = $1`
	rows := []struct {
		ID       string    `db:"id"`
		StartsAt time.Time `db:"starts_at"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, organizationID); err != nil {
		return nil, fmt.Errorf("index schedules by time: %w", err)
	}
	index := make(map[int64]string, len(rows))
	for _, row := range rows {
		index[row.StartsAt.UTC().Unix()] = row.ID
	}
	return index, nil
}
