package models

import "time"

// ClassDefinition describes a recurring class offering (e.g. "Vinyasa Flow").
// Upserted once per source class description and reused across occurrences.
type ClassDefinition struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	SourceClassID  *string   `db:"source_class_id" json:"source_class_id,omitempty"`
	Name           string    `db:"name" json:"name"`
	Description    string    `db:"description" json:"description"`
	InstructorName string    `db:"instructor_name" json:"instructor_name"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// ClassSchedule is one concrete occurrence of a class definition.
type ClassSchedule struct {
	ID                string    `db:"id" json:"id"`
	OrganizationID    string    `db:"organization_id" json:"organization_id"`
	ClassDefinitionID string    `db:"class_definition_id" json:"class_definition_id"`
	SourceScheduleID  *string   `db:"source_schedule_id" json:"source_schedule_id,omitempty"`
	StartsAt          time.Time `db:"starts_at" json:"starts_at"`
	EndsAt            time.Time `db:"ends_at" json:"ends_at"`
	Capacity          int       `db:"capacity" json:"capacity"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}
