package models

import "time"

// Student represents a studio member imported from the booking platform.
type Student struct {
	ID             string     `db:"id" json:"id"`
	OrganizationID string     `db:"organization_id" json:"organization_id"`
	SourceClientID *string    `db:"source_client_id" json:"source_client_id,omitempty"`
	FirstName      string     `db:"first_name" json:"first_name"`
	LastName       string     `db:"last_name" json:"last_name"`
	Email          string     `db:"email" json:"email"`
	Phone          string     `db:"phone" json:"phone"`
	Status         string     `db:"status" json:"status"`
	JoinedAt       *time.Time `db:"joined_at" json:"joined_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}
