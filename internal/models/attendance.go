package models

import "time"

// AttendanceRecord links a student to a class occurrence on a calendar day.
// (organization, student, schedule, attended_on) is unique: duplicate visit
// records for the same day collapse onto one row.
type AttendanceRecord struct {
	ID             string     `db:"id" json:"id"`
	OrganizationID string     `db:"organization_id" json:"organization_id"`
	StudentID      string     `db:"student_id" json:"student_id"`
	ScheduleID     string     `db:"schedule_id" json:"schedule_id"`
	AttendedOn     time.Time  `db:"attended_on" json:"attended_on"`
	SignedInAt     *time.Time `db:"signed_in_at" json:"signed_in_at,omitempty"`
	Status         string     `db:"status" json:"status"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}
