package models

import "time"

// SkippedRecord is an audit entry for a source record rejected during
// mapping. Created by importers, never mutated.
type SkippedRecord struct {
	ID             string    `db:"id" json:"id"`
	ImportJobID    *string   `db:"import_job_id" json:"import_job_id,omitempty"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	DataType       DataType  `db:"data_type" json:"data_type"`
	SourceRecordID string    `db:"source_record_id" json:"source_record_id"`
	Reason         string    `db:"reason" json:"reason"`
	RawPayload     string    `db:"raw_payload" json:"raw_payload"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
