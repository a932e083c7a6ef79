package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// DataType enumerates the source record categories an import can cover.
type DataType string

const (
	DataTypeClients DataType = "clients"
	DataTypeClasses DataType = "classes"
	DataTypeVisits  DataType = "visits"
	DataTypeSales   DataType = "sales"
)

// OrderedDataTypes returns every data type in required processing order.
// Visits depend on schedules produced by classes; sales depend on students
// produced by clients. The ordering is a correctness requirement.
func OrderedDataTypes() []DataType {
	return []DataType{DataTypeClients, DataTypeClasses, DataTypeVisits, DataTypeSales}
}

// Valid reports whether the data type is a known category.
func (d DataType) Valid() bool {
	switch d {
	case DataTypeClients, DataTypeClasses, DataTypeVisits, DataTypeSales:
		return true
	default:
		return false
	}
}

// NormalizeDataTypes deduplicates the raw selection and returns it in
// processing order. Unknown values yield an error.
func NormalizeDataTypes(raw []string) ([]DataType, error) {
	selected := make(map[DataType]bool, len(raw))
	for _, r := range raw {
		dt := DataType(r)
		if !dt.Valid() {
			return nil, fmt.Errorf("unknown data type %q", r)
		}
		selected[dt] = true
	}
	ordered := make([]DataType, 0, len(selected))
	for _, dt := range OrderedDataTypes() {
		if selected[dt] {
			ordered = append(ordered, dt)
		}
	}
	return ordered, nil
}

// ImportStatus captures the import job lifecycle states.
type ImportStatus string

const (
	ImportStatusPending   ImportStatus = "pending"
	ImportStatusRunning   ImportStatus = "running"
	ImportStatusCompleted ImportStatus = "completed"
	ImportStatusFailed    ImportStatus = "failed"
	ImportStatusPaused    ImportStatus = "paused"
	ImportStatusCancelled ImportStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s ImportStatus) Terminal() bool {
	switch s {
	case ImportStatusCompleted, ImportStatusFailed, ImportStatusCancelled:
		return true
	default:
		return false
	}
}

// ActiveImportStatuses are the states that count against the
// one-active-job-per-organization invariant.
var ActiveImportStatuses = []ImportStatus{ImportStatusPending, ImportStatusRunning, ImportStatusPaused}

// DataTypeProgress tracks per-datatype counters within a job run.
type DataTypeProgress struct {
	Current   int  `json:"current"`
	Total     int  `json:"total"`
	Imported  int  `json:"imported"`
	Updated   int  `json:"updated,omitempty"`
	Skipped   int  `json:"skipped,omitempty"`
	Completed bool `json:"completed"`
}

// ImportProgress is the job-wide progress blob persisted as JSONB.
type ImportProgress struct {
	DataTypes       map[DataType]*DataTypeProgress `json:"dataTypes,omitempty"`
	APICallCount    int                            `json:"apiCallCount,omitempty"`
	ImportStartTime *time.Time                     `json:"importStartTime,omitempty"`
}

// ForType returns the counters for a data type, initialising them on demand.
func (p *ImportProgress) ForType(dt DataType) *DataTypeProgress {
	if p.DataTypes == nil {
		p.DataTypes = make(map[DataType]*DataTypeProgress)
	}
	dp, ok := p.DataTypes[dt]
	if !ok {
		dp = &DataTypeProgress{}
		p.DataTypes[dt] = dp
	}
	return dp
}

// Value marshals the progress blob to JSON for persistence.
func (p ImportProgress) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal import progress: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the progress struct. Legacy or
// malformed blobs decode to an empty progress, never an error, so old job
// rows remain readable.
func (p *ImportProgress) Scan(value interface{}) error {
	*p = ImportProgress{}
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		*p = ImportProgress{}
	}
	return nil
}

// ImportJob is one run of the import pipeline across selected data types
// and a date range.
type ImportJob struct {
	ID              string         `db:"id" json:"id"`
	OrganizationID  string         `db:"organization_id" json:"organization_id"`
	DataTypes       pq.StringArray `db:"data_types" json:"data_types"`
	StartDate       time.Time      `db:"start_date" json:"start_date"`
	EndDate         time.Time      `db:"end_date" json:"end_date"`
	Status          ImportStatus   `db:"status" json:"status"`
	Progress        ImportProgress `db:"progress" json:"progress"`
	CurrentDataType *string        `db:"current_data_type" json:"current_data_type,omitempty"`
	CurrentOffset   int            `db:"current_offset" json:"current_offset"`
	HeartbeatAt     *time.Time     `db:"heartbeat_at" json:"heartbeat_at,omitempty"`
	PausedAt        *time.Time     `db:"paused_at" json:"paused_at,omitempty"`
	ErrorMessage    *string        `db:"error_message" json:"error,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// SelectedTypes returns the job's data types in processing order, dropping
// anything unknown that may linger in legacy rows.
func (j *ImportJob) SelectedTypes() []DataType {
	normalized, err := NormalizeDataTypes(j.DataTypes)
	if err != nil {
		valid := make([]string, 0, len(j.DataTypes))
		for _, raw := range j.DataTypes {
			if DataType(raw).Valid() {
				valid = append(valid, raw)
			}
		}
		normalized, _ = NormalizeDataTypes(valid)
	}
	return normalized
}
