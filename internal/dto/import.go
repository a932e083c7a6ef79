package dto

import (
	"time"

	"github.com/kennangle/studio-insights-api/internal/models"
)

// StartImportRequest is the payload for creating a new import job.
// DataTypes may be omitted to import everything.
type StartImportRequest struct {
	OrganizationID string   `json:"organization_id" validate:"required"`
	DataTypes      []string `json:"data_types"`
	StartDate      string   `json:"start_date" validate:"required"`
	EndDate        string   `json:"end_date" validate:"required"`
}

// ImportJobResponse is the representation returned when a job is created or
// listed.
type ImportJobResponse struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	DataTypes      []string  `json:"data_types"`
	StartDate      string    `json:"start_date"`
	EndDate        string    `json:"end_date"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// ImportStatusResponse is the live view of a job used by dashboard polling.
type ImportStatusResponse struct {
	ID              string                `json:"id"`
	Status          string                `json:"status"`
	Progress        models.ImportProgress `json:"progress"`
	CurrentDataType *string               `json:"current_data_type,omitempty"`
	CurrentOffset   int                   `json:"current_offset"`
	Error           *string               `json:"error,omitempty"`
	PausedAt        *time.Time            `json:"paused_at,omitempty"`
	HeartbeatAt     *time.Time            `json:"heartbeat_at,omitempty"`
	UpdatedAt       time.Time             `json:"updated_at"`
	APICallsToday   int64                 `json:"api_calls_today"`
}

// SkippedRecordsResponse is a paged list of skipped-record audit entries.
type SkippedRecordsResponse struct {
	Records []models.SkippedRecord `json:"records"`
	Total   int                    `json:"total"`
	Page    int                    `json:"page"`
	Limit   int                    `json:"limit"`
}

// NewImportJobResponse maps a job row to its API representation.
func NewImportJobResponse(job *models.ImportJob) *ImportJobResponse {
	return &ImportJobResponse{
		ID:             job.ID,
		OrganizationID: job.OrganizationID,
		DataTypes:      []string(job.DataTypes),
		StartDate:      job.StartDate.UTC().Format("2006-01-02"),
		EndDate:        job.EndDate.UTC().Format("2006-01-02"),
		Status:         string(job.Status),
		CreatedAt:      job.CreatedAt,
	}
}

// NewImportStatusResponse maps a job row to the polling representation.
func NewImportStatusResponse(job *models.ImportJob, apiCallsToday int64) *ImportStatusResponse {
	return &ImportStatusResponse{
		ID:              job.ID,
		Status:          string(job.Status),
		Progress:        job.Progress,
		CurrentDataType: job.CurrentDataType,
		CurrentOffset:   job.CurrentOffset,
		Error:           job.ErrorMessage,
		PausedAt:        job.PausedAt,
		HeartbeatAt:     job.HeartbeatAt,
		UpdatedAt:       job.UpdatedAt,
		APICallsToday:   apiCallsToday,
	}
}
