package importer

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/kennangle/studio-insights-api/internal/mindbody"
	"github.com/kennangle/studio-insights-api/internal/models"
)

// ClientImporter upserts studio members from /client/clients.
type ClientImporter struct {
	api      sourceClient
	students studentStore
	skipped  skippedStore
	logger   *zap.Logger
}

// NewClientImporter constructs the importer.
func NewClientImporter(api sourceClient, students studentStore, skipped skippedStore, logger *zap.Logger) *ClientImporter {
	return &ClientImporter{api: api, students: students, skipped: skipped, logger: logger}
}

// ImportPage fetches one page of clients modified since the job's start date
// and upserts each into the students table. Records without any name are
// written to the skipped audit trail instead of being imported.
func (i *ClientImporter) ImportPage(ctx context.Context, job *models.ImportJob, offset int, _ *Lookups) (PageResult, error) {
	params := map[string]string{
		"LastModifiedDate": job.StartDate.UTC().Format(time.RFC3339),
	}
	page, err := i.api.FetchPage(ctx, "/client/clients", "Clients", params, offset)
	if err != nil {
		return PageResult{}, err
	}

	res := PageResult{
		Total:      page.TotalResults,
		NextOffset: page.NextOffset,
		Completed:  !page.HasMore,
	}
	for _, raw := range page.Results {
		var rec mindbody.ClientRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			i.recordSkip(ctx, job, rec.ID, "unparseable client payload", raw)
			res.Skipped++
			continue
		}
		if rec.FirstName == "" && rec.LastName == "" {
			i.recordSkip(ctx, job, rec.ID, "client has no first or last name", raw)
			res.Skipped++
			continue
		}

		status := rec.Status
		if status == "" {
			if rec.Active {
				status = "Active"
			} else {
				status = "Inactive"
			}
		}
		sourceID := rec.ID
		student := &models.Student{
			OrganizationID: job.OrganizationID,
			SourceClientID: &sourceID,
			FirstName:      rec.FirstName,
			LastName:       rec.LastName,
			Email:          rec.Email,
			Phone:          rec.MobilePhone,
			Status:         status,
			JoinedAt:       rec.CreationDate,
		}
		created, err := i.students.UpsertBySourceID(ctx, student)
		if err != nil {
			return PageResult{}, err
		}
		if created {
			res.Imported++
		} else {
			res.Updated++
		}
	}
	return res, nil
}

func (i *ClientImporter) recordSkip(ctx context.Context, job *models.ImportJob, sourceID, reason string, raw json.RawMessage) {
	jobID := job.ID
	skip := &models.SkippedRecord{
		ImportJobID:    &jobID,
		OrganizationID: job.OrganizationID,
		DataType:       models.DataTypeClients,
		SourceRecordID: sourceID,
		Reason:         reason,
		RawPayload:     string(raw),
	}
	if err := i.skipped.Create(ctx, skip); err != nil {
		i.logger.Warn("failed to record skipped client", zap.String("source_id", sourceID), zap.Error(err))
	}
}
