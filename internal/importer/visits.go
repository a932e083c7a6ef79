package importer

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kennangle/studio-insights-api/internal/mindbody"
	"github.com/kennangle/studio-insights-api/internal/models"
)

// VisitImporter converts client visits from /client/clientvisits into
// attendance rows. Visits are matched against the lookup snapshots built at
// the start of the run.
type VisitImporter struct {
	api        sourceClient
	attendance attendanceStore
	skipped    skippedStore
	logger     *zap.Logger
}

// NewVisitImporter constructs the importer.
func NewVisitImporter(api sourceClient, attendance attendanceStore, skipped skippedStore, logger *zap.Logger) *VisitImporter {
	return &VisitImporter{api: api, attendance: attendance, skipped: skipped, logger: logger}
}

// ImportPage fetches one page of visits within the job's date range. A visit
// whose client or class occurrence cannot be matched locally is written to
// the skipped audit trail. Repeat visits for the same student, schedule, and
// day collapse onto the existing attendance row.
func (i *VisitImporter) ImportPage(ctx context.Context, job *models.ImportJob, offset int, lk *Lookups) (PageResult, error) {
	params := map[string]string{
		"StartDate": formatDate(job.StartDate),
		"EndDate":   formatDate(job.EndDate),
	}
	page, err := i.api.FetchPage(ctx, "/client/clientvisits", "Visits", params, offset)
	if err != nil {
		return PageResult{}, err
	}

	res := PageResult{
		Total:      page.TotalResults,
		NextOffset: page.NextOffset,
		Completed:  !page.HasMore,
	}
	for _, raw := range page.Results {
		var rec mindbody.VisitRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			i.recordSkip(ctx, job, "", "unparseable visit payload", raw)
			res.Skipped++
			continue
		}
		visitID := strconv.FormatInt(rec.ID, 10)

		studentID, ok := lk.StudentsBySourceID[rec.ClientID]
		if !ok {
			i.recordSkip(ctx, job, visitID, "no matching student for client "+rec.ClientID, raw)
			res.Skipped++
			continue
		}
		scheduleID, ok := lk.SchedulesByTime[rec.StartDateTime.UTC().Unix()]
		if !ok {
			i.recordSkip(ctx, job, visitID, "no class occurrence at "+rec.StartDateTime.UTC().Format(time.RFC3339), raw)
			res.Skipped++
			continue
		}

		start := rec.StartDateTime.UTC()
		attendedOn := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
		status := "attended"
		var signedInAt *time.Time
		if rec.SignedIn {
			signedInAt = &start
		}
		attendance := &models.AttendanceRecord{
			OrganizationID: job.OrganizationID,
			StudentID:      studentID,
			ScheduleID:     scheduleID,
			AttendedOn:     attendedOn,
			SignedInAt:     signedInAt,
			Status:         status,
		}
		created, err := i.attendance.CreateIfAbsent(ctx, attendance)
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

func (i *VisitImporter) recordSkip(ctx context.Context, job *models.ImportJob, sourceID, reason string, raw json.RawMessage) {
	jobID := job.ID
	skip := &models.SkippedRecord{
		ImportJobID:    &jobID,
		OrganizationID: job.OrganizationID,
		DataType:       models.DataTypeVisits,
		SourceRecordID: sourceID,
		Reason:         reason,
		RawPayload:     string(raw),
	}
	if err := i.skipped.Create(ctx, skip); err != nil {
		i.logger.Warn("failed to record skipped visit", zap.String("source_id", sourceID), zap.Error(err))
	}
}
