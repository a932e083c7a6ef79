package importer

import (
	"context"
	"encoding/json"
	"strconv"

	"go.uber.org/zap"

	"github.com/kennangle/studio-insights-api/internal/mindbody"
	"github.com/kennangle/studio-insights-api/internal/models"
)

// ClassImporter writes class definitions and their scheduled occurrences
// from /class/classes.
type ClassImporter struct {
	api     sourceClient
	classes classStore
	logger  *zap.Logger
}

// NewClassImporter constructs the importer.
func NewClassImporter(api sourceClient, classes classStore, logger *zap.Logger) *ClassImporter {
	return &ClassImporter{api: api, classes: classes, logger: logger}
}

// ImportPage fetches one page of class occurrences within the job's date
// range. Each occurrence upserts its class definition and appends a schedule
// row. Occurrences without a class description are dropped silently; they
// carry nothing to attach a schedule to.
func (i *ClassImporter) ImportPage(ctx context.Context, job *models.ImportJob, offset int, _ *Lookups) (PageResult, error) {
	params := map[string]string{
		"StartDateTime": formatDateTime(job.StartDate),
		"EndDateTime":   formatDateTime(endOfDay(job.EndDate)),
	}
	page, err := i.api.FetchPage(ctx, "/class/classes", "Classes", params, offset)
	if err != nil {
		return PageResult{}, err
	}

	res := PageResult{
		Total:      page.TotalResults,
		NextOffset: page.NextOffset,
		Completed:  !page.HasMore,
	}
	// Occurrences on a page usually share a handful of definitions; cache
	// the upserted ids to avoid re-writing the same definition per row.
	definitionIDs := make(map[int64]string)
	for _, raw := range page.Results {
		var rec mindbody.ClassOccurrence
		if err := json.Unmarshal(raw, &rec); err != nil {
			i.logger.Warn("dropping unparseable class occurrence", zap.Error(err))
			res.Skipped++
			continue
		}
		if rec.ClassDescription.ID == 0 {
			res.Skipped++
			continue
		}

		defID, ok := definitionIDs[rec.ClassDescription.ID]
		if !ok {
			sourceClassID := strconv.FormatInt(rec.ClassDescription.ID, 10)
			def := &models.ClassDefinition{
				OrganizationID: job.OrganizationID,
				SourceClassID:  &sourceClassID,
				Name:           rec.ClassDescription.Name,
				Description:    rec.ClassDescription.Description,
				InstructorName: rec.Staff.Name,
			}
			if err := i.classes.UpsertDefinition(ctx, def); err != nil {
				return PageResult{}, err
			}
			defID = def.ID
			definitionIDs[rec.ClassDescription.ID] = defID
		}

		sourceScheduleID := strconv.FormatInt(rec.ID, 10)
		schedule := &models.ClassSchedule{
			OrganizationID:    job.OrganizationID,
			ClassDefinitionID: defID,
			SourceScheduleID:  &sourceScheduleID,
			StartsAt:          rec.StartDateTime.UTC(),
			EndsAt:            rec.EndDateTime.UTC(),
			Capacity:          rec.MaxCapacity,
		}
		if err := i.classes.CreateSchedule(ctx, schedule); err != nil {
			return PageResult{}, err
		}
		res.Imported++
	}
	return res, nil
}
