package importer

import (
	"context"
	"fmt"
)

// Lookups are the read-only in-memory snapshots the visits and sales
// importers match against. They are built once per job run and threaded
// through every page call; a student or schedule created on the source side
// mid-run is not visible until the next run.
type Lookups struct {
	StudentsBySourceID map[string]string
	SchedulesByTime    map[int64]string
}

func buildLookups(ctx context.Context, organizationID string, students studentStore, classes classStore) (*Lookups, error) {
	studentIndex, err := students.SourceIDIndex(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("build student lookup: %w", err)
	}
	scheduleIndex, err := classes.ScheduleTimeIndex(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("build schedule lookup: %w", err)
	}
	return &Lookups{
		StudentsBySourceID: studentIndex,
		SchedulesByTime:    scheduleIndex,
	}, nil
}
