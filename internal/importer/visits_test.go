package importer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kennangle/studio-insights-api/internal/mindbody"
)

func TestVisitImporterMatchesAndDeduplicates(t *testing.T) {
	job := pendingJob("visits")
	api := newStubAPI()
	attendance := &stubAttendanceStore{}
	skipped := &stubSkippedStore{}
	imp := NewVisitImporter(api, attendance, skipped, zap.NewNop())

	classStart := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	api.addPage("/client/clientvisits", 0, rawPage(t, []interface{}{
		mindbody.VisitRecord{ID: 1, ClientID: "c-1", StartDateTime: classStart, SignedIn: true},
		mindbody.VisitRecord{ID: 2, ClientID: "c-1", StartDateTime: classStart},
	}, 2, 2, false))

	lk := &Lookups{
		StudentsBySourceID: map[string]string{"c-1": "stu-1"},
		SchedulesByTime:    map[int64]string{classStart.Unix(): "sched-1"},
	}
	res, err := imp.ImportPage(context.Background(), job, 0, lk)
	require.NoError(t, err)
	require.Equal(t, 1, res.Imported)
	require.Equal(t, 1, res.Updated)
	require.Zero(t, res.Skipped)
}

func TestVisitImporterSkipsUnmatchedRecords(t *testing.T) {
	job := pendingJob("visits")
	api := newStubAPI()
	attendance := &stubAttendanceStore{}
	skipped := &stubSkippedStore{}
	imp := NewVisitImporter(api, attendance, skipped, zap.NewNop())

	classStart := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	api.addPage("/client/clientvisits", 0, rawPage(t, []interface{}{
		// unknown client
		mindbody.VisitRecord{ID: 1, ClientID: "ghost", StartDateTime: classStart},
		// known client, no class occurrence at that time
		mindbody.VisitRecord{ID: 2, ClientID: "c-1", StartDateTime: classStart.Add(time.Hour)},
	}, 2, 2, false))

	lk := &Lookups{
		StudentsBySourceID: map[string]string{"c-1": "stu-1"},
		SchedulesByTime:    map[int64]string{classStart.Unix(): "sched-1"},
	}
	res, err := imp.ImportPage(context.Background(), job, 0, lk)
	require.NoError(t, err)
	require.Zero(t, res.Imported)
	require.Equal(t, 2, res.Skipped)
	require.Len(t, skipped.records, 2)
	require.Contains(t, skipped.records[0].Reason, "no matching student")
	require.Contains(t, skipped.records[1].Reason, "no class occurrence")
}
