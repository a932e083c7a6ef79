package importer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kennangle/studio-insights-api/internal/mindbody"
)

func TestClientImporterSkipsNamelessRecords(t *testing.T) {
	job := pendingJob("clients")
	api := newStubAPI()
	students := &stubStudentStore{}
	skipped := &stubSkippedStore{}
	imp := NewClientImporter(api, students, skipped, zap.NewNop())

	api.addPage("/client/clients", 0, rawPage(t, []interface{}{
		mindbody.ClientRecord{ID: "c-1", FirstName: "Dana", LastName: "Reyes"},
		mindbody.ClientRecord{ID: "c-2", Email: "anonymous@example.com"},
	}, 2, 2, false))

	res, err := imp.ImportPage(context.Background(), job, 0, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Imported)
	require.Equal(t, 1, res.Skipped)
	require.Len(t, skipped.records, 1)
	require.Equal(t, "c-2", skipped.records[0].SourceRecordID)
	require.Contains(t, skipped.records[0].Reason, "no first or last name")
}

func TestClientImporterUpdatesExistingStudents(t *testing.T) {
	job := pendingJob("clients")
	api := newStubAPI()
	students := &stubStudentStore{index: map[string]string{"c-1": "stu-1"}}
	imp := NewClientImporter(api, students, &stubSkippedStore{}, zap.NewNop())

	api.addPage("/client/clients", 0, rawPage(t, []interface{}{
		mindbody.ClientRecord{ID: "c-1", FirstName: "Dana", LastName: "Reyes"},
	}, 1, 2, false))

	res, err := imp.ImportPage(context.Background(), job, 0, nil)
	require.NoError(t, err)
	require.Zero(t, res.Imported)
	require.Equal(t, 1, res.Updated)
	require.Equal(t, 1, students.updated)
}
