package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/kennangle/studio-insights-api/internal/models"
)

func newAttendanceRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func attendanceFixture() *models.AttendanceRecord {
	return &models.AttendanceRecord{
		OrganizationID: "org-1",
		StudentID:      "stu-1",
		ScheduleID:     "sched-1",
		AttendedOn:     time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		Status:         "attended",
	}
}

func TestAttendanceRepositoryCreateIfAbsentInserts(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("att-new"))

	rec := attendanceFixture()
	created, err := repo.CreateIfAbsent(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "att-new", rec.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCreateIfAbsentReturnsExistingOnConflict(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	// ON CONFLICT DO NOTHING yields no row; the follow-up select resolves
	// the existing id.
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM attendance_records")).
		WithArgs("org-1", "stu-1", "sched-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("att-existing"))

	rec := attendanceFixture()
	created, err := repo.CreateIfAbsent(context.Background(), rec)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "att-existing", rec.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
