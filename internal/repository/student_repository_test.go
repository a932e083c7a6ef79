package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/kennangle/studio-insights-api/internal/models"
)

func newStudentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func studentFixture() *models.Student {
	sourceID := "MB-100"
	return &models.Student{
		OrganizationID: "org-1",
		SourceClientID: &sourceID,
		FirstName:      "Dana",
		LastName:       "Reyes",
		Email:          "dana@example.com",
		Status:         "Active",
	}
}

func TestStudentRepositoryUpsertUpdatesExisting(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := repo.UpsertBySourceID(context.Background(), studentFixture())
	require.NoError(t, err)
	require.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryUpsertInsertsWhenMissing(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO students")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	student := studentFixture()
	created, err := repo.UpsertBySourceID(context.Background(), student)
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, student.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryUpsertRequiresSourceID(t *testing.T) {
	db, _, cleanup := newStudentRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)
	_, err := repo.UpsertBySourceID(context.Background(), &models.Student{OrganizationID: "org-1"})
	require.Error(t, err)
}

func TestStudentRepositorySourceIDIndex(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)
	rows := sqlmock.NewRows([]string{"id", "source_client_id"}).
		AddRow("stu-1", "MB-100").
		AddRow("stu-2", "MB-200")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, source_client_id FROM students")).
		WithArgs("org-1").
		WillReturnRows(rows)

	index, err := repo.SourceIDIndex(context.Background(), "org-1")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"MB-100": "stu-1", "MB-200": "stu-2"}, index)
	require.NoError(t, mock.ExpectationsWereMet())
}
