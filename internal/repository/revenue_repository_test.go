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

func newRevenueRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func revenueFixture(itemID string) *models.RevenueRecord {
	saleID := "9001"
	rec := &models.RevenueRecord{
		OrganizationID: "org-1",
		SourceSaleID:   &saleID,
		Description:    "10-class pack",
		Amount:         150,
		SaleDate:       time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC),
	}
	if itemID != "" {
		rec.SourceItemID = &itemID
	}
	return rec
}

func TestRevenueRepositoryUpsertRequiresSaleID(t *testing.T) {
	db, _, cleanup := newRevenueRepoMock(t)
	defer cleanup()

	repo := NewRevenueRepository(db)
	_, err := repo.Upsert(context.Background(), &models.RevenueRecord{OrganizationID: "org-1"})
	require.Error(t, err)
}

func TestRevenueRepositoryUpsertUpdatesExistingItemRow(t *testing.T) {
	db, mock, cleanup := newRevenueRepoMock(t)
	defer cleanup()

	repo := NewRevenueRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE revenue_records")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := repo.Upsert(context.Background(), revenueFixture("item-1"))
	require.NoError(t, err)
	require.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevenueRepositoryUpsertClaimsItemlessRow(t *testing.T) {
	db, mock, cleanup := newRevenueRepoMock(t)
	defer cleanup()

	repo := NewRevenueRepository(db)
	// No row keyed by (sale, item) yet; the item-less row for the sale is
	// claimed instead of inserting a duplicate.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE revenue_records")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("source_item_id IS NULL")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := repo.Upsert(context.Background(), revenueFixture("item-1"))
	require.NoError(t, err)
	require.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevenueRepositoryUpsertInsertsWhenNothingMatches(t *testing.T) {
	db, mock, cleanup := newRevenueRepoMock(t)
	defer cleanup()

	repo := NewRevenueRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE revenue_records")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("source_item_id IS NULL")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO revenue_records")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := revenueFixture("item-1")
	created, err := repo.Upsert(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, rec.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevenueRepositoryUpsertItemlessMaintainsSingleRow(t *testing.T) {
	db, mock, cleanup := newRevenueRepoMock(t)
	defer cleanup()

	repo := NewRevenueRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("source_item_id IS NULL")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := repo.Upsert(context.Background(), revenueFixture(""))
	require.NoError(t, err)
	require.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}
