package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kennangle/studio-insights-api/internal/models"
)

// RevenueRepository persists revenue line items keyed by source sale and
// item ids.
type RevenueRepository struct {
	db *sqlx.DB
}

// NewRevenueRepository constructs the repository.
func NewRevenueRepository(db *sqlx.DB) *RevenueRepository {
	return &RevenueRepository{db: db}
}

// Upsert writes one revenue row. With both sale and item ids present the
// row is keyed by the pair; an item-less row for the same sale is merged in
// place (the item id is filled on the existing row) rather than duplicated.
// With only a sale id, a single item-less row per sale is maintained.
// Returns true when a new row was created.
func (r *RevenueRepository) Upsert(ctx context.Context, rec *models.RevenueRecord) (bool, error) {
	if rec.SourceSaleID == nil || *rec.SourceSaleID == "" {
		return false, fmt.Errorf("upsert revenue record: source sale id is required")
	}
	now := time.Now().UTC()
	rec.UpdatedAt = now

	if rec.SourceItemID != nil && *rec.SourceItemID != "" {
		const updateByItem = `UPDATE revenue_records SET student_id = :student_id, description = :description, amount = :amount, payment_method = :payment_method, sale_date = :sale_date, updated_at = :updated_at
WHERE organization_id = :organization_id AND source_sale_id = :source_sale_id AND source_item_id = :source_item_id`
		affected, err := r.exec(ctx, updateByItem, rec)
		if err != nil {
			return false, err
		}
		if affected > 0 {
			return false, nil
		}

		// Item details arriving for a sale previously stored without them:
		// claim the item-less row instead of inserting a second one.
		const claimItemless = `UPDATE revenue_records SET source_item_id = :source_item_id, student_id = :student_id, description = :description, amount = :amount, payment_method = :payment_method, sale_date = :sale_date, updated_at = :updated_at
WHERE organization_id = :organization_id AND source_sale_id = :source_sale_id AND source_item_id IS NULL`
		affected, err = r.exec(ctx, claimItemless, rec)
		if err != nil {
			return false, err
		}
		if affected > 0 {
			return false, nil
		}

		return true, r.insert(ctx, rec, now)
	}

	const updateItemless = `UPDATE revenue_records SET student_id = :student_id, description = :description, amount = :amount, payment_method = :payment_method, sale_date = :sale_date, updated_at = :updated_at
WHERE organization_id = :organization_id AND source_sale_id = :source_sale_id AND source_item_id IS NULL`
	affected, err := r.exec(ctx, updateItemless, rec)
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return false, nil
	}
	return true, r.insert(ctx, rec, now)
}

func (r *RevenueRepository) exec(ctx context.Context, query string, rec *models.RevenueRecord) (int64, error) {
	res, err := r.db.NamedExecContext(ctx, query, rec)
	if err != nil {
		return 0, fmt.Errorf("update revenue record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update revenue record rows: %w", err)
	}
	return affected, nil
}

func (r *RevenueRepository) insert(ctx context.Context, rec *models.RevenueRecord, now time.Time) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = now
	const query = `INSERT INTO revenue_records (id, organization_id, student_id, source_sale_id, source_item_id, description, amount, payment_method, sale_date, created_at, updated_at)
VALUES (:id, :organization_id, :student_id, :source_sale_id, :source_item_id, :description, :amount, :payment_method, :sale_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("create revenue record: %w", err)
	}
	return nil
}
