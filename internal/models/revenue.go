package models

import "time"

// RevenueRecord is one purchased line item from a sale.
// (organization, source_sale_id, source_item_id) is unique when both ids are
// present. A sale known only by its id is stored as a single item-less row
// and updated in place once item details arrive.
type RevenueRecord struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	StudentID      *string   `db:"student_id" json:"student_id,omitempty"`
	SourceSaleID   *string   `db:"source_sale_id" json:"source_sale_id,omitempty"`
	SourceItemID   *string   `db:"source_item_id" json:"source_item_id,omitempty"`
	Description    string    `db:"description" json:"description"`
	Amount         float64   `db:"amount" json:"amount"`
	PaymentMethod  string    `db:"payment_method" json:"payment_method"`
	SaleDate       time.Time `db:"sale_date" json:"sale_date"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
