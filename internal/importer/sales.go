package importer

import (
	"context"
	"encoding/json"
	"strconv"

	"go.uber.org/zap"

	"github.com/kennangle/studio-insights-api/internal/mindbody"
	"github.com/kennangle/studio-insights-api/internal/models"
)

// SalesImporter writes revenue line items. The primary source is
// /sale/sales; some site configurations return an empty result set there, in
// which case the importer falls back to /sale/transactions for the same
// window. Transactions that carry no amount of their own get a per-sale
// detail lookup before being given up on.
type SalesImporter struct {
	api     sourceClient
	revenue revenueStore
	skipped skippedStore
	logger  *zap.Logger
}

// NewSalesImporter constructs the importer.
func NewSalesImporter(api sourceClient, revenue revenueStore, skipped skippedStore, logger *zap.Logger) *SalesImporter {
	return &SalesImporter{api: api, revenue: revenue, skipped: skipped, logger: logger}
}

// ImportPage imports one page of sales for the job's date range.
// Zero-amount line items are dropped without an audit entry; they are
// comp passes and freebies, not data problems.
func (i *SalesImporter) ImportPage(ctx context.Context, job *models.ImportJob, offset int, lk *Lookups) (PageResult, error) {
	params := map[string]string{
		"StartSaleDateTime": formatDateTime(job.StartDate),
		"EndSaleDateTime":   formatDateTime(endOfDay(job.EndDate)),
	}
	page, err := i.api.FetchPage(ctx, "/sale/sales", "Sales", params, offset)
	if err != nil {
		return PageResult{}, err
	}
	if page.TotalResults == 0 {
		return i.importTransactionsPage(ctx, job, offset, lk)
	}

	res := PageResult{
		Total:      page.TotalResults,
		NextOffset: page.NextOffset,
		Completed:  !page.HasMore,
	}
	for _, raw := range page.Results {
		var sale mindbody.SaleRecord
		if err := json.Unmarshal(raw, &sale); err != nil {
			i.recordSkip(ctx, job, "", "unparseable sale payload", raw)
			res.Skipped++
			continue
		}
		imported, updated, err := i.importSaleItems(ctx, job, &sale, lk)
		if err != nil {
			return PageResult{}, err
		}
		res.Imported += imported
		res.Updated += updated
	}
	return res, nil
}

func (i *SalesImporter) importTransactionsPage(ctx context.Context, job *models.ImportJob, offset int, lk *Lookups) (PageResult, error) {
	params := map[string]string{
		"TransactionStartDateTime": formatDateTime(job.StartDate),
		"TransactionEndDateTime":   formatDateTime(endOfDay(job.EndDate)),
	}
	page, err := i.api.FetchPage(ctx, "/sale/transactions", "Transactions", params, offset)
	if err != nil {
		return PageResult{}, err
	}

	res := PageResult{
		Total:      page.TotalResults,
		NextOffset: page.NextOffset,
		Completed:  !page.HasMore,
	}
	for _, raw := range page.Results {
		var tx mindbody.TransactionRecord
		if err := json.Unmarshal(raw, &tx); err != nil {
			i.recordSkip(ctx, job, "", "unparseable transaction payload", raw)
			res.Skipped++
			continue
		}
		if tx.SaleID == 0 {
			i.recordSkip(ctx, job, strconv.FormatInt(tx.TransactionID, 10), "transaction has no sale id", raw)
			res.Skipped++
			continue
		}

		if tx.Amount == 0 {
			// The transaction feed on this site does not itemise amounts;
			// fetch the sale itself for its line items.
			sale, err := i.lookupSale(ctx, tx.SaleID)
			if err != nil {
				return PageResult{}, err
			}
			if sale == nil || len(sale.PurchasedItems) == 0 {
				continue
			}
			imported, updated, err := i.importSaleItems(ctx, job, sale, lk)
			if err != nil {
				return PageResult{}, err
			}
			res.Imported += imported
			res.Updated += updated
			continue
		}

		saleID := strconv.FormatInt(tx.SaleID, 10)
		saleDate := tx.EffectiveDate()
		if saleDate.IsZero() {
			saleDate = job.StartDate
		}
		rec := &models.RevenueRecord{
			OrganizationID: job.OrganizationID,
			StudentID:      lookupStudent(lk, tx.ClientID),
			SourceSaleID:   &saleID,
			Description:    "Sale " + saleID,
			Amount:         tx.Amount,
			SaleDate:       saleDate.UTC(),
		}
		created, err := i.revenue.Upsert(ctx, rec)
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

func (i *SalesImporter) importSaleItems(ctx context.Context, job *models.ImportJob, sale *mindbody.SaleRecord, lk *Lookups) (imported, updated int, err error) {
	saleID := strconv.FormatInt(sale.ID, 10)
	studentID := lookupStudent(lk, sale.ClientID)
	for _, item := range sale.PurchasedItems {
		if item.TotalAmount == 0 {
			continue
		}
		itemID := strconv.FormatInt(item.ID, 10)
		rec := &models.RevenueRecord{
			OrganizationID: job.OrganizationID,
			StudentID:      studentID,
			SourceSaleID:   &saleID,
			SourceItemID:   &itemID,
			Description:    item.Description,
			Amount:         item.TotalAmount,
			PaymentMethod:  sale.PaymentMethod,
			SaleDate:       sale.SaleDateTime.UTC(),
		}
		created, err := i.revenue.Upsert(ctx, rec)
		if err != nil {
			return imported, updated, err
		}
		if created {
			imported++
		} else {
			updated++
		}
	}
	return imported, updated, nil
}

func (i *SalesImporter) lookupSale(ctx context.Context, saleID int64) (*mindbody.SaleRecord, error) {
	var out struct {
		Sales []mindbody.SaleRecord `json:"Sales"`
	}
	params := map[string]string{"SaleId": strconv.FormatInt(saleID, 10)}
	if err := i.api.Get(ctx, "/sale/sales", params, &out); err != nil {
		return nil, err
	}
	if len(out.Sales) == 0 {
		return nil, nil
	}
	return &out.Sales[0], nil
}

func (i *SalesImporter) recordSkip(ctx context.Context, job *models.ImportJob, sourceID, reason string, raw json.RawMessage) {
	jobID := job.ID
	skip := &models.SkippedRecord{
		ImportJobID:    &jobID,
		OrganizationID: job.OrganizationID,
		DataType:       models.DataTypeSales,
		SourceRecordID: sourceID,
		Reason:         reason,
		RawPayload:     string(raw),
	}
	if err := i.skipped.Create(ctx, skip); err != nil {
		i.logger.Warn("failed to record skipped sale", zap.String("source_id", sourceID), zap.Error(err))
	}
}

func lookupStudent(lk *Lookups, clientID string) *string {
	if lk == nil || clientID == "" {
		return nil
	}
	if id, ok := lk.StudentsBySourceID[clientID]; ok {
		return &id
	}
	return nil
}
