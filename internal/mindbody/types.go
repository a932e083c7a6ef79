package mindbody

import (
	"encoding/json"
	"time"
)

// tokenResponse is the issued user token payload.
type tokenResponse struct {
	AccessToken string `json:"AccessToken"`
	TokenType   string `json:"TokenType"`
}

// PaginationResponse is the paging envelope every list endpoint returns.
type PaginationResponse struct {
	RequestedLimit  int `json:"RequestedLimit"`
	RequestedOffset int `json:"RequestedOffset"`
	PageSize        int `json:"PageSize"`
	TotalResults    int `json:"TotalResults"`
}

// Page is one fetched page of raw source records.
type Page struct {
	Results      []json.RawMessage
	TotalResults int
	NextOffset   int
	HasMore      bool
}

// ClientRecord is a member/client row from /client/clients.
type ClientRecord struct {
	ID           string     `json:"Id"`
	FirstName    string     `json:"FirstName"`
	LastName     string     `json:"LastName"`
	Email        string     `json:"Email"`
	MobilePhone  string     `json:"MobilePhone"`
	Status       string     `json:"Status"`
	Active       bool       `json:"Active"`
	CreationDate *time.Time `json:"CreationDate"`
}

// ClassOccurrence is one scheduled class from /class/classes.
type ClassOccurrence struct {
	ID               int64     `json:"Id"`
	StartDateTime    time.Time `json:"StartDateTime"`
	EndDateTime      time.Time `json:"EndDateTime"`
	MaxCapacity      int       `json:"MaxCapacity"`
	ClassDescription struct {
		ID          int64  `json:"Id"`
		Name        string `json:"Name"`
		Description string `json:"Description"`
	} `json:"ClassDescription"`
	Staff struct {
		Name string `json:"Name"`
	} `json:"Staff"`
}

// VisitRecord is one client visit from /client/clientvisits.
type VisitRecord struct {
	ID            int64     `json:"Id"`
	ClientID      string    `json:"ClientId"`
	ClassID       int64     `json:"ClassId"`
	StartDateTime time.Time `json:"StartDateTime"`
	SignedIn      bool      `json:"SignedIn"`
}

// PurchasedItem is a line item within a sale.
type PurchasedItem struct {
	ID          int64   `json:"Id"`
	Description string  `json:"Description"`
	TotalAmount float64 `json:"TotalAmount"`
}

// SaleRecord is one sale from /sale/sales.
type SaleRecord struct {
	ID             int64           `json:"Id"`
	ClientID       string          `json:"ClientId"`
	SaleDateTime   time.Time       `json:"SaleDateTime"`
	PaymentMethod  string          `json:"PaymentMethod"`
	PurchasedItems []PurchasedItem `json:"PurchasedItems"`
}

// TransactionRecord is one settled transaction from /sale/transactions.
// Only some deployments itemise amounts here; missing amounts require a
// per-sale detail lookup.
type TransactionRecord struct {
	TransactionID   int64      `json:"TransactionId"`
	SaleID          int64      `json:"SaleId"`
	ClientID        string     `json:"ClientId"`
	Amount          float64    `json:"Amount"`
	Status          string     `json:"Status"`
	TransactionTime *time.Time `json:"TransactionTime"`
	SettlementTime  *time.Time `json:"SettlementTime"`
	CreatedTime     *time.Time `json:"CreatedTime"`
}

// EffectiveDate resolves a transaction's sale date. The field precedence is
// a documented heuristic carried over from the upstream integration; do not
// reorder without product confirmation.
func (t TransactionRecord) EffectiveDate() time.Time {
	switch {
	case t.TransactionTime != nil:
		return *t.TransactionTime
	case t.SettlementTime != nil:
		return *t.SettlementTime
	case t.CreatedTime != nil:
		return *t.CreatedTime
	default:
		return time.Time{}
	}
}
