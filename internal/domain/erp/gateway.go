// Package erp defines the port to the external ERP system that is the source
// of truth for product stock, pricing, and customer standing. Implementations
// live in internal/infrastructure/erp; callers (reconciler, job queue) depend
// only on this package.
package erp

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RecordKind identifies the ERP subsystem a record belongs to
type RecordKind string

const (
	KindItem    RecordKind = "ITEM"
	KindContact RecordKind = "CONTACT"
	KindInvoice RecordKind = "INVOICE"
)

// IsValid returns true if the kind is one of the known record kinds
func (k RecordKind) IsValid() bool {
	switch k {
	case KindItem, KindContact, KindInvoice:
		return true
	default:
		return false
	}
}

// String returns the string representation of RecordKind
func (k RecordKind) String() string {
	return string(k)
}

// AllRecordKinds returns the kinds that participate in reconciliation
func AllRecordKinds() []RecordKind {
	return []RecordKind{KindItem, KindContact, KindInvoice}
}

// ItemFields carries the ERP-owned fields of an item record
type ItemFields struct {
	Code     string
	Name     string
	Price    decimal.Decimal
	Stock    decimal.Decimal
	Category string
}

// ContactFields carries the ERP-owned fields of a contact record
type ContactFields struct {
	CompanyName string
	Email       string
	Phone       string
	PriceListID string
	OnHold      bool
	// ContactEmails are the emails of the contact persons attached to the
	// remote record, used as a fallback identity match when enabled.
	ContactEmails []string
}

// InvoiceFields carries the fields of an invoice record; invoices feed the
// sales aggregation, not the catalog merge.
type InvoiceFields struct {
	Number   string
	Total    decimal.Decimal
	IssuedAt time.Time
}

// ExternalRecord is the adapter's ephemeral output: one remote record of one
// kind. Exactly one of the kind-specific field structs is non-nil.
type ExternalRecord struct {
	ExternalID string
	Kind       RecordKind
	ModifiedAt time.Time
	// Inactive indicates the record is archived/disabled upstream; locally
	// this delists the entity, it never deletes it.
	Inactive bool

	Item    *ItemFields
	Contact *ContactFields
	Invoice *InvoiceFields
}

// PageRequest describes one page of a paginated read
type PageRequest struct {
	Page     int
	PageSize int
	// Since, when non-nil, restricts the read to records modified after the
	// given instant (incremental sync). Nil means a full read.
	Since *time.Time
}

// Page is the result of one paginated read
type Page struct {
	Records []ExternalRecord
	HasMore bool
}

// Gateway is the stateless facade over the external ERP's HTTP API. It does
// not retry beyond a single token refresh; retry policy belongs to the
// callers, which understand attempt budgets and run-level error tallies.
type Gateway interface {
	// FetchPage reads one page of records of the given kind
	FetchPage(ctx context.Context, kind RecordKind, req PageRequest) (Page, error)

	// PushRecord creates a record of the given kind upstream, carrying the
	// idempotency key as a dedup token, and returns the remote identifier.
	PushRecord(ctx context.Context, kind RecordKind, payload any, idempotencyKey string) (string, error)

	// TestConnection verifies credentials and reachability
	TestConnection(ctx context.Context) error
}

// CustomerPush is the outbound payload for creating a customer upstream
type CustomerPush struct {
	CompanyName string `json:"company_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	PriceListID string `json:"price_list_id,omitempty"`
}

// OrderLine is one line of an outbound order
type OrderLine struct {
	ItemExternalID string          `json:"item_id"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
}

// OrderPush is the outbound payload for pushing an approved order upstream
type OrderPush struct {
	CustomerExternalID string          `json:"customer_id"`
	Reference          string          `json:"reference"`
	Total              decimal.Decimal `json:"total"`
	Lines              []OrderLine     `json:"lines"`
}
