// Package catalog holds the storefront's local entities. Each entity splits
// its fields into two groups: ERP-owned fields, overwritten by every
// reconciliation pass, and local-owned fields (display flags, notes,
// uploaded media), which sync never touches.
package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storefront/backend/internal/domain/erp"
)

// Product is a storefront product. The ERP is authoritative for code, name,
// price, stock, and category; everything else is local.
type Product struct {
	ID uuid.UUID

	// ExternalID is the stable ERP identifier. Nil until the first sync
	// binds the product; at most one product may hold a given value.
	ExternalID *string

	// ERP-owned fields
	Code     string
	Name     string
	Price    decimal.Decimal
	Stock    decimal.Decimal
	Category Category

	// Delisted hides the product from customer-facing views while keeping
	// the row resolvable for historical order references.
	Delisted bool

	// Local-owned fields, never overwritten by sync
	Featured  bool
	Highlight string
	Notes     string
	ImagePath string

	LastSyncedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewProductFromRemote creates a product from an ERP item record, populating
// ERP-owned fields and leaving local-owned fields at their defaults.
func NewProductFromRemote(externalID string, fields erp.ItemFields, inactive bool, now time.Time) *Product {
	id := externalID
	return &Product{
		ID:           uuid.New(),
		ExternalID:   &id,
		Code:         fields.Code,
		Name:         fields.Name,
		Price:        fields.Price,
		Stock:        fields.Stock,
		Category:     MapCategory(fields.Category),
		Delisted:     inactive,
		LastSyncedAt: &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ApplyRemote overwrites the ERP-owned fields from an item record and bumps
// LastSyncedAt. Local-owned fields are left untouched. An upstream-inactive
// record delists the product; it is never deleted.
func (p *Product) ApplyRemote(fields erp.ItemFields, inactive bool, now time.Time) {
	p.Code = fields.Code
	p.Name = fields.Name
	p.Price = fields.Price
	p.Stock = fields.Stock
	p.Category = MapCategory(fields.Category)
	p.Delisted = inactive
	p.LastSyncedAt = &now
	p.UpdatedAt = now
}

// MatchesRemote reports whether the ERP-owned fields already equal the
// remote record, so a merge pass can skip the write.
func (p *Product) MatchesRemote(fields erp.ItemFields, inactive bool) bool {
	return p.Code == fields.Code &&
		p.Name == fields.Name &&
		p.Price.Equal(fields.Price) &&
		p.Stock.Equal(fields.Stock) &&
		p.Category == MapCategory(fields.Category) &&
		p.Delisted == inactive
}

// IsLinked returns true once the product is bound to an ERP record
func (p *Product) IsLinked() bool {
	return p.ExternalID != nil && *p.ExternalID != ""
}
