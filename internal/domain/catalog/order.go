package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the local lifecycle of a storefront order. Push state is
// tracked separately via ExternalID/LastPushedAt: a failed push leaves the
// order in its last good status with the push simply not flagged as sent.
type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "DRAFT"
	OrderStatusSubmitted OrderStatus = "SUBMITTED"
	OrderStatusApproved  OrderStatus = "APPROVED"
	OrderStatusInvoiced  OrderStatus = "INVOICED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// IsValid returns true if the status is a known order status
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusDraft, OrderStatusSubmitted, OrderStatusApproved,
		OrderStatusInvoiced, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Order is a storefront order. Orders originate locally; approval enqueues a
// push job, and a successful push binds the ERP's sales-order identifier.
type Order struct {
	ID         uuid.UUID
	CustomerID uuid.UUID

	ExternalID *string

	Number string
	Status OrderStatus
	Total  decimal.Decimal

	ApprovedAt   *time.Time
	LastPushedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BindExternal records the remote identifier assigned by a successful push
func (o *Order) BindExternal(externalID string, now time.Time) {
	id := externalID
	o.ExternalID = &id
	o.LastPushedAt = &now
	o.UpdatedAt = now
}

// IsPushed returns true once the order exists upstream
func (o *Order) IsPushed() bool {
	return o.ExternalID != nil && *o.ExternalID != ""
}
