package catalog

import (
	"time"

	"github.com/google/uuid"

	"github.com/storefront/backend/internal/domain/erp"
)

// Customer is a wholesale account. The ERP owns company name, contact
// details, the assigned price list, and the on-hold flag; approval state and
// notes are local. A customer with no external ID originated in the
// storefront and is pending its first push.
type Customer struct {
	ID uuid.UUID

	ExternalID *string

	// ERP-owned fields
	CompanyName string
	Email       string
	Phone       string
	PriceListID string
	OnHold      bool

	Delisted bool

	// Local-owned fields
	Approved bool
	Notes    string

	LastSyncedAt *time.Time
	LastPushedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewCustomer creates a locally-originated customer pending its first push
func NewCustomer(companyName, email, phone string) *Customer {
	now := time.Now()
	return &Customer{
		ID:          uuid.New(),
		CompanyName: companyName,
		Email:       email,
		Phone:       phone,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewCustomerFromRemote creates a customer from an ERP contact record
func NewCustomerFromRemote(externalID string, fields erp.ContactFields, inactive bool, now time.Time) *Customer {
	id := externalID
	return &Customer{
		ID:           uuid.New(),
		ExternalID:   &id,
		CompanyName:  fields.CompanyName,
		Email:        fields.Email,
		Phone:        fields.Phone,
		PriceListID:  fields.PriceListID,
		OnHold:       fields.OnHold,
		Delisted:     inactive,
		LastSyncedAt: &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ApplyRemote overwrites the ERP-owned fields from a contact record and
// bumps LastSyncedAt. Approval state and notes are left untouched.
func (c *Customer) ApplyRemote(fields erp.ContactFields, inactive bool, now time.Time) {
	c.CompanyName = fields.CompanyName
	c.Email = fields.Email
	c.Phone = fields.Phone
	c.PriceListID = fields.PriceListID
	c.OnHold = fields.OnHold
	c.Delisted = inactive
	c.LastSyncedAt = &now
	c.UpdatedAt = now
}

// MatchesRemote reports whether the ERP-owned fields already equal the
// remote record.
func (c *Customer) MatchesRemote(fields erp.ContactFields, inactive bool) bool {
	return c.CompanyName == fields.CompanyName &&
		c.Email == fields.Email &&
		c.Phone == fields.Phone &&
		c.PriceListID == fields.PriceListID &&
		c.OnHold == fields.OnHold &&
		c.Delisted == inactive
}

// BindExternal records the remote identifier assigned by a successful push
func (c *Customer) BindExternal(externalID string, now time.Time) {
	id := externalID
	c.ExternalID = &id
	c.LastPushedAt = &now
	c.UpdatedAt = now
}

// IsLinked returns true once the customer is bound to an ERP record
func (c *Customer) IsLinked() bool {
	return c.ExternalID != nil && *c.ExternalID != ""
}
