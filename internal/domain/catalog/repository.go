package catalog

import (
	"context"

	"github.com/google/uuid"
)

// ProductRepository defines the persistence interface for products.
// Implementations return shared.ErrNotFound when no row matches.
type ProductRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)
	FindByExternalID(ctx context.Context, externalID string) (*Product, error)
	Save(ctx context.Context, product *Product) error
}

// CustomerRepository defines the persistence interface for customers
type CustomerRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Customer, error)
	FindByExternalID(ctx context.Context, externalID string) (*Customer, error)
	// FindByEmail matches on the primary account email
	FindByEmail(ctx context.Context, email string) (*Customer, error)
	Save(ctx context.Context, customer *Customer) error
}

// OrderRepository defines the persistence interface for orders
type OrderRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)
	Save(ctx context.Context, order *Order) error
}
