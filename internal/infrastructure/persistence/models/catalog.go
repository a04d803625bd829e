// Package models holds the gorm persistence models and their mapping to and
// from the domain entities.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storefront/backend/internal/domain/catalog"
)

// ProductModel is the persistence model for the Product domain entity
type ProductModel struct {
	ID           uuid.UUID       `gorm:"type:uuid;primary_key"`
	ExternalID   *string         `gorm:"type:varchar(100);uniqueIndex:idx_products_external_id"`
	Code         string          `gorm:"type:varchar(100);not null;index"`
	Name         string          `gorm:"type:varchar(255);not null"`
	Price        decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Stock        decimal.Decimal `gorm:"type:numeric(12,3);not null"`
	Category     string          `gorm:"type:varchar(50);not null"`
	Delisted     bool            `gorm:"not null;default:false;index"`
	Featured     bool            `gorm:"not null;default:false"`
	Highlight    string          `gorm:"type:varchar(255)"`
	Notes        string          `gorm:"type:text"`
	ImagePath    string          `gorm:"type:varchar(500)"`
	LastSyncedAt *time.Time      `gorm:"index"`
	CreatedAt    time.Time       `gorm:"not null"`
	UpdatedAt    time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the persistence model to a domain Product
func (m *ProductModel) ToDomain() *catalog.Product {
	return &catalog.Product{
		ID:           m.ID,
		ExternalID:   m.ExternalID,
		Code:         m.Code,
		Name:         m.Name,
		Price:        m.Price,
		Stock:        m.Stock,
		Category:     catalog.Category(m.Category),
		Delisted:     m.Delisted,
		Featured:     m.Featured,
		Highlight:    m.Highlight,
		Notes:        m.Notes,
		ImagePath:    m.ImagePath,
		LastSyncedAt: m.LastSyncedAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Product
func (m *ProductModel) FromDomain(p *catalog.Product) {
	m.ID = p.ID
	m.ExternalID = p.ExternalID
	m.Code = p.Code
	m.Name = p.Name
	m.Price = p.Price
	m.Stock = p.Stock
	m.Category = string(p.Category)
	m.Delisted = p.Delisted
	m.Featured = p.Featured
	m.Highlight = p.Highlight
	m.Notes = p.Notes
	m.ImagePath = p.ImagePath
	m.LastSyncedAt = p.LastSyncedAt
	m.CreatedAt = p.CreatedAt
	m.UpdatedAt = p.UpdatedAt
}

// CustomerModel is the persistence model for the Customer domain entity
type CustomerModel struct {
	ID           uuid.UUID  `gorm:"type:uuid;primary_key"`
	ExternalID   *string    `gorm:"type:varchar(100);uniqueIndex:idx_customers_external_id"`
	CompanyName  string     `gorm:"type:varchar(255);not null"`
	Email        string     `gorm:"type:varchar(255);not null;index"`
	Phone        string     `gorm:"type:varchar(50)"`
	PriceListID  string     `gorm:"type:varchar(100)"`
	OnHold       bool       `gorm:"not null;default:false"`
	Delisted     bool       `gorm:"not null;default:false"`
	Approved     bool       `gorm:"not null;default:false"`
	Notes        string     `gorm:"type:text"`
	LastSyncedAt *time.Time `gorm:"index"`
	LastPushedAt *time.Time
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CustomerModel) TableName() string {
	return "customers"
}

// ToDomain converts the persistence model to a domain Customer
func (m *CustomerModel) ToDomain() *catalog.Customer {
	return &catalog.Customer{
		ID:           m.ID,
		ExternalID:   m.ExternalID,
		CompanyName:  m.CompanyName,
		Email:        m.Email,
		Phone:        m.Phone,
		PriceListID:  m.PriceListID,
		OnHold:       m.OnHold,
		Delisted:     m.Delisted,
		Approved:     m.Approved,
		Notes:        m.Notes,
		LastSyncedAt: m.LastSyncedAt,
		LastPushedAt: m.LastPushedAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Customer
func (m *CustomerModel) FromDomain(c *catalog.Customer) {
	m.ID = c.ID
	m.ExternalID = c.ExternalID
	m.CompanyName = c.CompanyName
	m.Email = c.Email
	m.Phone = c.Phone
	m.PriceListID = c.PriceListID
	m.OnHold = c.OnHold
	m.Delisted = c.Delisted
	m.Approved = c.Approved
	m.Notes = c.Notes
	m.LastSyncedAt = c.LastSyncedAt
	m.LastPushedAt = c.LastPushedAt
	m.CreatedAt = c.CreatedAt
	m.UpdatedAt = c.UpdatedAt
}

// OrderModel is the persistence model for the Order domain entity
type OrderModel struct {
	ID           uuid.UUID       `gorm:"type:uuid;primary_key"`
	CustomerID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	ExternalID   *string         `gorm:"type:varchar(100);uniqueIndex:idx_orders_external_id"`
	Number       string          `gorm:"type:varchar(50);not null;uniqueIndex"`
	Status       string          `gorm:"type:varchar(20);not null;index"`
	Total        decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	ApprovedAt   *time.Time
	LastPushedAt *time.Time
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// ToDomain converts the persistence model to a domain Order
func (m *OrderModel) ToDomain() *catalog.Order {
	return &catalog.Order{
		ID:           m.ID,
		CustomerID:   m.CustomerID,
		ExternalID:   m.ExternalID,
		Number:       m.Number,
		Status:       catalog.OrderStatus(m.Status),
		Total:        m.Total,
		ApprovedAt:   m.ApprovedAt,
		LastPushedAt: m.LastPushedAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Order
func (m *OrderModel) FromDomain(o *catalog.Order) {
	m.ID = o.ID
	m.CustomerID = o.CustomerID
	m.ExternalID = o.ExternalID
	m.Number = o.Number
	m.Status = string(o.Status)
	m.Total = o.Total
	m.ApprovedAt = o.ApprovedAt
	m.LastPushedAt = o.LastPushedAt
	m.CreatedAt = o.CreatedAt
	m.UpdatedAt = o.UpdatedAt
}
