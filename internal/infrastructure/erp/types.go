package erp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/storefront/backend/internal/domain/erp"
)

// Wire types for the ERP's REST API. Every record carries the shared
// envelope fields plus a custom-field map keyed by label.

type pageEnvelope struct {
	Records []json.RawMessage `json:"records"`
	HasMore bool              `json:"has_more"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"` // seconds
}

type pushResponse struct {
	ID string `json:"id"`
}

type itemRecord struct {
	ID           string            `json:"id"`
	ModifiedAt   time.Time         `json:"modified_at"`
	Inactive     bool              `json:"inactive"`
	Code         string            `json:"code"`
	Name         string            `json:"name"`
	Price        decimal.Decimal   `json:"price"`
	Stock        decimal.Decimal   `json:"stock"`
	ItemGroup    string            `json:"item_group"`
	CustomFields map[string]string `json:"custom_fields"`
}

type contactRecord struct {
	ID           string            `json:"id"`
	ModifiedAt   time.Time         `json:"modified_at"`
	Inactive     bool              `json:"inactive"`
	CompanyName  string            `json:"company_name"`
	Email        string            `json:"email"`
	Phone        string            `json:"phone"`
	PriceListID  string            `json:"price_list_id"`
	OnHold       bool              `json:"on_hold"`
	Persons      []contactPerson   `json:"persons"`
	CustomFields map[string]string `json:"custom_fields"`
}

type contactPerson struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type invoiceRecord struct {
	ID         string          `json:"id"`
	ModifiedAt time.Time       `json:"modified_at"`
	Inactive   bool            `json:"inactive"`
	Number     string          `json:"number"`
	Total      decimal.Decimal `json:"total"`
	IssuedAt   time.Time       `json:"issued_at"`
}

// decodeRecord maps one wire record onto the domain record type, resolving
// table-driven attributes (category, price list) from custom fields with
// their standard-field fallbacks.
func decodeRecord(kind erp.RecordKind, raw json.RawMessage, attrs erp.AttributeTable) (erp.ExternalRecord, error) {
	switch kind {
	case erp.KindItem:
		var rec itemRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return erp.ExternalRecord{}, fmt.Errorf("%w: decode item: %v", erp.ErrValidation, err)
		}
		if rec.ID == "" {
			return erp.ExternalRecord{}, fmt.Errorf("%w: item without id", erp.ErrValidation)
		}
		category, _ := attrs.Resolve("category", rec.CustomFields, map[string]string{
			"item_group": rec.ItemGroup,
		})
		return erp.ExternalRecord{
			ExternalID: rec.ID,
			Kind:       erp.KindItem,
			ModifiedAt: rec.ModifiedAt,
			Inactive:   rec.Inactive,
			Item: &erp.ItemFields{
				Code:     rec.Code,
				Name:     rec.Name,
				Price:    rec.Price,
				Stock:    rec.Stock,
				Category: category,
			},
		}, nil

	case erp.KindContact:
		var rec contactRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return erp.ExternalRecord{}, fmt.Errorf("%w: decode contact: %v", erp.ErrValidation, err)
		}
		if rec.ID == "" {
			return erp.ExternalRecord{}, fmt.Errorf("%w: contact without id", erp.ErrValidation)
		}
		priceList, _ := attrs.Resolve("price_list", rec.CustomFields, map[string]string{
			"price_list_id": rec.PriceListID,
		})
		emails := make([]string, 0, len(rec.Persons))
		for _, p := range rec.Persons {
			if p.Email != "" {
				emails = append(emails, p.Email)
			}
		}
		return erp.ExternalRecord{
			ExternalID: rec.ID,
			Kind:       erp.KindContact,
			ModifiedAt: rec.ModifiedAt,
			Inactive:   rec.Inactive,
			Contact: &erp.ContactFields{
				CompanyName:   rec.CompanyName,
				Email:         rec.Email,
				Phone:         rec.Phone,
				PriceListID:   priceList,
				OnHold:        rec.OnHold,
				ContactEmails: emails,
			},
		}, nil

	case erp.KindInvoice:
		var rec invoiceRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return erp.ExternalRecord{}, fmt.Errorf("%w: decode invoice: %v", erp.ErrValidation, err)
		}
		if rec.ID == "" {
			return erp.ExternalRecord{}, fmt.Errorf("%w: invoice without id", erp.ErrValidation)
		}
		return erp.ExternalRecord{
			ExternalID: rec.ID,
			Kind:       erp.KindInvoice,
			ModifiedAt: rec.ModifiedAt,
			Inactive:   rec.Inactive,
			Invoice: &erp.InvoiceFields{
				Number:   rec.Number,
				Total:    rec.Total,
				IssuedAt: rec.IssuedAt,
			},
		}, nil

	default:
		return erp.ExternalRecord{}, fmt.Errorf("%w: unknown record kind %q", erp.ErrValidation, kind)
	}
}
