package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus: "paid" | "credit" | "partial"
// PaymentMethod: "cash" | "card" | "gift_card" | "other" | "credit"

// Sale is the canonical sale record created by the kiosk UI.
// Immutable after creation except for ServerID (set once by the sync
// orchestrator when the upstream accepts it) and Fiscal (set once by the
// fiscal printer adapter). Totals are validated by the caller at creation:
// sum(items.subtotal) - discount_total + tax_total == total.
type Sale struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	// LocalID is client-assigned, unique, and stable across retries.
	// The upstream deduplicates replays on it.
	LocalID    string  `gorm:"uniqueIndex;not null" json:"local_id"`
	ServerID   *string `gorm:"index" json:"server_id,omitempty"`
	BranchID   string  `gorm:"not null" json:"branch_id"`
	CustomerID *string `json:"customer_id,omitempty"`

	Items    []SaleItem `gorm:"foreignKey:SaleID" json:"items"`
	Payments []Payment  `gorm:"foreignKey:SaleID" json:"payments"`

	Subtotal      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	DiscountTotal decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"discount_total"`
	TaxTotal      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"tax_total"`
	Total         decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`

	PaymentStatus string `gorm:"type:varchar(20);not null" json:"payment_status"`

	Fiscal *FiscalPrintResult `gorm:"embedded;embeddedPrefix:fiscal_" json:"fiscal,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// SaleItem is one line of a sale.
type SaleItem struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	SaleID    uuid.UUID `gorm:"type:uuid;index;not null" json:"-"`
	ProductID string    `gorm:"not null" json:"product_id"`
	VariantID *string   `json:"variant_id,omitempty"`
	Name      string    `gorm:"not null" json:"name"`
	// Quantity supports fractional units (weighed goods), 3-decimal precision.
	Quantity  decimal.Decimal `gorm:"type:decimal(12,3);not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	Discount  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"discount"`
}

// Subtotal returns quantity*unit_price - discount for the line.
func (i SaleItem) Subtotal() decimal.Decimal {
	return i.Quantity.Mul(i.UnitPrice).Sub(i.Discount)
}

// Payment is one tender line of a sale.
// For a "paid" sale sum(payments) >= total; a pure "credit" sale has none.
type Payment struct {
	ID     uuid.UUID       `gorm:"type:uuid;primaryKey" json:"-"`
	SaleID uuid.UUID       `gorm:"type:uuid;index;not null" json:"-"`
	Method string          `gorm:"type:varchar(20);not null" json:"method"`
	Amount decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
}

// FiscalPrintResult is the normalized outcome of a fiscal print attempt,
// identical in shape regardless of which provider produced it.
type FiscalPrintResult struct {
	Success bool `json:"success"`
	// DocumentNumber is the short fiscal receipt number; DocumentID is the
	// long-form provider-specific identifier.
	DocumentNumber string `json:"document_number,omitempty"`
	DocumentID     string `json:"document_id,omitempty"`
	Error          string `json:"error,omitempty"`
	Provider       string `json:"provider"`
	ResponseTimeMs int64  `json:"response_time_ms"`
}
