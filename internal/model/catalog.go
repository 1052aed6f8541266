package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the local mirror of a catalog product, maintained by delta sync.
// The upstream owns the record; the kiosk never mutates it outside a delta
// application.
type Product struct {
	ID      string          `gorm:"primaryKey" json:"id"`
	Barcode string          `gorm:"index" json:"barcode"`
	Name    string          `gorm:"index;not null" json:"name"`
	Price   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	TaxRate decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"tax_rate"`
	// No default tag: gorm skips zero-valued fields that carry one, which
	// would turn an upstream deactivation (Active=false) into Active=true.
	Active   bool      `gorm:"not null" json:"active"`
	SyncedAt time.Time `json:"-"`
}

// Customer is the local mirror of a customer record, maintained by delta sync.
type Customer struct {
	ID       string    `gorm:"primaryKey" json:"id"`
	Name     string    `gorm:"index;not null" json:"name"`
	Phone    *string   `json:"phone,omitempty"`
	Email    *string   `json:"email,omitempty"`
	SyncedAt time.Time `json:"-"`
}
