package dto

import (
	"kioskpos/internal/model"

	"github.com/shopspring/decimal"
)

// SaleItemRequest is one line of a sale coming from the kiosk UI.
type SaleItemRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	VariantID *string         `json:"variant_id"`
	Name      string          `json:"name" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"min=0"`
	Discount  decimal.Decimal `json:"discount" validate:"min=0"`
}

// PaymentRequest is one tender line coming from the kiosk UI.
type PaymentRequest struct {
	Method string          `json:"method" validate:"required,oneof=cash card gift_card other credit"`
	Amount decimal.Decimal `json:"amount" validate:"min=0"`
}

// CreateSaleRequest finalizes a sale: it is durably queued for upload and,
// unless skip_fiscal is set, sent to the fiscal printer. The UI computes and
// validates the totals; the core trusts them.
type CreateSaleRequest struct {
	LocalID       string            `json:"local_id" validate:"required"`
	CustomerID    *string           `json:"customer_id"`
	Items         []SaleItemRequest `json:"items" validate:"required,min=1,dive"`
	Payments      []PaymentRequest  `json:"payments" validate:"dive"`
	Subtotal      decimal.Decimal   `json:"subtotal" validate:"min=0"`
	DiscountTotal decimal.Decimal   `json:"discount_total" validate:"min=0"`
	TaxTotal      decimal.Decimal   `json:"tax_total" validate:"min=0"`
	Total         decimal.Decimal   `json:"total" validate:"min=0"`
	PaymentStatus string            `json:"payment_status" validate:"required,oneof=paid credit partial"`
	SkipFiscal    bool              `json:"skip_fiscal"`
}

// CreateSaleResponse reports the queue and fiscal outcome. A fiscal failure
// never blocks sale completion — the sale is queued regardless and the
// failure is recorded in the result for the UI to surface.
type CreateSaleResponse struct {
	LocalID string                   `json:"local_id"`
	Queued  bool                     `json:"queued"`
	Fiscal  *model.FiscalPrintResult `json:"fiscal,omitempty"`
}
