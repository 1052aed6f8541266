package fiscal

import (
	"fmt"

	"kioskpos/internal/model"

	"github.com/shopspring/decimal"
)

// Tenders are the two buckets a fiscal device understands. After
// reconciliation Cash + Card + GiftDiscount always equals the sale total.
type Tenders struct {
	Cash decimal.Decimal
	Card decimal.Decimal
	// GiftDiscount is the gift-card amount converted into item discounts.
	GiftDiscount decimal.Decimal
}

// reconcilePayments converts a sale's payment lines into fiscal tenders and
// returns the item lines to print (copies — the sale is never mutated).
//
// Rules:
//   - gift_card payments are excluded from the tenders and injected back as
//     per-item discounts, distributed proportionally by line subtotal (the
//     last line absorbs the rounding remainder so the sum is exact);
//   - a credit sale with no payments is recorded as a cash tender equal to
//     the total (the device has no concept of an unpaid sale);
//   - cash and "other" methods go to the cash bucket, card to the card
//     bucket; change handed back to the customer is deducted from cash.
func reconcilePayments(sale *model.Sale) (Tenders, []model.SaleItem, error) {
	var t Tenders
	t.Cash = decimal.Zero
	t.Card = decimal.Zero
	t.GiftDiscount = decimal.Zero

	paid := decimal.Zero
	for _, p := range sale.Payments {
		paid = paid.Add(p.Amount)
		switch p.Method {
		case "gift_card":
			t.GiftDiscount = t.GiftDiscount.Add(p.Amount)
		case "card":
			t.Card = t.Card.Add(p.Amount)
		case "cash", "other":
			t.Cash = t.Cash.Add(p.Amount)
		case "credit":
			// unpaid portion — not a device tender
		default:
			return t, nil, fmt.Errorf("fiscal: unknown payment method %q", p.Method)
		}
	}

	if sale.PaymentStatus == "credit" && len(sale.Payments) == 0 {
		t.Cash = sale.Total
		return t, cloneItems(sale.Items), nil
	}

	// Change is always given from the cash drawer.
	change := paid.Sub(sale.Total)
	if change.IsPositive() {
		t.Cash = t.Cash.Sub(change)
		if t.Cash.IsNegative() {
			// Card overpayment edge: absorb the rest from the card bucket.
			t.Card = t.Card.Add(t.Cash)
			t.Cash = decimal.Zero
		}
	}

	items := cloneItems(sale.Items)
	if t.GiftDiscount.IsPositive() {
		if err := distributeDiscount(items, t.GiftDiscount); err != nil {
			return t, nil, err
		}
	}
	return t, items, nil
}

// distributeDiscount spreads amount across items proportionally to their
// subtotal, rounding each share to 2 decimals and assigning the remainder to
// the last line so the injected discounts sum to exactly amount.
func distributeDiscount(items []model.SaleItem, amount decimal.Decimal) error {
	base := decimal.Zero
	for _, it := range items {
		base = base.Add(it.Subtotal())
	}
	if !base.IsPositive() {
		return fmt.Errorf("fiscal: cannot distribute discount %s over zero-value items", amount)
	}
	if amount.GreaterThan(base) {
		return fmt.Errorf("fiscal: gift discount %s exceeds item value %s", amount, base)
	}

	remaining := amount
	for i := range items {
		var share decimal.Decimal
		if i == len(items)-1 {
			share = remaining
		} else {
			share = amount.Mul(items[i].Subtotal()).Div(base).Round(2)
			if share.GreaterThan(remaining) {
				share = remaining
			}
		}
		items[i].Discount = items[i].Discount.Add(share)
		remaining = remaining.Sub(share)
	}
	return nil
}

func cloneItems(items []model.SaleItem) []model.SaleItem {
	out := make([]model.SaleItem, len(items))
	copy(out, items)
	return out
}
