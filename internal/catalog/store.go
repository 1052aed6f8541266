// Package catalog maintains the kiosk's local mirror of the product and
// customer catalogs. Records only change through delta application driven by
// the sync orchestrator.
package catalog

import (
	"context"

	"kioskpos/internal/dto"
	"kioskpos/internal/model"
)

// Store is the "apply delta" contract the sync orchestrator consumes. Each
// apply is all-or-nothing for its cycle: on error no partial delta is visible
// and the caller must not advance the cursor.
type Store interface {
	ApplyProductDelta(ctx context.Context, delta *dto.ProductDelta) error
	ApplyCustomerDelta(ctx context.Context, delta *dto.CustomerDelta) error

	// Local search fallback for when the upstream is unreachable.
	SearchProducts(ctx context.Context, query string, limit int) ([]model.Product, error)
	SearchCustomers(ctx context.Context, query string, limit int) ([]model.Customer, error)
}
