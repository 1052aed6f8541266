package model

import "time"

// Sync resource types.
const (
	ResourceProducts  = "products"
	ResourceCustomers = "customers"
)

// SyncCursor records the last synchronized point for one resource type.
// Since is an opaque token issued by the upstream; it only advances after the
// pulled delta has been fully applied to the local catalog.
type SyncCursor struct {
	Resource     string     `gorm:"primaryKey" json:"resource"`
	Since        string     `json:"since"`
	LastPulledAt *time.Time `json:"last_pulled_at,omitempty"`
	UpdatedAt    time.Time  `json:"-"`
}
