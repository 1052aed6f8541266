package dto

import (
	"kioskpos/internal/model"
)

// RegisterRequest is sent once at daemon start to announce the device.
type RegisterRequest struct {
	BranchID   string `json:"branch_id"`
	DeviceName string `json:"device_name"`
}

// RegisterResponse carries the remote sync configuration. Zero-valued
// intervals mean "keep the local default".
type RegisterResponse struct {
	DeviceID             string `json:"device_id"`
	HeartbeatIntervalSec int    `json:"heartbeat_interval_sec"`
	DeltaIntervalSec     int    `json:"delta_interval_sec"`
}

// ProductDelta is the upstream response for a product delta pull.
type ProductDelta struct {
	Changed    []model.Product `json:"changed"`
	DeletedIDs []string        `json:"deleted_ids"`
	Cursor     string          `json:"cursor"`
}

// CustomerDelta is the upstream response for a customer delta pull.
type CustomerDelta struct {
	Changed    []model.Customer `json:"changed"`
	DeletedIDs []string         `json:"deleted_ids"`
	Cursor     string           `json:"cursor"`
}

// SaleUploadResult is the upstream acknowledgment for one uploaded sale.
type SaleUploadResult struct {
	LocalID  string `json:"local_id"`
	ServerID string `json:"server_id"`
	Status   string `json:"status"` // accepted | duplicate
}

// SaleStatusResponse answers the reconciliation check for a local sale id.
type SaleStatusResponse struct {
	LocalID  string `json:"local_id"`
	Exists   bool   `json:"exists"`
	ServerID string `json:"server_id,omitempty"`
}
