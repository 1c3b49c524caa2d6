package api

import (
	"usher/internal/access"
)

// ManifestResponse is the payload of GET /api/access/{itemId}.
type ManifestResponse struct {
	ItemID   string          `json:"itemId"`
	ItemType string          `json:"itemType"`
	Title    string          `json:"title"`
	Access   *access.Payload `json:"access,omitempty"`
}

// GradedManifestResponse is the payload of GET /api/access/{itemId}/graded.
// It extends the plain manifest with the readiness grade, the fallback
// descriptor, and the estimated time until the optimal access is prepared.
type GradedManifestResponse struct {
	ManifestResponse
	Readiness       string          `json:"readiness"`
	Fallback        *access.Payload `json:"fallback,omitempty"`
	UpgradeEtaMilli int64           `json:"upgradeEta,omitempty"`
}

// BatchRequest is the payload of POST /api/access/batch.
type BatchRequest struct {
	ItemIDs  []string `json:"itemIds"`
	Priority string   `json:"priority,omitempty"`
}

// BatchResult is one per-item entry of a batch response.
type BatchResult struct {
	ItemID    string          `json:"itemId"`
	Readiness string          `json:"readiness"`
	Access    *access.Payload `json:"access,omitempty"`
	Fallback  *access.Payload `json:"fallback,omitempty"`
	EtaMilli  int64           `json:"eta,omitempty"`
}

// BatchError reports a per-item batch failure.
type BatchError struct {
	ItemID string `json:"itemId"`
	Error  string `json:"error"`
}

// BatchResponse is the payload of POST /api/access/batch.
type BatchResponse struct {
	Results []BatchResult `json:"results"`
	Errors  []BatchError  `json:"errors,omitempty"`
}

// ReceiptRequest is the payload of POST /api/access/receipt.
type ReceiptRequest struct {
	ItemID       string            `json:"itemId,omitempty"`
	ItemType     string            `json:"itemType"`
	Action       string            `json:"action"`
	AccessMode   string            `json:"accessMode,omitempty"`
	AccessFormat string            `json:"accessFormat,omitempty"`
	AccessURI    string            `json:"accessUri,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ReceiptResponse acknowledges a stored receipt.
type ReceiptResponse struct {
	ReceiptID string `json:"receiptId"`
}

// Item is the catalog item view exposed to status surfaces.
type Item struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	Title           string `json:"title"`
	Readiness       string `json:"readiness"`
	HasAccess       bool   `json:"hasAccess"`
	HasFallback     bool   `json:"hasFallback"`
	UpgradeEtaMilli int64  `json:"upgradeEta,omitempty"`
	UpdatedAt       string `json:"updatedAt,omitempty"`
}

// ItemListResponse wraps a collection of catalog items.
type ItemListResponse struct {
	Items []Item `json:"items"`
}

// ItemResponse wraps a single catalog item.
type ItemResponse struct {
	Item Item `json:"item"`
}

// StatusResponse aggregates daemon runtime information.
type StatusResponse struct {
	Running         bool           `json:"running"`
	PID             int            `json:"pid"`
	DatabasePath    string         `json:"databasePath"`
	LockFilePath    string         `json:"lockFilePath"`
	ItemStats       map[string]int `json:"itemStats"`
	PushSubscribers int            `json:"pushSubscribers"`
	FramesPublished uint64         `json:"framesPublished"`
	Lanes           []string       `json:"lanes"`
}

// ErrorResponse is the uniform error envelope of the HTTP API.
type ErrorResponse struct {
	Error string `json:"error"`
}
