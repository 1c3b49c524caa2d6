package ipc

import "usher/internal/api"

// Item mirrors the HTTP API item DTO for internal IPC callers.
type Item = api.Item

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon runtime information.
type StatusResponse struct {
	Running         bool           `json:"running"`
	PID             int            `json:"pid"`
	DatabasePath    string         `json:"database_path"`
	LockPath        string         `json:"lock_path"`
	ItemStats       map[string]int `json:"item_stats"`
	PushSubscribers int            `json:"push_subscribers"`
	FramesPublished uint64         `json:"frames_published"`
	Lanes           []string       `json:"lanes"`
}

// StopRequest stops the daemon.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// ItemListRequest filters item listing by readiness names.
type ItemListRequest struct {
	Readiness []string `json:"readiness"`
}

// ItemListResponse contains catalog entries.
type ItemListResponse struct {
	Items []Item `json:"items"`
}

// ItemDescribeRequest fetches a single item by id.
type ItemDescribeRequest struct {
	ID string `json:"id"`
}

// ItemDescribeResponse contains a single catalog entry.
type ItemDescribeResponse struct {
	Item Item `json:"item"`
}

// PromoteRequest forces an item READY.
type PromoteRequest struct {
	ID string `json:"id"`
}

// PromoteResponse reports whether the item changed state.
type PromoteResponse struct {
	Promoted bool `json:"promoted"`
}
