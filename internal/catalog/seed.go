package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"usher/internal/access"
)

// seedItem is the JSON shape of one catalog seed entry.
type seedItem struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Title      string          `json:"title"`
	Readiness  string          `json:"readiness,omitempty"`
	Access     *access.Payload `json:"access,omitempty"`
	Fallback   *access.Payload `json:"fallback,omitempty"`
	EtaSeconds int             `json:"etaSeconds,omitempty"`
}

// LoadSeed imports items from a JSON seed file. Entries without an explicit
// readiness start DEGRADED when they carry a fallback, PENDING otherwise.
// Items that are not READY get a ready_at of now plus their ETA (or
// defaultEta) so the preparer can promote them.
func (s *Store) LoadSeed(ctx context.Context, path string, defaultEta time.Duration) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	var entries []seedItem
	if err := json.Unmarshal(raw, &entries); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}

	now := time.Now().UTC()
	imported := 0
	for _, entry := range entries {
		if entry.ID == "" {
			continue
		}
		readiness, ok := access.ParseReadiness(entry.Readiness)
		if !ok {
			if entry.Fallback != nil {
				readiness = access.ReadinessDegraded
			} else {
				readiness = access.ReadinessPending
			}
		}
		item := &Item{
			ID:        entry.ID,
			Type:      entry.Type,
			Title:     entry.Title,
			Readiness: readiness,
			Access:    entry.Access,
			Fallback:  entry.Fallback,
		}
		if readiness != access.ReadinessReady && entry.Access != nil {
			eta := defaultEta
			if entry.EtaSeconds > 0 {
				eta = time.Duration(entry.EtaSeconds) * time.Second
			}
			readyAt := now.Add(eta)
			item.ReadyAt = &readyAt
		}
		if err := s.Upsert(ctx, item); err != nil {
			return imported, fmt.Errorf("seed item %q: %w", entry.ID, err)
		}
		imported++
	}
	return imported, nil
}
