package testsupport

import (
	"context"
	"testing"
	"time"

	"usher/internal/access"
	"usher/internal/catalog"
	"usher/internal/config"
)

// MustOpenStore opens a catalog.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedItem inserts a catalog item for tests and returns it.
func SeedItem(t testing.TB, store *catalog.Store, id string, readiness access.Readiness, accessPayload, fallback *access.Payload) *catalog.Item {
	t.Helper()

	item := &catalog.Item{
		ID:        id,
		Type:      "track",
		Title:     id,
		Readiness: readiness,
		Access:    accessPayload,
		Fallback:  fallback,
	}
	if readiness != access.ReadinessReady && accessPayload != nil {
		readyAt := time.Now().Add(time.Minute)
		item.ReadyAt = &readyAt
	}
	if err := store.Upsert(context.Background(), item); err != nil {
		t.Fatalf("store.Upsert: %v", err)
	}
	return item
}
