package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InsertReceipt stores one consumption receipt and returns its identifier.
func (s *Store) InsertReceipt(ctx context.Context, r *Receipt) (string, error) {
	if r == nil || strings.TrimSpace(r.Action) == "" {
		return "", fmt.Errorf("catalog: receipt action is required")
	}
	id := r.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO receipts (id, item_id, item_type, action, access_mode, access_format, access_uri, identity, metadata_json, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		r.ItemID,
		r.ItemType,
		r.Action,
		r.AccessMode,
		r.AccessFormat,
		r.AccessURI,
		r.Identity,
		nullableString(r.MetadataJSON),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert receipt: %w", err)
	}
	return id, nil
}

// CountReceipts returns the number of stored receipts, optionally scoped to
// an item.
func (s *Store) CountReceipts(ctx context.Context, itemID string) (int, error) {
	query := `SELECT COUNT(1) FROM receipts`
	var args []any
	if itemID != "" {
		query += ` WHERE item_id = ?`
		args = append(args, itemID)
	}
	var count int
	if err := s.db.QueryRowContext(ensureContext(ctx), query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count receipts: %w", err)
	}
	return count, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
