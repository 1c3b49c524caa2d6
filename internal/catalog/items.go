package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"usher/internal/access"
)

const itemColumns = `id, item_type, title, readiness, access_json, fallback_json, ready_at, created_at, updated_at`

// Upsert inserts or replaces a catalog item. Timestamps are managed here;
// CreatedAt of an existing row is preserved.
func (s *Store) Upsert(ctx context.Context, item *Item) error {
	if item == nil || strings.TrimSpace(item.ID) == "" {
		return errors.New("catalog: item id is required")
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	accessJSON, err := marshalPayload(item.Access)
	if err != nil {
		return fmt.Errorf("marshal access: %w", err)
	}
	fallbackJSON, err := marshalPayload(item.Fallback)
	if err != nil {
		return fmt.Errorf("marshal fallback: %w", err)
	}

	_, err = s.execWithRetry(ctx,
		`INSERT INTO items (id, item_type, title, readiness, access_json, fallback_json, ready_at, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
            item_type = excluded.item_type,
            title = excluded.title,
            readiness = excluded.readiness,
            access_json = excluded.access_json,
            fallback_json = excluded.fallback_json,
            ready_at = excluded.ready_at,
            updated_at = excluded.updated_at`,
		item.ID,
		item.Type,
		NormalizeTitle(item.Title),
		item.Readiness.String(),
		accessJSON,
		fallbackJSON,
		nullableTime(item.ReadyAt),
		timestamp,
		timestamp,
	)
	if err != nil {
		return fmt.Errorf("upsert item: %w", err)
	}
	return nil
}

// GetByID fetches an item by identifier, returning nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// List returns items, optionally filtered to the given readiness levels,
// ordered by identifier.
func (s *Store) List(ctx context.Context, levels ...access.Readiness) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items`
	var args []any
	if len(levels) > 0 {
		placeholders := make([]string, len(levels))
		for i, level := range levels {
			placeholders[i] = "?"
			args = append(args, level.String())
		}
		query += ` WHERE readiness IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DuePromotions returns items whose optimal access is present and whose
// preparation window has elapsed but are not READY yet.
func (s *Store) DuePromotions(ctx context.Context, now time.Time) ([]*Item, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+itemColumns+` FROM items
         WHERE readiness != ? AND access_json IS NOT NULL
           AND ready_at IS NOT NULL AND ready_at <= ?
         ORDER BY ready_at`,
		access.ReadinessReady.String(),
		now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("query due promotions: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Promote marks an item READY. It reports whether a row changed.
func (s *Store) Promote(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE items SET readiness = ?, ready_at = NULL, updated_at = ? WHERE id = ? AND readiness != ?`,
		access.ReadinessReady.String(),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		access.ReadinessReady.String(),
	)
	if err != nil {
		return false, fmt.Errorf("promote item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Stats returns item counts keyed by readiness name.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT readiness, COUNT(1) FROM items GROUP BY readiness`)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var readiness string
		var count int
		if err := rows.Scan(&readiness, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[readiness] = count
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var (
		item         Item
		readiness    string
		accessJSON   sql.NullString
		fallbackJSON sql.NullString
		readyAt      sql.NullString
		createdAt    string
		updatedAt    string
	)
	if err := row.Scan(
		&item.ID, &item.Type, &item.Title, &readiness,
		&accessJSON, &fallbackJSON, &readyAt, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	if parsed, ok := access.ParseReadiness(readiness); ok {
		item.Readiness = parsed
	}
	var err error
	if item.Access, err = unmarshalPayload(accessJSON); err != nil {
		return nil, fmt.Errorf("access payload: %w", err)
	}
	if item.Fallback, err = unmarshalPayload(fallbackJSON); err != nil {
		return nil, fmt.Errorf("fallback payload: %w", err)
	}
	if readyAt.Valid && readyAt.String != "" {
		if ts, err := time.Parse(time.RFC3339Nano, readyAt.String); err == nil {
			item.ReadyAt = &ts
		}
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		item.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		item.UpdatedAt = ts
	}
	return &item, nil
}

func marshalPayload(p *access.Payload) (any, error) {
	if p == nil {
		return nil, nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func unmarshalPayload(value sql.NullString) (*access.Payload, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	payload := new(access.Payload)
	if err := json.Unmarshal([]byte(value.String), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
