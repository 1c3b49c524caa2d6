package catalog

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"usher/internal/access"
)

// Item is a catalog entry persisted in SQLite. Access holds the optimal
// descriptor once prepared; Fallback is the degraded descriptor served
// while preparation is in flight. ReadyAt is when the optimal access
// becomes (or became) servable.
type Item struct {
	ID        string
	Type      string
	Title     string
	Readiness access.Readiness
	Access    *access.Payload
	Fallback  *access.Payload
	ReadyAt   *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpgradeEta returns the remaining preparation time, zero when none is
// pending.
func (i *Item) UpgradeEta(now time.Time) time.Duration {
	if i.ReadyAt == nil || i.Readiness == access.ReadinessReady {
		return 0
	}
	eta := i.ReadyAt.Sub(now)
	if eta < 0 {
		return 0
	}
	return eta
}

// Receipt is one consumption record accepted from a client.
type Receipt struct {
	ID           string
	ItemID       string
	ItemType     string
	Action       string
	AccessMode   string
	AccessFormat string
	AccessURI    string
	Identity     string
	MetadataJSON string
	CreatedAt    time.Time
}

var titleCaser = cases.Title(language.English, cases.NoLower)

// NormalizeTitle trims and title-cases an item title for display. Existing
// interior capitalization is preserved.
func NormalizeTitle(title string) string {
	trimmed := strings.Join(strings.Fields(title), " ")
	if trimmed == "" {
		return ""
	}
	return titleCaser.String(trimmed)
}
