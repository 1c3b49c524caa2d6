package access

import (
	"fmt"
	"strings"
)

// Mode describes how a renderer obtains the content behind a payload.
type Mode string

const (
	ModeStream  Mode = "stream"
	ModeFile    Mode = "file"
	ModeEmbed   Mode = "embed"
	ModeOpenWeb Mode = "openweb"
)

var knownModes = map[Mode]struct{}{
	ModeStream:  {},
	ModeFile:    {},
	ModeEmbed:   {},
	ModeOpenWeb: {},
}

// ParseMode converts a string into a known access mode.
func ParseMode(value string) (Mode, bool) {
	normalized := Mode(strings.ToLower(strings.TrimSpace(value)))
	_, ok := knownModes[normalized]
	return normalized, ok
}

// Payload is the resolved access descriptor for one mode. The Mode field is
// the discriminant: which of the remaining fields are meaningful depends on
// it, and Validate enforces the per-mode rules. Construct payloads through
// the mode-specific constructors to keep illegal combinations out.
type Payload struct {
	Mode      Mode              `json:"mode"`
	Format    string            `json:"format"`
	URI       string            `json:"uri,omitempty"`
	Embed     string            `json:"embed,omitempty"`
	OpenWeb   string            `json:"openWeb,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresAt int64             `json:"expiresAt,omitempty"`
	Quality   string            `json:"quality,omitempty"`
	Bitrate   int               `json:"bitrate,omitempty"`
}

// StreamPayload builds a payload pointing at a streaming transport manifest
// (hls, dash, ...).
func StreamPayload(format, uri string) Payload {
	return Payload{Mode: ModeStream, Format: format, URI: uri}
}

// FilePayload builds a payload pointing at a directly fetchable file.
func FilePayload(format, uri string) Payload {
	return Payload{Mode: ModeFile, Format: format, URI: uri}
}

// EmbedPayload builds a payload carrying embeddable markup or an embed URL.
func EmbedPayload(format, embed string) Payload {
	return Payload{Mode: ModeEmbed, Format: format, Embed: embed}
}

// OpenWebPayload builds a payload redirecting to an external web location.
func OpenWebPayload(format, url string) Payload {
	return Payload{Mode: ModeOpenWeb, Format: format, OpenWeb: url}
}

// Validate checks the per-mode field rules.
func (p Payload) Validate() error {
	if _, ok := knownModes[p.Mode]; !ok {
		return fmt.Errorf("access payload: unknown mode %q", p.Mode)
	}
	if strings.TrimSpace(p.Format) == "" {
		return fmt.Errorf("access payload: format is required")
	}
	switch p.Mode {
	case ModeStream, ModeFile:
		if strings.TrimSpace(p.URI) == "" {
			return fmt.Errorf("access payload: mode %q requires uri", p.Mode)
		}
	case ModeEmbed:
		if strings.TrimSpace(p.Embed) == "" && strings.TrimSpace(p.URI) == "" {
			return fmt.Errorf("access payload: mode embed requires embed content or uri")
		}
	case ModeOpenWeb:
		if strings.TrimSpace(p.OpenWeb) == "" {
			return fmt.Errorf("access payload: mode openweb requires openWeb url")
		}
	}
	return nil
}

// WithHeaders returns a copy of the payload carrying the given headers.
func (p Payload) WithHeaders(headers map[string]string) Payload {
	if len(headers) == 0 {
		return p
	}
	cp := make(map[string]string, len(headers))
	for k, v := range headers {
		cp[k] = v
	}
	p.Headers = cp
	return p
}

// Manifest is the resolved descriptor handed to rendering collaborators.
type Manifest struct {
	ItemID   string   `json:"itemId"`
	ItemType string   `json:"itemType,omitempty"`
	Title    string   `json:"title,omitempty"`
	Payload  *Payload `json:"access,omitempty"`
}
