package frame

import (
	"strings"
	"time"

	"usher/internal/access"
)

// Version is the current wire protocol version.
const Version = 1

// Flags is the frame flag bitmask declaring which optional sections are
// present and how the frame should be interpreted.
type Flags uint8

const (
	FlagHasAccess Flags = 1 << iota
	FlagHasFallback
	FlagHasHeaders
	FlagIsDelta
	FlagIsCompressed
	FlagRequiresAuth
)

// Has reports whether all bits in mask are set.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

// String renders the set flag names for logs.
func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	names := make([]string, 0, 6)
	for _, entry := range []struct {
		bit  Flags
		name string
	}{
		{FlagHasAccess, "access"},
		{FlagHasFallback, "fallback"},
		{FlagHasHeaders, "headers"},
		{FlagIsDelta, "delta"},
		{FlagIsCompressed, "compressed"},
		{FlagRequiresAuth, "auth"},
	} {
		if f.Has(entry.bit) {
			names = append(names, entry.name)
		}
	}
	return strings.Join(names, "|")
}

// Frame is one decoded access update. Valid is computed on decode and never
// transmitted: it is false when the checksum did not match.
type Frame struct {
	Version   uint8
	Flags     Flags
	ItemID    string
	Readiness access.Readiness
	Access    *access.Payload
	Fallback  *access.Payload
	Headers   map[string]string
	Timestamp int64 // epoch millis
	Checksum  uint32
	Valid     bool
}

// New builds a frame for the given item with the current timestamp. Flags
// for the optional sections are derived from which payloads are attached
// during Encode.
func New(itemID string, readiness access.Readiness) *Frame {
	return &Frame{
		Version:   Version,
		ItemID:    itemID,
		Readiness: readiness,
		Timestamp: time.Now().UnixMilli(),
		Valid:     true,
	}
}

// Age returns how old the frame is relative to now.
func (f *Frame) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(f.Timestamp))
}

// Expired reports whether the frame is older than maxAge. A non-positive
// maxAge disables expiry checking.
func (f *Frame) Expired(maxAge time.Duration, now time.Time) bool {
	if maxAge <= 0 {
		return false
	}
	return f.Age(now) > maxAge
}
