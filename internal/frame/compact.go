package frame

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"usher/internal/access"
)

// compactFrame is the JSON shape used on transports that forbid binary
// payloads. Payload sections are base64-wrapped JSON so the envelope stays a
// flat object. There is no checksum: the form is reserved for transports
// that already guarantee integrity.
type compactFrame struct {
	ID        string `json:"id"`
	Readiness byte   `json:"r"`
	Access    string `json:"a,omitempty"`
	Fallback  string `json:"f,omitempty"`
	Timestamp int64  `json:"t"`
}

// EncodeCompact serializes the frame to its compact JSON form. Headers and
// checksum are not carried.
func EncodeCompact(f *Frame) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("frame: nil frame")
	}
	if !f.Readiness.Known() {
		return nil, fmt.Errorf("%w: %d", ErrBadReadiness, f.Readiness)
	}
	compact := compactFrame{
		ID:        f.ItemID,
		Readiness: f.Readiness.Code(),
		Timestamp: f.Timestamp,
	}
	if compact.Timestamp == 0 {
		compact.Timestamp = time.Now().UnixMilli()
	}
	if f.Access != nil {
		raw, err := json.Marshal(f.Access)
		if err != nil {
			return nil, fmt.Errorf("frame: marshal access payload: %w", err)
		}
		compact.Access = base64.StdEncoding.EncodeToString(raw)
	}
	if f.Fallback != nil {
		raw, err := json.Marshal(f.Fallback)
		if err != nil {
			return nil, fmt.Errorf("frame: marshal fallback payload: %w", err)
		}
		compact.Fallback = base64.StdEncoding.EncodeToString(raw)
	}
	return json.Marshal(compact)
}

// DecodeCompact parses the compact JSON form. Frames from this form are
// always Valid.
func DecodeCompact(data []byte) (*Frame, error) {
	var compact compactFrame
	if err := json.Unmarshal(data, &compact); err != nil {
		return nil, fmt.Errorf("%w: envelope: %w", ErrBadPayload, err)
	}
	readiness, ok := access.ReadinessFromCode(compact.Readiness)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrBadReadiness, compact.Readiness)
	}
	f := &Frame{
		Version:   Version,
		ItemID:    compact.ID,
		Readiness: readiness,
		Timestamp: compact.Timestamp,
		Valid:     true,
	}
	if f.Timestamp == 0 {
		f.Timestamp = time.Now().UnixMilli()
	}
	decodeSection := func(encoded, name string) (*access.Payload, error) {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: %s base64: %w", ErrBadPayload, name, err)
		}
		payload := new(access.Payload)
		if err := json.Unmarshal(raw, payload); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrBadPayload, name, err)
		}
		return payload, nil
	}
	if compact.Access != "" {
		payload, err := decodeSection(compact.Access, "access")
		if err != nil {
			return nil, err
		}
		f.Access = payload
		f.Flags |= FlagHasAccess
	}
	if compact.Fallback != "" {
		payload, err := decodeSection(compact.Fallback, "fallback")
		if err != nil {
			return nil, err
		}
		f.Fallback = payload
		f.Flags |= FlagHasFallback
	}
	return f, nil
}
