package frame_test

import (
	"errors"
	"testing"
	"time"

	"usher/internal/access"
	"usher/internal/frame"
)

func sampleFrame() *frame.Frame {
	f := frame.New("item-42", access.ReadinessReady)
	accessPayload := access.StreamPayload("hls", "https://cdn.example/item-42/master.m3u8")
	accessPayload.Quality = "1080p"
	f.Access = &accessPayload
	fallback := access.FilePayload("mp4", "https://cdn.example/item-42/preview.mp4")
	f.Fallback = &fallback
	f.Headers = map[string]string{"Authorization": "Bearer abc"}
	f.Timestamp = 1_700_000_000_000
	return f
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := sampleFrame()
	data, err := frame.Encode(original)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := frame.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !decoded.Valid {
		t.Fatal("decoded frame should be valid")
	}
	if decoded.ItemID != original.ItemID {
		t.Errorf("item id = %q, want %q", decoded.ItemID, original.ItemID)
	}
	if decoded.Readiness != access.ReadinessReady {
		t.Errorf("readiness = %v, want READY", decoded.Readiness)
	}
	if decoded.Timestamp != original.Timestamp {
		t.Errorf("timestamp = %d, want %d", decoded.Timestamp, original.Timestamp)
	}
	if decoded.Access == nil || decoded.Access.URI != original.Access.URI {
		t.Errorf("access payload = %+v, want %+v", decoded.Access, original.Access)
	}
	if decoded.Fallback == nil || decoded.Fallback.URI != original.Fallback.URI {
		t.Errorf("fallback payload = %+v, want %+v", decoded.Fallback, original.Fallback)
	}
	if decoded.Headers["Authorization"] != "Bearer abc" {
		t.Errorf("headers = %v", decoded.Headers)
	}
	if !decoded.Flags.Has(frame.FlagHasAccess | frame.FlagHasFallback | frame.FlagHasHeaders) {
		t.Errorf("flags = %v, missing section bits", decoded.Flags)
	}
}

func TestDecodeCorruptedChecksum(t *testing.T) {
	data, err := frame.Encode(sampleFrame())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Flip one bit in the item id region.
	data[6] ^= 0x01

	decoded, err := frame.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Valid {
		t.Fatal("corrupted frame must decode with Valid == false")
	}
}

func TestDecodeStructuralErrors(t *testing.T) {
	valid, err := frame.Encode(sampleFrame())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	badVersion := append([]byte(nil), valid...)
	badVersion[0] = 9

	badReadiness := append([]byte(nil), valid...)
	badReadiness[4] = 0xFF

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, frame.ErrFrameTooShort},
		{"below minimum", make([]byte, 12), frame.ErrFrameTooShort},
		{"unknown version", badVersion, frame.ErrUnknownVersion},
		{"unknown readiness", badReadiness, frame.ErrBadReadiness},
		{"section overrun", valid[:20], frame.ErrSectionTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := frame.Decode(tt.data); !errors.Is(err, tt.want) {
				t.Fatalf("Decode error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeMissingTrailerLeniency(t *testing.T) {
	f := frame.New("item-7", access.ReadinessDegraded)
	fallback := access.FilePayload("mp4", "https://cdn.example/item-7.mp4")
	f.Fallback = &fallback
	data, err := frame.Encode(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	before := time.Now().UnixMilli()
	decoded, err := frame.Decode(data[:len(data)-12])
	if err != nil {
		t.Fatalf("Decode without trailer: %v", err)
	}
	if !decoded.Valid {
		t.Fatal("trailer-less frame should be accepted as valid")
	}
	if decoded.Timestamp < before {
		t.Errorf("timestamp %d should default to decode time", decoded.Timestamp)
	}
	if decoded.Fallback == nil || decoded.Fallback.URI != fallback.URI {
		t.Errorf("fallback = %+v", decoded.Fallback)
	}
}

func TestEncodeDefaultsZeroTimestamp(t *testing.T) {
	before := time.Now().UnixMilli()
	data, err := frame.Encode(&frame.Frame{ItemID: "item-1", Readiness: access.ReadinessReady})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := frame.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !decoded.Valid {
		t.Fatal("decoded frame should be valid")
	}
	// Both encodings stamp encode time for a zero timestamp, so a zero-value
	// frame is equally fresh on the binary and compact paths.
	if decoded.Timestamp < before {
		t.Errorf("timestamp = %d, want encode time or later", decoded.Timestamp)
	}
	if decoded.Expired(time.Minute, time.Now()) {
		t.Error("freshly encoded frame must not be expired")
	}
}

func TestEncodeRejectsUnknownReadiness(t *testing.T) {
	f := frame.New("item-1", access.Readiness(7))
	if _, err := frame.Encode(f); !errors.Is(err, frame.ErrBadReadiness) {
		t.Fatalf("Encode error = %v, want %v", err, frame.ErrBadReadiness)
	}
}

func TestCompactRoundTrip(t *testing.T) {
	original := sampleFrame()
	data, err := frame.EncodeCompact(original)
	if err != nil {
		t.Fatalf("EncodeCompact: %v", err)
	}

	decoded, err := frame.DecodeCompact(data)
	if err != nil {
		t.Fatalf("DecodeCompact: %v", err)
	}
	if !decoded.Valid {
		t.Fatal("compact frames are always valid")
	}
	if decoded.ItemID != original.ItemID || decoded.Readiness != original.Readiness {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Timestamp != original.Timestamp {
		t.Errorf("timestamp = %d, want %d", decoded.Timestamp, original.Timestamp)
	}
	if decoded.Access == nil || decoded.Access.URI != original.Access.URI {
		t.Errorf("access = %+v", decoded.Access)
	}
	if decoded.Fallback == nil || decoded.Fallback.URI != original.Fallback.URI {
		t.Errorf("fallback = %+v", decoded.Fallback)
	}
}

func TestDecodeCompactMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "nonsense"},
		{"bad readiness", `{"id":"x","r":9,"t":1}`},
		{"bad base64", `{"id":"x","r":1,"a":"!!!","t":1}`},
		{"payload not json", `{"id":"x","r":1,"a":"bm90LWpzb24=","t":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := frame.DecodeCompact([]byte(tt.data)); err == nil {
				t.Fatal("expected decode error")
			}
		})
	}
}

func TestExpired(t *testing.T) {
	f := frame.New("item-1", access.ReadinessReady)
	f.Timestamp = time.Now().Add(-time.Hour).UnixMilli()

	if !f.Expired(time.Minute, time.Now()) {
		t.Error("hour-old frame should be expired at 1m max age")
	}
	if f.Expired(0, time.Now()) {
		t.Error("zero max age disables expiry")
	}
	if f.Expired(2*time.Hour, time.Now()) {
		t.Error("frame within max age should not be expired")
	}
}
