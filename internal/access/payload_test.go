package access_test

import (
	"testing"

	"usher/internal/access"
)

func TestPayloadValidate(t *testing.T) {
	tests := []struct {
		name    string
		payload access.Payload
		wantErr bool
	}{
		{"stream with uri", access.StreamPayload("hls", "https://cdn.example/master.m3u8"), false},
		{"file with uri", access.FilePayload("mp4", "https://cdn.example/clip.mp4"), false},
		{"embed with markup", access.EmbedPayload("html", "<iframe src='x'></iframe>"), false},
		{"embed with uri only", access.Payload{Mode: access.ModeEmbed, Format: "html", URI: "https://embed.example/x"}, false},
		{"openweb with url", access.OpenWebPayload("html", "https://watch.example/x"), false},
		{"unknown mode", access.Payload{Mode: "torrent", Format: "mp4"}, true},
		{"missing format", access.Payload{Mode: access.ModeStream, URI: "https://cdn.example/x"}, true},
		{"stream without uri", access.Payload{Mode: access.ModeStream, Format: "hls"}, true},
		{"file without uri", access.Payload{Mode: access.ModeFile, Format: "mp4"}, true},
		{"embed without content", access.Payload{Mode: access.ModeEmbed, Format: "html"}, true},
		{"openweb without url", access.Payload{Mode: access.ModeOpenWeb, Format: "html"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	if mode, ok := access.ParseMode("  STREAM "); !ok || mode != access.ModeStream {
		t.Fatalf("ParseMode = %q, %v", mode, ok)
	}
	if _, ok := access.ParseMode("carrier-pigeon"); ok {
		t.Fatal("unknown mode must not parse")
	}
}

func TestWithHeadersCopies(t *testing.T) {
	headers := map[string]string{"Authorization": "Bearer abc"}
	payload := access.StreamPayload("hls", "https://cdn.example/x").WithHeaders(headers)

	headers["Authorization"] = "mutated"
	if payload.Headers["Authorization"] != "Bearer abc" {
		t.Fatalf("headers aliased caller map: %v", payload.Headers)
	}

	same := access.StreamPayload("hls", "https://cdn.example/x")
	if got := same.WithHeaders(nil); got.Headers != nil {
		t.Fatalf("nil headers should leave payload untouched: %v", got.Headers)
	}
}

func TestIdempotentCleanup(t *testing.T) {
	var calls int
	cleanup := access.IdempotentCleanup(func() { calls++ })
	cleanup()
	cleanup()
	if calls != 1 {
		t.Fatalf("cleanup ran %d times, want 1", calls)
	}

	access.IdempotentCleanup(nil)() // must not panic
}

func TestReadinessRoundTrip(t *testing.T) {
	for _, r := range []access.Readiness{access.ReadinessPending, access.ReadinessReady, access.ReadinessDegraded} {
		parsed, ok := access.ParseReadiness(r.String())
		if !ok || parsed != r {
			t.Errorf("ParseReadiness(%q) = %v, %v", r.String(), parsed, ok)
		}
		fromCode, ok := access.ReadinessFromCode(r.Code())
		if !ok || fromCode != r {
			t.Errorf("ReadinessFromCode(%d) = %v, %v", r.Code(), fromCode, ok)
		}
	}
	if _, ok := access.ParseReadiness("SORT-OF-READY"); ok {
		t.Error("unknown readiness must not parse")
	}
	if access.Readiness(9).Known() {
		t.Error("out-of-range readiness must not be known")
	}
}
