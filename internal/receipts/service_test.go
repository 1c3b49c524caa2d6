package receipts_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"usher/internal/api"
	"usher/internal/config"
	"usher/internal/receipts"
)

type capturedDelivery struct {
	auth string
	body map[string]any
}

func TestPublishDeliversEnvelope(t *testing.T) {
	deliveries := make(chan capturedDelivery, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode envelope: %v", err)
		}
		deliveries <- capturedDelivery{auth: r.Header.Get("Authorization"), body: body}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Receipts.Endpoint = server.URL
	cfg.Receipts.Token = "collector-token"
	cfg.Receipts.RequestTimeout = 5

	service := receipts.NewService(&cfg, nil)
	if !service.Enabled() {
		t.Fatal("service with endpoint should be enabled")
	}

	receiptID := service.Publish(context.Background(), &api.ReceiptRequest{
		ItemID:   "item-1",
		ItemType: "track",
		Action:   "played",
	})
	if receiptID == "" {
		t.Fatal("receipt id must be assigned")
	}

	select {
	case got := <-deliveries:
		if got.auth != "Bearer collector-token" {
			t.Errorf("authorization = %q", got.auth)
		}
		if got.body["receiptId"] != receiptID {
			t.Errorf("envelope receipt id = %v, want %q", got.body["receiptId"], receiptID)
		}
		ts, _ := got.body["timestamp"].(string)
		if _, err := time.Parse(time.RFC3339, ts); err != nil {
			t.Errorf("timestamp %q not RFC3339: %v", ts, err)
		}
		receipt, ok := got.body["receipt"].(map[string]any)
		if !ok || receipt["itemId"] != "item-1" || receipt["action"] != "played" {
			t.Errorf("envelope receipt = %v", got.body["receipt"])
		}
	case <-time.After(5 * time.Second):
		t.Fatal("receipt was never delivered")
	}
}

func TestPublishSwallowsCollectorFailure(t *testing.T) {
	seen := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		seen <- struct{}{}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Receipts.Endpoint = server.URL
	cfg.Receipts.RequestTimeout = 5

	service := receipts.NewService(&cfg, nil)
	if id := service.Publish(context.Background(), &api.ReceiptRequest{Action: "played"}); id == "" {
		t.Fatal("receipt id must be assigned even when delivery fails")
	}
	select {
	case <-seen:
	case <-time.After(5 * time.Second):
		t.Fatal("delivery was never attempted")
	}
}

func TestNoopServiceWithoutEndpoint(t *testing.T) {
	cfg := config.Default()
	service := receipts.NewService(&cfg, nil)

	if service.Enabled() {
		t.Fatal("service without endpoint must be disabled")
	}
	if id := service.Publish(context.Background(), &api.ReceiptRequest{Action: "played"}); id == "" {
		t.Fatal("noop service still assigns receipt ids")
	}
}
