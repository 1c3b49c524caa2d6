package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"usher/internal/access"
	"usher/internal/api"
	"usher/internal/client"
)

func TestFetchManifest(t *testing.T) {
	var gotAuth, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		payload := access.StreamPayload("hls", "https://cdn.example/item-1/master.m3u8")
		json.NewEncoder(w).Encode(api.ManifestResponse{
			ItemID:   "item-1",
			ItemType: "track",
			Title:    "Test Item",
			Access:   &payload,
		})
	}))
	defer server.Close()

	c := client.New(server.URL, "tok123")
	manifest, err := c.FetchManifest(context.Background(), "item-1")
	if err != nil {
		t.Fatalf("FetchManifest: %v", err)
	}
	if gotAuth != "Bearer tok123" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotPath != "/api/access/item-1" {
		t.Errorf("path = %q", gotPath)
	}
	if manifest.Access == nil || manifest.Access.URI != "https://cdn.example/item-1/master.m3u8" {
		t.Errorf("manifest = %+v", manifest)
	}
}

func TestFetchManifestNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(api.ErrorResponse{Error: "unknown item"})
	}))
	defer server.Close()

	_, err := client.New(server.URL, "").FetchManifest(context.Background(), "nope")
	if !errors.Is(err, client.ErrNoResolution) {
		t.Fatalf("error = %v, want ErrNoResolution", err)
	}
}

func TestFetchManifestConflictCarriesMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(api.ErrorResponse{Error: "optimal access not ready"})
	}))
	defer server.Close()

	_, err := client.New(server.URL, "").FetchManifest(context.Background(), "item-1")
	var statusErr *client.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusConflict {
		t.Errorf("status = %d", statusErr.StatusCode)
	}
	if statusErr.Message != "optimal access not ready" {
		t.Errorf("message = %q", statusErr.Message)
	}
}

func TestFetchGradedManifest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/access/item-1/graded" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fallback := access.FilePayload("mp4", "https://cdn.example/item-1/preview.mp4")
		json.NewEncoder(w).Encode(api.GradedManifestResponse{
			ManifestResponse: api.ManifestResponse{ItemID: "item-1"},
			Readiness:        access.ReadinessDegraded.String(),
			Fallback:         &fallback,
			UpgradeEtaMilli:  15_000,
		})
	}))
	defer server.Close()

	graded, err := client.New(server.URL, "").FetchGradedManifest(context.Background(), "item-1")
	if err != nil {
		t.Fatalf("FetchGradedManifest: %v", err)
	}
	if graded.Readiness != "DEGRADED" {
		t.Errorf("readiness = %q", graded.Readiness)
	}
	if graded.Fallback == nil || graded.Fallback.Mode != access.ModeFile {
		t.Errorf("fallback = %+v", graded.Fallback)
	}
	if graded.UpgradeEtaMilli != 15_000 {
		t.Errorf("eta = %d", graded.UpgradeEtaMilli)
	}
}

func TestFetchBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/access/batch" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		var req api.BatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.ItemIDs) != 2 {
			t.Errorf("item ids = %v", req.ItemIDs)
		}
		json.NewEncoder(w).Encode(api.BatchResponse{
			Results: []api.BatchResult{{ItemID: "item-1", Readiness: "READY"}},
			Errors:  []api.BatchError{{ItemID: "item-2", Error: "unknown item"}},
		})
	}))
	defer server.Close()

	resp, err := client.New(server.URL, "").FetchBatch(context.Background(), &api.BatchRequest{
		ItemIDs: []string{"item-1", "item-2"},
	})
	if err != nil {
		t.Fatalf("FetchBatch: %v", err)
	}
	if len(resp.Results) != 1 || len(resp.Errors) != 1 {
		t.Fatalf("response = %+v", resp)
	}
}

func TestSendReceipt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req api.ReceiptRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Action != "played" {
			t.Errorf("receipt request = %+v err = %v", req, err)
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(api.ReceiptResponse{ReceiptID: "r-777"})
	}))
	defer server.Close()

	id, err := client.New(server.URL, "").SendReceipt(context.Background(), &api.ReceiptRequest{
		ItemID: "item-1",
		Action: "played",
	})
	if err != nil {
		t.Fatalf("SendReceipt: %v", err)
	}
	if id != "r-777" {
		t.Errorf("receipt id = %q", id)
	}
}

func TestStatusErrorWithRawBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "backend exploded", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := client.New(server.URL, "").FetchStatus(context.Background())
	var statusErr *client.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if statusErr.Message != "backend exploded" {
		t.Errorf("message = %q", statusErr.Message)
	}
}
