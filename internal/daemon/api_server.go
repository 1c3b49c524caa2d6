package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"usher/internal/access"
	"usher/internal/api"
	"usher/internal/catalog"
	"usher/internal/config"
	"usher/internal/logging"
)

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon
	cfg    *config.Config

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, errors.New("api server requires config and daemon")
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("api bind address is required")
	}

	srv := &apiServer{
		bind:   bind,
		token:  cfg.Paths.APIToken,
		logger: logger,
		daemon: d,
		cfg:    cfg,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", authMiddleware(srv.token, srv.handleStatus))
	mux.HandleFunc("/api/items", authMiddleware(srv.token, srv.handleItems))
	mux.HandleFunc("/api/access/batch", authMiddleware(srv.token, srv.handleBatch))
	mux.HandleFunc("/api/access/receipt", authMiddleware(srv.token, srv.handleReceipt))
	mux.HandleFunc("/api/access/", authMiddleware(srv.token, srv.handleAccess))
	mux.HandleFunc("/api/push", authMiddleware(srv.token, srv.handlePush))
	mux.HandleFunc("/api/push/ws", authMiddleware(srv.token, srv.handlePushWS))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr returns the bound listen address, empty before start.
func (s *apiServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var levels []string
	for _, value := range r.URL.Query()["readiness"] {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			levels = append(levels, trimmed)
		}
	}
	items, err := s.daemon.ListItems(r.Context(), levels...)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	now := time.Now()
	views := make([]api.Item, 0, len(items))
	for _, item := range items {
		views = append(views, ItemView(item, now))
	}
	s.writeJSON(w, http.StatusOK, api.ItemListResponse{Items: views})
}

// handleAccess serves GET /api/access/{itemId} and
// GET /api/access/{itemId}/graded.
func (s *apiServer) handleAccess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/access/")
	graded := false
	if trimmed, ok := strings.CutSuffix(rest, "/graded"); ok {
		graded = true
		rest = trimmed
	}
	if rest == "" || strings.Contains(rest, "/") {
		s.writeError(w, http.StatusNotFound, "item not found")
		return
	}

	item, err := s.daemon.DescribeItem(r.Context(), rest)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if item == nil {
		s.writeError(w, http.StatusNotFound, "item not found")
		return
	}

	if graded {
		s.writeJSON(w, http.StatusOK, gradedView(item, time.Now()))
		return
	}
	if item.Readiness != access.ReadinessReady || item.Access == nil {
		s.writeError(w, http.StatusConflict, "optimal access not ready")
		return
	}
	s.writeJSON(w, http.StatusOK, api.ManifestResponse{
		ItemID:   item.ID,
		ItemType: item.Type,
		Title:    item.Title,
		Access:   item.Access,
	})
}

func (s *apiServer) handleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid batch request")
		return
	}
	if len(req.ItemIDs) == 0 {
		s.writeError(w, http.StatusBadRequest, "itemIds is required")
		return
	}

	now := time.Now()
	resp := api.BatchResponse{}
	for _, itemID := range req.ItemIDs {
		item, err := s.daemon.DescribeItem(r.Context(), itemID)
		if err != nil {
			resp.Errors = append(resp.Errors, api.BatchError{ItemID: itemID, Error: err.Error()})
			continue
		}
		if item == nil {
			resp.Errors = append(resp.Errors, api.BatchError{ItemID: itemID, Error: "item not found"})
			continue
		}
		result := api.BatchResult{
			ItemID:    item.ID,
			Readiness: item.Readiness.String(),
			Fallback:  item.Fallback,
		}
		if item.Readiness == access.ReadinessReady {
			result.Access = item.Access
			result.Fallback = nil
		}
		if eta := item.UpgradeEta(now); eta > 0 {
			result.EtaMilli = eta.Milliseconds()
		}
		resp.Results = append(resp.Results, result)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleReceipt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.ReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid receipt")
		return
	}
	if strings.TrimSpace(req.Action) == "" {
		s.writeError(w, http.StatusBadRequest, "action is required")
		return
	}
	receiptID, err := s.daemon.RecordReceipt(r.Context(), &req, identityFromRequest(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.ReceiptResponse{ReceiptID: receiptID})
}

func gradedView(item *catalog.Item, now time.Time) api.GradedManifestResponse {
	resp := api.GradedManifestResponse{
		ManifestResponse: api.ManifestResponse{
			ItemID:   item.ID,
			ItemType: item.Type,
			Title:    item.Title,
		},
		Readiness: item.Readiness.String(),
	}
	if item.Readiness == access.ReadinessReady && item.Access != nil {
		resp.Access = item.Access
		return resp
	}
	resp.Fallback = item.Fallback
	if eta := item.UpgradeEta(now); eta > 0 {
		resp.UpgradeEtaMilli = eta.Milliseconds()
	}
	return resp
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
