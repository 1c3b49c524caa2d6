package receipts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"usher/internal/api"
	"usher/internal/config"
	"usher/internal/logging"
)

// Service publishes receipts to a collector endpoint.
type Service interface {
	// Publish forwards one receipt. The returned identifier is assigned
	// locally; delivery errors are swallowed after logging.
	Publish(ctx context.Context, receipt *api.ReceiptRequest) string
	// Enabled reports whether a collector endpoint is configured.
	Enabled() bool
}

// NewService builds a receipt forwarder from configuration. An empty
// endpoint yields a no-op service.
func NewService(cfg *config.Config, logger *slog.Logger) Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.String(logging.FieldComponent, "receipts"))
	endpoint := strings.TrimSpace(cfg.Receipts.Endpoint)
	if endpoint == "" {
		return &noopService{}
	}
	return &httpService{
		endpoint: endpoint,
		token:    cfg.Receipts.Token,
		client:   &http.Client{Timeout: cfg.ReceiptTimeout()},
		logger:   logger,
	}
}

type httpService struct {
	endpoint string
	token    string
	client   *http.Client
	logger   *slog.Logger
}

func (s *httpService) Enabled() bool { return true }

func (s *httpService) Publish(ctx context.Context, receipt *api.ReceiptRequest) string {
	receiptID := uuid.NewString()
	if receipt == nil {
		return receiptID
	}
	go s.deliver(receiptID, *receipt)
	return receiptID
}

type collectorEnvelope struct {
	ReceiptID string            `json:"receiptId"`
	Timestamp string            `json:"timestamp"`
	Receipt   api.ReceiptRequest `json:"receipt"`
}

func (s *httpService) deliver(receiptID string, receipt api.ReceiptRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), s.client.Timeout)
	defer cancel()

	body, err := json.Marshal(collectorEnvelope{
		ReceiptID: receiptID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Receipt:   receipt,
	})
	if err != nil {
		s.logger.Warn("encode receipt failed", logging.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		s.logger.Warn("build receipt request failed", logging.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("deliver receipt failed",
			logging.String(logging.FieldItemID, receipt.ItemID), logging.Error(err))
		return
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Warn("collector rejected receipt",
			logging.String(logging.FieldItemID, receipt.ItemID),
			logging.String("status", fmt.Sprintf("%d", resp.StatusCode)))
		return
	}
	s.logger.Debug("receipt delivered",
		logging.String(logging.FieldItemID, receipt.ItemID),
		logging.String("receiptId", receiptID))
}

type noopService struct{}

func (*noopService) Enabled() bool { return false }

func (*noopService) Publish(context.Context, *api.ReceiptRequest) string {
	return uuid.NewString()
}
