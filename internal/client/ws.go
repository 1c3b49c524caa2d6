package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"usher/internal/frame"
	"usher/internal/logging"
)

// WSStream is the websocket counterpart of PushStream. Binary messages carry
// wire frames, text messages carry compact JSON frames; both are decoded
// and dispatched to attached handlers.
type WSStream struct {
	baseURL string
	token   string
	parser  *frame.Parser
	logger  *slog.Logger

	mu    sync.Mutex
	lanes []string
	conn  *websocket.Conn
	done  chan struct{}
}

// NewWSStream prepares a websocket push stream against the daemon API.
func NewWSStream(baseURL, token string, logger *slog.Logger) *WSStream {
	return &WSStream{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		parser:  frame.NewParser(logger),
		logger:  logging.NewComponentLogger(logger, "push-ws"),
	}
}

// Connect dials the websocket push endpoint and starts the read loop.
func (s *WSStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return fmt.Errorf("client: websocket already connected")
	}
	s.mu.Unlock()

	endpoint := s.baseURL + "/api/push/ws"
	if strings.HasPrefix(endpoint, "http") {
		endpoint = "ws" + strings.TrimPrefix(endpoint, "http")
	}
	header := http.Header{}
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return &StatusError{StatusCode: resp.StatusCode}
		}
		return fmt.Errorf("client: dial websocket: %w", err)
	}

	lanes := []string{"access"}
	if resp != nil {
		if parsed := parseLanes(resp.Header.Get(laneHeader)); len(parsed) > 0 {
			lanes = parsed
		}
	}

	s.mu.Lock()
	s.conn = conn
	s.lanes = lanes
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.logger.Warn("websocket stream closed", logging.Error(err))
				}
				return
			}
			switch messageType {
			case websocket.BinaryMessage:
				f, err := frame.Decode(data)
				if err != nil {
					s.logger.Debug("discarding undecodable binary frame", logging.Error(err))
					continue
				}
				s.parser.Dispatch(f)
			case websocket.TextMessage:
				s.parser.Append(string(data) + "\n")
			}
		}
	}()
	s.logger.Info("websocket stream connected", logging.Any("lanes", lanes))
	return nil
}

// Lanes returns the lanes advertised during the websocket handshake.
func (s *WSStream) Lanes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	lanes := make([]string, len(s.lanes))
	copy(lanes, s.lanes)
	return lanes
}

// Attach registers a frame handler on the named lane.
func (s *WSStream) Attach(lane string, handler frame.Handler) (func(), error) {
	found := false
	for _, advertised := range s.Lanes() {
		if strings.EqualFold(advertised, lane) {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("client: lane %q not advertised", lane)
	}
	return s.parser.Subscribe(handler), nil
}

// Close shuts the websocket down and waits for the read loop to exit.
func (s *WSStream) Close() {
	s.mu.Lock()
	conn := s.conn
	done := s.done
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteMessage(websocket.CloseMessage, msg)
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}
}
