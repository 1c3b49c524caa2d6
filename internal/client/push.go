package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"usher/internal/frame"
	"usher/internal/logging"
)

// laneHeader carries the lanes a push endpoint serves, comma separated.
const laneHeader = "X-Usher-Lanes"

// PushStream is a long-lived SSE connection to the daemon push endpoint. It
// implements the lane session contract: handlers attach to an advertised
// lane and receive every decoded frame.
type PushStream struct {
	client *Client
	parser *frame.Parser
	logger *slog.Logger

	mu     sync.Mutex
	lanes  []string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPushStream prepares a push stream over the given API client. Connect
// must be called before handlers see any frames.
func NewPushStream(c *Client, logger *slog.Logger) *PushStream {
	return &PushStream{
		client: c,
		parser: frame.NewParser(logger),
		logger: logging.NewComponentLogger(logger, "push-stream"),
	}
}

// Connect opens the SSE stream and starts the read loop. The advertised
// lanes are taken from the response headers. Connect returns once the
// stream is established; the read loop runs until ctx is canceled or the
// server closes the connection.
func (s *PushStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return errors.New("client: push stream already connected")
	}
	s.mu.Unlock()

	streamCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, s.client.baseURL+"/api/push", nil)
	if err != nil {
		cancel()
		return fmt.Errorf("client: build push request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if s.client.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.client.token)
	}

	// The shared client enforces a request timeout, which would sever the
	// stream. Use its transport without the deadline.
	hc := &http.Client{Transport: s.client.http.Transport}
	resp, err := hc.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("client: open push stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return &StatusError{StatusCode: resp.StatusCode}
	}

	s.mu.Lock()
	s.lanes = parseLanes(resp.Header.Get(laneHeader))
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer resp.Body.Close()
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				s.parser.Append(line)
			}
			if err != nil {
				if streamCtx.Err() == nil {
					s.logger.Warn("push stream closed", logging.Error(err))
				}
				return
			}
		}
	}()
	s.logger.Info("push stream connected", logging.Any("lanes", s.Lanes()))
	return nil
}

// Lanes returns the lanes advertised when the stream connected.
func (s *PushStream) Lanes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	lanes := make([]string, len(s.lanes))
	copy(lanes, s.lanes)
	return lanes
}

// Attach registers a frame handler on the named lane and returns its detach
// function.
func (s *PushStream) Attach(lane string, handler frame.Handler) (func(), error) {
	if !s.hasLane(lane) {
		return nil, fmt.Errorf("client: lane %q not advertised", lane)
	}
	return s.parser.Subscribe(handler), nil
}

// Close tears the stream down and waits for the read loop to exit.
func (s *PushStream) Close() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Done exposes the read-loop completion channel, nil before Connect.
func (s *PushStream) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *PushStream) hasLane(lane string) bool {
	for _, advertised := range s.Lanes() {
		if strings.EqualFold(advertised, lane) {
			return true
		}
	}
	return false
}

func parseLanes(header string) []string {
	if strings.TrimSpace(header) == "" {
		return []string{"access"}
	}
	parts := strings.Split(header, ",")
	lanes := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			lanes = append(lanes, trimmed)
		}
	}
	return lanes
}
