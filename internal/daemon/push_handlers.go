package daemon

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"usher/internal/frame"
	"usher/internal/logging"
)

// laneHeader advertises the lanes a push endpoint serves.
const laneHeader = "X-Usher-Lanes"

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API is token-authenticated; browser origins are not a concern.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handlePush serves the SSE push channel. Each frame becomes one event:
// base64-wrapped binary wire bytes, or a compact JSON object when the
// configured (or requested) format is "json".
func (s *apiServer) handlePush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = s.cfg.Push.Format
	}
	if format != "json" {
		format = "binary"
	}

	frames, cancel := s.daemon.hub.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(laneHeader, s.cfg.Push.Lane)
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, ": lane %s\n\n", s.cfg.Push.Lane)
	flusher.Flush()

	log := s.log().With(logging.String(logging.FieldLane, s.cfg.Push.Lane))
	log.Debug("push subscriber attached", logging.String("format", format))

	heartbeat := time.NewTicker(s.cfg.Heartbeat())
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Debug("push subscriber detached")
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case f, open := <-frames:
			if !open {
				return
			}
			line, err := encodePushLine(f, format)
			if err != nil {
				log.Warn("encode push frame failed",
					logging.String(logging.FieldItemID, f.ItemID), logging.Error(err))
				continue
			}
			_, _ = fmt.Fprintf(w, "data: %s\n\n", line)
			flusher.Flush()
		}
	}
}

// handlePushWS serves the websocket push channel carrying raw binary frames.
func (s *apiServer) handlePushWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	header := http.Header{}
	header.Set(laneHeader, s.cfg.Push.Lane)
	conn, err := wsUpgrader.Upgrade(w, r, header)
	if err != nil {
		// Upgrade already wrote the error response.
		s.log().Debug("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	frames, cancel := s.daemon.hub.Subscribe()
	defer cancel()

	log := s.log().With(logging.String(logging.FieldLane, s.cfg.Push.Lane))
	log.Debug("websocket subscriber attached")

	// Drain client frames so close handshakes and pings are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	heartbeat := time.NewTicker(s.cfg.Heartbeat())
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Debug("websocket subscriber gone", logging.Error(err))
				return
			}
		case f, open := <-frames:
			if !open {
				return
			}
			data, err := frame.Encode(f)
			if err != nil {
				log.Warn("encode push frame failed",
					logging.String(logging.FieldItemID, f.ItemID), logging.Error(err))
				continue
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				log.Debug("websocket write failed", logging.Error(err))
				return
			}
		}
	}
}

func encodePushLine(f *frame.Frame, format string) (string, error) {
	if format == "json" {
		data, err := frame.EncodeCompact(f)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	data, err := frame.Encode(f)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
