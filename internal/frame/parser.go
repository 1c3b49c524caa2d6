package frame

import (
	"encoding/base64"
	"log/slog"
	"strings"
	"sync"

	"usher/internal/logging"
)

// Handler receives every decoded frame from a Parser.
type Handler func(*Frame)

// Parser reassembles discrete frames from a chunked push stream and fans
// them out to subscribed handlers. Lines may arrive split across chunks;
// the unterminated tail is buffered until the next append. A line carrying
// the SSE "data:" marker has the marker stripped before decoding. Lines
// whose trimmed body starts with '{' are decoded as compact JSON frames,
// anything else as base64-wrapped binary frames.
type Parser struct {
	mu       sync.Mutex
	buffer   string
	handlers map[uint64]Handler
	nextID   uint64
	logger   *slog.Logger
}

// NewParser constructs a parser. A nil logger discards decode diagnostics.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Parser{
		handlers: make(map[uint64]Handler),
		logger:   logger.With(logging.String(logging.FieldComponent, "frame-parser")),
	}
}

// Subscribe registers a handler and returns its detach function. Detaching
// is idempotent.
func (p *Parser) Subscribe(handler Handler) func() {
	if handler == nil {
		return func() {}
	}
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.handlers[id] = handler
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.handlers, id)
			p.mu.Unlock()
		})
	}
}

// HandlerCount returns the number of attached handlers.
func (p *Parser) HandlerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handlers)
}

// Append feeds a chunk of push-stream text into the parser. Complete lines
// are decoded and dispatched; the trailing partial line is retained.
func (p *Parser) Append(chunk string) {
	if chunk == "" {
		return
	}
	p.mu.Lock()
	data := p.buffer + chunk
	lines := strings.Split(data, "\n")
	p.buffer = lines[len(lines)-1]
	complete := lines[:len(lines)-1]
	p.mu.Unlock()

	for _, line := range complete {
		p.parseLine(line)
	}
}

// Feed is the byte-slice convenience form of Append.
func (p *Parser) Feed(chunk []byte) { p.Append(string(chunk)) }

func (p *Parser) parseLine(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, ":") {
		return
	}
	if rest, ok := strings.CutPrefix(trimmed, "data:"); ok {
		trimmed = strings.TrimSpace(rest)
		if trimmed == "" {
			return
		}
	}

	var (
		f   *Frame
		err error
	)
	if strings.HasPrefix(trimmed, "{") {
		f, err = DecodeCompact([]byte(trimmed))
	} else {
		var raw []byte
		raw, err = base64.StdEncoding.DecodeString(trimmed)
		if err == nil {
			f, err = Decode(raw)
		}
	}
	if err != nil {
		p.logger.Debug("discarding undecodable push line", logging.Error(err))
		return
	}
	p.Dispatch(f)
}

// Dispatch fans a decoded frame out to every attached handler. A handler
// that panics is logged and skipped without affecting delivery to others.
// Transports that decode frames themselves (e.g. binary websocket messages)
// inject them here.
func (p *Parser) Dispatch(f *Frame) {
	if f == nil {
		return
	}
	p.mu.Lock()
	handlers := make([]Handler, 0, len(p.handlers))
	for _, handler := range p.handlers {
		handlers = append(handlers, handler)
	}
	p.mu.Unlock()

	for _, handler := range handlers {
		p.invoke(handler, f)
	}
}

func (p *Parser) invoke(handler Handler, f *Frame) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("frame handler panicked",
				logging.String(logging.FieldItemID, f.ItemID),
				logging.Any("panic", r),
			)
		}
	}()
	handler(f)
}
