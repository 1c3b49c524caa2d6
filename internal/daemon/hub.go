package daemon

import (
	"sync"
	"sync/atomic"

	"usher/internal/frame"
)

// Hub fans frames out to push subscribers. Each subscriber owns a bounded
// channel; when a subscriber falls behind, its oldest buffered frame is
// dropped so publication never blocks.
type Hub struct {
	mu          sync.Mutex
	subscribers map[uint64]chan *frame.Frame
	nextID      uint64
	buffer      int

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub builds a hub whose subscriber channels buffer up to buffer frames.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 128
	}
	return &Hub{
		subscribers: make(map[uint64]chan *frame.Frame),
		buffer:      buffer,
	}
}

// Subscribe registers a new subscriber and returns its frame channel plus a
// cancel function. Cancel closes the channel; callers must stop reading
// afterwards.
func (h *Hub) Subscribe() (<-chan *frame.Frame, func()) {
	ch := make(chan *frame.Frame, h.buffer)
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subscribers[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, id)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// PublishFrame delivers a frame to every subscriber without blocking.
func (h *Hub) PublishFrame(f *frame.Frame) {
	if f == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.published.Add(1)
	for _, ch := range h.subscribers {
		select {
		case ch <- f:
			continue
		default:
		}
		// Full: evict the oldest frame and retry once.
		select {
		case <-ch:
			h.dropped.Add(1)
		default:
		}
		select {
		case ch <- f:
		default:
			h.dropped.Add(1)
		}
	}
}

// SubscriberCount reports the number of attached subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Published reports the total frames published.
func (h *Hub) Published() uint64 { return h.published.Load() }

// Dropped reports frames evicted from slow subscriber buffers.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }
