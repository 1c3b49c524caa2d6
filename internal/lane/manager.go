package lane

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"usher/internal/frame"
	"usher/internal/logging"
	"usher/internal/readiness"
)

// ErrLaneUnavailable is returned when the session does not advertise the
// designated access lane.
var ErrLaneUnavailable = errors.New("lane: access lane not advertised by session")

// Session is the shared push connection the manager multiplexes. Attach
// binds a frame handler to the named lane and returns its detach function.
type Session interface {
	Lanes() []string
	Attach(lane string, handler frame.Handler) (func(), error)
}

// Subscription binds one item to the shared push channel.
type Subscription struct {
	itemID string
	detach func()
	once   sync.Once
}

// ItemID returns the subscribed item.
func (s *Subscription) ItemID() string { return s.itemID }

// Cancel detaches the subscription's frame handler. Safe to call twice.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		if s.detach != nil {
			s.detach()
		}
	})
}

// Options configures a Manager.
type Options struct {
	// LaneName is the designated access-update lane, normally "access".
	LaneName string
	// MaxFrameAge drops frames older than this before they reach the
	// readiness registry. Zero disables the check here (the registry still
	// applies its own).
	MaxFrameAge time.Duration
	Logger      *slog.Logger
}

// Manager tracks per-item subscriptions over one session. The subscription
// registry is owned by the manager instance; callers must UnsubscribeAll at
// session teardown or handlers keep referencing stale collaborators.
type Manager struct {
	session  Session
	registry *readiness.Registry
	opts     Options
	logger   *slog.Logger

	mu   sync.Mutex
	subs map[string]*Subscription
}

// NewManager builds a subscription manager feeding registry from session.
func NewManager(session Session, registry *readiness.Registry, opts Options) *Manager {
	if opts.LaneName == "" {
		opts.LaneName = "access"
	}
	return &Manager{
		session:  session,
		registry: registry,
		opts:     opts,
		logger:   logging.NewComponentLogger(opts.Logger, "lane-manager"),
		subs:     make(map[string]*Subscription),
	}
}

// Subscribe binds itemID to the access lane. When a subscription already
// exists its handle is returned unchanged and no second handler registers.
func (m *Manager) Subscribe(itemID string) (*Subscription, error) {
	if strings.TrimSpace(itemID) == "" {
		return nil, errors.New("lane: item id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.subs[itemID]; ok {
		return sub, nil
	}

	laneName, ok := m.findLane()
	if !ok {
		return nil, fmt.Errorf("%w: want %q, advertised %v", ErrLaneUnavailable, m.opts.LaneName, m.session.Lanes())
	}

	log := m.logger.With(
		logging.String(logging.FieldItemID, itemID),
		logging.String(logging.FieldLane, laneName),
	)
	detach, err := m.session.Attach(laneName, func(f *frame.Frame) {
		if f == nil || f.ItemID != itemID {
			return
		}
		if !f.Valid {
			log.Warn("dropping invalid frame")
			return
		}
		if f.Expired(m.opts.MaxFrameAge, time.Now()) {
			log.Debug("dropping stale frame", logging.Duration("age", f.Age(time.Now())))
			return
		}
		m.registry.Apply(f)
	})
	if err != nil {
		return nil, fmt.Errorf("lane: attach %q: %w", laneName, err)
	}

	sub := &Subscription{itemID: itemID, detach: detach}
	m.subs[itemID] = sub
	m.registry.Ensure(itemID).BindSubscription(sub.Cancel)
	log.Debug("subscribed")
	return sub, nil
}

// Subscribed reports whether itemID currently has a subscription.
func (m *Manager) Subscribed(itemID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subs[itemID]
	return ok
}

// Len reports the number of active subscriptions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Unsubscribe removes and detaches the handler for itemID.
func (m *Manager) Unsubscribe(itemID string) {
	m.mu.Lock()
	sub, ok := m.subs[itemID]
	if ok {
		delete(m.subs, itemID)
	}
	m.mu.Unlock()
	if ok {
		sub.Cancel()
	}
}

// UnsubscribeAll tears down every tracked subscription.
func (m *Manager) UnsubscribeAll() {
	m.mu.Lock()
	subs := make([]*Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	m.subs = make(map[string]*Subscription)
	m.mu.Unlock()
	for _, sub := range subs {
		sub.Cancel()
	}
}

func (m *Manager) findLane() (string, bool) {
	for _, lane := range m.session.Lanes() {
		if strings.EqualFold(strings.TrimSpace(lane), m.opts.LaneName) {
			return strings.TrimSpace(lane), true
		}
	}
	return "", false
}
