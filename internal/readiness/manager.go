package readiness

import (
	"log/slog"
	"sync"
	"time"

	"usher/internal/access"
	"usher/internal/frame"
	"usher/internal/logging"
)

// Manager tracks one item's resolution session. It owns currentResult
// exclusively: the old result's cleanup always runs before a replacement is
// installed, so at most one rendering of the item is mounted at a time.
type Manager struct {
	itemID   string
	registry *Registry

	mu            sync.Mutex
	state         access.Readiness
	current       *access.RenderResult
	pending       *access.Payload
	lastTimestamp int64
	version       uint64
	unsubscribe   func()
}

// Snapshot is a read-only view of a manager for status surfaces.
type Snapshot struct {
	ItemID         string
	State          access.Readiness
	HasPending     bool
	ResultType     string
	ResultURL      string
	LastFrameMilli int64
}

func newManager(itemID string, registry *Registry) *Manager {
	return &Manager{
		itemID:   itemID,
		registry: registry,
		state:    access.ReadinessPending,
		version:  registry.versions.Add(1),
	}
}

// ItemID returns the item this manager tracks.
func (m *Manager) ItemID() string { return m.itemID }

// State returns the current readiness.
func (m *Manager) State() access.Readiness {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Version returns the session version stamp. Callers starting a fetch take
// a snapshot and pass it back via Registry.ApplyFetched so a completion
// that outlives the session is discarded.
func (m *Manager) Version() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

// PendingUpgrade returns a copy of the staged upgrade payload, if any.
func (m *Manager) PendingUpgrade() (access.Payload, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return access.Payload{}, false
	}
	return *m.pending, true
}

// Snapshot captures the manager state for status reporting.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{
		ItemID:         m.itemID,
		State:          m.state,
		HasPending:     m.pending != nil,
		LastFrameMilli: m.lastTimestamp,
	}
	if m.current != nil {
		snap.ResultType = m.current.Type
		snap.ResultURL = m.current.URL
	}
	return snap
}

// BindSubscription attaches the detach callback of the push subscription
// feeding this manager. It is invoked on finalize. A previously bound
// callback is detached first.
func (m *Manager) BindSubscription(unsubscribe func()) {
	m.mu.Lock()
	prev := m.unsubscribe
	m.unsubscribe = unsubscribe
	m.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// Apply feeds one decoded frame into the state machine. Frames that are
// invalid, expired, for another item, or older than the last applied frame
// are dropped without touching state.
func (m *Manager) Apply(f *frame.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyLocked(f)
}

func (m *Manager) applyVersioned(version uint64, f *frame.Frame) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.version != version {
		m.logger().Debug("discarding stale fetch completion",
			logging.Uint64("fetch_version", version),
			logging.Uint64("session_version", m.version),
		)
		return false
	}
	m.applyLocked(f)
	return true
}

func (m *Manager) applyLocked(f *frame.Frame) {
	if f == nil || f.ItemID != m.itemID {
		return
	}
	log := m.logger()
	if !f.Valid {
		log.Warn("dropping frame with checksum mismatch")
		return
	}
	if f.Expired(m.registry.opts.MaxFrameAge, time.Now()) {
		log.Debug("dropping expired frame", logging.Duration("age", f.Age(time.Now())))
		return
	}
	if f.Timestamp < m.lastTimestamp {
		// Transport promises non-decreasing timestamps per item; anything
		// older would downgrade state, so it is dropped here.
		log.Debug("dropping out-of-order frame",
			logging.Int64("frame_ts", f.Timestamp),
			logging.Int64("last_ts", m.lastTimestamp),
		)
		return
	}
	m.lastTimestamp = f.Timestamp

	switch f.Readiness {
	case access.ReadinessReady:
		if f.Access == nil {
			return
		}
		staged := *f.Access
		if len(f.Headers) > 0 && len(staged.Headers) == 0 {
			staged = staged.WithHeaders(f.Headers)
		}
		m.pending = &staged
		m.notifyUpgradeAvailable(staged)
		if m.registry.opts.Policy.AutoUpgrade && m.state != access.ReadinessReady {
			m.performUpgradeLocked()
		}
	case access.ReadinessDegraded:
		if f.Fallback == nil || m.state != access.ReadinessPending {
			// READY is sticky for the session; late DEGRADED frames are no-ops.
			return
		}
		m.state = access.ReadinessDegraded
		m.notifyReadinessChanged(access.ReadinessDegraded)
		fallback := *f.Fallback
		m.installLocked(&fallback, access.ReadinessDegraded)
	case access.ReadinessPending:
		// External reset/retry signal.
		m.state = access.ReadinessPending
		m.notifyReadinessChanged(access.ReadinessPending)
	}
}

// TriggerUpgrade applies the staged upgrade, returning false when none is
// staged. This is the manual acceptance path used when auto-upgrade is off.
func (m *Manager) TriggerUpgrade() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return false
	}
	m.performUpgradeLocked()
	return true
}

// performUpgradeLocked swaps the staged payload in as the active resolution.
// The prior render's cleanup runs first, so observers told READY never see
// the degraded rendering still mounted; then state moves to READY, observers
// are notified, and the new render is dispatched and stored.
func (m *Manager) performUpgradeLocked() {
	payload := m.pending
	if payload == nil {
		return
	}
	if m.current != nil && m.current.Cleanup != nil {
		m.current.Cleanup()
	}
	m.current = nil
	m.state = access.ReadinessReady
	m.pending = nil
	m.notifyReadinessChanged(access.ReadinessReady)
	m.installLocked(payload, access.ReadinessReady)
}

// installLocked finalizes the current render, dispatches the manifest to
// the renderer, and stores the outcome. Render failures become the stable
// error-typed result instead of propagating.
func (m *Manager) installLocked(payload *access.Payload, readiness access.Readiness) {
	if m.current != nil && m.current.Cleanup != nil {
		m.current.Cleanup()
	}
	m.current = nil

	renderer := m.registry.opts.Renderer
	if renderer == nil {
		result := access.PendingResult()
		result.Readiness = readiness
		m.current = &result
		return
	}
	manifest := access.Manifest{ItemID: m.itemID, Payload: payload}
	result, err := renderer.Render(manifest, access.RenderOptions{})
	if err != nil {
		m.logger().Error("render dispatch failed", logging.Error(err))
		errResult := access.ErrorResult(readiness)
		m.current = &errResult
		return
	}
	result.Cleanup = access.IdempotentCleanup(result.Cleanup)
	result.Readiness = readiness
	m.current = &result
}

// CurrentResult returns the active render result, if any.
func (m *Manager) CurrentResult() (access.RenderResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return access.RenderResult{}, false
	}
	return *m.current, true
}

// finalize cleans up the active render, detaches the subscription, and
// invalidates the session version.
func (m *Manager) finalize() {
	m.mu.Lock()
	if m.current != nil && m.current.Cleanup != nil {
		m.current.Cleanup()
	}
	m.current = nil
	m.pending = nil
	m.version++
	unsub := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (m *Manager) notifyReadinessChanged(r access.Readiness) {
	if fn := m.registry.opts.Hooks.ReadinessChanged; fn != nil {
		fn(m.itemID, r)
	}
}

func (m *Manager) notifyUpgradeAvailable(p access.Payload) {
	if fn := m.registry.opts.Hooks.UpgradeAvailable; fn != nil {
		fn(m.itemID, p)
	}
}

func (m *Manager) logger() *slog.Logger {
	return m.registry.logger.With(logging.String(logging.FieldItemID, m.itemID))
}
