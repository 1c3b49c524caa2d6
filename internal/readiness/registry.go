package readiness

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"usher/internal/access"
	"usher/internal/frame"
	"usher/internal/logging"
)

// Policy controls upgrade orchestration.
type Policy struct {
	// AutoUpgrade applies a staged upgrade as soon as it becomes available.
	// When false, upgrades wait for an explicit TriggerUpgrade.
	AutoUpgrade bool
}

// Hooks are the observer callbacks fired on state transitions. Hooks run
// while the item's manager is locked: they must not call back into the same
// item's manager or they will deadlock.
type Hooks struct {
	ReadinessChanged func(itemID string, readiness access.Readiness)
	UpgradeAvailable func(itemID string, payload access.Payload)
}

// Options configures a Registry.
type Options struct {
	Renderer    access.Renderer
	Policy      Policy
	Hooks       Hooks
	MaxFrameAge time.Duration
	Logger      *slog.Logger
}

// Registry owns the item-id keyed manager store. Managers are created
// lazily on first reference and live until explicitly destroyed; destroying
// is the owner's responsibility, a forgotten manager leaks its subscription.
type Registry struct {
	mu       sync.Mutex
	managers map[string]*Manager
	opts     Options
	logger   *slog.Logger

	// versions issues session stamps unique across the registry's lifetime,
	// so a stamp from a destroyed manager never matches its replacement.
	versions atomic.Uint64
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts Options) *Registry {
	logger := logging.NewComponentLogger(opts.Logger, "readiness")
	return &Registry{
		managers: make(map[string]*Manager),
		opts:     opts,
		logger:   logger,
	}
}

// Ensure returns the manager for itemID, creating it in PENDING state when
// it does not exist yet.
func (r *Registry) Ensure(itemID string) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.managers[itemID]; ok {
		return m
	}
	m := newManager(itemID, r)
	r.managers[itemID] = m
	return m
}

// Get returns the manager for itemID when one exists.
func (r *Registry) Get(itemID string) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.managers[itemID]
	return m, ok
}

// Len reports the number of live managers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.managers)
}

// Apply routes a decoded frame to its item's manager, creating the manager
// when needed. Invalid and expired frames are dropped before any state is
// touched.
func (r *Registry) Apply(f *frame.Frame) {
	if f == nil || f.ItemID == "" {
		return
	}
	r.Ensure(f.ItemID).Apply(f)
}

// ApplyFetched applies a frame produced from a fetch completion, but only
// when the manager's version still matches the snapshot taken before the
// fetch started. A destroyed or reset manager rejects the completion.
func (r *Registry) ApplyFetched(itemID string, version uint64, f *frame.Frame) bool {
	m, ok := r.Get(itemID)
	if !ok {
		return false
	}
	return m.applyVersioned(version, f)
}

// TriggerUpgrade applies the staged upgrade for itemID, if any. It returns
// false when no manager exists or no upgrade is staged.
func (r *Registry) TriggerUpgrade(itemID string) bool {
	m, ok := r.Get(itemID)
	if !ok {
		return false
	}
	return m.TriggerUpgrade()
}

// Destroy finalizes and removes the manager for itemID: the current render
// is cleaned up, the bound subscription detached, and late fetch
// completions for the old manager rejected.
func (r *Registry) Destroy(itemID string) {
	r.mu.Lock()
	m, ok := r.managers[itemID]
	if ok {
		delete(r.managers, itemID)
	}
	r.mu.Unlock()
	if ok {
		m.finalize()
	}
}

// DestroyAll tears down every manager. Required at session teardown.
func (r *Registry) DestroyAll() {
	r.mu.Lock()
	managers := make([]*Manager, 0, len(r.managers))
	for _, m := range r.managers {
		managers = append(managers, m)
	}
	r.managers = make(map[string]*Manager)
	r.mu.Unlock()
	for _, m := range managers {
		m.finalize()
	}
}

// Reset starts a fresh resolution session for itemID: the existing manager
// is destroyed and a new PENDING one created.
func (r *Registry) Reset(itemID string) *Manager {
	r.Destroy(itemID)
	return r.Ensure(itemID)
}
