package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"usher/internal/access"
	"usher/internal/api"
	"usher/internal/catalog"
	"usher/internal/config"
	"usher/internal/frame"
	"usher/internal/logging"
	"usher/internal/receipts"
)

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *catalog.Store
	hub      *Hub
	receipts receipts.Service

	lockPath string
	lock     *flock.Flock

	apiServer *apiServer
	preparer  *catalog.Preparer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *catalog.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, and logger")
	}

	hub := NewHub(cfg.Push.BufferFrames)
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		hub:      hub,
		receipts: receipts.NewService(cfg, logger),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
		preparer: catalog.NewPreparer(store, hub, cfg.PrepareInterval(), logger),
	}

	server, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.apiServer = server
	return d, nil
}

// Hub exposes the push hub, primarily for tests and the preparer.
func (d *Daemon) Hub() *Hub { return d.hub }

// Start acquires the singleton lock and launches the API server and the
// preparer.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another usher daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.apiServer.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}
	go d.preparer.Run(d.ctx)

	d.running.Store(true)
	d.logger.Info("usher daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.apiServer.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("usher daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// ListItems returns catalog items filtered by optional readiness names.
func (d *Daemon) ListItems(ctx context.Context, levels ...string) ([]*catalog.Item, error) {
	parsed := make([]access.Readiness, 0, len(levels))
	for _, level := range levels {
		readiness, ok := access.ParseReadiness(level)
		if !ok {
			return nil, fmt.Errorf("unknown readiness %q", level)
		}
		parsed = append(parsed, readiness)
	}
	return d.store.List(ctx, parsed...)
}

// DescribeItem returns one catalog item, nil when absent.
func (d *Daemon) DescribeItem(ctx context.Context, itemID string) (*catalog.Item, error) {
	return d.store.GetByID(ctx, itemID)
}

// PromoteItem forces an item READY and publishes the resulting frame. It
// reports whether the item changed state.
func (d *Daemon) PromoteItem(ctx context.Context, itemID string) (bool, error) {
	item, err := d.store.GetByID(ctx, itemID)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, fmt.Errorf("item %q not found", itemID)
	}
	changed, err := d.store.Promote(ctx, itemID)
	if err != nil || !changed {
		return changed, err
	}
	if item.Access != nil {
		f := frame.New(itemID, access.ReadinessReady)
		f.Access = item.Access
		if item.Access.Headers != nil {
			f.Headers = item.Access.Headers
		}
		d.hub.PublishFrame(f)
	}
	d.logger.Info("item promoted", logging.String(logging.FieldItemID, itemID))
	return true, nil
}

// RecordReceipt stores a receipt locally and forwards it to the collector.
func (d *Daemon) RecordReceipt(ctx context.Context, req *api.ReceiptRequest, identity string) (string, error) {
	receipt := &catalog.Receipt{
		ItemID:       req.ItemID,
		ItemType:     req.ItemType,
		Action:       req.Action,
		AccessMode:   req.AccessMode,
		AccessFormat: req.AccessFormat,
		AccessURI:    req.AccessURI,
		Identity:     identity,
	}
	if len(req.Metadata) > 0 {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			return "", fmt.Errorf("marshal receipt metadata: %w", err)
		}
		receipt.MetadataJSON = string(raw)
	}
	receiptID, err := d.store.InsertReceipt(ctx, receipt)
	if err != nil {
		return "", err
	}
	d.receipts.Publish(ctx, req)
	return receiptID, nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.StatusResponse {
	stats, err := d.store.Stats(ctx)
	if err != nil {
		d.logger.Warn("item stats unavailable", logging.Error(err))
	}
	return api.StatusResponse{
		Running:         d.running.Load(),
		PID:             os.Getpid(),
		DatabasePath:    d.store.Path(),
		LockFilePath:    d.lockPath,
		ItemStats:       stats,
		PushSubscribers: d.hub.SubscriberCount(),
		FramesPublished: d.hub.Published(),
		Lanes:           []string{d.cfg.Push.Lane},
	}
}

// ItemView converts a catalog item to its API representation.
func ItemView(item *catalog.Item, now time.Time) api.Item {
	view := api.Item{
		ID:          item.ID,
		Type:        item.Type,
		Title:       item.Title,
		Readiness:   item.Readiness.String(),
		HasAccess:   item.Access != nil,
		HasFallback: item.Fallback != nil,
	}
	if eta := item.UpgradeEta(now); eta > 0 {
		view.UpgradeEtaMilli = eta.Milliseconds()
	}
	if !item.UpdatedAt.IsZero() {
		view.UpdatedAt = item.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return view
}
