package catalog

import (
	"context"
	"log/slog"
	"time"

	"usher/internal/access"
	"usher/internal/frame"
	"usher/internal/logging"
)

// FramePublisher delivers frames to connected push subscribers.
type FramePublisher interface {
	PublishFrame(f *frame.Frame)
}

// Preparer watches the catalog for items whose preparation window has
// elapsed, promotes them to READY, and publishes a READY frame carrying the
// optimal access descriptor.
type Preparer struct {
	store     *Store
	publisher FramePublisher
	interval  time.Duration
	logger    *slog.Logger
}

// NewPreparer builds a preparer. A non-positive interval falls back to five
// seconds.
func NewPreparer(store *Store, publisher FramePublisher, interval time.Duration, logger *slog.Logger) *Preparer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Preparer{
		store:     store,
		publisher: publisher,
		interval:  interval,
		logger:    logger.With(logging.String(logging.FieldComponent, "preparer")),
	}
}

// Run blocks, sweeping for due promotions until the context is canceled.
func (p *Preparer) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := p.Sweep(ctx); err != nil {
				p.logger.Error("promotion sweep failed", logging.Error(err))
			} else if n > 0 {
				p.logger.Info("promoted items", logging.Int("count", n))
			}
		}
	}
}

// Sweep performs one promotion pass and returns how many items were
// promoted.
func (p *Preparer) Sweep(ctx context.Context) (int, error) {
	due, err := p.store.DuePromotions(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, item := range due {
		changed, err := p.store.Promote(ctx, item.ID)
		if err != nil {
			p.logger.Error("promote failed",
				logging.String(logging.FieldItemID, item.ID), logging.Error(err))
			continue
		}
		if !changed {
			continue
		}
		promoted++
		p.publish(item)
	}
	return promoted, nil
}

func (p *Preparer) publish(item *Item) {
	if p.publisher == nil || item.Access == nil {
		return
	}
	f := frame.New(item.ID, access.ReadinessReady)
	f.Access = item.Access
	if item.Access.Headers != nil {
		f.Headers = item.Access.Headers
	}
	p.publisher.PublishFrame(f)
	p.logger.Debug("published ready frame",
		logging.String(logging.FieldItemID, item.ID))
}
