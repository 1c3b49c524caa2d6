package lane_test

import (
	"errors"
	"testing"
	"time"

	"usher/internal/access"
	"usher/internal/frame"
	"usher/internal/lane"
	"usher/internal/readiness"
)

// fakeSession records attached handlers and lets tests inject frames.
type fakeSession struct {
	lanes     []string
	handlers  []frame.Handler
	detached  int
	attachErr error
}

func (s *fakeSession) Lanes() []string { return s.lanes }

func (s *fakeSession) Attach(_ string, handler frame.Handler) (func(), error) {
	if s.attachErr != nil {
		return nil, s.attachErr
	}
	s.handlers = append(s.handlers, handler)
	return func() { s.detached++ }, nil
}

func (s *fakeSession) emit(f *frame.Frame) {
	for _, h := range s.handlers {
		h(f)
	}
}

func newRegistry() *readiness.Registry {
	return readiness.NewRegistry(readiness.Options{
		Policy: readiness.Policy{AutoUpgrade: true},
	})
}

func readyFrame(itemID string) *frame.Frame {
	f := frame.New(itemID, access.ReadinessReady)
	payload := access.StreamPayload("hls", "https://cdn.example/"+itemID+"/master.m3u8")
	f.Access = &payload
	return f
}

func TestSubscribeRoutesFramesForItem(t *testing.T) {
	session := &fakeSession{lanes: []string{"access"}}
	registry := newRegistry()
	manager := lane.NewManager(session, registry, lane.Options{})

	sub, err := manager.Subscribe("item-1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if sub.ItemID() != "item-1" {
		t.Fatalf("subscription item = %q", sub.ItemID())
	}

	session.emit(readyFrame("item-other"))
	session.emit(readyFrame("item-1"))

	m, ok := registry.Get("item-1")
	if !ok || m.State() != access.ReadinessReady {
		t.Fatalf("item-1 state not READY after frame")
	}
	if other, ok := registry.Get("item-other"); ok && other.State() != access.ReadinessPending {
		t.Fatal("foreign item must not receive frames through this subscription")
	}
}

func TestSubscribeIsIdempotent(t *testing.T) {
	session := &fakeSession{lanes: []string{"access"}}
	manager := lane.NewManager(session, newRegistry(), lane.Options{})

	first, err := manager.Subscribe("item-1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	second, err := manager.Subscribe("item-1")
	if err != nil {
		t.Fatalf("Subscribe again: %v", err)
	}
	if first != second {
		t.Fatal("duplicate Subscribe must return the same handle")
	}
	if len(session.handlers) != 1 {
		t.Fatalf("registered %d handlers, want 1", len(session.handlers))
	}
	if manager.Len() != 1 {
		t.Fatalf("manager len = %d", manager.Len())
	}
}

func TestSubscribeLaneUnavailable(t *testing.T) {
	session := &fakeSession{lanes: []string{"telemetry"}}
	manager := lane.NewManager(session, newRegistry(), lane.Options{})

	if _, err := manager.Subscribe("item-1"); !errors.Is(err, lane.ErrLaneUnavailable) {
		t.Fatalf("Subscribe error = %v, want ErrLaneUnavailable", err)
	}
}

func TestSubscribeMatchesLaneCaseInsensitively(t *testing.T) {
	session := &fakeSession{lanes: []string{"Telemetry", " Access "}}
	manager := lane.NewManager(session, newRegistry(), lane.Options{})

	if _, err := manager.Subscribe("item-1"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
}

func TestHandlerDropsInvalidAndStaleFrames(t *testing.T) {
	session := &fakeSession{lanes: []string{"access"}}
	registry := newRegistry()
	manager := lane.NewManager(session, registry, lane.Options{MaxFrameAge: time.Minute})

	if _, err := manager.Subscribe("item-1"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	invalid := readyFrame("item-1")
	invalid.Valid = false
	session.emit(invalid)

	stale := readyFrame("item-1")
	stale.Timestamp = time.Now().Add(-time.Hour).UnixMilli()
	session.emit(stale)

	m, _ := registry.Get("item-1")
	if m.State() != access.ReadinessPending {
		t.Fatalf("state = %v, dropped frames must not apply", m.State())
	}
}

func TestUnsubscribeDetachesHandler(t *testing.T) {
	session := &fakeSession{lanes: []string{"access"}}
	manager := lane.NewManager(session, newRegistry(), lane.Options{})

	if _, err := manager.Subscribe("item-1"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	manager.Unsubscribe("item-1")
	manager.Unsubscribe("item-1") // no-op

	if session.detached != 1 {
		t.Fatalf("detached %d times, want 1", session.detached)
	}
	if manager.Subscribed("item-1") {
		t.Fatal("item should no longer be subscribed")
	}
}

func TestUnsubscribeAll(t *testing.T) {
	session := &fakeSession{lanes: []string{"access"}}
	manager := lane.NewManager(session, newRegistry(), lane.Options{})

	for _, id := range []string{"item-1", "item-2", "item-3"} {
		if _, err := manager.Subscribe(id); err != nil {
			t.Fatalf("Subscribe %s: %v", id, err)
		}
	}
	manager.UnsubscribeAll()

	if session.detached != 3 {
		t.Fatalf("detached %d times, want 3", session.detached)
	}
	if manager.Len() != 0 {
		t.Fatalf("manager len = %d", manager.Len())
	}
}

func TestSubscribeSurfacesAttachFailure(t *testing.T) {
	session := &fakeSession{lanes: []string{"access"}, attachErr: errors.New("socket closed")}
	manager := lane.NewManager(session, newRegistry(), lane.Options{})

	if _, err := manager.Subscribe("item-1"); err == nil {
		t.Fatal("attach failure must propagate")
	}
	if manager.Subscribed("item-1") {
		t.Fatal("failed subscription must not be tracked")
	}
}

func TestSubscribeRequiresItemID(t *testing.T) {
	session := &fakeSession{lanes: []string{"access"}}
	manager := lane.NewManager(session, newRegistry(), lane.Options{})

	if _, err := manager.Subscribe("  "); err == nil {
		t.Fatal("blank item id must be rejected")
	}
}
