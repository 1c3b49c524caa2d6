package readiness_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"usher/internal/access"
	"usher/internal/frame"
	"usher/internal/readiness"
)

// recordingRenderer logs render and cleanup calls in order so tests can
// assert teardown-before-replace.
type recordingRenderer struct {
	events []string
	fail   bool
}

func (r *recordingRenderer) Render(manifest access.Manifest, _ access.RenderOptions) (access.RenderResult, error) {
	if r.fail {
		return access.RenderResult{}, errors.New("render refused")
	}
	uri := ""
	if manifest.Payload != nil {
		uri = manifest.Payload.URI
	}
	r.events = append(r.events, "render:"+uri)
	return access.RenderResult{
		Type:    "stream",
		URL:     uri,
		Cleanup: func() { r.events = append(r.events, "cleanup:"+uri) },
	}, nil
}

func degradedFrame(itemID string, ts int64) *frame.Frame {
	f := frame.New(itemID, access.ReadinessDegraded)
	fallback := access.FilePayload("mp4", "https://cdn.example/"+itemID+"/fallback.mp4")
	f.Fallback = &fallback
	f.Timestamp = ts
	return f
}

func readyFrame(itemID string, ts int64) *frame.Frame {
	f := frame.New(itemID, access.ReadinessReady)
	optimal := access.StreamPayload("hls", "https://cdn.example/"+itemID+"/master.m3u8")
	f.Access = &optimal
	f.Timestamp = ts
	return f
}

func TestDegradedThenReadyUpgradesInOrder(t *testing.T) {
	renderer := &recordingRenderer{}
	var transitions []string
	var upgrades []string

	registry := readiness.NewRegistry(readiness.Options{
		Renderer: renderer,
		Policy:   readiness.Policy{AutoUpgrade: true},
		Hooks: readiness.Hooks{
			// Hooks share the renderer's event log so the test can assert
			// how notifications interleave with render and cleanup calls.
			ReadinessChanged: func(id string, r access.Readiness) {
				transitions = append(transitions, fmt.Sprintf("%s:%s", id, r))
				renderer.events = append(renderer.events, fmt.Sprintf("notify:%s", r))
			},
			UpgradeAvailable: func(id string, p access.Payload) {
				upgrades = append(upgrades, id+":"+p.URI)
			},
		},
	})

	now := time.Now().UnixMilli()
	registry.Apply(degradedFrame("item-1", now))
	registry.Apply(readyFrame("item-1", now+1))

	m, ok := registry.Get("item-1")
	if !ok {
		t.Fatal("manager not created")
	}
	if m.State() != access.ReadinessReady {
		t.Fatalf("state = %v, want READY", m.State())
	}

	// The fallback rendering is torn down before observers hear READY, so
	// no one acts on READY while the degraded rendering is still mounted.
	wantEvents := []string{
		"notify:DEGRADED",
		"render:https://cdn.example/item-1/fallback.mp4",
		"cleanup:https://cdn.example/item-1/fallback.mp4",
		"notify:READY",
		"render:https://cdn.example/item-1/master.m3u8",
	}
	if len(renderer.events) != len(wantEvents) {
		t.Fatalf("events = %v, want %v", renderer.events, wantEvents)
	}
	for i, want := range wantEvents {
		if renderer.events[i] != want {
			t.Fatalf("events[%d] = %q, want %q", i, renderer.events[i], want)
		}
	}

	wantTransitions := []string{"item-1:DEGRADED", "item-1:READY"}
	if len(transitions) != 2 || transitions[0] != wantTransitions[0] || transitions[1] != wantTransitions[1] {
		t.Errorf("transitions = %v, want %v", transitions, wantTransitions)
	}
	if len(upgrades) != 1 {
		t.Errorf("upgrade notifications = %v, want one", upgrades)
	}
}

func TestReadyIsSticky(t *testing.T) {
	renderer := &recordingRenderer{}
	registry := readiness.NewRegistry(readiness.Options{
		Renderer: renderer,
		Policy:   readiness.Policy{AutoUpgrade: true},
	})

	now := time.Now().UnixMilli()
	registry.Apply(readyFrame("item-1", now))
	registry.Apply(degradedFrame("item-1", now+1))

	m, _ := registry.Get("item-1")
	if m.State() != access.ReadinessReady {
		t.Fatalf("state = %v, late DEGRADED must not downgrade READY", m.State())
	}
	if len(renderer.events) != 1 {
		t.Fatalf("events = %v, fallback must not render after READY", renderer.events)
	}
}

func TestInvalidAndExpiredFramesIgnored(t *testing.T) {
	renderer := &recordingRenderer{}
	registry := readiness.NewRegistry(readiness.Options{
		Renderer:    renderer,
		Policy:      readiness.Policy{AutoUpgrade: true},
		MaxFrameAge: time.Minute,
	})

	invalid := readyFrame("item-1", time.Now().UnixMilli())
	invalid.Valid = false
	registry.Apply(invalid)

	expired := readyFrame("item-1", time.Now().Add(-time.Hour).UnixMilli())
	registry.Apply(expired)

	m, _ := registry.Get("item-1")
	if m.State() != access.ReadinessPending {
		t.Fatalf("state = %v, want PENDING untouched", m.State())
	}
	if len(renderer.events) != 0 {
		t.Fatalf("events = %v, nothing should render", renderer.events)
	}
}

func TestOutOfOrderFrameDropped(t *testing.T) {
	renderer := &recordingRenderer{}
	registry := readiness.NewRegistry(readiness.Options{
		Renderer: renderer,
		Policy:   readiness.Policy{AutoUpgrade: true},
	})

	now := time.Now().UnixMilli()
	registry.Apply(readyFrame("item-1", now))
	// Older than the applied frame: must be ignored even though DEGRADED
	// transitions are otherwise valid from PENDING.
	registry.Apply(degradedFrame("item-1", now-5))

	if len(renderer.events) != 1 {
		t.Fatalf("events = %v, want only the READY render", renderer.events)
	}
}

func TestManualUpgradeTrigger(t *testing.T) {
	renderer := &recordingRenderer{}
	registry := readiness.NewRegistry(readiness.Options{
		Renderer: renderer,
		Policy:   readiness.Policy{AutoUpgrade: false},
	})

	if registry.TriggerUpgrade("item-1") {
		t.Fatal("trigger with no manager must report false")
	}

	now := time.Now().UnixMilli()
	registry.Apply(degradedFrame("item-1", now))
	registry.Apply(readyFrame("item-1", now+1))

	m, _ := registry.Get("item-1")
	if m.State() != access.ReadinessDegraded {
		t.Fatalf("state = %v, auto-upgrade disabled must stay DEGRADED", m.State())
	}
	if _, staged := m.PendingUpgrade(); !staged {
		t.Fatal("upgrade should be staged")
	}

	if !registry.TriggerUpgrade("item-1") {
		t.Fatal("trigger with staged upgrade must report true")
	}
	if m.State() != access.ReadinessReady {
		t.Fatalf("state = %v, want READY after trigger", m.State())
	}
	if registry.TriggerUpgrade("item-1") {
		t.Fatal("second trigger has nothing staged")
	}
}

func TestRenderFailureYieldsErrorResult(t *testing.T) {
	renderer := &recordingRenderer{fail: true}
	registry := readiness.NewRegistry(readiness.Options{
		Renderer: renderer,
		Policy:   readiness.Policy{AutoUpgrade: true},
	})

	registry.Apply(readyFrame("item-1", time.Now().UnixMilli()))

	m, _ := registry.Get("item-1")
	result, ok := m.CurrentResult()
	if !ok {
		t.Fatal("expected a stored result")
	}
	if result.Type != "error" {
		t.Fatalf("result type = %q, want error", result.Type)
	}
	if m.State() != access.ReadinessReady {
		t.Fatalf("state = %v, render failure must not revert state", m.State())
	}
}

func TestStaleFetchCompletionRejected(t *testing.T) {
	renderer := &recordingRenderer{}
	registry := readiness.NewRegistry(readiness.Options{
		Renderer: renderer,
		Policy:   readiness.Policy{AutoUpgrade: true},
	})

	m := registry.Ensure("item-1")
	version := m.Version()

	// Session restarts while the fetch is in flight.
	registry.Reset("item-1")

	if registry.ApplyFetched("item-1", version, readyFrame("item-1", time.Now().UnixMilli())) {
		t.Fatal("completion for the old session must be rejected")
	}
	if len(renderer.events) != 0 {
		t.Fatalf("events = %v, stale completion must not render", renderer.events)
	}

	fresh, _ := registry.Get("item-1")
	if registry.ApplyFetched("item-1", fresh.Version(), readyFrame("item-1", time.Now().UnixMilli())) == false {
		t.Fatal("completion for the live session must apply")
	}
	if fresh.State() != access.ReadinessReady {
		t.Fatalf("state = %v, want READY", fresh.State())
	}
}

func TestDestroyCleansUpAndDetaches(t *testing.T) {
	renderer := &recordingRenderer{}
	registry := readiness.NewRegistry(readiness.Options{
		Renderer: renderer,
		Policy:   readiness.Policy{AutoUpgrade: true},
	})

	registry.Apply(readyFrame("item-1", time.Now().UnixMilli()))

	var detached int
	m, _ := registry.Get("item-1")
	m.BindSubscription(func() { detached++ })

	registry.Destroy("item-1")

	last := renderer.events[len(renderer.events)-1]
	if last != "cleanup:https://cdn.example/item-1/master.m3u8" {
		t.Fatalf("events = %v, destroy must clean up the active render", renderer.events)
	}
	if detached != 1 {
		t.Fatalf("subscription detached %d times, want 1", detached)
	}
	if _, ok := registry.Get("item-1"); ok {
		t.Fatal("manager should be removed")
	}
	if registry.Len() != 0 {
		t.Fatalf("registry len = %d", registry.Len())
	}
}

func TestFrameHeadersMergedIntoStagedPayload(t *testing.T) {
	renderer := &recordingRenderer{}
	registry := readiness.NewRegistry(readiness.Options{
		Renderer: renderer,
		Policy:   readiness.Policy{AutoUpgrade: false},
	})

	f := readyFrame("item-1", time.Now().UnixMilli())
	f.Headers = map[string]string{"Authorization": "Bearer xyz"}
	registry.Apply(f)

	m, _ := registry.Get("item-1")
	staged, ok := m.PendingUpgrade()
	if !ok {
		t.Fatal("upgrade should be staged")
	}
	if staged.Headers["Authorization"] != "Bearer xyz" {
		t.Fatalf("staged headers = %v", staged.Headers)
	}
}
