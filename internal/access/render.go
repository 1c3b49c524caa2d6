package access

import "sync"

// RenderResult describes the outcome of dispatching a manifest to a
// rendering collaborator. Type is one of the stable shapes: "pending",
// "error", or a rendered kind matching the payload mode.
type RenderResult struct {
	Type      string
	URL       string
	Readiness Readiness
	Cleanup   func()
}

// RenderOptions carries renderer hints that are opaque to the core.
type RenderOptions struct {
	Autoplay bool
	Muted    bool
}

// Renderer is the out-of-scope collaborator that mounts a resolved manifest.
// Implementations must return a RenderResult whose Cleanup is safe to call
// more than once; IdempotentCleanup helps with that.
type Renderer interface {
	Render(manifest Manifest, opts RenderOptions) (RenderResult, error)
}

// IdempotentCleanup wraps fn so repeated invocations run it at most once.
// A nil fn yields a no-op.
func IdempotentCleanup(fn func()) func() {
	if fn == nil {
		return func() {}
	}
	var once sync.Once
	return func() { once.Do(fn) }
}

// ErrorResult builds the error-typed render result used when no compatible
// access exists or rendering fails. It carries a no-op cleanup.
func ErrorResult(readiness Readiness) RenderResult {
	return RenderResult{Type: "error", Readiness: readiness, Cleanup: func() {}}
}

// PendingResult builds the placeholder result for an unresolved item.
func PendingResult() RenderResult {
	return RenderResult{Type: "pending", Readiness: ReadinessPending, Cleanup: func() {}}
}
