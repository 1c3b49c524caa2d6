// Package readiness tracks the per-item resolution state machine
// (PENDING -> DEGRADED -> READY) and orchestrates upgrades from a degraded
// rendering to the optimal one. The Registry is an explicitly owned store of
// managers keyed by item id; nothing in this package is process-global.
package readiness
