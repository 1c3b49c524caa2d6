// Package catalog persists the daemon-side view of content items and their
// graded access descriptors, plus the receipts accepted from clients. The
// store is backed by SQLite; the Preparer promotes items to READY once
// their upgrade preparation window elapses.
package catalog
