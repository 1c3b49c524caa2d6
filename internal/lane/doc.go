// Package lane multiplexes one shared push channel into per-item
// subscriptions. At most one subscription per item exists at a time;
// re-subscribing returns the existing handle.
package lane
