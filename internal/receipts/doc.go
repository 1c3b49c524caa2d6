// Package receipts forwards consumption receipts to an external collector.
// Delivery is fire and forget: failures are logged and never surface to the
// operation that produced the receipt.
package receipts
