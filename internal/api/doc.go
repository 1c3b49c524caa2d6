// Package api defines the transport-facing DTO shapes shared by the daemon
// HTTP surface, the resolution client, and internal IPC callers.
package api
