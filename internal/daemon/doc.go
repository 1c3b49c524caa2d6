// Package daemon hosts the usherd runtime: the singleton lock, the catalog
// store, the push hub that fans frames out to subscribers, and the HTTP
// resolution API with its SSE and websocket push channels.
package daemon
