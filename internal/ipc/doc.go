// Package ipc exposes daemon control over JSON-RPC on a Unix domain socket.
// The CLI prefers this channel and falls back to the HTTP API when the
// socket is unavailable.
package ipc
