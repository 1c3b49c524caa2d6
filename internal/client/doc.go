// Package client talks to a running usherd: one-shot manifest fetches over
// HTTP and long-lived push streams (SSE or websocket) that feed decoded
// frames into lane subscriptions.
package client
