// Package daemon runs the long-lived AttentionGuard process.
//
// It loads the source registry, opens the durable record store and owns the
// single Aggregator shared by every surface. A flock on the state directory
// keeps one instance per state directory. The optional HTTP API exposes
// status, aggregated records, active surfaces, the event stream and the
// Prometheus registry; the unix-socket JSON-RPC surface lives in package ipc.
package daemon
