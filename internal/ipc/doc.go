// Package ipc exposes the aggregator over JSON-RPC on a Unix socket and
// ships the matching client.
//
// Observation loops report through Reporter; the CLI reads records, toggles
// persistence and follows the event hub through Client. Client calls take a
// context so commands fail fast when the daemon is offline.
package ipc
