// Package session tracks the content units observed on one surface.
//
// A Session is an append-only aggregate keyed by content identity. Surfaces
// are rescanned many times while they mutate and the same unit shows up in
// most of those scans, so Add is idempotent per id: only the first insert
// touches the counters. The classification counters are mutually exclusive
// and always sum to Total; category counts are not (one item may carry
// several categories).
//
// Sessions are owned by a single observation loop and are not safe for
// concurrent use.
package session
