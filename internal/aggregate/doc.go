// Package aggregate holds the cross-surface view of every source.
//
// The Aggregator owns one records.Record per source and the map of which
// surface currently shows which source. Surfaces report their cumulative
// session counters; the record is overwritten field by field, persisted
// best-effort to the active backend, and every affected surface indicator is
// re-derived. Changes are published to a bounded Hub that long-pollers read
// by sequence number.
package aggregate
