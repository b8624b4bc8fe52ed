// Package records holds the per-source aggregated records and the backends
// that persist them.
//
// A Backend stores one Record per source id. The memory backend lives for
// the daemon process only; the SQLite and Redis backends survive restarts
// and also carry the persistence Settings.
package records
