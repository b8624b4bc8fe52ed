// Package logging assembles the structured slog loggers used across
// AttentionGuard.
//
// It owns the console and JSON handlers, level and output plumbing, the
// standard field keys, and context helpers that tag log lines with the
// source, surface and request that produced them. NewNop gives tests and
// optional wiring a logger that cannot fail.
package logging
