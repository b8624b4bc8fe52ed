// Package observe runs the per-surface observation loop.
//
// A Loop owns one session.Session. Each scan asks its Adapter for candidate
// content units, matches their text against the source's rules, merges the
// adapter's structural evidence, classifies, inserts new ids into the
// session and reports the cumulative stats. Scans are driven by a
// rescan.Scheduler subscribed to the surface's change notifications.
package observe
