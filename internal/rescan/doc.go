// Package rescan decides when a mutating content surface is re-evaluated.
//
// A Scheduler subscribes to structural-change notifications, filters the
// added nodes through a cheap "interesting content" predicate and coalesces
// bursts with a cancel-and-replace debounce timer so that a storm of
// micro-mutations costs one scan. High-churn surfaces can add a second,
// shorter debounce in front of the predicate itself, and surfaces whose
// content arrives out of band can add a periodic fallback scan.
//
// Every notification and timer fire is handed to a single loop goroutine,
// which is the only place scans run. That serialisation is what guarantees
// one scan in flight per surface without further locking. Timers come from
// a Clock so tests and simulations can drive time by hand.
package rescan
