// Package sources is the registry of supported content sources: how a
// surface address maps to a source, how the source is presented, the id
// prefix and rescan timings its observation loop uses, and the rule packs
// its items are matched against.
package sources
