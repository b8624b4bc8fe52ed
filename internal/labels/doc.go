// Package labels defines classification evidence and the pattern matcher that
// derives it from arbitrary text.
//
// A Label records one piece of evidence: the category it belongs to, a short
// snippet of the text that produced it, the kind of signal (ad, algorithmic,
// social, organic, manipulation) and a severity. Rules pair a compiled
// pattern with the label fields to emit on a match. Rule packs are plain YAML
// documents so new sources can be described without recompiling.
//
// Everything in this package is stateless and safe for concurrent use.
package labels
