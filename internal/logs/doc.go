// Package logs tails the daemon log file for the CLI.
//
// Reads only ever return complete lines, so a follower polling with Since
// never sees a half-written entry, and a log archived at daemon start is
// picked up again from its beginning.
package logs
