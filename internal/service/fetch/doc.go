// Package fetch mirrors the payloads of a deployed bundle onto local disk.
//
// Shop floor hosts run umpire-fetch periodically; it compares local files
// against the active config by content id and downloads only what changed.
// Files are swapped in atomically with go-update so a half-written payload
// never replaces a good one, and a marker file keeps concurrent runs from
// stepping on each other.
package fetch
