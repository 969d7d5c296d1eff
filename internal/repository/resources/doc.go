// Package resources implements the content-addressed resource repository.
//
// Uploaded blobs (toolkits, firmware, images) are stored flat under
// <root>/blobs, named by their CIDv1 (raw codec, sha2-256 multihash).
// A sidecar metadata file per blob records the original name and timestamps
// for garbage collection. A repository-wide lock file serializes mutating
// access across processes.
package resources
