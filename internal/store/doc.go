// Package store persists the charm revision ledger as a YAML document.
//
// It models tracked packages and their per-revision records, normalizes
// legacy entries into a canonical shape on load, and rewrites the whole
// document atomically on save so a crash cannot leave a half-written file.
package store
