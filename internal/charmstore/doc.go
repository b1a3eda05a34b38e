// Package charmstore provides a minimal HTTP client for the charmstore v5
// API covering entity lookup, per-revision file listings, and archive file
// retrieval, with the error taxonomy the revision scanner relies on.
package charmstore
