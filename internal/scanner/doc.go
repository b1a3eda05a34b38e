// Package scanner walks charmstore revisions for one charm, newest first,
// down to the last revision already reconciled. Listing fetches run under a
// bounded retry policy, provenance fetches under a separate more generous
// one, and every skip decision is logged so gaps in the result are
// explainable from the debug output.
package scanner
