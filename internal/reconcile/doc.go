// Package reconcile drives the revision reconciliation run: it walks every
// tracked charm in the persisted ledger, scans the charmstore for new
// revisions, resolves stable branch commits on GitHub once per charm, joins
// the two by commit identifier, and checkpoints the ledger after each charm.
package reconcile
