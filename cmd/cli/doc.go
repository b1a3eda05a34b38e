// Package cli constructs the charmrev command-line interface, wiring the
// Cobra command hierarchy, configuration loader, and structured logging
// primitives around the revision reconciliation command.
package cli
