// Package hru is the device controller: it resolves the installer-selected
// heat-recovery unit against the catalog and turns abstract read/write
// operations into regulation script executions on the pooled connection.
//
// Reads run the per-axis read scripts (power, temperature, mode, in that
// order) under one exclusive hold with a shared variable scope, then fold
// the scope into normalised values; the mode code resolves through the
// strategy's availableModes map with a raw numeric fallback. Writes run only
// the axes present in the request, inject the targets as initial variables,
// and cap power to the installer ceiling on configurable units.
//
// A missing or unresolvable unit selection is not an error condition:
// ResolvedConfiguration returns nil and operations return ErrNotConfigured,
// which callers treat as "skip this cycle".
package hru
