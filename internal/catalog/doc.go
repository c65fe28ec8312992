// Package catalog loads and serves the vendor strategy and unit definitions.
//
// Each strategy is one JSON document mapping abstract power/temperature/mode
// operations to regulation scripts for a vendor's register layout; each unit
// is one installable device model referencing a strategy by id. The catalog
// is read-only after Load.
//
// Per-file failures (bad JSON, unknown script function, duplicate id) are
// logged and the file is skipped; the rest of the catalog still loads.
package catalog
