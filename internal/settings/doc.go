// Package settings provides the persisted key/value settings store.
//
// Settings are opaque strings keyed by well-known names (see the Key*
// constants); most values are JSON documents. The store backs the
// installer-facing configuration surface: the selected HRU and its Modbus
// endpoint, broker credentials, timeline events/modes, the boost override,
// and the discovery reconciliation map.
//
// # Key Types
//
//   - Store: SQLite-backed key/value access with JSON helpers
//   - HRUSettings: selected unit + Modbus endpoint + installer power ceiling
//   - MQTTSettings: installer-configured broker connection
//
// # Usage
//
//	store := settings.NewStore(db)
//	hru, err := store.GetHRU(ctx)
//	if hru == nil {
//	    // not configured yet
//	}
package settings
