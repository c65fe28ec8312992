// Package modbus provides the keyed pool of persistent Modbus TCP
// connections used to talk to heat-recovery units.
//
// One logical connection exists per (host, port, unitId) key. Connections
// are created lazily, reconnect automatically after transport failures with
// a fixed delay, and are destroyed only at shutdown or when the installer
// changes the endpoint settings.
//
// Script executions on one key are mutually exclusive: Pool.Execute holds a
// per-key ExclusiveQueue for the duration of the callback, so two concurrent
// triggers (timeline tick vs. MQTT command) can never interleave their
// requests on one socket.
//
// # Key Types
//
//   - Pool: keyed connection pool + per-key serialisation
//   - Conn: one persistent connection with auto-reconnect
//   - ExclusiveQueue: capacity-one acquire/release primitive
//
// # Usage
//
//	pool := modbus.NewPool(3*time.Second, 3*time.Second, logger)
//	err := pool.Execute(ctx, key, func(conn *modbus.Conn) error {
//	    _, err := interp.Execute(ctx, conn, script, vars)
//	    return err
//	})
package modbus
