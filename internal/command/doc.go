// Package command implements the regulation script language that maps
// abstract power/temperature/mode operations onto vendor-specific Modbus
// register layouts.
//
// A Script is an ordered list of assignment and action statements over a
// small expression tree. Expressions apply a closed set of functions:
// arithmetic and bitwise helpers, a millisecond delay, and the Modbus
// register primitives. String arguments starting "$" reference variables in
// the execution scope, "0x" prefixed strings are hex literals, and other
// strings parse as decimal.
//
// Scripts come from the strategy catalog as JSON and are validated against
// the closed function set when loaded (Validate); execution assumes a valid
// script. One Execute call runs statements strictly in order against one
// connection and is never interleaved with another execution on the same
// connection key (the caller serialises via the connection manager's queue).
//
// # Key Types
//
//   - Script / Statement / Expression / Arg: the decoded script AST
//   - Interpreter: executes a script against a Conn, producing a Scope
//   - Conn: the register-level transport interface
//
// # Usage
//
//	interp := command.NewInterpreter(logger)
//	scope, err := interp.Execute(ctx, conn, strategy.PowerCommands.Write,
//	    command.Scope{"$power": 75})
package command
