package hru

import (
	"context"

	"github.com/luftuj/hru-core/internal/command"
	"github.com/luftuj/hru-core/internal/modbus"
)

// Executor runs an ordered list of scripts against one connection key as a
// single exclusive unit: the key's queue is held for the whole batch and the
// variable scope carries across scripts, so a later script can reuse
// variables an earlier one assigned.
type Executor interface {
	RunScripts(ctx context.Context, key modbus.Key, scripts []command.Script, initial command.Scope) (command.Scope, error)
}

// PoolExecutor is the production Executor: interpreter over the pooled
// connection, serialised by the pool's per-key queue.
type PoolExecutor struct {
	Pool   *modbus.Pool
	Interp *command.Interpreter
}

// RunScripts implements Executor.
func (e *PoolExecutor) RunScripts(ctx context.Context, key modbus.Key, scripts []command.Script, initial command.Scope) (command.Scope, error) {
	scope := make(command.Scope, len(initial))
	for k, v := range initial {
		scope[k] = v
	}

	err := e.Pool.Execute(ctx, key, func(conn *modbus.Conn) error {
		for _, script := range scripts {
			out, err := e.Interp.Execute(ctx, conn, script, scope)
			if err != nil {
				return err
			}
			scope = out
		}
		return nil
	})
	return scope, err
}
