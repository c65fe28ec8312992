package command

import "fmt"

// Script function names. The set is closed: scripts referencing any other
// name are rejected when the catalog loads, not at execution time.
const (
	FuncAnd      = "and"
	FuncOr       = "or"
	FuncLShift   = "lshift"
	FuncRShift   = "rshift"
	FuncRound    = "round"
	FuncMultiply = "multiply"
	FuncDivide   = "divide"
	FuncSum      = "sum"
	FuncClamp    = "clamp"
	FuncNonZero  = "non_zero"
	FuncDelay    = "delay"

	FuncReadHolding       = "modbus_read_holding"
	FuncReadInput         = "modbus_read_input"
	FuncWriteHolding      = "modbus_write_holding"
	FuncWriteCoil         = "modbus_write_coil"
	FuncWriteHoldingMulti = "modbus_write_holding_multi"
)

// minArgs maps each known function to its minimum argument count.
// Presence in this map is what makes a function name valid.
var minArgs = map[string]int{
	FuncAnd:      2,
	FuncOr:       2,
	FuncLShift:   2,
	FuncRShift:   2,
	FuncRound:    1,
	FuncMultiply: 2,
	FuncDivide:   2,
	FuncSum:      1,
	FuncClamp:    3,
	FuncNonZero:  1,
	FuncDelay:    1,

	FuncReadHolding:       1,
	FuncReadInput:         1,
	FuncWriteHolding:      2,
	FuncWriteCoil:         2,
	FuncWriteHoldingMulti: 2,
}

// maxArgs caps functions whose extra arguments would be silently ignored at
// execution time. Single-register writes take exactly (address, value); the
// multi variant exists for writing a list.
var maxArgs = map[string]int{
	FuncWriteHolding: 2,
	FuncWriteCoil:    2,
}

// Validate checks a script against the closed function set and each
// function's arity, recursing into nested expressions. It is called once at
// catalog load; execution assumes a validated script.
func Validate(script Script) error {
	for i, stmt := range script {
		switch stmt.Type {
		case StatementAssignment:
			if stmt.Variable == "" {
				return fmt.Errorf("statement %d: %w: assignment without variable", i, ErrInvalidScript)
			}
			if stmt.Value == nil {
				return fmt.Errorf("statement %d: %w: assignment without value", i, ErrInvalidScript)
			}
			if err := validateExpr(stmt.Value); err != nil {
				return fmt.Errorf("statement %d: %w", i, err)
			}
		case StatementAction:
			if stmt.Expression == nil {
				return fmt.Errorf("statement %d: %w: action without expression", i, ErrInvalidScript)
			}
			if err := validateExpr(stmt.Expression); err != nil {
				return fmt.Errorf("statement %d: %w", i, err)
			}
		default:
			return fmt.Errorf("statement %d: %w: unknown type %q", i, ErrInvalidScript, stmt.Type)
		}
	}
	return nil
}

func validateExpr(expr *Expression) error {
	min, ok := minArgs[expr.Function]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFunction, expr.Function)
	}
	if len(expr.Args) < min {
		return fmt.Errorf("%w: %s needs at least %d args, got %d",
			ErrInvalidScript, expr.Function, min, len(expr.Args))
	}
	if max, capped := maxArgs[expr.Function]; capped && len(expr.Args) > max {
		return fmt.Errorf("%w: %s takes exactly %d args, got %d",
			ErrInvalidScript, expr.Function, max, len(expr.Args))
	}
	for _, arg := range expr.Args {
		if arg.Expr != nil {
			if err := validateExpr(arg.Expr); err != nil {
				return err
			}
		}
	}
	return nil
}
