package command

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Statement types within a Script.
const (
	StatementAssignment = "assignment"
	StatementAction     = "action"
)

// Expression is a single function application over a list of arguments.
// Arguments evaluate left to right; reads and writes take effect in that
// order, so argument position is significant.
type Expression struct {
	Function string `json:"function"`
	Args     []Arg  `json:"args"`
}

// Arg is one argument of an Expression: a numeric literal, a string literal
// (variable reference, hex, or decimal), or a nested Expression.
// Exactly one field is set.
type Arg struct {
	Number *float64
	String *string
	Expr   *Expression
}

// UnmarshalJSON decodes an argument from its catalog form, which is either a
// JSON number, a JSON string, or a nested expression object.
func (a *Arg) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return fmt.Errorf("empty argument")
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		a.String = &s
		return nil
	case '{':
		var expr Expression
		if err := json.Unmarshal(data, &expr); err != nil {
			return err
		}
		a.Expr = &expr
		return nil
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("argument must be a number, string, or expression: %w", err)
		}
		a.Number = &n
		return nil
	}
}

// MarshalJSON encodes the argument back to its catalog form.
func (a Arg) MarshalJSON() ([]byte, error) {
	switch {
	case a.Number != nil:
		return json.Marshal(*a.Number)
	case a.String != nil:
		return json.Marshal(*a.String)
	case a.Expr != nil:
		return json.Marshal(a.Expr)
	default:
		return nil, fmt.Errorf("argument has no value")
	}
}

// Statement is one step of a Script: either an assignment binding an
// evaluated value to a variable, or an action evaluated for side effect only.
type Statement struct {
	Type string `json:"type"`

	// Assignment fields. Variable carries its $ prefix ("$power").
	Variable string      `json:"variable,omitempty"`
	Value    *Expression `json:"value,omitempty"`

	// Action field.
	Expression *Expression `json:"expression,omitempty"`
}

// Script is an ordered list of statements sharing one variable scope for the
// duration of a single execution.
type Script []Statement

// Scope holds the named variables of one script execution. Keys carry their
// $ prefix. All values are float64; bitwise functions convert internally.
type Scope map[string]float64

// parseLiteral resolves a string argument against the scope.
// "$name" looks up a variable (0 when unset), "0x…" parses as hex, anything
// else parses as decimal (0 on failure).
func parseLiteral(s string, scope Scope) float64 {
	if strings.HasPrefix(s, "$") {
		return scope[s]
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 64)
		if err != nil {
			return 0
		}
		return float64(v)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
