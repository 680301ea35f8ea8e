// Package expr implements the small expression language evaluated by
// filter and calculation executors against input rows.
package expr

import (
	"fmt"
	"math"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-aql/aql"
	"github.com/wbrown/janus-aql/aql/block"
)

// Expression computes a value from one input row.
type Expression interface {
	Evaluate(row block.InputRow) (aql.Value, error)
	String() string
}

// Reference reads a register.
type Reference struct {
	Register aql.RegisterID
}

func (e Reference) Evaluate(row block.InputRow) (aql.Value, error) {
	return row.Value(e.Register), nil
}

func (e Reference) String() string { return fmt.Sprintf("$%d", e.Register) }

// Constant yields a fixed value.
type Constant struct {
	Value aql.Value
}

func (e Constant) Evaluate(block.InputRow) (aql.Value, error) { return e.Value, nil }

func (e Constant) String() string { return aql.FormatValue(e.Value) }

// Attribute reads a named attribute of an object value. Non-objects and
// missing attributes yield null.
type Attribute struct {
	Object Expression
	Name   string
}

func (e Attribute) Evaluate(row block.InputRow) (aql.Value, error) {
	v, err := e.Object.Evaluate(row)
	if err != nil {
		return nil, err
	}
	switch obj := v.(type) {
	case map[string]aql.Value:
		return obj[e.Name], nil
	case map[string]interface{}:
		return obj[e.Name], nil
	}
	return nil, nil
}

func (e Attribute) String() string { return e.Object.String() + "." + e.Name }

// Binary applies a comparison, arithmetic or logical operator.
type Binary struct {
	Op          string
	Left, Right Expression
}

func (e Binary) Evaluate(row block.InputRow) (aql.Value, error) {
	l, err := e.Left.Evaluate(row)
	if err != nil {
		return nil, err
	}
	// Logical operators short-circuit and return an operand, like AQL.
	switch e.Op {
	case "AND", "&&":
		if !aql.Truthy(l) {
			return l, nil
		}
		return e.Right.Evaluate(row)
	case "OR", "||":
		if aql.Truthy(l) {
			return l, nil
		}
		return e.Right.Evaluate(row)
	}

	r, err := e.Right.Evaluate(row)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case "==":
		return aql.CompareValues(l, r) == 0, nil
	case "!=":
		return aql.CompareValues(l, r) != 0, nil
	case "<":
		return aql.CompareValues(l, r) < 0, nil
	case "<=":
		return aql.CompareValues(l, r) <= 0, nil
	case ">":
		return aql.CompareValues(l, r) > 0, nil
	case ">=":
		return aql.CompareValues(l, r) >= 0, nil
	case "IN":
		return contains(r, l), nil
	case "+", "-", "*", "/", "%":
		return arithmetic(e.Op, l, r), nil
	}
	return nil, errors.Newf("unknown operator %q", e.Op)
}

func (e Binary) String() string {
	return "(" + e.Left.String() + " " + e.Op + " " + e.Right.String() + ")"
}

// Not negates the truthiness of its operand.
type Not struct {
	Operand Expression
}

func (e Not) Evaluate(row block.InputRow) (aql.Value, error) {
	v, err := e.Operand.Evaluate(row)
	if err != nil {
		return nil, err
	}
	return !aql.Truthy(v), nil
}

func (e Not) String() string { return "NOT " + e.Operand.String() }

// Call invokes a built-in function.
type Call struct {
	Name string
	Args []Expression
}

func (e Call) Evaluate(row block.InputRow) (aql.Value, error) {
	args := make([]aql.Value, len(e.Args))
	for i, a := range e.Args {
		v, err := a.Evaluate(row)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	fn, ok := functions[strings.ToUpper(e.Name)]
	if !ok {
		return nil, errors.Newf("unknown function %s()", e.Name)
	}
	return fn(args)
}

func (e Call) String() string {
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = a.String()
	}
	return strings.ToUpper(e.Name) + "(" + strings.Join(parts, ", ") + ")"
}

// ErrUserFailure is returned by FAIL().
var ErrUserFailure = errors.New("user failure")

var functions = map[string]func([]aql.Value) (aql.Value, error){
	"LENGTH": func(args []aql.Value) (aql.Value, error) {
		if len(args) != 1 {
			return nil, errors.New("LENGTH() expects one argument")
		}
		return aql.Length(args[0]), nil
	},
	"TO_NUMBER": func(args []aql.Value) (aql.Value, error) {
		if len(args) != 1 {
			return nil, errors.New("TO_NUMBER() expects one argument")
		}
		f, _ := aql.ToNumber(args[0])
		return f, nil
	},
	"TO_BOOL": func(args []aql.Value) (aql.Value, error) {
		if len(args) != 1 {
			return nil, errors.New("TO_BOOL() expects one argument")
		}
		return aql.Truthy(args[0]), nil
	},
	"FAIL": func(args []aql.Value) (aql.Value, error) {
		msg := "FAIL() called"
		if len(args) > 0 {
			msg = fmt.Sprint(args[0])
		}
		return nil, errors.Wrap(ErrUserFailure, msg)
	},
}

func contains(haystack, needle aql.Value) bool {
	switch arr := haystack.(type) {
	case []aql.Value:
		for _, v := range arr {
			if aql.ValuesEqual(v, needle) {
				return true
			}
		}
	case []interface{}:
		for _, v := range arr {
			if aql.ValuesEqual(v, needle) {
				return true
			}
		}
	}
	return false
}

func arithmetic(op string, l, r aql.Value) aql.Value {
	lf, _ := aql.ToNumber(l)
	rf, _ := aql.ToNumber(r)
	var res float64
	switch op {
	case "+":
		res = lf + rf
	case "-":
		res = lf - rf
	case "*":
		res = lf * rf
	case "/":
		if rf == 0 {
			return nil
		}
		res = lf / rf
	case "%":
		if rf == 0 {
			return nil
		}
		res = math.Mod(lf, rf)
	}
	if math.IsNaN(res) || math.IsInf(res, 0) {
		return nil
	}
	if res == math.Trunc(res) && math.Abs(res) < 1<<53 {
		return int64(res)
	}
	return res
}
