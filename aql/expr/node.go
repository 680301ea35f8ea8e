package expr

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-aql/aql"
)

// Node is the serialisable form of an expression, as written in plan
// files. Exactly one of the fields selecting the kind must be set.
type Node struct {
	Register *aql.RegisterID `json:"register,omitempty"`
	Value    interface{}     `json:"value,omitempty"`
	IsNull   bool            `json:"null,omitempty"`
	Op       string          `json:"op,omitempty"`
	Func     string          `json:"func,omitempty"`
	Attr     string          `json:"attr,omitempty"`
	Args     []Node          `json:"args,omitempty"`
}

// Compile turns a Node into an Expression.
func Compile(n Node) (Expression, error) {
	switch {
	case n.Register != nil:
		ref := Expression(Reference{Register: *n.Register})
		if n.Attr != "" {
			return Attribute{Object: ref, Name: n.Attr}, nil
		}
		return ref, nil
	case n.IsNull:
		return Constant{Value: nil}, nil
	case n.Op != "":
		args, err := compileArgs(n.Args)
		if err != nil {
			return nil, err
		}
		if n.Op == "NOT" || n.Op == "!" {
			if len(args) != 1 {
				return nil, errors.Newf("operator %s expects one operand, got %d", n.Op, len(args))
			}
			return Not{Operand: args[0]}, nil
		}
		if len(args) != 2 {
			return nil, errors.Newf("operator %s expects two operands, got %d", n.Op, len(args))
		}
		return Binary{Op: n.Op, Left: args[0], Right: args[1]}, nil
	case n.Func != "":
		args, err := compileArgs(n.Args)
		if err != nil {
			return nil, err
		}
		if _, ok := functions[strings.ToUpper(n.Func)]; !ok {
			return nil, errors.Newf("unknown function %s()", n.Func)
		}
		return Call{Name: n.Func, Args: args}, nil
	case n.Value != nil:
		return Constant{Value: normalize(n.Value)}, nil
	}
	return nil, errors.New("empty expression")
}

func compileArgs(nodes []Node) ([]Expression, error) {
	out := make([]Expression, len(nodes))
	for i, a := range nodes {
		e, err := Compile(a)
		if err != nil {
			return nil, errors.Wrapf(err, "argument %d", i)
		}
		out[i] = e
	}
	return out, nil
}

// normalize converts decoded JSON numbers to int64 where they are
// integral, so constants compare and print like row values.
func normalize(v interface{}) aql.Value {
	switch t := v.(type) {
	case float64:
		if t == float64(int64(t)) {
			return int64(t)
		}
		return t
	case []interface{}:
		out := make([]aql.Value, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]aql.Value, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	}
	return v
}

// Normalize is exported for sources that decode JSON documents.
func Normalize(v interface{}) aql.Value {
	return normalize(v)
}
