// Package replang is a small expression language for scoring content.
//
// Programs are integers, booleans, builtin function names, and parenthesized
// applications such as "(+ 1 2)". Builtins are curried: applying one to fewer
// arguments than it takes yields a partially applied function value. Every
// value, including partially applied functions, is plain data and can be
// stored and applied later.
package replang

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind distinguishes the value variants.
type Kind uint8

const (
	KindInt Kind = iota + 1
	KindBool
	KindFunc
)

// Value is the result of evaluation.
type Value struct {
	Kind Kind    `json:"kind"`
	Int  int64   `json:"int"`
	Bool bool    `json:"bool"`
	Func string  `json:"func,omitempty"`
	Args []Value `json:"args,omitempty"`
}

// Int returns an integer value.
func Int(n int64) Value { return Value{Kind: KindInt, Int: n} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// AsInt reports the integer held by v.
func (v Value) AsInt() (int64, bool) {
	return v.Int, v.Kind == KindInt
}

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindFunc:
		if len(v.Args) == 0 {
			return v.Func
		}
		parts := []string{v.Func}
		for _, a := range v.Args {
			parts = append(parts, a.String())
		}
		return "(" + strings.Join(parts, " ") + ")"
	default:
		return "<invalid>"
	}
}

var (
	// ErrType is returned when a value of the wrong kind is used.
	ErrType = errors.New("type error")
	// ErrDivideByZero is returned by / and mod.
	ErrDivideByZero = errors.New("divide by zero")
)

type builtin struct {
	arity int
	fn    func(args []Value) (Value, error)
}

var builtins map[string]builtin

func init() {
	builtins = map[string]builtin{
		"+":   intOp(func(a, b int64) (int64, error) { return a + b, nil }),
		"-":   intOp(func(a, b int64) (int64, error) { return a - b, nil }),
		"*":   intOp(func(a, b int64) (int64, error) { return a * b, nil }),
		"/":   intOp(func(a, b int64) (int64, error) { return divide(a, b, false) }),
		"mod": intOp(func(a, b int64) (int64, error) { return divide(a, b, true) }),
		"max": intOp(func(a, b int64) (int64, error) { return max(a, b), nil }),
		"min": intOp(func(a, b int64) (int64, error) { return min(a, b), nil }),
		"==":  cmpOp(func(a, b int64) bool { return a == b }),
		"<":   cmpOp(func(a, b int64) bool { return a < b }),
		">":   cmpOp(func(a, b int64) bool { return a > b }),
		"not": {1, func(args []Value) (Value, error) {
			if args[0].Kind != KindBool {
				return Value{}, fmt.Errorf("not: %w: want bool, got %s", ErrType, args[0])
			}
			return Bool(!args[0].Bool), nil
		}},
		"if": {3, func(args []Value) (Value, error) {
			if args[0].Kind != KindBool {
				return Value{}, fmt.Errorf("if: %w: want bool, got %s", ErrType, args[0])
			}
			if args[0].Bool {
				return args[1], nil
			}
			return args[2], nil
		}},
		"const": {2, func(args []Value) (Value, error) { return args[0], nil }},
	}
}

func divide(a, b int64, mod bool) (int64, error) {
	if b == 0 {
		return 0, ErrDivideByZero
	}
	if mod {
		return a % b, nil
	}
	return a / b, nil
}

func intOp(f func(a, b int64) (int64, error)) builtin {
	return builtin{2, func(args []Value) (Value, error) {
		a, ok1 := args[0].AsInt()
		b, ok2 := args[1].AsInt()
		if !ok1 || !ok2 {
			return Value{}, fmt.Errorf("%w: want ints, got %s and %s", ErrType, args[0], args[1])
		}
		n, err := f(a, b)
		if err != nil {
			return Value{}, err
		}
		return Int(n), nil
	}}
}

func cmpOp(f func(a, b int64) bool) builtin {
	return builtin{2, func(args []Value) (Value, error) {
		a, ok1 := args[0].AsInt()
		b, ok2 := args[1].AsInt()
		if !ok1 || !ok2 {
			return Value{}, fmt.Errorf("%w: want ints, got %s and %s", ErrType, args[0], args[1])
		}
		return Bool(f(a, b)), nil
	}}
}

// Apply applies fn to args. Extra arguments are applied to the result.
func Apply(fn Value, args ...Value) (Value, error) {
	for {
		if len(args) == 0 {
			return fn, nil
		}
		if fn.Kind != KindFunc {
			return Value{}, fmt.Errorf("apply %s: %w: not a function", fn, ErrType)
		}
		b, ok := builtins[fn.Func]
		if !ok {
			return Value{}, fmt.Errorf("apply: unknown function %q", fn.Func)
		}

		all := make([]Value, 0, len(fn.Args)+len(args))
		all = append(all, fn.Args...)
		all = append(all, args...)
		if len(all) < b.arity {
			return Value{Kind: KindFunc, Func: fn.Func, Args: all}, nil
		}

		result, err := b.fn(all[:b.arity])
		if err != nil {
			return Value{}, fmt.Errorf("%s: %w", fn.Func, err)
		}
		fn, args = result, all[b.arity:]
	}
}

// Interpreter evaluates expressions and applies function values.
type Interpreter interface {
	Eval(src string) (Value, error)
	Apply(fn Value, args ...Value) (Value, error)
}

type interpreter struct{}

func (interpreter) Eval(src string) (Value, error) { return Eval(src) }

func (interpreter) Apply(fn Value, args ...Value) (Value, error) { return Apply(fn, args...) }

// Default is the Interpreter for this package's language.
var Default Interpreter = interpreter{}
