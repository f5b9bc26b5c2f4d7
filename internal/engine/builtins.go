package engine

import (
	"fmt"
	"math"
	"strings"

	"github.com/stratahq/strata/internal/expr"
)

// BuiltinFunc is a runtime-provided named function. A call node whose
// method survives translation resolves to one of these; the receiver,
// when present, arrives as the first argument.
type BuiltinFunc func(args []expr.Value) (expr.Value, error)

// Builtins returns the default function registry. Every function
// propagates null: a null argument yields null rather than an error,
// matching the null flow of the operators.
func Builtins() map[string]BuiltinFunc {
	return map[string]BuiltinFunc{
		"length":     stringFunc1("length", func(s string) expr.Value { return expr.Int(len(s)) }),
		"upper":      stringFunc1("upper", func(s string) expr.Value { return expr.Str(strings.ToUpper(s)) }),
		"lower":      stringFunc1("lower", func(s string) expr.Value { return expr.Str(strings.ToLower(s)) }),
		"trim":       stringFunc1("trim", func(s string) expr.Value { return expr.Str(strings.TrimSpace(s)) }),
		"contains":   stringFunc2("contains", func(s, sub string) expr.Value { return expr.Bool(strings.Contains(s, sub)) }),
		"startsWith": stringFunc2("startsWith", func(s, p string) expr.Value { return expr.Bool(strings.HasPrefix(s, p)) }),
		"endsWith":   stringFunc2("endsWith", func(s, p string) expr.Value { return expr.Bool(strings.HasSuffix(s, p)) }),
		"abs":        absFunc,
		"min":        minMaxFunc("min", func(a, b float64) bool { return a < b }),
		"max":        minMaxFunc("max", func(a, b float64) bool { return a > b }),
		"floor":      floatFunc1("floor", math.Floor),
		"ceil":       floatFunc1("ceil", math.Ceil),
		"round":      floatFunc1("round", math.Round),
	}
}

func arity(name string, args []expr.Value, want int) error {
	if len(args) != want {
		return fmt.Errorf("%s takes %d arguments, got %d", name, want, len(args))
	}
	return nil
}

func anyNull(args []expr.Value) bool {
	for _, a := range args {
		if expr.IsNull(a) {
			return true
		}
	}
	return false
}

func stringFunc1(name string, fn func(string) expr.Value) BuiltinFunc {
	return func(args []expr.Value) (expr.Value, error) {
		if err := arity(name, args, 1); err != nil {
			return nil, err
		}
		if anyNull(args) {
			return expr.Null{}, nil
		}
		s, ok := args[0].(expr.Str)
		if !ok {
			return nil, typeMismatch(name, args[0])
		}
		return fn(string(s)), nil
	}
}

func stringFunc2(name string, fn func(string, string) expr.Value) BuiltinFunc {
	return func(args []expr.Value) (expr.Value, error) {
		if err := arity(name, args, 2); err != nil {
			return nil, err
		}
		if anyNull(args) {
			return expr.Null{}, nil
		}
		a, aok := args[0].(expr.Str)
		b, bok := args[1].(expr.Str)
		if !aok || !bok {
			return nil, typeMismatch(name, args[0])
		}
		return fn(string(a), string(b)), nil
	}
}

func floatFunc1(name string, fn func(float64) float64) BuiltinFunc {
	return func(args []expr.Value) (expr.Value, error) {
		if err := arity(name, args, 1); err != nil {
			return nil, err
		}
		if anyNull(args) {
			return expr.Null{}, nil
		}
		f, ok := asFloat(args[0])
		if !ok {
			return nil, typeMismatch(name, args[0])
		}
		return expr.Float(fn(f)), nil
	}
}

func absFunc(args []expr.Value) (expr.Value, error) {
	if err := arity("abs", args, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case expr.Null:
		return expr.Null{}, nil
	case expr.Int:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case expr.Float:
		return expr.Float(math.Abs(float64(v))), nil
	default:
		return nil, typeMismatch("abs", args[0])
	}
}

// minMaxFunc picks one of two numeric arguments. Both ints keep int;
// any float widens the result.
func minMaxFunc(name string, pick func(a, b float64) bool) BuiltinFunc {
	return func(args []expr.Value) (expr.Value, error) {
		if err := arity(name, args, 2); err != nil {
			return nil, err
		}
		if anyNull(args) {
			return expr.Null{}, nil
		}
		af, aok := asFloat(args[0])
		bf, bok := asFloat(args[1])
		if !aok || !bok {
			return nil, typeMismatch(name, args[0])
		}
		chosen := args[1]
		if pick(af, bf) {
			chosen = args[0]
		}
		_, aInt := args[0].(expr.Int)
		_, bInt := args[1].(expr.Int)
		if aInt != bInt {
			f, _ := asFloat(chosen)
			return expr.Float(f), nil
		}
		return chosen, nil
	}
}
