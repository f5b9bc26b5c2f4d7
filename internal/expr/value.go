package expr

import (
	"strconv"
	"time"
)

// Value is a sealed interface over the runtime values expressions
// produce and buffers store. Only Null, Bool, Int, Float, Str, and
// Time implement it.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null is the null value. Using an explicit type keeps every buffer
// slot a Value; a nil Value never appears in a buffer.
type Null struct{}

func (Null) value() {}

// Bool is a boolean value.
type Bool bool

func (Bool) value() {}

// Int is an integer value. Always int64.
type Int int64

func (Int) value() {}

// Float is a floating-point value.
type Float float64

func (Float) value() {}

// Str is a string value.
type Str string

func (Str) value() {}

// Time is an instant. Stored and rendered in UTC.
type Time time.Time

func (Time) value() {}

// TypeOf reports the natural type of a value. Null maps to nullable
// Any since null alone names no scalar family.
func TypeOf(v Value) Type {
	switch v.(type) {
	case Null:
		return AnyType
	case Bool:
		return BoolType
	case Int:
		return IntType
	case Float:
		return FloatType
	case Str:
		return StringType
	case Time:
		return TimeType
	default:
		return Type{}
	}
}

// Default returns the zero value of a type: null for any nullable or
// boxed type, the scalar family's zero otherwise.
func Default(t Type) Value {
	if t.IsNullable() {
		return Null{}
	}
	switch t.Kind {
	case KindBool:
		return Bool(false)
	case KindInt:
		return Int(0)
	case KindFloat:
		return Float(0)
	case KindString:
		return Str("")
	case KindTime:
		return Time(time.Time{})
	default:
		return Null{}
	}
}

// IsNull reports whether v is the null value.
func IsNull(v Value) bool {
	_, ok := v.(Null)
	return ok
}

// RenderValue produces the canonical text of a single value, the same
// form Render uses inside constants. Trace snapshots and goldens
// format result values with it.
func RenderValue(v Value) string {
	return renderValue(v)
}

// renderValue produces the canonical text of a value. Floats use the
// shortest round-trip form, times RFC 3339 in UTC, strings the
// canonical quoted form.
func renderValue(v Value) string {
	switch val := v.(type) {
	case Null:
		return "null"
	case Bool:
		if val {
			return "true"
		}
		return "false"
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Str:
		return canonicalString(string(val))
	case Time:
		return time.Time(val).UTC().Format(time.RFC3339Nano)
	default:
		return "value?"
	}
}
