package expr

import "fmt"

// Kind enumerates the result-type families an expression can have.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTime
	KindAny    // universal boxed type; buffers store Any
	KindEntity // a mapped entity instance, named by Type.Entity
	KindRow    // one value buffer
	KindRows   // a stream of entity rows, named by Type.Entity
	KindLambda // a function value; never survives translation
)

var kindNames = map[Kind]string{
	KindInvalid: "invalid",
	KindBool:    "bool",
	KindInt:     "int",
	KindFloat:   "float",
	KindString:  "string",
	KindTime:    "time",
	KindAny:     "any",
	KindEntity:  "entity",
	KindRow:     "row",
	KindRows:    "rows",
	KindLambda:  "lambda",
}

// Type is the static result type carried by every node.
//
// Null distinguishes the nullable form of a scalar from its plain form:
// int and int? are different types and conversions between them are
// real nodes. Any is always nullable and never carries the flag.
type Type struct {
	Kind   Kind
	Null   bool
	Entity string // entity type name for KindEntity and KindRows
}

// Scalar type singletons.
var (
	BoolType   = Type{Kind: KindBool}
	IntType    = Type{Kind: KindInt}
	FloatType  = Type{Kind: KindFloat}
	StringType = Type{Kind: KindString}
	TimeType   = Type{Kind: KindTime}
	AnyType    = Type{Kind: KindAny}
	RowType    = Type{Kind: KindRow}
)

// EntityType returns the type of an instance of the named entity.
func EntityType(name string) Type {
	return Type{Kind: KindEntity, Entity: name}
}

// RowsType returns the type of a row stream over the named entity.
func RowsType(name string) Type {
	return Type{Kind: KindRows, Entity: name}
}

// Nullable returns the nullable form of t. Any stays Any.
func Nullable(t Type) Type {
	if t.Kind == KindAny {
		return t
	}
	t.Null = true
	return t
}

// Unwrap returns the non-nullable form of t.
func Unwrap(t Type) Type {
	t.Null = false
	return t
}

// IsNullable reports whether t admits null. Any always does.
func (t Type) IsNullable() bool { return t.Null || t.Kind == KindAny }

// IsEntity reports whether t is an entity instance type.
func (t Type) IsEntity() bool { return t.Kind == KindEntity }

// IsScalar reports whether t is a plain scalar family, nullable or not.
func (t Type) IsScalar() bool {
	switch t.Kind {
	case KindBool, KindInt, KindFloat, KindString, KindTime:
		return true
	}
	return false
}

// Equal reports whether two types are identical, nullability included.
func (t Type) Equal(o Type) bool { return t == o }

// String renders the type in canonical form: "int", "int?",
// "entity:Order", "rows:Order".
func (t Type) String() string {
	name, ok := kindNames[t.Kind]
	if !ok {
		name = fmt.Sprintf("kind(%d)", t.Kind)
	}
	switch t.Kind {
	case KindEntity, KindRows:
		name = name + ":" + t.Entity
	}
	if t.Null {
		name += "?"
	}
	return name
}
