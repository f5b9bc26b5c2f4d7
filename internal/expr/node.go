// Package expr defines the expression-tree model shared by the planner,
// the translator, and the execution engine.
//
// Trees are immutable: every rewrite allocates new nodes and shares
// untouched subtrees. A node's static result type is fixed at
// construction and never revised by later passes.
package expr

// Node represents one node of a query expression tree.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in the translator and the evaluator.
//
// Node kinds fall into two groups:
//
//   - General kinds produced when a query is composed: Constant, Param,
//     Member, Call, Binary, Conditional, TypeIs, Unary, Lambda, ListInit,
//     Invoke, Root.
//   - Engine kinds introduced by the planner and the translator:
//     EntityRef, Materialize, ProjectionRef, NullSafe, BufferInit,
//     BufferRead, BufferEmpty, ParamLookup, Let, Subplan.
//
// A fully translated tree contains only Constant, Binary, Conditional,
// Unary, Call, BufferRead, BufferEmpty, ParamLookup, Let, and Subplan
// nodes. EntityRef in particular must never survive translation.
type Node interface {
	// ResultType reports the node's static result type.
	ResultType() Type

	exprNode() // Marker method - seals interface to this package
}

// PropertyMethod is the well-known method name of the indirect
// metadata-property access call. Its two arguments are the entity-valued
// receiver expression and a constant string naming the property.
const PropertyMethod = "property"

// BinaryOp enumerates binary operators.
type BinaryOp uint8

const (
	OpEq BinaryOp = iota + 1
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpCoalesce
)

var binaryOpNames = map[BinaryOp]string{
	OpEq:       "eq",
	OpNe:       "ne",
	OpLt:       "lt",
	OpLe:       "le",
	OpGt:       "gt",
	OpGe:       "ge",
	OpAnd:      "and",
	OpOr:       "or",
	OpAdd:      "add",
	OpSub:      "sub",
	OpMul:      "mul",
	OpDiv:      "div",
	OpMod:      "mod",
	OpCoalesce: "coalesce",
}

func (op BinaryOp) String() string {
	if s, ok := binaryOpNames[op]; ok {
		return s
	}
	return "op?"
}

// UnaryOp enumerates unary operators. OpConvert is a static type
// adjustment (widen, narrow, box to Any, wrap or unwrap nullable); it
// carries no runtime coercion beyond what the two types imply.
type UnaryOp uint8

const (
	OpConvert UnaryOp = iota + 1
	OpNot
	OpNeg
)

var unaryOpNames = map[UnaryOp]string{
	OpConvert: "convert",
	OpNot:     "not",
	OpNeg:     "neg",
}

func (op UnaryOp) String() string {
	if s, ok := unaryOpNames[op]; ok {
		return s
	}
	return "op?"
}

// Constant is a literal value of a fixed type.
type Constant struct {
	Value Value
	Type  Type
}

func (c *Constant) ResultType() Type { return c.Type }
func (*Constant) exprNode()          {}

// Param is a named placeholder. Parameters whose names carry the
// reserved external prefix are supplied at execution time through the
// execution context; any other parameter must have been substituted
// away before translation.
type Param struct {
	Name string
	Type Type
}

func (p *Param) ResultType() Type { return p.Type }
func (*Param) exprNode()          {}

// Member is a property access on a receiver expression.
//
// Decl, when non-empty, names the entity type that declares the member;
// it gives the binder a declaration-qualified identity to match before
// falling back to the bare name.
type Member struct {
	Recv Node
	Name string
	Decl string
	Type Type
}

func (m *Member) ResultType() Type { return m.Type }
func (*Member) exprNode()          {}

// Call is a method or function invocation. Recv is nil for static
// calls. Args are positional and evaluated left to right.
type Call struct {
	Method string
	Recv   Node
	Args   []Node
	Type   Type
}

func (c *Call) ResultType() Type { return c.Type }
func (*Call) exprNode()          {}

// Binary applies a binary operator to two operands.
type Binary struct {
	Op    BinaryOp
	Left  Node
	Right Node
	Type  Type
}

func (b *Binary) ResultType() Type { return b.Type }
func (*Binary) exprNode()          {}

// Conditional is a ternary if/then/else expression.
type Conditional struct {
	Test Node
	Then Node
	Else Node
	Type Type
}

func (c *Conditional) ResultType() Type { return c.Type }
func (*Conditional) exprNode()          {}

// TypeIs tests whether the operand's runtime type is Target or a type
// derived from Target. Target names an entity type. The result is
// always boolean.
type TypeIs struct {
	Operand Node
	Target  string
}

func (t *TypeIs) ResultType() Type { return BoolType }
func (*TypeIs) exprNode()          {}

// Unary applies a unary operator to one operand. For OpConvert the
// node's Type is the conversion target.
type Unary struct {
	Op      UnaryOp
	Operand Node
	Type    Type
}

func (u *Unary) ResultType() Type { return u.Type }
func (*Unary) exprNode()          {}

// Lambda is an inline function literal. Lambdas reach the translator
// only inside subquery call chains; a bare lambda in scalar position is
// untranslatable.
type Lambda struct {
	Params []*Param
	Body   Node
}

func (l *Lambda) ResultType() Type { return Type{Kind: KindLambda} }
func (*Lambda) exprNode()          {}

// ListInit constructs an in-memory list from element expressions.
// Untranslatable: list construction has no row-program form.
type ListInit struct {
	Elems []Node
	Type  Type
}

func (l *ListInit) ResultType() Type { return l.Type }
func (*ListInit) exprNode()          {}

// Invoke applies a lambda-valued target to arguments. Untranslatable.
type Invoke struct {
	Target Node
	Args   []Node
	Type   Type
}

func (i *Invoke) ResultType() Type { return i.Type }
func (*Invoke) exprNode()          {}

// Root is a query root over a named entity set. The planner consumes
// Root nodes when it compiles subquery call chains; a Root in scalar
// position is untranslatable.
type Root struct {
	Entity string
}

func (r *Root) ResultType() Type { return RowsType(r.Entity) }
func (*Root) exprNode()          {}

// EntityRef stands for one mapped entity row during translation.
//
// Semantics:
//
//	the row named Row, interpreted as an instance of Entity, with the
//	entity's hierarchy columns starting at column Offset
//
// Row names the buffer the reference reads ("" is the current row of
// the enclosing query). Offset shifts every column index resolved
// through this reference, which lets one buffer carry several entity
// shapes side by side.
//
// An EntityRef is a translation-time marker, not an executable read:
// the binder resolves member accesses against it into BufferRead nodes,
// and a finished translation must not contain any EntityRef.
type EntityRef struct {
	Entity string
	Row    string
	Offset int
}

func (e *EntityRef) ResultType() Type { return EntityType(e.Entity) }
func (*EntityRef) exprNode()          {}

// Materialize wraps the row-shaped expression that reconstructs a full
// entity instance from a buffer. Scalar translation looks through the
// wrapper at the row expression inside.
type Materialize struct {
	Entity string
	Row    Node
}

func (m *Materialize) ResultType() Type { return EntityType(m.Entity) }
func (*Materialize) exprNode()          {}

// ProjectionRef is a placeholder for an expression bound in the
// enclosing query's projection map under Key. The translator resolves
// it by lookup; the placeholder itself never executes.
type ProjectionRef struct {
	Key  string
	Type Type
}

func (p *ProjectionRef) ResultType() Type { return p.Type }
func (*ProjectionRef) exprNode()          {}

// NullSafe marks an access that yields null when its receiver chain is
// null instead of failing. Its result type is the nullable form of the
// wrapped access's type.
type NullSafe struct {
	Access Node
}

func (n *NullSafe) ResultType() Type { return Nullable(n.Access.ResultType()) }
func (*NullSafe) exprNode()          {}

// BufferInit constructs a value buffer from per-column expressions.
// The planner emits one as a query's row expression once the projection
// is applied; every column is boxed to Any, the buffer's storage type.
type BufferInit struct {
	Cols []Node
}

func (b *BufferInit) ResultType() Type { return RowType }
func (*BufferInit) exprNode()          {}

// BufferRead reads one column of a row as a value of a known type.
// Row names the buffer ("" is the current row).
type BufferRead struct {
	Row   string
	Index int
	Type  Type
}

func (b *BufferRead) ResultType() Type { return b.Type }
func (*BufferRead) exprNode()          {}

// BufferEmpty is true when the named row is the empty-row marker.
type BufferEmpty struct {
	Row string
}

func (b *BufferEmpty) ResultType() Type { return BoolType }
func (*BufferEmpty) exprNode()          {}

// ParamLookup fetches a named external parameter from the execution
// context at evaluation time.
type ParamLookup struct {
	Name string
	Type Type
}

func (p *ParamLookup) ResultType() Type { return p.Type }
func (*ParamLookup) exprNode()          {}

// Let binds the value of a row-producing expression to a name within
// Body, so the value is computed once however many times Body reads it.
type Let struct {
	Name  string
	Value Node
	Body  Node
}

func (l *Let) ResultType() Type { return l.Body.ResultType() }
func (*Let) exprNode()          {}

// SubplanHandle is the opaque handle a Subplan node carries. The
// planner implements it with the compiled inner query; the engine
// recognizes its own planner's handle at evaluation time. Describe must
// be deterministic for identical plans because rendering and hashing
// include it.
type SubplanHandle interface {
	Describe() string
}

// Subplan evaluates a compiled correlated subquery against the current
// environment and yields its single result row, or the empty-row marker
// when the subquery selects nothing.
type Subplan struct {
	Handle SubplanHandle
}

func (s *Subplan) ResultType() Type { return RowType }
func (*Subplan) exprNode()          {}
