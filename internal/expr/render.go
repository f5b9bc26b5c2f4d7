package expr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Render produces the canonical text of a tree.
//
// The form is a prefix notation with one parenthesized group per node,
// children in evaluation order, every node's result type spelled out.
// It is deterministic and injective over trees: two trees render equal
// text exactly when they are structurally identical. Golden files,
// structural equality, and hashing all build on it.
func Render(n Node) string {
	var b strings.Builder
	render(&b, n)
	return b.String()
}

func render(b *strings.Builder, n Node) {
	if n == nil {
		b.WriteString("nil")
		return
	}
	switch node := n.(type) {
	case *Constant:
		fmt.Fprintf(b, "(const %s %s)", node.Type, renderValue(node.Value))
	case *Param:
		fmt.Fprintf(b, "(param %s %s)", canonicalString(node.Name), node.Type)
	case *Member:
		fmt.Fprintf(b, "(member %s %s %s ", canonicalString(node.Name), canonicalString(node.Decl), node.Type)
		render(b, node.Recv)
		b.WriteByte(')')
	case *Call:
		fmt.Fprintf(b, "(call %s %s ", canonicalString(node.Method), node.Type)
		render(b, node.Recv)
		for _, a := range node.Args {
			b.WriteByte(' ')
			render(b, a)
		}
		b.WriteByte(')')
	case *Binary:
		fmt.Fprintf(b, "(%s %s ", node.Op, node.Type)
		render(b, node.Left)
		b.WriteByte(' ')
		render(b, node.Right)
		b.WriteByte(')')
	case *Conditional:
		fmt.Fprintf(b, "(cond %s ", node.Type)
		render(b, node.Test)
		b.WriteByte(' ')
		render(b, node.Then)
		b.WriteByte(' ')
		render(b, node.Else)
		b.WriteByte(')')
	case *TypeIs:
		fmt.Fprintf(b, "(is %s ", canonicalString(node.Target))
		render(b, node.Operand)
		b.WriteByte(')')
	case *Unary:
		fmt.Fprintf(b, "(%s %s ", node.Op, node.Type)
		render(b, node.Operand)
		b.WriteByte(')')
	case *Lambda:
		b.WriteString("(lambda (")
		for i, p := range node.Params {
			if i > 0 {
				b.WriteByte(' ')
			}
			render(b, p)
		}
		b.WriteString(") ")
		render(b, node.Body)
		b.WriteByte(')')
	case *ListInit:
		fmt.Fprintf(b, "(list %s", node.Type)
		for _, e := range node.Elems {
			b.WriteByte(' ')
			render(b, e)
		}
		b.WriteByte(')')
	case *Invoke:
		fmt.Fprintf(b, "(invoke %s ", node.Type)
		render(b, node.Target)
		for _, a := range node.Args {
			b.WriteByte(' ')
			render(b, a)
		}
		b.WriteByte(')')
	case *Root:
		fmt.Fprintf(b, "(root %s)", canonicalString(node.Entity))
	case *EntityRef:
		fmt.Fprintf(b, "(entity %s row=%s off=%d)", canonicalString(node.Entity), canonicalString(node.Row), node.Offset)
	case *Materialize:
		fmt.Fprintf(b, "(materialize %s ", canonicalString(node.Entity))
		render(b, node.Row)
		b.WriteByte(')')
	case *ProjectionRef:
		fmt.Fprintf(b, "(projection %s %s)", canonicalString(node.Key), node.Type)
	case *NullSafe:
		b.WriteString("(nullsafe ")
		render(b, node.Access)
		b.WriteByte(')')
	case *BufferInit:
		b.WriteString("(rowinit")
		for _, c := range node.Cols {
			b.WriteByte(' ')
			render(b, c)
		}
		b.WriteByte(')')
	case *BufferRead:
		fmt.Fprintf(b, "(read %s %d %s)", canonicalString(node.Row), node.Index, node.Type)
	case *BufferEmpty:
		fmt.Fprintf(b, "(emptyrow %s)", canonicalString(node.Row))
	case *ParamLookup:
		fmt.Fprintf(b, "(paramlookup %s %s)", canonicalString(node.Name), node.Type)
	case *Let:
		fmt.Fprintf(b, "(let %s ", canonicalString(node.Name))
		render(b, node.Value)
		b.WriteByte(' ')
		render(b, node.Body)
		b.WriteByte(')')
	case *Subplan:
		fmt.Fprintf(b, "(subplan %s)", canonicalString(node.Handle.Describe()))
	default:
		fmt.Fprintf(b, "(node? %T)", n)
	}
}

// Equal reports structural equality of two trees. Render is injective,
// so text equality is tree equality.
func Equal(a, b Node) bool {
	return Render(a) == Render(b)
}

// canonicalString produces the canonical quoted form of a string:
// NFC normalized, JSON quoting, no HTML escaping. NFC at the rendering
// boundary keeps equal-looking identifiers from hashing apart.
func canonicalString(s string) string {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		// Strings always encode; keep the signature clean.
		return `"?"`
	}

	out := buf.Bytes()
	if len(out) > 0 && out[len(out)-1] == '\n' {
		out = out[:len(out)-1]
	}
	return string(out)
}
