package plan

import "github.com/stratahq/strata/internal/expr"

// substituteParam replaces every reference to the named parameter with
// repl, allocating new nodes along every changed path and sharing
// untouched subtrees. A nested lambda that rebinds the same name
// shadows it; substitution does not descend past the shadow.
func substituteParam(n expr.Node, name string, repl expr.Node) expr.Node {
	if n == nil {
		return nil
	}
	switch node := n.(type) {
	case *expr.Param:
		if node.Name == name {
			return repl
		}
		return node
	case *expr.Member:
		recv := substituteParam(node.Recv, name, repl)
		if recv == node.Recv {
			return node
		}
		return &expr.Member{Recv: recv, Name: node.Name, Decl: node.Decl, Type: node.Type}
	case *expr.Call:
		recv := substituteParam(node.Recv, name, repl)
		args, argsChanged := substituteAll(node.Args, name, repl)
		if recv == node.Recv && !argsChanged {
			return node
		}
		return &expr.Call{Method: node.Method, Recv: recv, Args: args, Type: node.Type}
	case *expr.Binary:
		left := substituteParam(node.Left, name, repl)
		right := substituteParam(node.Right, name, repl)
		if left == node.Left && right == node.Right {
			return node
		}
		return &expr.Binary{Op: node.Op, Left: left, Right: right, Type: node.Type}
	case *expr.Conditional:
		test := substituteParam(node.Test, name, repl)
		then := substituteParam(node.Then, name, repl)
		els := substituteParam(node.Else, name, repl)
		if test == node.Test && then == node.Then && els == node.Else {
			return node
		}
		return &expr.Conditional{Test: test, Then: then, Else: els, Type: node.Type}
	case *expr.TypeIs:
		operand := substituteParam(node.Operand, name, repl)
		if operand == node.Operand {
			return node
		}
		return &expr.TypeIs{Operand: operand, Target: node.Target}
	case *expr.Unary:
		operand := substituteParam(node.Operand, name, repl)
		if operand == node.Operand {
			return node
		}
		return &expr.Unary{Op: node.Op, Operand: operand, Type: node.Type}
	case *expr.Lambda:
		for _, p := range node.Params {
			if p.Name == name {
				return node // shadowed
			}
		}
		body := substituteParam(node.Body, name, repl)
		if body == node.Body {
			return node
		}
		return &expr.Lambda{Params: node.Params, Body: body}
	case *expr.ListInit:
		elems, changed := substituteAll(node.Elems, name, repl)
		if !changed {
			return node
		}
		return &expr.ListInit{Elems: elems, Type: node.Type}
	case *expr.Invoke:
		target := substituteParam(node.Target, name, repl)
		args, argsChanged := substituteAll(node.Args, name, repl)
		if target == node.Target && !argsChanged {
			return node
		}
		return &expr.Invoke{Target: target, Args: args, Type: node.Type}
	case *expr.Materialize:
		row := substituteParam(node.Row, name, repl)
		if row == node.Row {
			return node
		}
		return &expr.Materialize{Entity: node.Entity, Row: row}
	case *expr.NullSafe:
		access := substituteParam(node.Access, name, repl)
		if access == node.Access {
			return node
		}
		return &expr.NullSafe{Access: access}
	default:
		// Leaves and server-form nodes carry no parameter references.
		return node
	}
}

func substituteAll(nodes []expr.Node, name string, repl expr.Node) ([]expr.Node, bool) {
	changed := false
	out := make([]expr.Node, len(nodes))
	for i, n := range nodes {
		out[i] = substituteParam(n, name, repl)
		if out[i] != n {
			changed = true
		}
	}
	if !changed {
		return nodes, false
	}
	return out, true
}
