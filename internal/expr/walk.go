package expr

// Children returns a node's direct children in evaluation order.
// Leaves return nil. Subplan is a leaf: its inner query is a compiled
// plan, not an expression child.
func Children(n Node) []Node {
	switch node := n.(type) {
	case *Member:
		if node.Recv == nil {
			return nil
		}
		return []Node{node.Recv}
	case *Call:
		out := make([]Node, 0, len(node.Args)+1)
		if node.Recv != nil {
			out = append(out, node.Recv)
		}
		return append(out, node.Args...)
	case *Binary:
		return []Node{node.Left, node.Right}
	case *Conditional:
		return []Node{node.Test, node.Then, node.Else}
	case *TypeIs:
		return []Node{node.Operand}
	case *Unary:
		return []Node{node.Operand}
	case *Lambda:
		out := make([]Node, 0, len(node.Params)+1)
		for _, p := range node.Params {
			out = append(out, p)
		}
		return append(out, node.Body)
	case *ListInit:
		return node.Elems
	case *Invoke:
		return append([]Node{node.Target}, node.Args...)
	case *Materialize:
		return []Node{node.Row}
	case *NullSafe:
		return []Node{node.Access}
	case *BufferInit:
		return node.Cols
	case *Let:
		return []Node{node.Value, node.Body}
	default:
		return nil
	}
}

// Inspect traverses the tree in preorder, calling f on every node.
// If f returns false the node's children are skipped.
func Inspect(n Node, f func(Node) bool) {
	if n == nil {
		return
	}
	if !f(n) {
		return
	}
	for _, c := range Children(n) {
		Inspect(c, f)
	}
}

// Contains reports whether any node in the tree satisfies pred,
// returning on the first hit.
func Contains(n Node, pred func(Node) bool) bool {
	if n == nil {
		return false
	}
	stack := []Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if pred(cur) {
			return true
		}
		stack = append(stack, Children(cur)...)
	}
	return false
}
