package translate

import "github.com/stratahq/strata/internal/expr"

// ContainsEntityRef is the projection detector: it reports whether an
// already-translated tree still references a whole entity shape
// anywhere, returning on the first hit.
//
// Translate runs it once over every non-failed result as the final
// gate; a leftover projection downgrades the result to a soft failure.
// It is a pure function and safe to call from anywhere.
func ContainsEntityRef(n expr.Node) bool {
	return expr.Contains(n, func(cur expr.Node) bool {
		_, ok := cur.(*expr.EntityRef)
		return ok
	})
}
