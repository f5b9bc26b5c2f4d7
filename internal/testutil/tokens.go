package testutil

// FixedRunGenerator returns the same run token every time.
//
// This enables deterministic execution traces and golden snapshot
// comparison: the same scenario with the same FixedRunGenerator
// produces byte-identical traces.
//
// Thread-safety: FixedRunGenerator is stateless and safe for
// concurrent use.
type FixedRunGenerator struct {
	token string
}

// NewFixedRunGenerator creates a fixed run token generator.
// If token is empty, Generate() returns "test-run-default".
func NewFixedRunGenerator(token string) *FixedRunGenerator {
	if token == "" {
		token = "test-run-default"
	}
	return &FixedRunGenerator{token: token}
}

// Generate returns the fixed run token.
//
// Implements engine.RunTokenGenerator.
func (g *FixedRunGenerator) Generate() string {
	return g.token
}
