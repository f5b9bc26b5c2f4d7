// Package harness provides end-to-end conformance testing for the
// translation pipeline.
//
// A fixture is a YAML document naming a CUE model file, the stored
// rows per hierarchy, external parameter bindings, and a fixed run
// token:
//
//	name: shapes_basic
//	description: "Canonical hierarchy with a spread of scores"
//	model: ../models/shapes.cue
//	rows:
//	  Base:
//	    - [Base, 1, alpha, ~, ~, ~]
//	    - [Mid, 2, beta, 20, ~, ~]
//	params:
//	  __min: 25
//	run_token: run-shapes
//
// Row literals follow the hierarchy layout: discriminator tag first,
// then every property column in declaration order, `~` for null.
//
// A Session compiles the model, loads the rows into an in-memory
// store, and wires the planner, translator, and runner together.
// Query expressions stay in test code; there is no query syntax to
// parse. Tests build trees with the expr constructors, hand them to
// the session, and snapshot the translated form and the produced
// rows.
//
// # Deterministic Execution
//
// Sessions run with a fixed run token and the deterministic logical
// clock, so the same fixture and the same expression produce
// byte-identical snapshots. Golden files under testdata/golden are
// the source of truth; regenerate with:
//
//	go test ./internal/harness -update
package harness
