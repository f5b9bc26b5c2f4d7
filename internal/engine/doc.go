// Package engine executes compiled row programs.
//
// The engine is the runtime half of the translator: the planner
// compiles entity queries into flat buffer programs, and this package
// runs them against stored rows and an execution context.
//
// ARCHITECTURE:
//
// Single-Pass Evaluation:
// A Runner scans one hierarchy's rows in storage order, narrows rows to
// the query's entity type by discriminator tag, evaluates the compiled
// filter per row, and materializes result buffers per the query's
// result mode. Embedded subqueries re-enter the same runner through the
// evaluator, carrying the enclosing environment so correlated filters
// see the outer rows.
//
// Evaluation Flow:
// 1. Runner.Run() applies the query's projection and scans stored rows
// 2. Evaluator.Eval() executes filter and column expressions
// 3. Let-bound subplans run via Runner.RunSubplan with the outer scope
// 4. Result buffers materialize per mode (rows, first, single, count)
//
// The evaluator executes only server-form nodes. Any client-form node
// reaching it is an UNTRANSLATED_NODE error, never a silent fallback.
//
// DETERMINISM:
//
// Rows are scanned in storage order, every query run takes a strictly
// increasing step number from the context's Clock, and the run token
// names the run in every log line. The same scenario with a fixed token
// and clock produces identical output.
package engine
