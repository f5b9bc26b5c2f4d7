// Package store provides durable row storage for entity models.
//
// Each entity hierarchy maps to one SQLite table in the flat
// table-per-hierarchy layout the planner compiles against: a monotonic
// seq column for storage order, then the discriminator tag, then every
// property column the hierarchy declares, in layout order.
//
// DETERMINISM:
//
// Reads always order by seq ASC, so the engine scans rows in insertion
// order and the same fixture produces the same result stream. Nothing
// in this package orders by wall clock.
//
// The store registers each loaded model by name and content hash;
// loading a different model under a registered name is an error rather
// than a silent overwrite.
package store
