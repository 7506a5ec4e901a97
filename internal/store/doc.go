// Package store maintains the SQLite run index.
//
// Every completed run, including rejected and broken ones, gets exactly one
// row pointing at its evidence bundle. The index is append-only: rows are
// inserted once and never mutated, so a row can always be checked against
// the bundle it names.
//
// The database runs in WAL mode with a single writer connection; vouch is a
// one-shot tool, and serializing writers through one connection avoids
// SQLITE_BUSY churn when runs overlap.
package store
