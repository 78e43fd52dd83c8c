// Package store provides SQLite-backed durable storage for compile runs.
//
// Every invocation of the compile pipeline that is given a database path
// appends one row to the runs table: the graph name, backend target, plan
// content hash, node and group counts, and the number of reducer rewrites.
// Failed runs are recorded too, together with their batched diagnostics.
//
// # Ordering
//
// Runs carry a logical seq assigned at insert time. Every query orders by
// seq ASC, id ASC COLLATE BINARY so listings are identical across replays
// of the same compile sequence.
//
// # Schema
//
// schema.sql is applied on every Open; migrations bring older logs forward
// and record the version in PRAGMA user_version. Connections run in WAL mode
// with foreign keys enforced and a five second busy timeout.
//
// Run IDs are UUIDv7 strings, so they sort by creation time as well.
package store
