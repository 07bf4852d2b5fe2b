// Package store provides SQLite-backed audit storage for pipeline results.
//
// Every Result observed by the pipeline can be appended as:
//   - runs: one row per call (contract, strictness, state path, outcome,
//     parse error, input digest and the canonical JSON of the final record)
//   - field_events: one row per field the run touched, with the violation
//     kind and how the field was resolved
//
// Writes are idempotent (ON CONFLICT DO NOTHING on the run id) and every
// query orders by seq ASC, id ASC COLLATE BINARY so listings are
// deterministic.
//
// # Schema Versions
//
// PRAGMA user_version tracks the migration level. Open applies schema.sql,
// then every pending migration in its own transaction:
//
//   - 1: field_events(field, outcome) index for FieldStats
//   - 2: runs(contract_id, outcome, seq) index for OutcomeCounts
//
// A database from a newer binary is refused with ErrSchemaTooNew instead of
// being read with the wrong layout.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// MemoryPath opens a private in-memory log without WAL.
package store
