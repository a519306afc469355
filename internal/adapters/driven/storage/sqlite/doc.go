// Package sqlite provides the SQLite-backed cost ledger and session index.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO. Both stores share one database connection:
//
//   - CostLedger: append-only record of model calls and cache hits
//   - SessionIndex: one row per session, used for listing and duplicate detection
//
// # Schema
//
// The schema is managed through versioned migrations in the migrations/
// directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// The database lives at <data_dir>/ledger.db.
//
// # Thread Safety
//
// All operations are thread-safe. The store relies on SQLite in WAL mode with
// a busy timeout, so several processes may share one data directory.
package sqlite
