// Package queue persists offline scan mutations in SQLite and exposes helpers
// for driving their lifecycle.
//
// The Store manages database connections, embedded migrations, per-row
// sequence counters, status transitions, and health diagnostics. Mutations are
// append-only: after insert only their status changes, and they are removed
// once the remote store confirms them. Every listing returns mutations in
// replay order (timestamp, then local sequence).
//
// Treat this package as the single source of truth for what has not yet
// reached the remote store; when you add columns, add a new numbered file under
// migrations/ rather than editing an applied one.
package queue
