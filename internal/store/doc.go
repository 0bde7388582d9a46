// Package store provides the SQLite-backed archive behind the timeline.
//
// The archive keeps three tables:
//   - runs: one row per import run (UUIDv7 id, sources, counts)
//   - events: resolved events, keyed by their content id
//   - books: zstd-compressed canonical book snapshots, newest last
//
// # Critical Patterns
//
// Idempotent event writes
//   - events.id is the content id from events.ComputeID
//   - INSERT ... ON CONFLICT(id) DO NOTHING, so re-importing a source or
//     importing the same message from two exports stores it once
//
// Deterministic query results
//   - Event reads use ORDER BY start_at ASC, id COLLATE BINARY ASC
//   - Reads return empty slices, never nil
//
// Book snapshots
//   - Stored as canonical JSON (contacts.Book.Snapshot) compressed with zstd
//   - The latest row wins; event sender/recipient ids refer to it
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
