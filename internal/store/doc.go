// Package store provides the SQLite-backed protocol trace of display
// sessions.
//
// The trace is append-only and purely diagnostic:
//   - Sessions: one row per served document window
//   - Messages: every protocol message in or out, by tag and size
//   - Commands: the outcome of every remote command
//
// Ordering uses the per-session seq counter, never wall time. started_at
// is recorded for display only.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads (webcanvas trace) during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks instead of failing
//   - Single connection: SQLite allows one writer at a time
package store
