// Package store records execution traces in SQLite.
//
// A run row describes one recorded host session: the graph fingerprint,
// the start node, the run mode and a final status. Events hang off the run
// keyed by a logical sequence number, so a session that spans several
// confirmed restarts is still one ordered log (the restarts show up as
// execution_reset events).
//
// # Ordering
//
// Reads order events by seq ascending. Wall-clock timestamps are stored for
// display and are never used for ordering.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package store
