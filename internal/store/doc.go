// Package store provides SQLite-backed storage for compiled schedules.
//
// Each compilation is a run:
//   - runs: one row per compiled schedule, keyed by a UUIDv7 run id
//   - scheduled_ops: the list scheduler's decisions in emission order
//   - barriers: the final virtual barriers with their physical ids
//   - control_edges: explicit ordering edges
//
// Wait/update attachments and the linear order are not stored; they are
// rebuilt from barriers and ops on read.
//
// # Deterministic Reads
//
// Every query orders by stable keys (seq, position, id). Reading a run back
// yields a schedule whose hash equals the stored hash.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
