// Package store provides SQLite-backed storage for a run's node tree.
//
// The store holds:
//   - Nouns: one row per distinct node type
//   - Nodes: one row per executed block, with an own and a child_ column
//     for every tracked stat
//   - Exceptions: classified failures attached to nodes
//   - Meta: run-level key/value pairs (run id, module, timestamps)
//
// # Aggregation
//
// The aggregate view groups finalized nodes by parent_id and totals each
// stat's effective value per child. UpdateNode reads that view for the node
// being finalized, so children must finalize before their parent. Nested
// execution guarantees this order.
//
// # Ordering
//
// Tree returns rows ordered by depth DESC, id ASC: every node follows all
// of its descendants, which suits bottom-up reporting.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes (MEMORY for :memory:)
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Failed inserts and updates return *SchemaError. They are fatal to a run.
package store
