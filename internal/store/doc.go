// Package store provides SQLite-backed durable storage for build catalogs.
//
// Each core type lives in its own SQLite file (a durable unit). Inside a unit
// every (core_type, mc_version) pair is a core table:
//
//   - core_tables: one row per existing table; its presence means the table
//     holds at least one build
//   - builds: the rows of all tables, keyed by (core_type, mc_version)
//
// Version strings come from upstream sources and are only ever bound as
// query parameters, never spliced into SQL.
//
// # Merge semantics
//
// Upsert is idempotent. The natural key of a row is (download_url,
// core_version); re-merging a known key refreshes sync_time and nothing else.
// A dedup pass removes rows identical across all fields and an empty table is
// dropped. Retention is a separate maintenance pass that keeps the most
// recently inserted rows of each table.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks instead of failing
//   - One connection per unit: merges and structural changes are serialized
package store
