// Package store provides the SQLite-backed record log.
//
// Records are grouped into streams, one per entity, identified by
// (stream_type, stream_id). Each stream carries a version equal to the number
// of records appended to it. Appends name the version they were computed
// against; if another writer got there first the append fails with a
// VersionConflictError and nothing is written.
//
// Ordering is always by logical position: version within a stream, seq
// across the whole log. Wall-clock time is never stored.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: records must belong to a known stream
package store
