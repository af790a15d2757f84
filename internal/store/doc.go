// Package store provides the SQLite-backed archive of finalized presents.
//
// The archive is an optional output: a session configured with an archive
// path writes every completed and lost present plus the process lifecycle
// events, so runs can be queried after the fact without reparsing the event
// log.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - Single connection: SQLite allows one writer; this avoids SQLITE_BUSY
//
// # Determinism
//
// All queries order by (qpc_start, id) so repeated reads return identical
// row order.
package store
