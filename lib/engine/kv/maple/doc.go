// Package maple implements an in-memory kv.Backend.
//
// Key Components:
//
//   - DB: buckets stored in xsync maps. A writable transaction holds the
//     backend lock exclusively until it commits or rolls back, read
//     transactions share it. The lock is a go-deadlock RWMutex, so a
//     transaction that is never finished is reported instead of hanging
//     silently.
//
//   - Txn: writes are applied in place and recorded in an undo log. Rollback
//     replays the log backwards, which restores overwritten values, removes
//     created buckets and brings back cleared or deleted ones.
//
//   - Cursor: iterates a sorted snapshot of the bucket keys. The sorted key
//     list is cached per bucket and rebuilt after the key set changed.
//
// Data is lost when the backend is closed. The engine keeps one maple backend
// per database name for the lifetime of its factory.
package maple
