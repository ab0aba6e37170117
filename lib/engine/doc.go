// Package engine defines a callback driven, transactional object-store
// engine modelled after IndexedDB.
//
// The package focuses on:
//   - Versioned databases: opening a database at a higher version runs an
//     upgrade (versionchange) transaction that may create stores and indexes
//   - Transactions scoped to a set of stores, committed automatically once no
//     request is pending and rolled back on abort
//   - Object stores with out-of-line or in-line (key path) keys and optional
//     key generators
//   - Indexes (unique, multi-entry) and cursors in four directions
//
// Key Components:
//
//   - Factory: opens databases and owns the event loop. Every handler runs on
//     that loop, one at a time. Code outside the loop enters it with
//     Factory.Schedule.
//
//   - Request / OpenRequest: the asynchronous result of one operation,
//     delivered through success, error and upgradeneeded handlers.
//
//   - Transaction: fires complete or abort exactly once. Request errors fire
//     on the request first, then on the transaction, and abort it unless the
//     request handler called Event.PreventDefault.
//
//   - Keys: numbers, time.Time, strings, []byte and arrays of keys, ordered as
//     described in package keys. KeyRange restricts queries to an interval.
//
//   - Error: every failure is an *Error carrying an ErrorName and a numeric
//     code. errors.Is matches errors by name against the Err* sentinels.
//
// The implementation lives in lib/engine/core, storage is delegated to a
// kv.Backend.
package engine
