// Package core implements the engine interfaces on top of kv backends.
//
// Key Components:
//
//   - Factory: owns one loop.Loop and one backend per database name. Open runs
//     the open sequence (read meta, version check, optional versionchange
//     transaction) in a later turn and reports through the OpenRequest.
//
//   - Scheduler: every database keeps a FIFO of transactions and runs one at a
//     time, each inside a single backend transaction. A transaction executes
//     one request per turn and commits in the first turn that finds no request
//     left.
//
//   - Storage layout: records live in bucket "s/<store>" keyed by the encoded
//     primary key. Index entries live in "i/<len(store)>/<store>/<index>" keyed
//     by the encoded index key followed by the encoded primary key. Version,
//     schema (json) and key generators live in "__fkv_meta".
//
//   - Cursors: re-seek from their last backend key on every step instead of
//     holding a backend cursor across turns.
//
// Values are serialized with the configured codec when a request is issued,
// so later changes to the caller's value do not leak into the store.
package core
