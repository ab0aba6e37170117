// Package kv defines the synchronous storage layer below the engine.
//
// A Backend stores named buckets of ordered key-value pairs and hands out
// transactions. The engine maps object stores, indexes and its own metadata
// onto buckets and never depends on a specific backend.
//
// Key Components:
//
//   - Backend Interface: Begin, Info and Close.
//
//   - Txn Interface: bucket management, point reads and writes, Clear, Count
//     and ordered cursors, finished by Commit or Rollback.
//
//   - Implementations: bolt (go.etcd.io/bbolt, one file per database),
//     lmdb (github.com/PowerDNS/lmdb-go, one environment directory per database)
//     and maple (in memory, xsync maps with an undo log).
//
// Every implementation is checked by the shared conformance suite in
// lib/engine/kv/testing.
package kv
