package kv

import (
	"errors"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplBolt  Implementation = "bolt"
	ImplLMDB  Implementation = "lmdb"
	ImplMaple Implementation = "maple"
)

// Info describes an open backend
type Info struct {
	Impl      Implementation `json:"impl"`
	Path      string         `json:"path,omitempty"`
	SizeBytes int64          `json:"size_bytes"`
}

var (
	// ErrBucketNotFound is returned by bucket operations on a missing bucket
	ErrBucketNotFound = errors.New("bucket not found")
	// ErrTxClosed is returned when a committed or rolled back transaction is used
	ErrTxClosed = errors.New("transaction closed")
	// ErrTxReadOnly is returned by write operations on a read-only transaction
	ErrTxReadOnly = errors.New("transaction is read-only")
	// ErrBackendClosed is returned by Begin after Close
	ErrBackendClosed = errors.New("backend closed")
)

// --------------------------------------------------------------------------
// Backend Interface
// --------------------------------------------------------------------------

// Backend is a synchronous, bucketed and ordered key-value store.
// Keys inside a bucket are ordered by bytes.Compare.
//
// Implementations must allow one writable transaction at a time. Callers never
// hold more than one transaction of a backend open at once.
type Backend interface {

	// Begin starts a transaction. Writable transactions see their own writes.
	Begin(writable bool) (Txn, error)

	// Info returns information about the backend.
	Info() Info

	// Close releases all resources. Open transactions must be finished first.
	Close() error
}

// --------------------------------------------------------------------------
// Transaction Interface
// --------------------------------------------------------------------------

// Txn is a backend transaction. Byte slices returned by a Txn or its cursors
// are only valid until the transaction ends, callers copy what they keep.
type Txn interface {

	// --------------------------------------------------------------------------
	// Bucket Operations
	// --------------------------------------------------------------------------

	// Writable reports whether the transaction may write.
	Writable() bool

	// CreateBucket creates a bucket. Creating an existing bucket is a no-op.
	CreateBucket(name string) error

	// DeleteBucket deletes a bucket and its content. Missing buckets are ignored.
	DeleteBucket(name string) error

	// HasBucket reports whether the bucket exists.
	HasBucket(name string) bool

	// Buckets lists all bucket names in ascending order.
	Buckets() ([]string, error)

	// --------------------------------------------------------------------------
	// Entry Operations
	// --------------------------------------------------------------------------

	// Get returns the value for key, or nil if the key does not exist.
	Get(bucket string, key []byte) ([]byte, error)

	// Put stores value under key, overwriting an existing entry.
	Put(bucket string, key, value []byte) error

	// Delete removes key. Missing keys are ignored.
	Delete(bucket string, key []byte) error

	// Clear removes all entries of a bucket but keeps the bucket.
	Clear(bucket string) error

	// Count returns the number of entries in a bucket.
	Count(bucket string) (int, error)

	// Cursor opens an ordered cursor over a bucket.
	Cursor(bucket string) (Cursor, error)

	// --------------------------------------------------------------------------
	// Completion
	// --------------------------------------------------------------------------

	// Commit makes all writes durable. Read-only transactions just end.
	Commit() error

	// Rollback discards all writes. Calling Rollback after Commit is a no-op.
	Rollback() error
}

// Cursor walks a bucket in key order. Every method returns a nil key once the
// cursor moves past either end.
type Cursor interface {
	First() (key, value []byte)
	Last() (key, value []byte)
	// Seek moves to the first key >= seek.
	Seek(seek []byte) (key, value []byte)
	Next() (key, value []byte)
	Prev() (key, value []byte)
	Close()
}
