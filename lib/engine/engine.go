package engine

import (
	"github.com/ValentinKolb/fKV/lib/engine/kv"
	"github.com/ValentinKolb/fKV/lib/util"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

// Mode is the access mode of a transaction
type Mode string

const (
	ReadOnly      Mode = "readonly"
	ReadWrite     Mode = "readwrite"
	VersionChange Mode = "versionchange"
)

// Direction is the iteration order of a cursor
type Direction string

const (
	Next       Direction = "next"
	NextUnique Direction = "nextunique"
	Prev       Direction = "prev"
	PrevUnique Direction = "prevunique"
)

// Valid reports whether d is a known direction
func (d Direction) Valid() bool {
	switch d {
	case Next, NextUnique, Prev, PrevUnique:
		return true
	}
	return false
}

// Reverse reports whether d walks from high to low keys
func (d Direction) Reverse() bool {
	return d == Prev || d == PrevUnique
}

// Unique reports whether d skips duplicate index keys
func (d Direction) Unique() bool {
	return d == NextUnique || d == PrevUnique
}

// ObjectStoreOptions configures a new object store
type ObjectStoreOptions struct {
	// KeyPath selects in-line keys (dotted path into the value). Empty means
	// keys are passed explicitly.
	KeyPath string
	// AutoIncrement enables the key generator
	AutoIncrement bool
}

// IndexOptions configures a new index
type IndexOptions struct {
	Unique     bool
	MultiEntry bool
}

// IndexInfo describes an index
type IndexInfo struct {
	Name       string `json:"name"`
	KeyPath    string `json:"key_path"`
	Unique     bool   `json:"unique"`
	MultiEntry bool   `json:"multi_entry"`
}

// StoreInfo describes an object store
type StoreInfo struct {
	Name          string      `json:"name"`
	KeyPath       string      `json:"key_path,omitempty"`
	AutoIncrement bool        `json:"auto_increment"`
	Indexes       []IndexInfo `json:"indexes"`
}

// DatabaseInfo describes an open database
type DatabaseInfo struct {
	Name    string      `json:"name"`
	Version uint64      `json:"version"`
	Stores  []StoreInfo `json:"stores"`
	Backend kv.Info     `json:"backend"`

	// Values summarizes the sizes of values written since the database was
	// opened by this process
	Values util.SizeStats `json:"values"`
}

// --------------------------------------------------------------------------
// Factory
// --------------------------------------------------------------------------

// Factory is the entry point of an engine variant. It owns the event loop all
// callbacks run on.
//
// Thread-safety: Schedule and Close may be called from any goroutine. Every
// other engine method must be called on the loop, i.e. from a scheduled task
// or from an event handler.
type Factory interface {

	// Variant returns the name of the engine variant (bolt, lmdb, maple)
	Variant() string

	// Open opens the database name at version. Version 0 opens the current
	// version (1 for a new database). The request fires upgradeneeded first if
	// version is greater than the stored version, then success or error.
	Open(name string, version uint64) (OpenRequest, error)

	// Schedule runs task on the loop. It returns false after Close.
	Schedule(task func()) bool

	// Close waits for queued tasks and releases all backends.
	Close() error
}

// --------------------------------------------------------------------------
// Requests
// --------------------------------------------------------------------------

// Request is the handle of one asynchronous operation. Handlers must be
// installed in the turn that created the request.
type Request interface {

	// Result returns the result after success. Cursor requests return the
	// Cursor, or nil once the cursor is exhausted.
	Result() any

	// Error returns the error after an error event
	Error() *Error

	// Transaction returns the transaction the request belongs to (nil for
	// open requests outside an upgrade)
	Transaction() Transaction

	OnSuccess(h EventHandler)
	OnError(h EventHandler)
}

// OpenRequest is returned by Factory.Open. Its result is the Database.
type OpenRequest interface {
	Request
	OnUpgradeNeeded(h EventHandler)
}

// --------------------------------------------------------------------------
// Database
// --------------------------------------------------------------------------

// Database is a connection to one database
type Database interface {
	Name() string
	Version() uint64
	ObjectStoreNames() []string
	Contains(store string) bool

	// Transaction creates a transaction over stores. It is started once every
	// earlier transaction of the database has finished.
	Transaction(stores []string, mode Mode) (Transaction, error)

	// CreateObjectStore and DeleteObjectStore are only allowed inside the
	// upgradeneeded handler.
	CreateObjectStore(name string, opts ObjectStoreOptions) (ObjectStore, error)
	DeleteObjectStore(name string) error

	// Close closes the connection once its transactions are finished.
	Close()
	Closed() bool

	Info() DatabaseInfo
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

// Transaction groups requests. It commits automatically once a turn ends
// with no pending request, and fires complete or abort exactly once.
type Transaction interface {
	ID() string
	Mode() Mode
	ObjectStoreNames() []string
	ObjectStore(name string) (ObjectStore, error)
	Database() Database

	// Abort rolls the transaction back and fires abort.
	Abort() error

	// Error returns the error that aborted the transaction
	Error() *Error

	// OnError receives request errors that were not prevented
	OnError(h EventHandler)
	OnComplete(h EventHandler)
	OnAbort(h EventHandler)
}

// ObjectStore is a store accessor bound to a transaction. Key arguments of
// Get, Delete and Count accept a key or a *KeyRange.
type ObjectStore interface {
	Name() string
	KeyPath() string
	AutoIncrement() bool
	IndexNames() []string
	Transaction() Transaction

	Get(query any) (Request, error)
	// Add inserts value, failing with ConstraintError if the key exists.
	// key must be nil for stores with a key path.
	Add(value any, key any) (Request, error)
	// Put inserts or replaces value
	Put(value any, key any) (Request, error)
	Delete(query any) (Request, error)
	Clear() (Request, error)
	Count(query any) (Request, error)
	OpenCursor(query any, dir Direction) (Request, error)

	Index(name string) (Index, error)
	CreateIndex(name, keyPath string, opts IndexOptions) (Index, error)
	DeleteIndex(name string) error
}

// Index is an index accessor bound to a transaction
type Index interface {
	Name() string
	KeyPath() string
	Unique() bool
	MultiEntry() bool
	ObjectStore() ObjectStore

	// Get returns the value of the first record matching query
	Get(query any) (Request, error)
	// GetKey returns the primary key of the first record matching query
	GetKey(query any) (Request, error)
	Count(query any) (Request, error)
	OpenCursor(query any, dir Direction) (Request, error)
}

// Cursor is the result of a cursor request while it points to a record.
type Cursor interface {
	// Key is the record key for store cursors and the index key for index cursors
	Key() any
	PrimaryKey() any
	Value() any
	Direction() Direction

	// Continue advances to the next record. The request fires success again,
	// with a nil result when the cursor is exhausted.
	Continue() error
	// Advance skips count records
	Advance(count int) error
}
