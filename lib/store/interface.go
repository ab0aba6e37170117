package store

import (
	"fmt"

	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/ValentinKolb/fKV/lib/future"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// UpgradeFunc is called inside the upgradeneeded signal with the upgrading
// database handle. It creates stores and indexes; returning an error aborts
// the upgrade.
type UpgradeFunc func(ev *engine.Event, db engine.Database) error

// CursorFunc is called for each cursor position the caller asks for (the
// first one, then once per Continue or Advance) and with nil once the cursor
// is exhausted. It runs on the engine loop.
type CursorFunc func(c engine.Cursor)

// IndexDetails selects an index scan for GetAll
type IndexDetails struct {
	IndexName string
	Order     string // "asc" (default) or "desc"
}

// Descending reports whether the scan runs from high to low keys
func (d IndexDetails) Descending() bool {
	return d.Order == "desc"
}

// KeyValue is the result of Add
type KeyValue struct {
	Key   any
	Value any
}

// IStore is the future based interface to one database. Every operation
// returns a future that settles exactly once; failures are *Error values.
type IStore interface {
	// CreateDb sets the database name and the default version. It does no I/O.
	CreateDb(name string, version uint64) error
	// CreateStore opens the database at version and runs upgrade if the
	// stored version is lower. Version 0 uses the CreateDb version.
	CreateStore(version uint64, upgrade UpgradeFunc) *future.Future[struct{}]

	// GetByKey returns the value stored under key, nil if there is none.
	GetByKey(store string, key any) *future.Future[any]
	// GetAll returns all values in keyRange (nil = everything). With index set
	// the values are ordered by that index, ascending or descending.
	GetAll(store string, keyRange *engine.KeyRange, index *IndexDetails) *future.Future[[]any]
	// GetByIndex returns the first value whose index key equals key.
	GetByIndex(store, index string, key any) *future.Future[any]
	// Add inserts value and fails if the key exists. The result holds the
	// assigned key.
	Add(store string, value, key any) *future.Future[KeyValue]
	// Update inserts or replaces value and resolves with it.
	Update(store string, value, key any) *future.Future[any]
	// Delete removes key (or every key in a *engine.KeyRange).
	Delete(store string, key any) *future.Future[struct{}]
	// Clear removes every record of the store.
	Clear(store string) *future.Future[struct{}]
	// OpenCursor walks the store with fn and resolves once the transaction completes.
	OpenCursor(store string, fn CursorFunc, keyRange *engine.KeyRange) *future.Future[struct{}]

	// Info returns schema and backend details of the open database.
	Info() *future.Future[engine.DatabaseInfo]
	// Close closes the connection and the engine.
	Close() error
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode),
// an error message and the engine error that caused it, if any.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
	Err  error   // The cause, usually an *engine.Error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("StoreError (code %s): %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new StoreError with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// WrapError creates a new StoreError caused by err.
func WrapError(code RetCode, err error, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
		Err:  err,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess            RetCode = iota // 0: Command executed successfully.
	RetCInternalError                     // 1: Command failed due to an internal error.
	RetCConfigurationError                // 2: No database connection.
	RetCSchemaError                       // 3: Unknown object store.
	RetCEngineRequestError                // 4: The engine failed a single request.
	RetCTransactionError                  // 5: The transaction failed or was aborted.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCConfigurationError:
		return "ConfigurationError"
	case RetCSchemaError:
		return "SchemaError"
	case RetCEngineRequestError:
		return "EngineRequestError"
	case RetCTransactionError:
		return "TransactionError"
	default:
		return "Unknown"
	}
}
