// Package store defines the future based interface to an object store
// database together with its unified error handling.
//
// Every IStore operation returns a *future.Future that settles exactly once.
// Callers await it from any goroutine; the operation itself runs on the engine
// loop and is driven by the engine's callbacks.
//
// Key Components:
//
//   - IStore Interface: schema lifecycle (CreateDb, CreateStore) and the eight
//     data operations (GetByKey, GetAll, GetByIndex, Add, Update, Delete, Clear,
//     OpenCursor).
//
//   - Error System: every failure is an *Error with a RetCode. Configuration
//     and schema errors are raised locally before any engine call; engine
//     failures are wrapped, so errors.As still reaches the *engine.Error.
//
//	RetCConfigurationError: no database connection
//	RetCSchemaError:        the object store does not exist
//	RetCEngineRequestError: a single request failed (e.g. duplicate key)
//	RetCTransactionError:   the transaction failed or was aborted
//
// Implementations:
//
//	- Future Store (fstore): adapts an engine.Factory. Available in the
//	  "github.com/ValentinKolb/fKV/lib/store/fstore" package.
package store
