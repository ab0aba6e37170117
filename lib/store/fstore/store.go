package fstore

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ValentinKolb/fKV/lib/capability"
	"github.com/ValentinKolb/fKV/lib/common"
	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/ValentinKolb/fKV/lib/future"
	"github.com/ValentinKolb/fKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("store")

var _ store.IStore = &Store{}

// Store implements store.IStore on top of an engine.Factory. Each operation
// body runs as one task on the engine loop and settles its future from the
// engine's callbacks.
type Store struct {
	factory engine.Factory
	conn    *connection
	guard   guard
	metrics *storeMetrics

	mu             sync.Mutex
	name           string
	defaultVersion uint64
}

// New creates a store on top of f. The store owns f and closes it in Close.
func New(f engine.Factory) *Store {
	m := newStoreMetrics()
	return &Store{
		factory: f,
		conn:    newConnection(f),
		guard:   guard{metrics: m},
		metrics: m,
	}
}

// Open resolves the engine for cfg and creates a store for cfg.DBName. The
// database itself is opened by CreateStore.
func Open(cfg common.EngineConfig) (*Store, capability.Variant, error) {
	if err := cfg.Validate(); err != nil {
		return nil, "", store.WrapError(store.RetCConfigurationError, err, "invalid configuration")
	}
	f, variant, err := capability.Resolve(cfg)
	if err != nil {
		return nil, "", store.WrapError(store.RetCConfigurationError, err, "no storage engine")
	}
	s := New(f)
	if err := s.CreateDb(cfg.DBName, max(cfg.DBVersion, 1)); err != nil {
		_ = f.Close()
		return nil, "", err
	}
	return s, variant, nil
}

// State returns the connection state (closed, opening, upgrading, ready, failed).
func (s *Store) State() string {
	return s.conn.State()
}

// CurrentVersion returns the stored version of the database without
// installing a connection. A database that does not exist yet is created at
// version 1.
func (s *Store) CurrentVersion() *future.Future[uint64] {
	s.mu.Lock()
	name := s.name
	s.mu.Unlock()

	return run(s, "current_version", func(o *op[uint64]) error {
		if name == "" {
			return store.NewError(store.RetCConfigurationError, "no database; call CreateDb first")
		}
		if s.conn.handle != nil && s.conn.name == name {
			o.resolve(s.conn.version)
			return nil
		}
		req, err := s.factory.Open(name, 0)
		if err != nil {
			return store.WrapError(store.RetCEngineRequestError, err, "cannot open database")
		}
		req.OnSuccess(func(*engine.Event) {
			db := req.Result().(engine.Database)
			v := db.Version()
			db.Close()
			o.resolve(v)
		})
		req.OnError(func(ev *engine.Event) {
			o.reject(store.WrapError(store.RetCEngineRequestError, ev.Err, fmt.Sprintf("engine error: %d", ev.Err.Code)))
		})
		return nil
	})
}

// WritePrometheus writes the operation metrics in prometheus text format
func (s *Store) WritePrometheus(w io.Writer) {
	s.metrics.WritePrometheus(w)
}

// --------------------------------------------------------------------------
// Operation plumbing
// --------------------------------------------------------------------------

// op settles one future and records its outcome once
type op[T any] struct {
	fut     *future.Future[T]
	name    string
	start   time.Time
	metrics *storeMetrics
}

func (o *op[T]) resolve(v T) {
	if o.fut.Resolve(v) {
		o.metrics.done(o.name, o.start, nil)
	}
}

func (o *op[T]) reject(err error) {
	if o.fut.Reject(err) {
		o.metrics.done(o.name, o.start, err)
	}
}

// run schedules body on the engine loop. An error returned by body rejects
// the future; otherwise body is responsible for settling it.
func run[T any](s *Store, name string, body func(o *op[T]) error) *future.Future[T] {
	o := &op[T]{fut: future.New[T](), name: name, start: time.Now(), metrics: s.metrics}
	if !s.factory.Schedule(func() {
		if err := body(o); err != nil {
			o.reject(err)
		}
	}) {
		o.reject(store.NewError(store.RetCInternalError, "engine is closed"))
	}
	return o.fut
}

// objectStore validates, opens a single store transaction in mode and binds
// its lifecycle to o. complete runs when the transaction commits.
func objectStore[T any](s *Store, o *op[T], storeName string, mode engine.Mode, complete func()) (engine.ObjectStore, error) {
	if err := s.guard.Validate(s.conn, storeName); err != nil {
		return nil, err
	}

	tx, err := begin(s.conn, storeName, mode,
		func(ev *engine.Event) {
			o.reject(store.WrapError(store.RetCTransactionError, ev.Err, "transaction error"))
		},
		func(*engine.Event) {
			if complete != nil {
				complete()
			}
		},
		func(ev *engine.Event) {
			o.reject(store.WrapError(store.RetCTransactionError, ev.Err, "transaction aborted"))
		},
	)
	if err != nil {
		return nil, store.WrapError(store.RetCTransactionError, err, "cannot start transaction")
	}

	st, err := tx.ObjectStore(storeName)
	if err != nil {
		return nil, store.WrapError(store.RetCTransactionError, err, "cannot access object store")
	}
	return st, nil
}

// requestError rejects o when req fails
func requestError[T any](o *op[T], req engine.Request) {
	req.OnError(func(ev *engine.Event) {
		o.reject(store.WrapError(store.RetCEngineRequestError, ev.Err, "request failed"))
	})
}

// issueError wraps an error of a request that could not be issued
func issueError(err error) error {
	return store.WrapError(store.RetCEngineRequestError, err, "cannot issue request")
}

// query turns an optional range into an engine query
func query(r *engine.KeyRange) any {
	if r == nil {
		return nil
	}
	return r
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *Store) CreateDb(name string, version uint64) error {
	if name == "" {
		return store.NewError(store.RetCConfigurationError, "database name must not be empty")
	}
	if version == 0 {
		return store.NewError(store.RetCConfigurationError, "database version must be at least 1")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
	s.defaultVersion = version
	return nil
}

func (s *Store) CreateStore(version uint64, upgrade store.UpgradeFunc) *future.Future[struct{}] {
	s.mu.Lock()
	name := s.name
	if version == 0 {
		version = s.defaultVersion
	}
	s.mu.Unlock()

	if name == "" {
		return future.Rejected[struct{}](store.NewError(store.RetCConfigurationError, "no database; call CreateDb first"))
	}
	return s.conn.Open(name, version, upgrade)
}

func (s *Store) GetByKey(storeName string, key any) *future.Future[any] {
	return run(s, "get_by_key", func(o *op[any]) error {
		st, err := objectStore(s, o, storeName, engine.ReadOnly, nil)
		if err != nil {
			return err
		}
		req, err := st.Get(key)
		if err != nil {
			return issueError(err)
		}
		req.OnSuccess(func(*engine.Event) { o.resolve(req.Result()) })
		requestError(o, req)
		return nil
	})
}

func (s *Store) GetAll(storeName string, keyRange *engine.KeyRange, index *store.IndexDetails) *future.Future[[]any] {
	return run(s, "get_all", func(o *op[[]any]) error {
		st, err := objectStore(s, o, storeName, engine.ReadOnly, nil)
		if err != nil {
			return err
		}

		var req engine.Request
		if index != nil {
			idx, err := st.Index(index.IndexName)
			if err != nil {
				return store.WrapError(store.RetCSchemaError, err, "index does not exist: "+index.IndexName)
			}
			dir := engine.Next
			if index.Descending() {
				dir = engine.Prev
			}
			req, err = idx.OpenCursor(query(keyRange), dir)
			if err != nil {
				return issueError(err)
			}
		} else {
			if req, err = st.OpenCursor(query(keyRange), engine.Next); err != nil {
				return issueError(err)
			}
		}

		values := []any{}
		req.OnSuccess(func(*engine.Event) {
			c, _ := req.Result().(engine.Cursor)
			if c == nil {
				o.resolve(values)
				return
			}
			values = append(values, c.Value())
			if err := c.Continue(); err != nil {
				o.reject(store.WrapError(store.RetCEngineRequestError, err, "cannot continue cursor"))
			}
		})
		requestError(o, req)
		return nil
	})
}

func (s *Store) GetByIndex(storeName, indexName string, key any) *future.Future[any] {
	return run(s, "get_by_index", func(o *op[any]) error {
		st, err := objectStore(s, o, storeName, engine.ReadOnly, nil)
		if err != nil {
			return err
		}
		idx, err := st.Index(indexName)
		if err != nil {
			return store.WrapError(store.RetCSchemaError, err, "index does not exist: "+indexName)
		}
		req, err := idx.Get(key)
		if err != nil {
			return issueError(err)
		}
		req.OnSuccess(func(*engine.Event) { o.resolve(req.Result()) })
		requestError(o, req)
		return nil
	})
}

func (s *Store) Add(storeName string, value, key any) *future.Future[store.KeyValue] {
	return run(s, "add", func(o *op[store.KeyValue]) error {
		result := store.KeyValue{Key: key, Value: value}
		st, err := objectStore(s, o, storeName, engine.ReadWrite, func() { o.resolve(result) })
		if err != nil {
			return err
		}
		req, err := st.Add(value, key)
		if err != nil {
			return issueError(err)
		}
		// the engine assigns the key for generators and key paths
		req.OnSuccess(func(*engine.Event) { result.Key = req.Result() })
		requestError(o, req)
		return nil
	})
}

func (s *Store) Update(storeName string, value, key any) *future.Future[any] {
	return run(s, "update", func(o *op[any]) error {
		st, err := objectStore(s, o, storeName, engine.ReadWrite, func() { o.resolve(value) })
		if err != nil {
			return err
		}
		req, err := st.Put(value, key)
		if err != nil {
			return issueError(err)
		}
		requestError(o, req)
		return nil
	})
}

func (s *Store) Delete(storeName string, key any) *future.Future[struct{}] {
	return run(s, "delete", func(o *op[struct{}]) error {
		st, err := objectStore(s, o, storeName, engine.ReadWrite, func() { o.resolve(struct{}{}) })
		if err != nil {
			return err
		}
		req, err := st.Delete(key)
		if err != nil {
			return issueError(err)
		}
		requestError(o, req)
		return nil
	})
}

func (s *Store) Clear(storeName string) *future.Future[struct{}] {
	return run(s, "clear", func(o *op[struct{}]) error {
		st, err := objectStore(s, o, storeName, engine.ReadWrite, func() { o.resolve(struct{}{}) })
		if err != nil {
			return err
		}
		req, err := st.Clear()
		if err != nil {
			return issueError(err)
		}
		requestError(o, req)
		return nil
	})
}

func (s *Store) OpenCursor(storeName string, fn store.CursorFunc, keyRange *engine.KeyRange) *future.Future[struct{}] {
	return run(s, "open_cursor", func(o *op[struct{}]) error {
		if fn == nil {
			return store.NewError(store.RetCConfigurationError, "no cursor callback")
		}
		st, err := objectStore(s, o, storeName, engine.ReadOnly, func() { o.resolve(struct{}{}) })
		if err != nil {
			return err
		}
		req, err := st.OpenCursor(query(keyRange), engine.Next)
		if err != nil {
			return issueError(err)
		}
		req.OnSuccess(func(*engine.Event) {
			c, _ := req.Result().(engine.Cursor)
			fn(c)
		})
		requestError(o, req)
		return nil
	})
}

func (s *Store) Info() *future.Future[engine.DatabaseInfo] {
	return run(s, "info", func(o *op[engine.DatabaseInfo]) error {
		if s.conn.handle == nil {
			return store.NewError(store.RetCConfigurationError, "no database; create one before querying")
		}
		o.resolve(s.conn.handle.Info())
		return nil
	})
}

func (s *Store) Close() error {
	done := make(chan struct{})
	if s.factory.Schedule(func() {
		defer close(done)
		s.conn.shutdown()
	}) {
		<-done
	}
	return s.factory.Close()
}
