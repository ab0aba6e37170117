package core

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/ValentinKolb/fKV/lib/codec"
	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/ValentinKolb/fKV/lib/engine/kv"
	"github.com/ValentinKolb/fKV/lib/loop"
	"github.com/ValentinKolb/fKV/lib/util"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("engine")

var _ engine.Factory = &Factory{}

// BackendOpener opens the backend holding the database name
type BackendOpener func(name string) (kv.Backend, error)

// Options configures a Factory
type Options struct {
	Variant string        // reported by Factory.Variant
	Open    BackendOpener // required
	Codec   codec.ICodec  // value codec (nil = json)
}

// Factory implements engine.Factory on top of kv backends. Each database name
// maps to one backend which stays open until the factory is closed.
type Factory struct {
	variant     string
	openBackend BackendOpener
	codec       codec.ICodec
	loop        *loop.Loop
	dbs         *xsync.MapOf[string, *dbState]
	closed      atomic.Bool
}

// dbState is the shared state of all connections to one database.
// It is only touched on the loop.
type dbState struct {
	f       *Factory
	name    string
	backend kv.Backend

	// committed version and schema
	version uint64
	schema  *schema

	// transaction scheduler
	queue  []*transaction
	active *transaction

	conns map[*database]struct{}

	// sizes of encoded values written through this process
	valueSizes *util.SizeHistogram
}

// NewFactory creates a factory and starts its loop.
func NewFactory(opts Options) (*Factory, error) {
	if opts.Open == nil {
		return nil, errors.New("engine: no backend opener configured")
	}
	c := opts.Codec
	if c == nil {
		c = codec.NewJSONCodec()
	}
	variant := opts.Variant
	if variant == "" {
		variant = "custom"
	}

	return &Factory{
		variant:     variant,
		openBackend: opts.Open,
		codec:       c,
		loop:        loop.New("engine-" + variant),
		dbs:         xsync.NewMapOf[string, *dbState](),
	}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see engine.Factory)
// --------------------------------------------------------------------------

func (f *Factory) Variant() string {
	return f.variant
}

func (f *Factory) Open(name string, version uint64) (engine.OpenRequest, error) {
	if f.closed.Load() {
		return nil, engine.NewError(engine.InvalidStateError, "factory is closed")
	}
	if !f.loop.InLoop() {
		return nil, engine.NewError(engine.InvalidStateError, "open must be called on the engine loop")
	}

	req := &openRequest{}
	f.loop.Post(func() {
		f.runOpen(req, name, version)
	})
	return req, nil
}

func (f *Factory) Schedule(task func()) bool {
	if f.closed.Load() {
		return false
	}
	return f.loop.Post(task)
}

func (f *Factory) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	err := f.loop.Do(context.Background(), func() {
		f.dbs.Range(func(name string, st *dbState) bool {
			if st.active != nil || len(st.queue) > 0 {
				log.Warningf("closing database %s with unfinished transactions", name)
			}
			if err := st.backend.Close(); err != nil {
				errs = append(errs, err)
			}
			return true
		})
		f.dbs.Clear()
	})
	f.loop.Close()

	if err != nil {
		return err
	}
	return errors.Join(errs...)
}

// --------------------------------------------------------------------------
// Open sequence
// --------------------------------------------------------------------------

// state returns the dbState of name, opening its backend on first use.
func (f *Factory) state(name string) (*dbState, error) {
	if st, ok := f.dbs.Load(name); ok {
		return st, nil
	}

	backend, err := f.openBackend(name)
	if err != nil {
		return nil, err
	}
	tx, err := backend.Begin(false)
	if err != nil {
		backend.Close()
		return nil, err
	}
	version, s, err := readMeta(tx)
	_ = tx.Rollback()
	if err != nil {
		backend.Close()
		return nil, err
	}

	st := &dbState{
		f:       f,
		name:    name,
		backend: backend,
		version: version,
		schema:  s,
		conns:   map[*database]struct{}{},

		valueSizes: util.NewSizeHistogram(),
	}
	f.dbs.Store(name, st)
	log.Infof("opened database %s (variant=%s, version=%d, stores=%d)", name, f.variant, version, len(s.Stores))
	return st, nil
}

func (f *Factory) runOpen(req *openRequest, name string, version uint64) {
	if f.closed.Load() {
		req.fail(engine.NewError(engine.AbortError, "factory closed before open"))
		return
	}

	st, err := f.state(name)
	if err != nil {
		req.fail(engine.WrapError(engine.UnknownError, err, "cannot open database "+name))
		return
	}

	if version == 0 {
		version = max(st.version, 1)
	}
	if version < st.version {
		req.fail(engine.NewError(engine.VersionError, "requested version %d is lower than the stored version %d", version, st.version))
		return
	}

	db := newDatabase(st)
	st.conns[db] = struct{}{}

	if version == st.version {
		req.succeed(db)
		return
	}

	// other connections cannot follow the schema change
	for other := range st.conns {
		if other != db && !other.closePending {
			log.Warningf("database %s: closing connection at version %d for upgrade to %d", name, other.version, version)
			other.Close()
		}
	}

	tx := newTransaction(db, st.schema.storeNames(), engine.VersionChange)
	tx.upgrade = &upgrade{req: req, oldVersion: st.version, newVersion: version}
	req.tx = tx
	db.upgradeTx = tx
	st.enqueue(tx)
}

// --------------------------------------------------------------------------
// Scheduler
// --------------------------------------------------------------------------

// enqueue adds tx to the FIFO of the database
func (st *dbState) enqueue(tx *transaction) {
	st.queue = append(st.queue, tx)
	st.pump()
}

// pump starts the next transaction if none is running
func (st *dbState) pump() {
	if st.active != nil || len(st.queue) == 0 {
		return
	}
	tx := st.queue[0]
	st.queue = st.queue[1:]
	st.active = tx
	st.f.loop.Post(tx.start)
}

// remove drops a transaction that was aborted before it started
func (st *dbState) remove(tx *transaction) {
	for i, q := range st.queue {
		if q == tx {
			st.queue = append(st.queue[:i], st.queue[i+1:]...)
			return
		}
	}
}

// finished is called once tx fired complete or abort
func (st *dbState) finished(tx *transaction) {
	if st.active == tx {
		st.active = nil
	}
	st.pump()
}
