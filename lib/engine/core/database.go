package core

import (
	"sort"

	"github.com/ValentinKolb/fKV/lib/codec"
	"github.com/ValentinKolb/fKV/lib/engine"
)

var _ engine.Database = &database{}

// database is one connection. It keeps its own copy of the schema, which only
// its versionchange transaction changes.
type database struct {
	st           *dbState
	version      uint64
	schema       *schema
	closePending bool
	upgradeTx    *transaction
}

func newDatabase(st *dbState) *database {
	return &database{
		st:      st,
		version: st.version,
		schema:  st.schema.clone(),
	}
}

func (db *database) Name() string {
	return db.st.name
}

func (db *database) Version() uint64 {
	return db.version
}

func (db *database) ObjectStoreNames() []string {
	return db.schema.storeNames()
}

func (db *database) Contains(store string) bool {
	_, ok := db.schema.Stores[store]
	return ok
}

func (db *database) Transaction(stores []string, mode engine.Mode) (engine.Transaction, error) {
	if db.closePending {
		return nil, engine.NewError(engine.InvalidStateError, "connection is closed")
	}
	if db.upgradeTx != nil && db.upgradeTx.state != txFinished {
		return nil, engine.NewError(engine.InvalidStateError, "a version change transaction is running")
	}
	if mode != engine.ReadOnly && mode != engine.ReadWrite {
		return nil, engine.NewError(engine.InvalidAccessError, "invalid transaction mode %q", mode)
	}
	if len(stores) == 0 {
		return nil, engine.NewError(engine.InvalidAccessError, "a transaction needs at least one store")
	}

	scope := make([]string, 0, len(stores))
	seen := map[string]bool{}
	for _, name := range stores {
		if !db.Contains(name) {
			return nil, engine.NewError(engine.NotFoundError, "object store %s does not exist", name)
		}
		if !seen[name] {
			seen[name] = true
			scope = append(scope, name)
		}
	}
	sort.Strings(scope)

	tx := newTransaction(db, scope, mode)
	tx.active = true
	// the transaction accepts requests until the creating turn ends
	db.st.f.loop.Post(func() {
		tx.active = false
	})
	db.st.enqueue(tx)
	return tx, nil
}

// runningUpgrade returns the active versionchange transaction, or an error
// if schema changes are not allowed right now.
func (db *database) runningUpgrade() (*transaction, *engine.Error) {
	tx := db.upgradeTx
	if tx == nil || tx.state != txRunning {
		return nil, engine.NewError(engine.InvalidStateError, "schema changes require a version change transaction")
	}
	if !tx.active {
		return nil, engine.NewError(engine.TransactionInactiveError, "version change transaction is not active")
	}
	return tx, nil
}

func (db *database) CreateObjectStore(name string, opts engine.ObjectStoreOptions) (engine.ObjectStore, error) {
	tx, eerr := db.runningUpgrade()
	if eerr != nil {
		return nil, eerr
	}
	if db.Contains(name) {
		return nil, engine.NewError(engine.ConstraintError, "object store %s already exists", name)
	}
	if err := codec.ValidKeyPath(opts.KeyPath); err != nil {
		return nil, engine.WrapError(engine.DataError, err, "invalid key path")
	}

	if err := tx.kvtx.CreateBucket(recordBucket(name)); err != nil {
		return nil, tx.fail(engine.WrapError(engine.UnknownError, err, "cannot create object store"))
	}
	db.schema.Stores[name] = &storeSchema{
		Name:          name,
		KeyPath:       opts.KeyPath,
		AutoIncrement: opts.AutoIncrement,
		Indexes:       map[string]*indexSchema{},
	}
	if err := writeSchema(tx.kvtx, db.schema); err != nil {
		return nil, tx.fail(engine.WrapError(engine.UnknownError, err, "cannot persist schema"))
	}

	tx.addScope(name)
	log.Debugf("database %s: created object store %s", db.Name(), name)
	return tx.ObjectStore(name)
}

func (db *database) DeleteObjectStore(name string) error {
	tx, eerr := db.runningUpgrade()
	if eerr != nil {
		return eerr
	}
	st, ok := db.schema.Stores[name]
	if !ok {
		return engine.NewError(engine.NotFoundError, "object store %s does not exist", name)
	}

	for _, idx := range st.indexNames() {
		if err := tx.kvtx.DeleteBucket(indexBucket(name, idx)); err != nil {
			return tx.fail(engine.WrapError(engine.UnknownError, err, "cannot delete index"))
		}
	}
	if err := tx.kvtx.DeleteBucket(recordBucket(name)); err != nil {
		return tx.fail(engine.WrapError(engine.UnknownError, err, "cannot delete object store"))
	}
	if err := deleteGenerator(tx.kvtx, name); err != nil {
		return tx.fail(engine.WrapError(engine.UnknownError, err, "cannot delete key generator"))
	}
	delete(db.schema.Stores, name)
	if err := writeSchema(tx.kvtx, db.schema); err != nil {
		return tx.fail(engine.WrapError(engine.UnknownError, err, "cannot persist schema"))
	}

	tx.removeScope(name)
	return nil
}

func (db *database) Close() {
	if db.closePending {
		return
	}
	db.closePending = true
	delete(db.st.conns, db)
}

func (db *database) Closed() bool {
	return db.closePending
}

func (db *database) Info() engine.DatabaseInfo {
	return engine.DatabaseInfo{
		Name:    db.Name(),
		Version: db.version,
		Stores:  db.schema.info(),
		Backend: db.st.backend.Info(),
		Values:  db.st.valueSizes.Stats(),
	}
}
