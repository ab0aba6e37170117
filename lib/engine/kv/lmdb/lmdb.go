// Package lmdb implements kv.Backend on top of github.com/PowerDNS/lmdb-go.
// Each database is an LMDB environment directory, buckets are named DBIs.
//
// Write transactions must be started on a goroutine locked to its OS thread.
// The engine loop does that for every transaction it runs.
package lmdb

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/PowerDNS/lmdb-go/lmdb"
	"github.com/ValentinKolb/fKV/lib/engine/kv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/pkg/errors"
)

var log = logger.GetLogger("lmdb")

var _ kv.Backend = &DB{}

const (
	defaultMapSize = 64 << 20
	maxDBs         = 1024
	gb             = 1 << 30
)

// Options configures the lmdb backend
type Options struct {
	FileMode os.FileMode // mode for the environment directory and files (0 = 0700)
	MapSize  int64       // initial map size in bytes (0 = 64MiB), grows on demand
	NoSync   bool        // skip fsync on commit, for tests
}

// DB is a kv.Backend backed by one LMDB environment
type DB struct {
	env  *lmdb.Env
	path string

	resizeLock sync.Mutex
}

// New opens (or creates) the LMDB environment in the directory dbpath.
func New(dbpath string, opts *Options) (*DB, error) {
	if opts == nil {
		opts = &Options{}
	}
	mode := opts.FileMode
	if mode == 0 {
		mode = 0700
	}
	mapSize := opts.MapSize
	if mapSize == 0 {
		mapSize = defaultMapSize
	}

	dbpath, err := filepath.Abs(dbpath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dbpath, mode|0700); err != nil {
		return nil, errors.Wrap(err, "lmdb: create directory")
	}

	env, err := lmdb.NewEnv()
	if err != nil {
		return nil, errors.Wrap(err, "lmdb: new env")
	}
	if err := env.SetMaxDBs(maxDBs); err != nil {
		env.Close()
		return nil, errors.Wrap(err, "lmdb: set max dbs")
	}
	if err := env.SetMapSize(mapSize); err != nil {
		env.Close()
		return nil, errors.Wrap(err, "lmdb: set map size")
	}

	// read transactions may move between goroutines, the loop owns writes
	flags := uint(lmdb.NoTLS)
	if opts.NoSync {
		flags |= lmdb.NoSync
	}
	if err := env.Open(dbpath, flags, mode&0666|0600); err != nil {
		env.Close()
		return nil, errors.Wrapf(err, "lmdb: open %s", dbpath)
	}

	return &DB{env: env, path: dbpath}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see kv.Backend)
// --------------------------------------------------------------------------

func (d *DB) Begin(writable bool) (kv.Txn, error) {
	var flags uint
	if writable {
		if err := d.growIfNeeded(); err != nil {
			return nil, err
		}
	} else {
		flags = lmdb.Readonly
	}

	txn, err := d.env.BeginTxn(nil, flags)
	if err != nil {
		return nil, errors.Wrap(err, "lmdb: begin")
	}
	return &Txn{txn: txn, writable: writable, dbis: map[string]lmdb.DBI{}}, nil
}

func (d *DB) Info() kv.Info {
	info := kv.Info{Impl: kv.ImplLMDB, Path: d.path}
	if st, err := os.Stat(filepath.Join(d.path, "data.mdb")); err == nil {
		info.SizeBytes = st.Size()
	}
	return info
}

func (d *DB) Close() error {
	return d.env.Close()
}

// growIfNeeded doubles the map size (by at most 1GiB) when less than 10% is free.
func (d *DB) growIfNeeded() error {
	d.resizeLock.Lock()
	defer d.resizeLock.Unlock()

	info, err := d.env.Info()
	if err != nil {
		return errors.Wrap(err, "lmdb: env info")
	}
	stat, err := d.env.Stat()
	if err != nil {
		return errors.Wrap(err, "lmdb: env stat")
	}

	used := int64(stat.PSize) * info.LastPNO
	if free := 1 - float64(used)/float64(info.MapSize); free >= 0.1 {
		return nil
	}

	newSize := info.MapSize * 2
	if info.MapSize > gb {
		newSize = info.MapSize + gb
	}
	log.Infof("lmdb map size increase needed: %vMiB -> %vMiB", info.MapSize>>20, newSize>>20)
	return errors.Wrap(d.env.SetMapSize(newSize), "lmdb: resize")
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

// Txn wraps an LMDB transaction
type Txn struct {
	txn      *lmdb.Txn
	writable bool
	done     bool
	dbis     map[string]lmdb.DBI
}

// dbi opens a named database, the boolean is false if it does not exist.
func (t *Txn) dbi(name string) (lmdb.DBI, bool, error) {
	if t.done {
		return 0, false, kv.ErrTxClosed
	}
	if dbi, ok := t.dbis[name]; ok {
		return dbi, true, nil
	}
	dbi, err := t.txn.OpenDBI(name, 0)
	if lmdb.IsNotFound(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrapf(err, "lmdb: open dbi %s", name)
	}
	t.dbis[name] = dbi
	return dbi, true, nil
}

func (t *Txn) bucket(name string) (lmdb.DBI, error) {
	dbi, ok, err := t.dbi(name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.Wrap(kv.ErrBucketNotFound, name)
	}
	return dbi, nil
}

func (t *Txn) writableBucket(name string) (lmdb.DBI, error) {
	if !t.writable {
		return 0, kv.ErrTxReadOnly
	}
	return t.bucket(name)
}

func (t *Txn) Writable() bool {
	return t.writable
}

func (t *Txn) CreateBucket(name string) error {
	if t.done {
		return kv.ErrTxClosed
	}
	if !t.writable {
		return kv.ErrTxReadOnly
	}
	dbi, err := t.txn.OpenDBI(name, lmdb.Create)
	if err != nil {
		return errors.Wrapf(err, "lmdb: create bucket %s", name)
	}
	t.dbis[name] = dbi
	return nil
}

func (t *Txn) DeleteBucket(name string) error {
	if !t.writable {
		return kv.ErrTxReadOnly
	}
	dbi, ok, err := t.dbi(name)
	if err != nil || !ok {
		return err
	}
	delete(t.dbis, name)
	return errors.Wrapf(t.txn.Drop(dbi, true), "lmdb: delete bucket %s", name)
}

func (t *Txn) HasBucket(name string) bool {
	_, ok, err := t.dbi(name)
	return err == nil && ok
}

func (t *Txn) Buckets() ([]string, error) {
	if t.done {
		return nil, kv.ErrTxClosed
	}
	root, err := t.txn.OpenRoot(0)
	if err != nil {
		return nil, errors.Wrap(err, "lmdb: open root")
	}
	cur, err := t.txn.OpenCursor(root)
	if err != nil {
		return nil, errors.Wrap(err, "lmdb: root cursor")
	}
	defer cur.Close()

	var names []string
	for {
		k, _, err := cur.Get(nil, nil, lmdb.Next)
		if lmdb.IsNotFound(err) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "lmdb: list buckets")
		}
		names = append(names, string(k))
	}
	return names, nil
}

func (t *Txn) Get(bucket string, key []byte) ([]byte, error) {
	dbi, err := t.bucket(bucket)
	if err != nil {
		return nil, err
	}
	v, err := t.txn.Get(dbi, key)
	if lmdb.IsNotFound(err) {
		return nil, nil
	}
	return v, errors.Wrap(err, "lmdb: get")
}

func (t *Txn) Put(bucket string, key, value []byte) error {
	dbi, err := t.writableBucket(bucket)
	if err != nil {
		return err
	}
	// lmdb rejects nil values
	if value == nil {
		value = []byte{}
	}
	return errors.Wrap(t.txn.Put(dbi, key, value, 0), "lmdb: put")
}

func (t *Txn) Delete(bucket string, key []byte) error {
	dbi, err := t.writableBucket(bucket)
	if err != nil {
		return err
	}
	err = t.txn.Del(dbi, key, nil)
	if lmdb.IsNotFound(err) {
		return nil
	}
	return errors.Wrap(err, "lmdb: delete")
}

func (t *Txn) Clear(bucket string) error {
	dbi, err := t.writableBucket(bucket)
	if err != nil {
		return err
	}
	return errors.Wrap(t.txn.Drop(dbi, false), "lmdb: clear")
}

func (t *Txn) Count(bucket string) (int, error) {
	dbi, err := t.bucket(bucket)
	if err != nil {
		return 0, err
	}
	st, err := t.txn.Stat(dbi)
	if err != nil {
		return 0, errors.Wrap(err, "lmdb: stat")
	}
	return int(st.Entries), nil
}

func (t *Txn) Cursor(bucket string) (kv.Cursor, error) {
	dbi, err := t.bucket(bucket)
	if err != nil {
		return nil, err
	}
	cur, err := t.txn.OpenCursor(dbi)
	if err != nil {
		return nil, errors.Wrap(err, "lmdb: open cursor")
	}
	return &cursor{c: cur}, nil
}

func (t *Txn) Commit() error {
	if t.done {
		return kv.ErrTxClosed
	}
	t.done = true
	if !t.writable {
		t.txn.Abort()
		return nil
	}
	return errors.Wrap(t.txn.Commit(), "lmdb: commit")
}

func (t *Txn) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.txn.Abort()
	return nil
}

// cursor adapts an lmdb cursor to kv.Cursor. Errors end the iteration.
type cursor struct {
	c *lmdb.Cursor
}

func (c *cursor) get(key []byte, op uint) ([]byte, []byte) {
	k, v, err := c.c.Get(key, nil, op)
	if err != nil {
		if !lmdb.IsNotFound(err) {
			log.Warningf("lmdb cursor: %v", err)
		}
		return nil, nil
	}
	return k, v
}

func (c *cursor) First() ([]byte, []byte) { return c.get(nil, lmdb.First) }
func (c *cursor) Last() ([]byte, []byte) { return c.get(nil, lmdb.Last) }
func (c *cursor) Seek(seek []byte) ([]byte, []byte) { return c.get(seek, lmdb.SetRange) }
func (c *cursor) Next() ([]byte, []byte) { return c.get(nil, lmdb.Next) }
func (c *cursor) Prev() ([]byte, []byte) { return c.get(nil, lmdb.Prev) }
func (c *cursor) Close() { c.c.Close() }
