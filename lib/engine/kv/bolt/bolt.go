// Package bolt implements kv.Backend on top of go.etcd.io/bbolt. Each
// database lives in a single file.
package bolt

import (
	"os"
	"path/filepath"
	"time"

	"github.com/ValentinKolb/fKV/lib/engine/kv"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var _ kv.Backend = &DB{}

// Options configures the bolt backend
type Options struct {
	FileMode os.FileMode   // mode for new database files (0 = 0600)
	Timeout  time.Duration // how long to wait for the file lock (0 = 1s)
	NoSync   bool          // skip fsync on commit, for tests
}

// DB is a kv.Backend backed by one bolt file
type DB struct {
	db   *bolt.DB
	path string
}

// New opens (or creates) the bolt file at dbpath.
func New(dbpath string, opts *Options) (*DB, error) {
	if opts == nil {
		opts = &Options{}
	}
	mode := opts.FileMode
	if mode == 0 {
		mode = 0600
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second
	}

	dbpath, err := filepath.Abs(dbpath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dbpath), 0755); err != nil {
		return nil, errors.Wrap(err, "bolt: create parent directory")
	}

	db, err := bolt.Open(dbpath, mode, &bolt.Options{
		Timeout:        timeout,
		NoFreelistSync: true,
		NoSync:         opts.NoSync,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "bolt: open %s", dbpath)
	}

	return &DB{db: db, path: dbpath}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see kv.Backend)
// --------------------------------------------------------------------------

func (d *DB) Begin(writable bool) (kv.Txn, error) {
	tx, err := d.db.Begin(writable)
	if err != nil {
		if errors.Is(err, bolt.ErrDatabaseNotOpen) {
			return nil, kv.ErrBackendClosed
		}
		return nil, errors.Wrap(err, "bolt: begin")
	}
	return &Txn{tx: tx}, nil
}

func (d *DB) Info() kv.Info {
	info := kv.Info{Impl: kv.ImplBolt, Path: d.path}
	if st, err := os.Stat(d.path); err == nil {
		info.SizeBytes = st.Size()
	}
	return info
}

func (d *DB) Close() error {
	return d.db.Close()
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

// Txn wraps a bolt transaction
type Txn struct {
	tx   *bolt.Tx
	done bool
}

func (t *Txn) bucket(name string) (*bolt.Bucket, error) {
	if t.done {
		return nil, kv.ErrTxClosed
	}
	b := t.tx.Bucket([]byte(name))
	if b == nil {
		return nil, errors.Wrap(kv.ErrBucketNotFound, name)
	}
	return b, nil
}

func (t *Txn) writableBucket(name string) (*bolt.Bucket, error) {
	if t.done {
		return nil, kv.ErrTxClosed
	}
	if !t.tx.Writable() {
		return nil, kv.ErrTxReadOnly
	}
	return t.bucket(name)
}

func (t *Txn) Writable() bool {
	return t.tx.Writable()
}

func (t *Txn) CreateBucket(name string) error {
	if t.done {
		return kv.ErrTxClosed
	}
	if !t.tx.Writable() {
		return kv.ErrTxReadOnly
	}
	_, err := t.tx.CreateBucketIfNotExists([]byte(name))
	return errors.Wrapf(err, "bolt: create bucket %s", name)
}

func (t *Txn) DeleteBucket(name string) error {
	if t.done {
		return kv.ErrTxClosed
	}
	if !t.tx.Writable() {
		return kv.ErrTxReadOnly
	}
	err := t.tx.DeleteBucket([]byte(name))
	if errors.Is(err, bolt.ErrBucketNotFound) {
		return nil
	}
	return errors.Wrapf(err, "bolt: delete bucket %s", name)
}

func (t *Txn) HasBucket(name string) bool {
	return !t.done && t.tx.Bucket([]byte(name)) != nil
}

func (t *Txn) Buckets() ([]string, error) {
	if t.done {
		return nil, kv.ErrTxClosed
	}
	var names []string
	err := t.tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
		names = append(names, string(name))
		return nil
	})
	return names, err
}

func (t *Txn) Get(bucket string, key []byte) ([]byte, error) {
	b, err := t.bucket(bucket)
	if err != nil {
		return nil, err
	}
	return b.Get(key), nil
}

func (t *Txn) Put(bucket string, key, value []byte) error {
	b, err := t.writableBucket(bucket)
	if err != nil {
		return err
	}
	return errors.Wrap(b.Put(key, value), "bolt: put")
}

func (t *Txn) Delete(bucket string, key []byte) error {
	b, err := t.writableBucket(bucket)
	if err != nil {
		return err
	}
	return errors.Wrap(b.Delete(key), "bolt: delete")
}

func (t *Txn) Clear(bucket string) error {
	if _, err := t.writableBucket(bucket); err != nil {
		return err
	}
	name := []byte(bucket)
	if err := t.tx.DeleteBucket(name); err != nil {
		return errors.Wrap(err, "bolt: clear")
	}
	_, err := t.tx.CreateBucket(name)
	return errors.Wrap(err, "bolt: clear")
}

func (t *Txn) Count(bucket string) (int, error) {
	b, err := t.bucket(bucket)
	if err != nil {
		return 0, err
	}
	// Stats only sees committed pages, walk the keys to include pending writes
	n := 0
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	return n, nil
}

func (t *Txn) Cursor(bucket string) (kv.Cursor, error) {
	b, err := t.bucket(bucket)
	if err != nil {
		return nil, err
	}
	return &cursor{c: b.Cursor()}, nil
}

func (t *Txn) Commit() error {
	if t.done {
		return kv.ErrTxClosed
	}
	t.done = true
	if !t.tx.Writable() {
		return t.tx.Rollback()
	}
	return errors.Wrap(t.tx.Commit(), "bolt: commit")
}

func (t *Txn) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}

// cursor adapts a bolt cursor. bolt returns a nil value for nested buckets,
// which never occur inside engine buckets.
type cursor struct {
	c *bolt.Cursor
}

func (c *cursor) First() ([]byte, []byte) { return c.c.First() }
func (c *cursor) Last() ([]byte, []byte) { return c.c.Last() }
func (c *cursor) Seek(seek []byte) ([]byte, []byte) { return c.c.Seek(seek) }
func (c *cursor) Next() ([]byte, []byte) { return c.c.Next() }
func (c *cursor) Prev() ([]byte, []byte) { return c.c.Prev() }
func (c *cursor) Close() {}
