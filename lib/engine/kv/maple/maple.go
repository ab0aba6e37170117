package maple

import (
	"sort"
	"sync/atomic"

	"github.com/ValentinKolb/fKV/lib/engine/kv"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sasha-s/go-deadlock"
)

var _ kv.Backend = &DB{}

// --------------------------------------------------------------------------
// Core Maple structure
// --------------------------------------------------------------------------

// bucket holds the entries of one bucket and a lazily built sorted key list
type bucket struct {
	data   *xsync.MapOf[string, []byte]
	sorted atomic.Pointer[[]string] // nil when stale
}

func newBucket() *bucket {
	return &bucket{data: xsync.NewMapOf[string, []byte]()}
}

// keys returns the bucket keys in ascending order
func (b *bucket) keys() []string {
	if p := b.sorted.Load(); p != nil {
		return *p
	}
	keys := make([]string, 0, b.data.Size())
	b.data.Range(func(k string, _ []byte) bool {
		keys = append(keys, k)
		return true
	})
	sort.Strings(keys)
	b.sorted.Store(&keys)
	return keys
}

func (b *bucket) invalidate() {
	b.sorted.Store(nil)
}

// DB is an in-memory kv.Backend. Writers hold the lock exclusively for the
// lifetime of their transaction, readers share it.
type DB struct {
	mu      deadlock.RWMutex
	buckets *xsync.MapOf[string, *bucket]
	closed  atomic.Bool
}

// New creates an empty in-memory backend
func New() *DB {
	return &DB{buckets: xsync.NewMapOf[string, *bucket]()}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see kv.Backend)
// --------------------------------------------------------------------------

func (d *DB) Begin(writable bool) (kv.Txn, error) {
	if d.closed.Load() {
		return nil, kv.ErrBackendClosed
	}
	if writable {
		d.mu.Lock()
	} else {
		d.mu.RLock()
	}
	return &Txn{db: d, writable: writable}, nil
}

func (d *DB) Info() kv.Info {
	var size int64
	d.buckets.Range(func(_ string, b *bucket) bool {
		b.data.Range(func(k string, v []byte) bool {
			size += int64(len(k) + len(v))
			return true
		})
		return true
	})
	return kv.Info{Impl: kv.ImplMaple, SizeBytes: size}
}

func (d *DB) Close() error {
	d.closed.Store(true)
	d.buckets.Clear()
	return nil
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

type undoKind int

const (
	undoPut undoKind = iota
	undoCreateBucket
	undoReplaceBucket
)

// undoEntry restores the state before one write
type undoEntry struct {
	kind    undoKind
	bucket  string
	key     string
	value   []byte
	existed bool
	old     *bucket
}

// Txn is a maple transaction. Writes are applied in place and recorded in an
// undo log that Rollback replays backwards.
type Txn struct {
	db       *DB
	writable bool
	done     bool
	undo     []undoEntry
}

func (t *Txn) bucket(name string) (*bucket, error) {
	if t.done {
		return nil, kv.ErrTxClosed
	}
	b, ok := t.db.buckets.Load(name)
	if !ok {
		return nil, errors.Wrap(kv.ErrBucketNotFound, name)
	}
	return b, nil
}

func (t *Txn) writableBucket(name string) (*bucket, error) {
	if !t.writable {
		return nil, kv.ErrTxReadOnly
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
	if _, loaded := t.db.buckets.LoadOrStore(name, newBucket()); !loaded {
		t.undo = append(t.undo, undoEntry{kind: undoCreateBucket, bucket: name})
	}
	return nil
}

func (t *Txn) DeleteBucket(name string) error {
	if t.done {
		return kv.ErrTxClosed
	}
	if !t.writable {
		return kv.ErrTxReadOnly
	}
	if old, loaded := t.db.buckets.LoadAndDelete(name); loaded {
		t.undo = append(t.undo, undoEntry{kind: undoReplaceBucket, bucket: name, old: old})
	}
	return nil
}

func (t *Txn) HasBucket(name string) bool {
	if t.done {
		return false
	}
	_, ok := t.db.buckets.Load(name)
	return ok
}

func (t *Txn) Buckets() ([]string, error) {
	if t.done {
		return nil, kv.ErrTxClosed
	}
	var names []string
	t.db.buckets.Range(func(name string, _ *bucket) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names, nil
}

func (t *Txn) Get(name string, key []byte) ([]byte, error) {
	b, err := t.bucket(name)
	if err != nil {
		return nil, err
	}
	v, _ := b.data.Load(string(key))
	return v, nil
}

func (t *Txn) Put(name string, key, value []byte) error {
	b, err := t.writableBucket(name)
	if err != nil {
		return err
	}

	// copy value to prevent memory corruption by the caller
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	k := string(key)
	prev, existed := b.data.Load(k)
	b.data.Store(k, valueCopy)
	if !existed {
		b.invalidate()
	}
	t.undo = append(t.undo, undoEntry{kind: undoPut, bucket: name, key: k, value: prev, existed: existed})
	return nil
}

func (t *Txn) Delete(name string, key []byte) error {
	b, err := t.writableBucket(name)
	if err != nil {
		return err
	}
	k := string(key)
	prev, existed := b.data.LoadAndDelete(k)
	if existed {
		b.invalidate()
		t.undo = append(t.undo, undoEntry{kind: undoPut, bucket: name, key: k, value: prev, existed: true})
	}
	return nil
}

func (t *Txn) Clear(name string) error {
	old, err := t.writableBucket(name)
	if err != nil {
		return err
	}
	t.db.buckets.Store(name, newBucket())
	t.undo = append(t.undo, undoEntry{kind: undoReplaceBucket, bucket: name, old: old})
	return nil
}

func (t *Txn) Count(name string) (int, error) {
	b, err := t.bucket(name)
	if err != nil {
		return 0, err
	}
	return b.data.Size(), nil
}

func (t *Txn) Cursor(name string) (kv.Cursor, error) {
	b, err := t.bucket(name)
	if err != nil {
		return nil, err
	}
	return &cursor{b: b, keys: b.keys(), pos: -1}, nil
}

func (t *Txn) Commit() error {
	if t.done {
		return kv.ErrTxClosed
	}
	t.finish()
	return nil
}

func (t *Txn) Rollback() error {
	if t.done {
		return nil
	}
	for i := len(t.undo) - 1; i >= 0; i-- {
		u := t.undo[i]
		switch u.kind {
		case undoPut:
			b, ok := t.db.buckets.Load(u.bucket)
			if !ok {
				continue
			}
			if u.existed {
				b.data.Store(u.key, u.value)
			} else {
				b.data.Delete(u.key)
			}
			b.invalidate()
		case undoCreateBucket:
			t.db.buckets.Delete(u.bucket)
		case undoReplaceBucket:
			t.db.buckets.Store(u.bucket, u.old)
		}
	}
	t.finish()
	return nil
}

func (t *Txn) finish() {
	t.done = true
	t.undo = nil
	if t.writable {
		t.db.mu.Unlock()
	} else {
		t.db.mu.RUnlock()
	}
}

// --------------------------------------------------------------------------
// Cursor
// --------------------------------------------------------------------------

// cursor walks a snapshot of the sorted keys. Keys deleted after the
// snapshot are skipped.
type cursor struct {
	b    *bucket
	keys []string
	pos  int
}

// settle moves from pos in direction step until an existing entry is found.
func (c *cursor) settle(step int) ([]byte, []byte) {
	for c.pos >= 0 && c.pos < len(c.keys) {
		k := c.keys[c.pos]
		if v, ok := c.b.data.Load(k); ok {
			return []byte(k), v
		}
		c.pos += step
	}
	return nil, nil
}

func (c *cursor) First() ([]byte, []byte) {
	c.pos = 0
	return c.settle(1)
}

func (c *cursor) Last() ([]byte, []byte) {
	c.pos = len(c.keys) - 1
	return c.settle(-1)
}

func (c *cursor) Seek(seek []byte) ([]byte, []byte) {
	c.pos = sort.SearchStrings(c.keys, string(seek))
	return c.settle(1)
}

func (c *cursor) Next() ([]byte, []byte) {
	if c.pos >= len(c.keys) {
		return nil, nil
	}
	c.pos++
	return c.settle(1)
}

func (c *cursor) Prev() ([]byte, []byte) {
	if c.pos < 0 {
		return nil, nil
	}
	c.pos--
	return c.settle(-1)
}

func (c *cursor) Close() {}
