package core

import (
	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/ValentinKolb/fKV/lib/engine/keys"
	"github.com/ValentinKolb/fKV/lib/engine/kv"
)

var _ engine.Index = &index{}

// index implements engine.Index. Entries live in their own bucket keyed by
// the index key followed by the primary key, the value is the primary key.
type index struct {
	store *objectStore
	name  string
}

func (i *index) schema() *indexSchema {
	st := i.store.schema()
	if st == nil {
		return nil
	}
	return st.Indexes[i.name]
}

func (i *index) bucket() string {
	return indexBucket(i.store.name, i.name)
}

func (i *index) check() error {
	if i.schema() == nil {
		return engine.NewError(engine.InvalidStateError, "index %s was deleted", i.name)
	}
	return i.store.tx.checkActive()
}

// --------------------------------------------------------------------------
// Interface Methods (docu see engine.Index)
// --------------------------------------------------------------------------

func (i *index) Name() string {
	return i.name
}

func (i *index) KeyPath() string {
	if s := i.schema(); s != nil {
		return s.KeyPath
	}
	return ""
}

func (i *index) Unique() bool {
	s := i.schema()
	return s != nil && s.Unique
}

func (i *index) MultiEntry() bool {
	s := i.schema()
	return s != nil && s.MultiEntry
}

func (i *index) ObjectStore() engine.ObjectStore {
	return i.store
}

func (i *index) Get(q any) (engine.Request, error) {
	return i.lookup(q, false)
}

func (i *index) GetKey(q any) (engine.Request, error) {
	return i.lookup(q, true)
}

// lookup resolves the first entry matching q to its record or primary key
func (i *index) lookup(q any, keyOnly bool) (engine.Request, error) {
	if err := i.check(); err != nil {
		return nil, err
	}
	qr, err := parseQuery(q, false)
	if err != nil {
		return nil, err
	}

	return i.store.tx.issue(func(tx kv.Txn) (any, *engine.Error) {
		c, err := tx.Cursor(i.bucket())
		if err != nil {
			return nil, engine.WrapError(engine.UnknownError, err, "cannot open index cursor")
		}
		_, pk := firstIndexEntry(c, qr)
		c.Close()
		if pk == nil {
			return nil, nil
		}
		if keyOnly {
			k, err := keys.DecodeAll(pk)
			if err != nil {
				return nil, engine.WrapError(engine.UnknownError, err, "corrupt index entry")
			}
			return k, nil
		}

		raw, err := tx.Get(recordBucket(i.store.name), pk)
		if err != nil {
			return nil, engine.WrapError(engine.UnknownError, err, "cannot read record")
		}
		if raw == nil {
			return nil, nil
		}
		return i.store.writer(tx).decode(raw)
	})
}

func (i *index) Count(q any) (engine.Request, error) {
	if err := i.check(); err != nil {
		return nil, err
	}
	qr, err := parseQuery(q, true)
	if err != nil {
		return nil, err
	}

	return i.store.tx.issue(func(tx kv.Txn) (any, *engine.Error) {
		n, err := countRange(tx, i.bucket(), qr, splitIndexKey)
		if err != nil {
			return nil, engine.WrapError(engine.UnknownError, err, "cannot count index entries")
		}
		return n, nil
	})
}

func (i *index) OpenCursor(q any, dir engine.Direction) (engine.Request, error) {
	if err := i.check(); err != nil {
		return nil, err
	}
	return openCursor(i.store, i, q, dir)
}

// splitIndexKey returns the index key part of an index entry key
func splitIndexKey(k []byte) []byte {
	ik, _, err := keys.Split(k)
	if err != nil {
		return k
	}
	return ik
}

// firstIndexEntry positions c at the first index entry inside q
func firstIndexEntry(c kv.Cursor, q query) ([]byte, []byte) {
	var k, v []byte
	switch {
	case q.lower == nil:
		k, v = c.First()
	case q.lowerOpen:
		k, v = c.Seek(keys.Successor(q.lower))
	default:
		k, v = c.Seek(q.lower)
	}
	if k == nil || q.above(splitIndexKey(k)) {
		return nil, nil
	}
	return k, v
}
