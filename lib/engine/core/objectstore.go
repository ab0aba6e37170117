package core

import (
	"github.com/ValentinKolb/fKV/lib/codec"
	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/ValentinKolb/fKV/lib/engine/keys"
	"github.com/ValentinKolb/fKV/lib/engine/kv"
)

var _ engine.ObjectStore = &objectStore{}

// objectStore implements engine.ObjectStore for one transaction
type objectStore struct {
	tx      *transaction
	name    string
	indexes map[string]*index
}

// schema returns the current definition, nil if the store was deleted
func (s *objectStore) schema() *storeSchema {
	return s.tx.db.schema.Stores[s.name]
}

func (s *objectStore) writer(tx kv.Txn) recordWriter {
	return recordWriter{tx: tx, codec: s.tx.st.f.codec, store: s.schema()}
}

// check validates the accessor before a request is issued
func (s *objectStore) check() (*storeSchema, error) {
	st := s.schema()
	if st == nil {
		return nil, engine.NewError(engine.InvalidStateError, "object store %s was deleted", s.name)
	}
	if err := s.tx.checkActive(); err != nil {
		return nil, err
	}
	return st, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see engine.ObjectStore)
// --------------------------------------------------------------------------

func (s *objectStore) Name() string {
	return s.name
}

func (s *objectStore) KeyPath() string {
	if st := s.schema(); st != nil {
		return st.KeyPath
	}
	return ""
}

func (s *objectStore) AutoIncrement() bool {
	st := s.schema()
	return st != nil && st.AutoIncrement
}

func (s *objectStore) IndexNames() []string {
	if st := s.schema(); st != nil {
		return st.indexNames()
	}
	return nil
}

func (s *objectStore) Transaction() engine.Transaction {
	return s.tx
}

func (s *objectStore) Get(q any) (engine.Request, error) {
	if _, err := s.check(); err != nil {
		return nil, err
	}
	qr, err := parseQuery(q, false)
	if err != nil {
		return nil, err
	}

	return s.tx.issue(func(tx kv.Txn) (any, *engine.Error) {
		w := s.writer(tx)
		var raw []byte
		if qr.point {
			v, err := tx.Get(recordBucket(s.name), qr.lower)
			if err != nil {
				return nil, engine.WrapError(engine.UnknownError, err, "cannot read record")
			}
			raw = v
		} else {
			c, err := tx.Cursor(recordBucket(s.name))
			if err != nil {
				return nil, engine.WrapError(engine.UnknownError, err, "cannot open cursor")
			}
			_, raw = firstInRange(c, qr)
			c.Close()
		}
		if raw == nil {
			return nil, nil
		}
		return w.decode(raw)
	})
}

func (s *objectStore) Add(value any, key any) (engine.Request, error) {
	return s.write(value, key, false)
}

func (s *objectStore) Put(value any, key any) (engine.Request, error) {
	return s.write(value, key, true)
}

// write validates the key and serializes value in the calling turn, the
// record is written when the request runs.
func (s *objectStore) write(value any, key any, overwrite bool) (engine.Request, error) {
	st, err := s.check()
	if err != nil {
		return nil, err
	}
	if err := s.tx.checkWritable(); err != nil {
		return nil, err
	}

	var inject bool
	switch {
	case st.KeyPath != "":
		if key != nil {
			return nil, engine.NewError(engine.DataError, "object store %s uses in-line keys, no key may be passed", s.name)
		}
		k, found, err := codec.Extract(value, st.KeyPath)
		if err != nil {
			return nil, engine.WrapError(engine.DataError, err, "cannot evaluate key path")
		}
		switch {
		case found:
			if !keys.Valid(k) {
				return nil, engine.NewError(engine.DataError, "value at key path %s is not a valid key", st.KeyPath)
			}
			key = k
		case st.AutoIncrement:
			if _, ok := value.(map[string]any); !ok {
				return nil, engine.NewError(engine.DataError, "generated keys can only be injected into map values")
			}
			inject = true
		default:
			return nil, engine.NewError(engine.DataError, "value has no key at key path %s", st.KeyPath)
		}
	case key == nil:
		if !st.AutoIncrement {
			return nil, engine.NewError(engine.DataError, "object store %s needs an explicit key", s.name)
		}
	default:
		if !keys.Valid(key) {
			return nil, engine.NewError(engine.DataError, "invalid key %v", key)
		}
	}

	raw, encErr := s.tx.st.f.codec.Encode(value)
	if encErr != nil {
		return nil, engine.WrapError(engine.DataError, encErr, "value cannot be serialized")
	}

	return s.tx.issue(func(tx kv.Txn) (any, *engine.Error) {
		w := s.writer(tx)
		k := key

		if k == nil {
			gen, eerr := w.nextKey()
			if eerr != nil {
				return nil, eerr
			}
			k = gen
			if inject {
				generic, eerr := w.decode(raw)
				if eerr != nil {
					return nil, eerr
				}
				if !codec.Inject(generic, w.store.KeyPath, k) {
					return nil, engine.NewError(engine.DataError, "cannot inject key at %s", w.store.KeyPath)
				}
				b, err := w.codec.Encode(generic)
				if err != nil {
					return nil, engine.WrapError(engine.DataError, err, "value cannot be serialized")
				}
				raw = b
			}
		} else if w.store.AutoIncrement {
			if eerr := w.observeKey(k); eerr != nil {
				return nil, eerr
			}
		}

		pk, err := keys.Encode(k)
		if err != nil {
			return nil, engine.WrapError(engine.DataError, err, "invalid key")
		}
		if eerr := w.put(pk, raw, overwrite); eerr != nil {
			return nil, eerr
		}
		s.tx.st.valueSizes.Observe(len(raw))
		normalized, _ := keys.DecodeAll(pk)
		return normalized, nil
	})
}

func (s *objectStore) Delete(q any) (engine.Request, error) {
	if _, err := s.check(); err != nil {
		return nil, err
	}
	if err := s.tx.checkWritable(); err != nil {
		return nil, err
	}
	qr, err := parseQuery(q, false)
	if err != nil {
		return nil, err
	}

	return s.tx.issue(func(tx kv.Txn) (any, *engine.Error) {
		w := s.writer(tx)
		bucket := recordBucket(s.name)

		if qr.point {
			raw, err := tx.Get(bucket, qr.lower)
			if err != nil {
				return nil, engine.WrapError(engine.UnknownError, err, "cannot read record")
			}
			if raw == nil {
				return nil, nil
			}
			return nil, w.remove(qr.lower, raw)
		}

		// collect first, the cursor must not see its own deletes
		type record struct{ pk, raw []byte }
		var victims []record
		c, err := tx.Cursor(bucket)
		if err != nil {
			return nil, engine.WrapError(engine.UnknownError, err, "cannot open cursor")
		}
		for k, v := firstInRange(c, qr); k != nil && !qr.above(k); k, v = c.Next() {
			victims = append(victims, record{append([]byte(nil), k...), append([]byte(nil), v...)})
		}
		c.Close()

		for _, r := range victims {
			if eerr := w.remove(r.pk, r.raw); eerr != nil {
				return nil, eerr
			}
		}
		return nil, nil
	})
}

func (s *objectStore) Clear() (engine.Request, error) {
	st, err := s.check()
	if err != nil {
		return nil, err
	}
	if err := s.tx.checkWritable(); err != nil {
		return nil, err
	}

	return s.tx.issue(func(tx kv.Txn) (any, *engine.Error) {
		if err := tx.Clear(recordBucket(s.name)); err != nil {
			return nil, engine.WrapError(engine.UnknownError, err, "cannot clear object store")
		}
		for _, name := range st.indexNames() {
			if err := tx.Clear(indexBucket(s.name, name)); err != nil {
				return nil, engine.WrapError(engine.UnknownError, err, "cannot clear index")
			}
		}
		return nil, nil
	})
}

func (s *objectStore) Count(q any) (engine.Request, error) {
	if _, err := s.check(); err != nil {
		return nil, err
	}
	qr, err := parseQuery(q, true)
	if err != nil {
		return nil, err
	}

	return s.tx.issue(func(tx kv.Txn) (any, *engine.Error) {
		n, err := countRange(tx, recordBucket(s.name), qr, nil)
		if err != nil {
			return nil, engine.WrapError(engine.UnknownError, err, "cannot count records")
		}
		return n, nil
	})
}

func (s *objectStore) OpenCursor(q any, dir engine.Direction) (engine.Request, error) {
	if _, err := s.check(); err != nil {
		return nil, err
	}
	return openCursor(s, nil, q, dir)
}

// --------------------------------------------------------------------------
// Indexes
// --------------------------------------------------------------------------

func (s *objectStore) Index(name string) (engine.Index, error) {
	st := s.schema()
	if st == nil {
		return nil, engine.NewError(engine.InvalidStateError, "object store %s was deleted", s.name)
	}
	if s.tx.state == txFinished {
		return nil, engine.NewError(engine.InvalidStateError, "transaction %s has finished", s.tx.id)
	}
	if _, ok := st.Indexes[name]; !ok {
		return nil, engine.NewError(engine.NotFoundError, "index %s does not exist on %s", name, s.name)
	}
	if s.indexes == nil {
		s.indexes = map[string]*index{}
	}
	if idx, ok := s.indexes[name]; ok {
		return idx, nil
	}
	idx := &index{store: s, name: name}
	s.indexes[name] = idx
	return idx, nil
}

func (s *objectStore) CreateIndex(name, keyPath string, opts engine.IndexOptions) (engine.Index, error) {
	tx, eerr := s.tx.db.runningUpgrade()
	if eerr != nil {
		return nil, eerr
	}
	st := s.schema()
	if st == nil {
		return nil, engine.NewError(engine.InvalidStateError, "object store %s was deleted", s.name)
	}
	if _, ok := st.Indexes[name]; ok {
		return nil, engine.NewError(engine.ConstraintError, "index %s already exists on %s", name, s.name)
	}
	if err := codec.ValidKeyPath(keyPath); err != nil {
		return nil, engine.WrapError(engine.DataError, err, "invalid key path")
	}

	idx := &indexSchema{Name: name, KeyPath: keyPath, Unique: opts.Unique, MultiEntry: opts.MultiEntry}
	bucket := indexBucket(s.name, name)
	if err := tx.kvtx.CreateBucket(bucket); err != nil {
		return nil, tx.fail(engine.WrapError(engine.UnknownError, err, "cannot create index"))
	}
	if eerr := s.populate(tx.kvtx, idx, bucket); eerr != nil {
		return nil, tx.fail(eerr)
	}

	st.Indexes[name] = idx
	if err := writeSchema(tx.kvtx, s.tx.db.schema); err != nil {
		return nil, tx.fail(engine.WrapError(engine.UnknownError, err, "cannot persist schema"))
	}
	log.Debugf("database %s: created index %s on %s", s.tx.db.Name(), name, s.name)
	return s.Index(name)
}

// populate indexes the records that exist when the index is created
func (s *objectStore) populate(tx kv.Txn, idx *indexSchema, bucket string) *engine.Error {
	w := s.writer(tx)
	c, err := tx.Cursor(recordBucket(s.name))
	if err != nil {
		return engine.WrapError(engine.UnknownError, err, "cannot open cursor")
	}
	defer c.Close()

	type entry struct{ key, pk []byte }
	var entries []entry
	for pk, raw := c.First(); pk != nil; pk, raw = c.Next() {
		value, eerr := w.decode(raw)
		if eerr != nil {
			return eerr
		}
		for _, ik := range indexKeys(idx, value) {
			entries = append(entries, entry{compositeKey(ik, pk), append([]byte(nil), pk...)})
		}
	}

	for _, e := range entries {
		if idx.Unique {
			ik, _, _ := keys.Split(e.key)
			conflict, err := uniqueConflict(tx, bucket, ik, e.pk)
			if err != nil {
				return engine.WrapError(engine.UnknownError, err, "cannot check unique index")
			}
			if conflict {
				return engine.NewError(engine.ConstraintError, "existing records violate unique index %s", idx.Name)
			}
		}
		if err := tx.Put(bucket, e.key, e.pk); err != nil {
			return engine.WrapError(engine.UnknownError, err, "cannot write index entry")
		}
	}
	return nil
}

func (s *objectStore) DeleteIndex(name string) error {
	tx, eerr := s.tx.db.runningUpgrade()
	if eerr != nil {
		return eerr
	}
	st := s.schema()
	if st == nil {
		return engine.NewError(engine.InvalidStateError, "object store %s was deleted", s.name)
	}
	if _, ok := st.Indexes[name]; !ok {
		return engine.NewError(engine.NotFoundError, "index %s does not exist on %s", name, s.name)
	}

	if err := tx.kvtx.DeleteBucket(indexBucket(s.name, name)); err != nil {
		return tx.fail(engine.WrapError(engine.UnknownError, err, "cannot delete index"))
	}
	delete(st.Indexes, name)
	delete(s.indexes, name)
	if err := writeSchema(tx.kvtx, s.tx.db.schema); err != nil {
		return tx.fail(engine.WrapError(engine.UnknownError, err, "cannot persist schema"))
	}
	return nil
}

// countRange counts keys of bucket inside q. keyOf maps a raw key to the key
// the range applies to (index cursors compare the index key only).
func countRange(tx kv.Txn, bucket string, q query, keyOf func([]byte) []byte) (int, error) {
	if q.lower == nil && q.upper == nil {
		return tx.Count(bucket)
	}
	if keyOf == nil {
		keyOf = func(k []byte) []byte { return k }
	}

	c, err := tx.Cursor(bucket)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	n := 0
	var k []byte
	if q.lower == nil {
		k, _ = c.First()
	} else {
		k, _ = c.Seek(q.lower)
	}
	for ; k != nil; k, _ = c.Next() {
		ik := keyOf(k)
		if q.below(ik) {
			continue
		}
		if q.above(ik) {
			break
		}
		n++
	}
	return n, nil
}
