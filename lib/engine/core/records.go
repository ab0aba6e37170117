package core

import (
	"bytes"
	"math"

	"github.com/ValentinKolb/fKV/lib/codec"
	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/ValentinKolb/fKV/lib/engine/keys"
	"github.com/ValentinKolb/fKV/lib/engine/kv"
)

// maxGeneratorKey is the largest key a key generator hands out (2^53)
const maxGeneratorKey = 1 << 53

// query is a decoded Get/Delete/Count argument
type query struct {
	lower, upper         []byte
	lowerOpen, upperOpen bool
	point                bool // lower == upper, both closed
}

// parseQuery accepts a key, a *engine.KeyRange or nil (everything).
func parseQuery(q any, allowNil bool) (query, error) {
	switch v := q.(type) {
	case nil:
		if !allowNil {
			return query{}, engine.NewError(engine.DataError, "a key or key range is required")
		}
		return query{}, nil
	case *engine.KeyRange:
		if v == nil {
			return parseQuery(nil, allowNil)
		}
		lower, upper, err := v.Encode()
		if err != nil {
			return query{}, err
		}
		return query{
			lower: lower, upper: upper,
			lowerOpen: v.LowerOpen, upperOpen: v.UpperOpen,
			point: lower != nil && bytes.Equal(lower, upper),
		}, nil
	case engine.KeyRange:
		return parseQuery(&v, allowNil)
	default:
		k, err := keys.Encode(q)
		if err != nil {
			return query{}, engine.WrapError(engine.DataError, err, "invalid key")
		}
		return query{lower: k, upper: k, point: true}, nil
	}
}

func (q query) includes(k []byte) bool {
	return engine.InRange(k, q.lower, q.upper, q.lowerOpen, q.upperOpen)
}

// above reports whether k lies beyond the upper bound
func (q query) above(k []byte) bool {
	if q.upper == nil {
		return false
	}
	c := bytes.Compare(k, q.upper)
	return c > 0 || (c == 0 && q.upperOpen)
}

// below reports whether k lies before the lower bound
func (q query) below(k []byte) bool {
	if q.lower == nil {
		return false
	}
	c := bytes.Compare(k, q.lower)
	return c < 0 || (c == 0 && q.lowerOpen)
}

// firstInRange positions a cursor at the first key of q, nil if none
func firstInRange(c kv.Cursor, q query) ([]byte, []byte) {
	var k, v []byte
	if q.lower == nil {
		k, v = c.First()
	} else {
		k, v = c.Seek(q.lower)
		if k != nil && q.lowerOpen && bytes.Equal(k, q.lower) {
			k, v = c.Next()
		}
	}
	if k == nil || q.above(k) {
		return nil, nil
	}
	return k, v
}

// --------------------------------------------------------------------------
// Index maintenance
// --------------------------------------------------------------------------

// indexKeys returns the encoded index keys of a decoded record value.
// Records without a valid key at the index key path are not indexed.
func indexKeys(idx *indexSchema, value any) [][]byte {
	v, found, err := codec.Extract(value, idx.KeyPath)
	if err != nil || !found {
		return nil
	}

	if arr, ok := v.([]any); ok && idx.MultiEntry {
		var out [][]byte
		seen := map[string]bool{}
		for _, e := range arr {
			enc, err := keys.Encode(e)
			if err != nil || seen[string(enc)] {
				continue
			}
			seen[string(enc)] = true
			out = append(out, enc)
		}
		return out
	}

	enc, err := keys.Encode(v)
	if err != nil {
		return nil
	}
	return [][]byte{enc}
}

func compositeKey(ik, pk []byte) []byte {
	out := make([]byte, 0, len(ik)+len(pk))
	out = append(out, ik...)
	return append(out, pk...)
}

// uniqueConflict reports whether another record than pk already uses ik
func uniqueConflict(tx kv.Txn, bucket string, ik, pk []byte) (bool, error) {
	c, err := tx.Cursor(bucket)
	if err != nil {
		return false, err
	}
	defer c.Close()

	for k, v := c.Seek(ik); k != nil && bytes.HasPrefix(k, ik); k, v = c.Next() {
		if !bytes.Equal(v, pk) {
			return true, nil
		}
	}
	return false, nil
}

// recordWriter holds everything needed to write records of one store
type recordWriter struct {
	tx    kv.Txn
	codec codec.ICodec
	store *storeSchema
}

// decode decodes a stored record value
func (w recordWriter) decode(raw []byte) (any, *engine.Error) {
	v, err := w.codec.Decode(raw)
	if err != nil {
		return nil, engine.WrapError(engine.UnknownError, err, "corrupt record")
	}
	return v, nil
}

// put stores a record and its index entries. With overwrite false an
// existing key fails with ConstraintError.
func (w recordWriter) put(pk, raw []byte, overwrite bool) *engine.Error {
	bucket := recordBucket(w.store.Name)
	existing, err := w.tx.Get(bucket, pk)
	if err != nil {
		return engine.WrapError(engine.UnknownError, err, "cannot read record")
	}
	if existing != nil && !overwrite {
		return engine.NewError(engine.ConstraintError, "key already exists in object store %s", w.store.Name)
	}

	entries := map[string][][]byte{}
	if len(w.store.Indexes) > 0 {
		value, eerr := w.decode(raw)
		if eerr != nil {
			return eerr
		}
		for name, idx := range w.store.Indexes {
			iks := indexKeys(idx, value)
			entries[name] = iks
			if !idx.Unique {
				continue
			}
			for _, ik := range iks {
				conflict, err := uniqueConflict(w.tx, indexBucket(w.store.Name, name), ik, pk)
				if err != nil {
					return engine.WrapError(engine.UnknownError, err, "cannot check unique index")
				}
				if conflict {
					return engine.NewError(engine.ConstraintError, "unique index %s already contains the key", name)
				}
			}
		}
	}

	if existing != nil {
		if eerr := w.removeIndexEntries(pk, existing); eerr != nil {
			return eerr
		}
	}
	if err := w.tx.Put(bucket, pk, raw); err != nil {
		return engine.WrapError(engine.UnknownError, err, "cannot write record")
	}
	for name, iks := range entries {
		for _, ik := range iks {
			if err := w.tx.Put(indexBucket(w.store.Name, name), compositeKey(ik, pk), pk); err != nil {
				return engine.WrapError(engine.UnknownError, err, "cannot write index entry")
			}
		}
	}
	return nil
}

// remove deletes a record and its index entries
func (w recordWriter) remove(pk, raw []byte) *engine.Error {
	if eerr := w.removeIndexEntries(pk, raw); eerr != nil {
		return eerr
	}
	if err := w.tx.Delete(recordBucket(w.store.Name), pk); err != nil {
		return engine.WrapError(engine.UnknownError, err, "cannot delete record")
	}
	return nil
}

func (w recordWriter) removeIndexEntries(pk, raw []byte) *engine.Error {
	if len(w.store.Indexes) == 0 {
		return nil
	}
	value, eerr := w.decode(raw)
	if eerr != nil {
		return eerr
	}
	for name, idx := range w.store.Indexes {
		for _, ik := range indexKeys(idx, value) {
			if err := w.tx.Delete(indexBucket(w.store.Name, name), compositeKey(ik, pk)); err != nil {
				return engine.WrapError(engine.UnknownError, err, "cannot delete index entry")
			}
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Key generator
// --------------------------------------------------------------------------

// nextKey advances the key generator of the store
func (w recordWriter) nextKey() (float64, *engine.Error) {
	cur, err := readGenerator(w.tx, w.store.Name)
	if err != nil {
		return 0, engine.WrapError(engine.UnknownError, err, "cannot read key generator")
	}
	if cur >= maxGeneratorKey {
		return 0, engine.NewError(engine.ConstraintError, "key generator of %s is exhausted", w.store.Name)
	}
	cur++
	if err := writeGenerator(w.tx, w.store.Name, cur); err != nil {
		return 0, engine.WrapError(engine.UnknownError, err, "cannot write key generator")
	}
	return float64(cur), nil
}

// observeKey raises the generator when an explicit numeric key is used
func (w recordWriter) observeKey(key any) *engine.Error {
	pk, err := keys.Encode(key)
	if err != nil {
		return nil
	}
	k, _ := keys.DecodeAll(pk)
	n, ok := k.(float64)
	if !ok || n < 1 {
		return nil
	}
	n = math.Floor(math.Min(n, maxGeneratorKey))

	cur, err := readGenerator(w.tx, w.store.Name)
	if err != nil {
		return engine.WrapError(engine.UnknownError, err, "cannot read key generator")
	}
	if uint64(n) > cur {
		if err := writeGenerator(w.tx, w.store.Name, uint64(n)); err != nil {
			return engine.WrapError(engine.UnknownError, err, "cannot write key generator")
		}
	}
	return nil
}
