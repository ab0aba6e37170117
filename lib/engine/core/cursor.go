package core

import (
	"bytes"

	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/ValentinKolb/fKV/lib/engine/keys"
	"github.com/ValentinKolb/fKV/lib/engine/kv"
)

var _ engine.Cursor = &cursor{}

// cursor implements engine.Cursor over a store or an index.
//
// Every step opens a fresh backend cursor and seeks from the last position,
// so records written or deleted between steps are observed.
type cursor struct {
	req   *request
	store *objectStore
	index *index // nil for store cursors
	dir   engine.Direction
	q     query

	started  bool
	done     bool
	pos      []byte // backend key of the current position
	count    int    // steps for the next run
	gotValue bool

	key        any
	primaryKey any
	value      any
}

// openCursor issues the first cursor request
func openCursor(s *objectStore, idx *index, q any, dir engine.Direction) (engine.Request, error) {
	if dir == "" {
		dir = engine.Next
	}
	if !dir.Valid() {
		return nil, engine.NewError(engine.InvalidAccessError, "invalid cursor direction %q", dir)
	}
	qr, err := parseQuery(q, true)
	if err != nil {
		return nil, err
	}

	c := &cursor{store: s, index: idx, dir: dir, q: qr}
	r, err := s.tx.newRequest(c.run)
	if err != nil {
		return nil, err
	}
	c.req = r
	return r, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see engine.Cursor)
// --------------------------------------------------------------------------

func (c *cursor) Key() any { return c.key }
func (c *cursor) PrimaryKey() any { return c.primaryKey }
func (c *cursor) Value() any { return c.value }
func (c *cursor) Direction() engine.Direction { return c.dir }

func (c *cursor) Continue() error {
	return c.Advance(1)
}

func (c *cursor) Advance(count int) error {
	if count <= 0 {
		return engine.NewError(engine.InvalidAccessError, "advance count must be positive")
	}
	if err := c.store.tx.checkActive(); err != nil {
		return err
	}
	if c.store.schema() == nil || (c.index != nil && c.index.schema() == nil) {
		return engine.NewError(engine.InvalidStateError, "cursor source was deleted")
	}
	if !c.gotValue || c.done {
		return engine.NewError(engine.InvalidStateError, "cursor is not positioned on a record")
	}
	c.gotValue = false
	c.count = count
	c.store.tx.requeue(c.req)
	return nil
}

// --------------------------------------------------------------------------
// Positioning
// --------------------------------------------------------------------------

func (c *cursor) bucket() string {
	if c.index != nil {
		return c.index.bucket()
	}
	return recordBucket(c.store.name)
}

// ikey returns the part of a backend key the range applies to
func (c *cursor) ikey(k []byte) []byte {
	if c.index == nil {
		return k
	}
	return splitIndexKey(k)
}

// run is the exec function of the cursor request
func (c *cursor) run(tx kv.Txn) (any, *engine.Error) {
	kc, err := tx.Cursor(c.bucket())
	if err != nil {
		return nil, engine.WrapError(engine.UnknownError, err, "cannot open cursor")
	}
	defer kc.Close()

	steps := max(c.count, 1)
	c.count = 0

	var k, v []byte
	for i := 0; i < steps; i++ {
		if !c.started {
			c.started = true
			k, v = c.first(kc)
		} else {
			k, v = c.next(kc)
		}
		if k == nil {
			break
		}
		c.pos = append(c.pos[:0], k...)
	}

	if k == nil {
		c.done = true
		c.key, c.primaryKey, c.value = nil, nil, nil
		return nil, nil
	}
	if eerr := c.load(tx, k, v); eerr != nil {
		return nil, eerr
	}
	c.gotValue = true
	return c, nil
}

// load decodes key, primary key and value of the current position
func (c *cursor) load(tx kv.Txn, k, v []byte) *engine.Error {
	w := c.store.writer(tx)

	if c.index == nil {
		key, err := keys.DecodeAll(k)
		if err != nil {
			return engine.WrapError(engine.UnknownError, err, "corrupt record key")
		}
		value, eerr := w.decode(v)
		if eerr != nil {
			return eerr
		}
		c.key, c.primaryKey, c.value = key, key, value
		return nil
	}

	ik, err := keys.DecodeAll(splitIndexKey(k))
	if err != nil {
		return engine.WrapError(engine.UnknownError, err, "corrupt index key")
	}
	pk, err := keys.DecodeAll(v)
	if err != nil {
		return engine.WrapError(engine.UnknownError, err, "corrupt index entry")
	}
	raw, err := tx.Get(recordBucket(c.store.name), v)
	if err != nil {
		return engine.WrapError(engine.UnknownError, err, "cannot read record")
	}
	var value any
	if raw != nil {
		var eerr *engine.Error
		if value, eerr = w.decode(raw); eerr != nil {
			return eerr
		}
	}
	c.key, c.primaryKey, c.value = ik, pk, value
	return nil
}

// first finds the start position for the cursor direction
func (c *cursor) first(kc kv.Cursor) ([]byte, []byte) {
	q := c.q
	var k, v []byte

	if !c.dir.Reverse() {
		switch {
		case q.lower == nil:
			k, v = kc.First()
		case q.lowerOpen && c.index != nil:
			k, v = kc.Seek(keys.Successor(q.lower))
		default:
			k, v = kc.Seek(q.lower)
			if k != nil && q.lowerOpen && bytes.Equal(k, q.lower) {
				k, v = kc.Next()
			}
		}
		return c.checkForward(k, v)
	}

	switch {
	case q.upper == nil:
		k, v = kc.Last()
	case c.index != nil:
		// index entries are longer than the index key, seek past the group
		target := q.upper
		if !q.upperOpen {
			target = keys.Successor(q.upper)
		}
		k, v = c.stepBack(kc, target)
	default:
		k, v = kc.Seek(q.upper)
		if k == nil || !bytes.Equal(k, q.upper) || q.upperOpen {
			k, v = c.stepBack(kc, q.upper)
		}
	}

	k, v = c.checkReverse(k, v)
	if k != nil && c.dir == engine.PrevUnique && c.index != nil {
		k, v = kc.Seek(c.ikey(k))
	}
	return k, v
}

// next moves one step from the current position
func (c *cursor) next(kc kv.Cursor) ([]byte, []byte) {
	var k, v []byte

	switch {
	case c.dir == engine.NextUnique && c.index != nil:
		k, v = kc.Seek(keys.Successor(c.ikey(c.pos)))
		return c.checkForward(k, v)

	case !c.dir.Reverse():
		k, v = kc.Seek(c.pos)
		if k != nil && bytes.Equal(k, c.pos) {
			k, v = kc.Next()
		}
		return c.checkForward(k, v)

	case c.dir == engine.PrevUnique && c.index != nil:
		// pos is the first entry of its group, step before the group and
		// move to the first entry of the previous group
		k, v = c.stepBack(kc, c.ikey(c.pos))
		k, v = c.checkReverse(k, v)
		if k != nil {
			k, v = kc.Seek(c.ikey(k))
		}
		return k, v

	default:
		k, v = c.stepBack(kc, c.pos)
		return c.checkReverse(k, v)
	}
}

// stepBack returns the last entry strictly before target
func (c *cursor) stepBack(kc kv.Cursor, target []byte) ([]byte, []byte) {
	k, _ := kc.Seek(target)
	if k == nil {
		return kc.Last()
	}
	return kc.Prev()
}

func (c *cursor) checkForward(k, v []byte) ([]byte, []byte) {
	if k == nil || c.q.above(c.ikey(k)) {
		return nil, nil
	}
	return k, v
}

func (c *cursor) checkReverse(k, v []byte) ([]byte, []byte) {
	if k == nil || c.q.below(c.ikey(k)) {
		return nil, nil
	}
	return k, v
}
