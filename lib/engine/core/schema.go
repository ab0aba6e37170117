package core

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/ValentinKolb/fKV/lib/engine/kv"
	"github.com/goccy/go-json"
)

// bucket layout of one database
const (
	metaBucket    = "__fkv_meta"
	metaVersion   = "version"
	metaSchema    = "schema"
	metaGenPrefix = "gen:"
)

func recordBucket(store string) string {
	return "s/" + store
}

// indexBucket prefixes the store name with its length so store names
// containing slashes cannot collide.
func indexBucket(store, index string) string {
	return fmt.Sprintf("i/%d/%s/%s", len(store), store, index)
}

// indexSchema is the persisted definition of an index
type indexSchema struct {
	Name       string `json:"name"`
	KeyPath    string `json:"key_path"`
	Unique     bool   `json:"unique,omitempty"`
	MultiEntry bool   `json:"multi_entry,omitempty"`
}

// storeSchema is the persisted definition of an object store
type storeSchema struct {
	Name          string                  `json:"name"`
	KeyPath       string                  `json:"key_path,omitempty"`
	AutoIncrement bool                    `json:"auto_increment,omitempty"`
	Indexes       map[string]*indexSchema `json:"indexes,omitempty"`
}

// schema is the set of object stores of a database
type schema struct {
	Stores map[string]*storeSchema `json:"stores"`
}

func newSchema() *schema {
	return &schema{Stores: map[string]*storeSchema{}}
}

// clone returns a deep copy, used to restore the schema after an aborted upgrade
func (s *schema) clone() *schema {
	c := newSchema()
	for name, st := range s.Stores {
		cs := *st
		cs.Indexes = make(map[string]*indexSchema, len(st.Indexes))
		for iname, idx := range st.Indexes {
			ci := *idx
			cs.Indexes[iname] = &ci
		}
		c.Stores[name] = &cs
	}
	return c
}

func (s *schema) storeNames() []string {
	names := make([]string, 0, len(s.Stores))
	for name := range s.Stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (st *storeSchema) indexNames() []string {
	names := make([]string, 0, len(st.Indexes))
	for name := range st.Indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *schema) info() []engine.StoreInfo {
	out := make([]engine.StoreInfo, 0, len(s.Stores))
	for _, name := range s.storeNames() {
		st := s.Stores[name]
		si := engine.StoreInfo{Name: st.Name, KeyPath: st.KeyPath, AutoIncrement: st.AutoIncrement, Indexes: []engine.IndexInfo{}}
		for _, iname := range st.indexNames() {
			idx := st.Indexes[iname]
			si.Indexes = append(si.Indexes, engine.IndexInfo{Name: idx.Name, KeyPath: idx.KeyPath, Unique: idx.Unique, MultiEntry: idx.MultiEntry})
		}
		out = append(out, si)
	}
	return out
}

// --------------------------------------------------------------------------
// Meta persistence
// --------------------------------------------------------------------------

// readMeta loads version and schema. A database without meta bucket has
// version 0 and no stores.
func readMeta(tx kv.Txn) (uint64, *schema, error) {
	if !tx.HasBucket(metaBucket) {
		return 0, newSchema(), nil
	}

	var version uint64
	v, err := tx.Get(metaBucket, []byte(metaVersion))
	if err != nil {
		return 0, nil, err
	}
	if len(v) == 8 {
		version = binary.BigEndian.Uint64(v)
	}

	s := newSchema()
	raw, err := tx.Get(metaBucket, []byte(metaSchema))
	if err != nil {
		return 0, nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, s); err != nil {
			return 0, nil, fmt.Errorf("corrupt schema: %w", err)
		}
		if s.Stores == nil {
			s.Stores = map[string]*storeSchema{}
		}
	}
	return version, s, nil
}

func writeVersion(tx kv.Txn, version uint64) error {
	if err := tx.CreateBucket(metaBucket); err != nil {
		return err
	}
	return tx.Put(metaBucket, []byte(metaVersion), binary.BigEndian.AppendUint64(nil, version))
}

func writeSchema(tx kv.Txn, s *schema) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := tx.CreateBucket(metaBucket); err != nil {
		return err
	}
	return tx.Put(metaBucket, []byte(metaSchema), raw)
}

// readGenerator returns the current key generator value of a store
func readGenerator(tx kv.Txn, store string) (uint64, error) {
	v, err := tx.Get(metaBucket, []byte(metaGenPrefix+store))
	if err != nil || len(v) != 8 {
		return 0, err
	}
	return binary.BigEndian.Uint64(v), nil
}

func writeGenerator(tx kv.Txn, store string, current uint64) error {
	return tx.Put(metaBucket, []byte(metaGenPrefix+store), binary.BigEndian.AppendUint64(nil, current))
}

func deleteGenerator(tx kv.Txn, store string) error {
	return tx.Delete(metaBucket, []byte(metaGenPrefix+store))
}
