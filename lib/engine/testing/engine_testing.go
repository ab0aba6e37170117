package testing

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ValentinKolb/fKV/lib/engine"
)

// RunEngineTests runs the conformance test suite for an engine.Factory.
// The factory must use the json codec.
func RunEngineTests(t *testing.T, name string, factory FactoryFactory) {
	t.Run(name, func(t *testing.T) {
		run := func(name string, fn func(t *testing.T, f engine.Factory)) {
			t.Run(name, func(t *testing.T) {
				f := factory(t)
				defer f.Close()
				fn(t, f)
			})
		}

		run("OpenNew", testOpenNew)
		run("VersionError", testVersionError)
		run("UpgradePersistsSchema", testUpgradePersistsSchema)
		run("AbortedUpgrade", testAbortedUpgrade)
		run("AddGetPut", testAddGetPut)
		run("ConstraintAbort", testConstraintAbort)
		run("PreventDefault", testPreventDefault)
		run("AutoIncrement", testAutoIncrement)
		run("StoreCursor", testStoreCursor)
		run("IndexCursor", testIndexCursor)
		run("UniqueIndex", testUniqueIndex)
		run("MultiEntryIndex", testMultiEntryIndex)
		run("DeleteAndCount", testDeleteAndCount)
		run("Clear", testClear)
		run("ReadOnly", testReadOnly)
		run("TransactionInactive", testTransactionInactive)
		run("ExplicitAbort", testExplicitAbort)
		run("FIFO", testFIFO)
		run("Advance", testAdvance)
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

type user = map[string]any

// usersUpgrade creates store "users" (key path id) with a non-unique index on name
func usersUpgrade(t testing.TB, db engine.Database, _ *engine.Event) {
	s, err := db.CreateObjectStore("users", engine.ObjectStoreOptions{KeyPath: "id"})
	if err != nil {
		t.Errorf("Failed to create store: %v", err)
		return
	}
	if _, err := s.CreateIndex("name", "name", engine.IndexOptions{}); err != nil {
		t.Errorf("Failed to create index: %v", err)
	}
}

// plainUpgrade creates store "kv" with out-of-line keys
func plainUpgrade(t testing.TB, db engine.Database, _ *engine.Event) {
	if _, err := db.CreateObjectStore("kv", engine.ObjectStoreOptions{}); err != nil {
		t.Errorf("Failed to create store: %v", err)
	}
}

// get reads one key in its own transaction
func get(t *testing.T, f engine.Factory, db engine.Database, store string, key any) any {
	t.Helper()
	var result any
	res := RunTx(t, f, db, []string{store}, engine.ReadOnly, func(tx engine.Transaction) {
		req := Must(t)(Store(t, tx, store).Get(key))
		req.OnSuccess(func(*engine.Event) { result = req.Result() })
	})
	if !res.Completed {
		t.Fatalf("Expected read transaction to complete, got abort %v", res.AbortErr)
	}
	return result
}

func seedUsers(t *testing.T, f engine.Factory, db engine.Database, users ...user) {
	t.Helper()
	res := RunTx(t, f, db, []string{"users"}, engine.ReadWrite, func(tx engine.Transaction) {
		s := Store(t, tx, "users")
		for _, u := range users {
			Must(t)(s.Add(u, nil))
		}
	})
	if !res.Completed {
		t.Fatalf("Failed to seed users: %v", res.AbortErr)
	}
}

func expectName(t *testing.T, err *engine.Error, name engine.ErrorName) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected %s, got no error", name)
	}
	if err.Name != name {
		t.Errorf("Expected %s, got %v", name, err)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testOpenNew(t *testing.T, f engine.Factory) {
	var old, new uint64
	upgraded := false
	db := MustOpen(t, f, "db", 1, func(_ testing.TB, _ engine.Database, ev *engine.Event) {
		upgraded = true
		old, new = ev.OldVersion, ev.NewVersion
		if ev.Transaction == nil || ev.Transaction.Mode() != engine.VersionChange {
			t.Errorf("Expected a versionchange transaction in upgradeneeded")
		}
	})

	if !upgraded || old != 0 || new != 1 {
		t.Errorf("Expected upgrade 0 -> 1, got upgraded=%v %d -> %d", upgraded, old, new)
	}
	if db.Version() != 1 || db.Name() != "db" {
		t.Errorf("Expected db@1, got %s@%d", db.Name(), db.Version())
	}

	// reopening at the same version does not upgrade
	db2 := MustOpen(t, f, "db", 1, func(testing.TB, engine.Database, *engine.Event) {
		t.Error("Unexpected upgrade on reopen")
	})
	if db2.Version() != 1 {
		t.Errorf("Expected version 1, got %d", db2.Version())
	}

	// version 0 opens the current version
	db3 := MustOpen(t, f, "db", 0, nil)
	if db3.Version() != 1 {
		t.Errorf("Expected version 1 for version 0, got %d", db3.Version())
	}
}

func testVersionError(t *testing.T, f engine.Factory) {
	MustOpen(t, f, "db", 3, nil)

	_, err := Open(t, f, "db", 2, nil)
	expectName(t, err, engine.VersionError)
	if !errors.Is(err, engine.ErrVersion) {
		t.Error("Expected errors.Is(err, ErrVersion)")
	}
}

func testUpgradePersistsSchema(t *testing.T, f engine.Factory) {
	db := MustOpen(t, f, "db", 1, usersUpgrade)
	OnLoop(t, f, db.Close)

	db = MustOpen(t, f, "db", 2, func(t testing.TB, db engine.Database, ev *engine.Event) {
		if !db.Contains("users") {
			t.Error("Expected store users to exist during the second upgrade")
		}
		if ev.OldVersion != 1 {
			t.Errorf("Expected old version 1, got %d", ev.OldVersion)
		}
		if _, err := db.CreateObjectStore("orders", engine.ObjectStoreOptions{AutoIncrement: true}); err != nil {
			t.Errorf("Failed to create store: %v", err)
		}
		if _, err := db.CreateObjectStore("users", engine.ObjectStoreOptions{}); !errors.Is(err, engine.ErrConstraint) {
			t.Errorf("Expected ConstraintError for duplicate store, got %v", err)
		}
	})

	names := db.ObjectStoreNames()
	if !reflect.DeepEqual(names, []string{"orders", "users"}) {
		t.Errorf("Expected [orders users], got %v", names)
	}

	info := db.Info()
	if info.Version != 2 || len(info.Stores) != 2 {
		t.Errorf("Unexpected info %+v", info)
	}
	if len(info.Stores[1].Indexes) != 1 || info.Stores[1].Indexes[0].Name != "name" {
		t.Errorf("Expected index name on users, got %+v", info.Stores[1].Indexes)
	}

	// schema changes outside an upgrade are rejected
	OnLoop(t, f, func() {
		if _, err := db.CreateObjectStore("late", engine.ObjectStoreOptions{}); !errors.Is(err, engine.ErrInvalidState) {
			t.Errorf("Expected InvalidStateError, got %v", err)
		}
	})
}

func testAbortedUpgrade(t *testing.T, f engine.Factory) {
	_, err := Open(t, f, "db", 1, func(t testing.TB, db engine.Database, ev *engine.Event) {
		if _, err := db.CreateObjectStore("tmp", engine.ObjectStoreOptions{}); err != nil {
			t.Errorf("Failed to create store: %v", err)
		}
		_ = ev.Transaction.Abort()
	})
	expectName(t, err, engine.AbortError)

	// the next open upgrades from 0 again and the store is gone
	var old uint64 = 99
	db := MustOpen(t, f, "db", 1, func(_ testing.TB, db engine.Database, ev *engine.Event) {
		old = ev.OldVersion
		if db.Contains("tmp") {
			t.Error("Expected aborted store to be rolled back")
		}
	})
	if old != 0 {
		t.Errorf("Expected old version 0 after aborted upgrade, got %d", old)
	}
	if db.Contains("tmp") {
		t.Error("Expected aborted store to be rolled back")
	}

	// a panicking upgrade handler aborts as well
	_, err = Open(t, f, "db", 2, func(testing.TB, engine.Database, *engine.Event) {
		panic("boom")
	})
	expectName(t, err, engine.AbortError)
}

func testAddGetPut(t *testing.T, f engine.Factory) {
	db := MustOpen(t, f, "db", 1, usersUpgrade)

	var addedKey any
	res := RunTx(t, f, db, []string{"users"}, engine.ReadWrite, func(tx engine.Transaction) {
		req := Must(t)(Store(t, tx, "users").Add(user{"id": 1, "name": "a"}, nil))
		req.OnSuccess(func(*engine.Event) { addedKey = req.Result() })
	})
	if !res.Completed {
		t.Fatalf("Expected add to complete, got %v", res.AbortErr)
	}
	if addedKey != 1.0 {
		t.Errorf("Expected key 1, got %#v", addedKey)
	}
	if n := db.Info().Values.Count; n != 1 {
		t.Errorf("Expected 1 written value, got %d", n)
	}

	if got := get(t, f, db, "users", 1); !reflect.DeepEqual(got, user{"id": 1.0, "name": "a"}) {
		t.Errorf("Expected {id:1 name:a}, got %#v", got)
	}
	if got := get(t, f, db, "users", 2); got != nil {
		t.Errorf("Expected nil for missing key, got %#v", got)
	}

	// put replaces
	res = RunTx(t, f, db, []string{"users"}, engine.ReadWrite, func(tx engine.Transaction) {
		Must(t)(Store(t, tx, "users").Put(user{"id": 1, "name": "z"}, nil))
	})
	if !res.Completed {
		t.Fatalf("Expected put to complete, got %v", res.AbortErr)
	}
	if got := get(t, f, db, "users", 1); !reflect.DeepEqual(got, user{"id": 1.0, "name": "z"}) {
		t.Errorf("Expected {id:1 name:z}, got %#v", got)
	}

	// the index follows the update
	var byOld, byNew any
	RunTx(t, f, db, []string{"users"}, engine.ReadOnly, func(tx engine.Transaction) {
		idx, err := Store(t, tx, "users").Index("name")
		if err != nil {
			t.Errorf("Failed to get index: %v", err)
			return
		}
		r1 := Must(t)(idx.Get("a"))
		r1.OnSuccess(func(*engine.Event) { byOld = r1.Result() })
		r2 := Must(t)(idx.GetKey("z"))
		r2.OnSuccess(func(*engine.Event) { byNew = r2.Result() })
	})
	if byOld != nil {
		t.Errorf("Expected stale index entry to be removed, got %#v", byOld)
	}
	if byNew != 1.0 {
		t.Errorf("Expected primary key 1 for z, got %#v", byNew)
	}

	// in-line key stores reject explicit keys synchronously
	OnLoop(t, f, func() {
		tx, err := db.Transaction([]string{"users"}, engine.ReadWrite)
		if err != nil {
			t.Errorf("Failed to create transaction: %v", err)
			return
		}
		s, _ := tx.ObjectStore("users")
		if _, err := s.Add(user{"id": 5}, 5); !errors.Is(err, engine.ErrData) {
			t.Errorf("Expected DataError for explicit key, got %v", err)
		}
		if _, err := s.Add(user{"name": "no id"}, nil); !errors.Is(err, engine.ErrData) {
			t.Errorf("Expected DataError for missing key, got %v", err)
		}
	})
}

func testConstraintAbort(t *testing.T, f engine.Factory) {
	db := MustOpen(t, f, "db", 1, usersUpgrade)
	seedUsers(t, f, db, user{"id": 1, "name": "a"})

	var reqErr *engine.Error
	res := RunTx(t, f, db, []string{"users"}, engine.ReadWrite, func(tx engine.Transaction) {
		s := Store(t, tx, "users")
		Must(t)(s.Add(user{"id": 2, "name": "b"}, nil))
		req := Must(t)(s.Add(user{"id": 1, "name": "dup"}, nil))
		req.OnError(func(ev *engine.Event) { reqErr = ev.Err })
	})

	expectName(t, reqErr, engine.ConstraintError)
	if res.Completed {
		t.Fatal("Expected transaction to abort")
	}
	expectName(t, res.AbortErr, engine.ConstraintError)
	if len(res.Errors) != 1 {
		t.Errorf("Expected the error to bubble to the transaction once, got %d", len(res.Errors))
	}

	// the first add was rolled back
	if got := get(t, f, db, "users", 2); got != nil {
		t.Errorf("Expected rolled back record to be missing, got %#v", got)
	}
}

func testPreventDefault(t *testing.T, f engine.Factory) {
	db := MustOpen(t, f, "db", 1, usersUpgrade)
	seedUsers(t, f, db, user{"id": 1, "name": "a"})

	res := RunTx(t, f, db, []string{"users"}, engine.ReadWrite, func(tx engine.Transaction) {
		s := Store(t, tx, "users")
		Must(t)(s.Add(user{"id": 2, "name": "b"}, nil))
		req := Must(t)(s.Add(user{"id": 1, "name": "dup"}, nil))
		req.OnError(func(ev *engine.Event) { ev.PreventDefault() })
	})
	if !res.Completed {
		t.Fatalf("Expected transaction to complete, got %v", res.AbortErr)
	}
	if len(res.Errors) != 0 {
		t.Errorf("Expected prevented error not to bubble, got %v", res.Errors)
	}
	if got := get(t, f, db, "users", 2); got == nil {
		t.Error("Expected record 2 to be committed")
	}
}

func testAutoIncrement(t *testing.T, f engine.Factory) {
	db := MustOpen(t, f, "db", 1, func(t testing.TB, db engine.Database, _ *engine.Event) {
		if _, err := db.CreateObjectStore("inline", engine.ObjectStoreOptions{KeyPath: "id", AutoIncrement: true}); err != nil {
			t.Errorf("Failed to create store: %v", err)
		}
		if _, err := db.CreateObjectStore("outline", engine.ObjectStoreOptions{AutoIncrement: true}); err != nil {
			t.Errorf("Failed to create store: %v", err)
		}
	})

	var keys []any
	res := RunTx(t, f, db, []string{"inline", "outline"}, engine.ReadWrite, func(tx engine.Transaction) {
		in := Store(t, tx, "inline")
		out := Store(t, tx, "outline")
		for _, req := range []engine.Request{
			Must(t)(in.Add(user{"name": "a"}, nil)),
			Must(t)(in.Add(user{"name": "b"}, nil)),
			Must(t)(in.Add(user{"id": 10, "name": "c"}, nil)),
			Must(t)(in.Add(user{"name": "d"}, nil)),
			Must(t)(out.Add("x", nil)),
			Must(t)(out.Add("y", nil)),
		} {
			req := req
			req.OnSuccess(func(*engine.Event) { keys = append(keys, req.Result()) })
		}
	})
	if !res.Completed {
		t.Fatalf("Expected transaction to complete, got %v", res.AbortErr)
	}

	expected := []any{1.0, 2.0, 10.0, 11.0, 1.0, 2.0}
	if !reflect.DeepEqual(keys, expected) {
		t.Errorf("Expected keys %v, got %v", expected, keys)
	}
	if got := get(t, f, db, "inline", 2); !reflect.DeepEqual(got, user{"id": 2.0, "name": "b"}) {
		t.Errorf("Expected injected key, got %#v", got)
	}
	if got := get(t, f, db, "outline", 2); got != "y" {
		t.Errorf("Expected y, got %#v", got)
	}
}

func testStoreCursor(t *testing.T, f engine.Factory) {
	db := MustOpen(t, f, "db", 1, plainUpgrade)
	RunTx(t, f, db, []string{"kv"}, engine.ReadWrite, func(tx engine.Transaction) {
		s := Store(t, tx, "kv")
		for _, k := range []int{3, 1, 5, 2, 4} {
			Must(t)(s.Add(k*10, k))
		}
	})

	rng24, _ := engine.Bound(2, 4, false, true)
	tests := []struct {
		name     string
		query    any
		dir      engine.Direction
		expected []any
	}{
		{"next", nil, engine.Next, []any{1.0, 2.0, 3.0, 4.0, 5.0}},
		{"prev", nil, engine.Prev, []any{5.0, 4.0, 3.0, 2.0, 1.0}},
		{"range next", rng24, engine.Next, []any{2.0, 3.0}},
		{"range prev", rng24, engine.Prev, []any{3.0, 2.0}},
		{"only", 3, engine.Next, []any{3.0}},
		{"empty", 9, engine.Prev, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got Collected
			res := RunTx(t, f, db, []string{"kv"}, engine.ReadOnly, func(tx engine.Transaction) {
				CollectCursor(Must(t)(Store(t, tx, "kv").OpenCursor(tc.query, tc.dir)), &got)
			})
			if !res.Completed {
				t.Fatalf("Expected cursor transaction to complete, got %v", res.AbortErr)
			}
			if !reflect.DeepEqual(got.Keys, tc.expected) {
				t.Errorf("Expected keys %v, got %v", tc.expected, got.Keys)
			}
			for i, k := range got.Keys {
				if got.Values[i] != k.(float64)*10 {
					t.Errorf("Expected value %v for key %v, got %v", k.(float64)*10, k, got.Values[i])
				}
			}
		})
	}
}

func testIndexCursor(t *testing.T, f engine.Factory) {
	db := MustOpen(t, f, "db", 1, usersUpgrade)
	seedUsers(t, f, db,
		user{"id": 1, "name": "b"},
		user{"id": 2, "name": "a"},
		user{"id": 3, "name": "b"},
		user{"id": 4, "name": "c"},
		user{"id": 5, "name": "a"},
	)

	rngAB, _ := engine.Bound("a", "b", true, false)
	tests := []struct {
		name     string
		query    any
		dir      engine.Direction
		expected []any // primary keys
	}{
		{"next", nil, engine.Next, []any{2.0, 5.0, 1.0, 3.0, 4.0}},
		{"prev", nil, engine.Prev, []any{4.0, 3.0, 1.0, 5.0, 2.0}},
		{"nextunique", nil, engine.NextUnique, []any{2.0, 1.0, 4.0}},
		{"prevunique", nil, engine.PrevUnique, []any{4.0, 1.0, 2.0}},
		{"only b", "b", engine.Next, []any{1.0, 3.0}},
		{"only b prev", "b", engine.Prev, []any{3.0, 1.0}},
		{"lower open", rngAB, engine.Next, []any{1.0, 3.0}},
		{"lower open prevunique", rngAB, engine.PrevUnique, []any{1.0}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got Collected
			res := RunTx(t, f, db, []string{"users"}, engine.ReadOnly, func(tx engine.Transaction) {
				idx, err := Store(t, tx, "users").Index("name")
				if err != nil {
					t.Errorf("Failed to get index: %v", err)
					return
				}
				CollectCursor(Must(t)(idx.OpenCursor(tc.query, tc.dir)), &got)
			})
			if !res.Completed {
				t.Fatalf("Expected cursor transaction to complete, got %v", res.AbortErr)
			}
			if !reflect.DeepEqual(got.PrimaryKeys, tc.expected) {
				t.Errorf("Expected primary keys %v, got %v", tc.expected, got.PrimaryKeys)
			}
			for i, v := range got.Values {
				if v.(user)["name"] != got.Keys[i] {
					t.Errorf("Index key %v does not match value %v", got.Keys[i], v)
				}
			}
		})
	}
}

func testUniqueIndex(t *testing.T, f engine.Factory) {
	db := MustOpen(t, f, "db", 1, func(t testing.TB, db engine.Database, _ *engine.Event) {
		s, err := db.CreateObjectStore("users", engine.ObjectStoreOptions{KeyPath: "id"})
		if err != nil {
			t.Errorf("Failed to create store: %v", err)
			return
		}
		if _, err := s.CreateIndex("email", "contact.email", engine.IndexOptions{Unique: true}); err != nil {
			t.Errorf("Failed to create index: %v", err)
		}
	})
	seedUsers(t, f, db, user{"id": 1, "contact": user{"email": "a@x"}})

	var reqErr *engine.Error
	res := RunTx(t, f, db, []string{"users"}, engine.ReadWrite, func(tx engine.Transaction) {
		req := Must(t)(Store(t, tx, "users").Add(user{"id": 2, "contact": user{"email": "a@x"}}, nil))
		req.OnError(func(ev *engine.Event) { reqErr = ev.Err })
	})
	expectName(t, reqErr, engine.ConstraintError)
	if res.Completed {
		t.Error("Expected transaction to abort on unique violation")
	}

	// updating the owner of the key is fine
	res = RunTx(t, f, db, []string{"users"}, engine.ReadWrite, func(tx engine.Transaction) {
		Must(t)(Store(t, tx, "users").Put(user{"id": 1, "contact": user{"email": "a@x"}, "v": 2}, nil))
	})
	if !res.Completed {
		t.Errorf("Expected put of the same record to complete, got %v", res.AbortErr)
	}

	// creating a unique index over duplicates aborts the upgrade
	seedUsers(t, f, db, user{"id": 3, "contact": user{"email": "b@x"}, "group": "g"}, user{"id": 4, "contact": user{"email": "c@x"}, "group": "g"})
	OnLoop(t, f, db.Close)
	_, err := Open(t, f, "db", 2, func(t testing.TB, db engine.Database, ev *engine.Event) {
		s, err := ev.Transaction.ObjectStore("users")
		if err != nil {
			t.Errorf("Failed to get store: %v", err)
			return
		}
		if _, err := s.CreateIndex("group", "group", engine.IndexOptions{Unique: true}); !errors.Is(err, engine.ErrConstraint) {
			t.Errorf("Expected ConstraintError, got %v", err)
		}
	})
	expectName(t, err, engine.AbortError)
}

func testMultiEntryIndex(t *testing.T, f engine.Factory) {
	db := MustOpen(t, f, "db", 1, func(t testing.TB, db engine.Database, _ *engine.Event) {
		s, err := db.CreateObjectStore("posts", engine.ObjectStoreOptions{KeyPath: "id"})
		if err != nil {
			t.Errorf("Failed to create store: %v", err)
			return
		}
		if _, err := s.CreateIndex("tags", "tags", engine.IndexOptions{MultiEntry: true}); err != nil {
			t.Errorf("Failed to create index: %v", err)
		}
	})

	RunTx(t, f, db, []string{"posts"}, engine.ReadWrite, func(tx engine.Transaction) {
		s := Store(t, tx, "posts")
		Must(t)(s.Add(user{"id": 1, "tags": []any{"go", "db"}}, nil))
		Must(t)(s.Add(user{"id": 2, "tags": []any{"go", "go"}}, nil))
		Must(t)(s.Add(user{"id": 3}, nil))
	})

	var count any
	var got Collected
	RunTx(t, f, db, []string{"posts"}, engine.ReadOnly, func(tx engine.Transaction) {
		idx, err := Store(t, tx, "posts").Index("tags")
		if err != nil {
			t.Errorf("Failed to get index: %v", err)
			return
		}
		req := Must(t)(idx.Count(nil))
		req.OnSuccess(func(*engine.Event) { count = req.Result() })
		CollectCursor(Must(t)(idx.OpenCursor("go", engine.Next)), &got)
	})

	if count != 3 {
		t.Errorf("Expected 3 index entries, got %v", count)
	}
	if !reflect.DeepEqual(got.PrimaryKeys, []any{1.0, 2.0}) {
		t.Errorf("Expected records 1 and 2 for tag go, got %v", got.PrimaryKeys)
	}
}

func testDeleteAndCount(t *testing.T, f engine.Factory) {
	db := MustOpen(t, f, "db", 1, plainUpgrade)
	RunTx(t, f, db, []string{"kv"}, engine.ReadWrite, func(tx engine.Transaction) {
		s := Store(t, tx, "kv")
		for i := 1; i <= 10; i++ {
			Must(t)(s.Put(i, i))
		}
	})

	rng, _ := engine.Bound(3, 6, false, false)
	var before, after any
	res := RunTx(t, f, db, []string{"kv"}, engine.ReadWrite, func(tx engine.Transaction) {
		s := Store(t, tx, "kv")
		r1 := Must(t)(s.Count(nil))
		r1.OnSuccess(func(*engine.Event) { before = r1.Result() })
		Must(t)(s.Delete(rng))
		Must(t)(s.Delete(10))
		Must(t)(s.Delete(99))
		r2 := Must(t)(s.Count(nil))
		r2.OnSuccess(func(*engine.Event) { after = r2.Result() })
	})
	if !res.Completed {
		t.Fatalf("Expected transaction to complete, got %v", res.AbortErr)
	}
	if before != 10 || after != 5 {
		t.Errorf("Expected counts 10 -> 5, got %v -> %v", before, after)
	}

	var inRange any
	RunTx(t, f, db, []string{"kv"}, engine.ReadOnly, func(tx engine.Transaction) {
		upper, _ := engine.UpperBound(5, false)
		r := Must(t)(Store(t, tx, "kv").Count(upper))
		r.OnSuccess(func(*engine.Event) { inRange = r.Result() })
	})
	if inRange != 2 {
		t.Errorf("Expected 2 keys <= 5, got %v", inRange)
	}
}

func testClear(t *testing.T, f engine.Factory) {
	db := MustOpen(t, f, "db", 1, usersUpgrade)
	seedUsers(t, f, db, user{"id": 1, "name": "a"}, user{"id": 2, "name": "b"})

	res := RunTx(t, f, db, []string{"users"}, engine.ReadWrite, func(tx engine.Transaction) {
		Must(t)(Store(t, tx, "users").Clear())
	})
	if !res.Completed {
		t.Fatalf("Expected clear to complete, got %v", res.AbortErr)
	}

	var count, byName any = -1, "unset"
	RunTx(t, f, db, []string{"users"}, engine.ReadOnly, func(tx engine.Transaction) {
		s := Store(t, tx, "users")
		r := Must(t)(s.Count(nil))
		r.OnSuccess(func(*engine.Event) { count = r.Result() })
		idx, _ := s.Index("name")
		r2 := Must(t)(idx.Get("a"))
		r2.OnSuccess(func(*engine.Event) { byName = r2.Result() })
	})
	if count != 0 {
		t.Errorf("Expected empty store, got %v", count)
	}
	if byName != nil {
		t.Errorf("Expected empty index, got %v", byName)
	}
}

func testReadOnly(t *testing.T, f engine.Factory) {
	db := MustOpen(t, f, "db", 1, plainUpgrade)
	OnLoop(t, f, func() {
		tx, err := db.Transaction([]string{"kv"}, engine.ReadOnly)
		if err != nil {
			t.Errorf("Failed to create transaction: %v", err)
			return
		}
		s, _ := tx.ObjectStore("kv")
		if _, err := s.Put("v", 1); !errors.Is(err, engine.ErrReadOnly) {
			t.Errorf("Expected ReadOnlyError for Put, got %v", err)
		}
		if _, err := s.Delete(1); !errors.Is(err, engine.ErrReadOnly) {
			t.Errorf("Expected ReadOnlyError for Delete, got %v", err)
		}
		if _, err := s.Clear(); !errors.Is(err, engine.ErrReadOnly) {
			t.Errorf("Expected ReadOnlyError for Clear, got %v", err)
		}
		if _, err := db.Transaction([]string{"missing"}, engine.ReadOnly); !errors.Is(err, engine.ErrNotFound) {
			t.Errorf("Expected NotFoundError for unknown store, got %v", err)
		}
		if _, err := tx.ObjectStore("other"); !errors.Is(err, engine.ErrNotFound) {
			t.Errorf("Expected NotFoundError outside the scope, got %v", err)
		}
	})
}

func testTransactionInactive(t *testing.T, f engine.Factory) {
	db := MustOpen(t, f, "db", 1, plainUpgrade)

	var tx engine.Transaction
	OnLoop(t, f, func() {
		var err error
		if tx, err = db.Transaction([]string{"kv"}, engine.ReadWrite); err != nil {
			t.Errorf("Failed to create transaction: %v", err)
		}
	})
	OnLoop(t, f, func() {
		s, err := tx.ObjectStore("kv")
		if err != nil {
			// the transaction may already have committed
			return
		}
		if _, err := s.Put("late", 1); !errors.Is(err, engine.ErrTransactionInactive) {
			t.Errorf("Expected TransactionInactiveError, got %v", err)
		}
	})
}

func testExplicitAbort(t *testing.T, f engine.Factory) {
	db := MustOpen(t, f, "db", 1, plainUpgrade)

	var reqErr *engine.Error
	res := RunTx(t, f, db, []string{"kv"}, engine.ReadWrite, func(tx engine.Transaction) {
		s := Store(t, tx, "kv")
		put := Must(t)(s.Put("a", 1))
		put.OnSuccess(func(*engine.Event) {
			req := Must(t)(s.Put("b", 2))
			req.OnError(func(ev *engine.Event) { reqErr = ev.Err })
			_ = tx.Abort()
		})
	})
	if res.Completed {
		t.Fatal("Expected transaction to abort")
	}
	expectName(t, res.AbortErr, engine.AbortError)
	expectName(t, reqErr, engine.AbortError)
	if got := get(t, f, db, "kv", 1); got != nil {
		t.Errorf("Expected aborted write to be rolled back, got %v", got)
	}
}

func testFIFO(t *testing.T, f engine.Factory) {
	db := MustOpen(t, f, "db", 1, plainUpgrade)

	order := make(chan string, 3)
	OnLoop(t, f, func() {
		for _, name := range []string{"first", "second", "third"} {
			name := name
			tx, err := db.Transaction([]string{"kv"}, engine.ReadWrite)
			if err != nil {
				t.Errorf("Failed to create transaction: %v", err)
				return
			}
			s, _ := tx.ObjectStore("kv")
			_, _ = s.Put(name, "last")
			tx.OnComplete(func(*engine.Event) { order <- name })
		}
	})

	var got []string
	for i := 0; i < 3; i++ {
		got = append(got, <-order)
	}
	if !reflect.DeepEqual(got, []string{"first", "second", "third"}) {
		t.Errorf("Expected FIFO completion, got %v", got)
	}
	if v := get(t, f, db, "kv", "last"); v != "third" {
		t.Errorf("Expected last writer to win, got %v", v)
	}
}

func testAdvance(t *testing.T, f engine.Factory) {
	db := MustOpen(t, f, "db", 1, plainUpgrade)
	RunTx(t, f, db, []string{"kv"}, engine.ReadWrite, func(tx engine.Transaction) {
		s := Store(t, tx, "kv")
		for i := 1; i <= 6; i++ {
			Must(t)(s.Put(i, i))
		}
	})

	var seen []any
	RunTx(t, f, db, []string{"kv"}, engine.ReadOnly, func(tx engine.Transaction) {
		req := Must(t)(Store(t, tx, "kv").OpenCursor(nil, engine.Next))
		req.OnSuccess(func(*engine.Event) {
			c, _ := req.Result().(engine.Cursor)
			if c == nil {
				return
			}
			seen = append(seen, c.Key())
			if err := c.Advance(2); err != nil {
				t.Errorf("Failed to advance: %v", err)
			}
			if err := c.Continue(); !errors.Is(err, engine.ErrInvalidState) {
				t.Errorf("Expected InvalidStateError for a second continue, got %v", err)
			}
		})
	})
	if !reflect.DeepEqual(seen, []any{1.0, 3.0, 5.0}) {
		t.Errorf("Expected keys 1 3 5, got %v", seen)
	}
}
