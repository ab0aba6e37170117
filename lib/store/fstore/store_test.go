package fstore

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/fKV/lib/common"
	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/ValentinKolb/fKV/lib/future"
	"github.com/ValentinKolb/fKV/lib/store"
)

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

type user = map[string]any

func newStore(t *testing.T, engineName string) *Store {
	t.Helper()
	cfg := common.DefaultEngineConfig()
	cfg.Engine = engineName
	cfg.DBName = "test"
	if engineName != "maple" {
		cfg.DataDir = t.TempDir()
		cfg.NoSync = true
	}

	s, variant, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	if string(variant) != engineName {
		t.Fatalf("Expected variant %s, got %s", engineName, variant)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func await[T any](t *testing.T, f *future.Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := f.Await(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("Timed out waiting for future")
	}
	return v, err
}

func mustAwait[T any](t *testing.T, f *future.Future[T]) T {
	t.Helper()
	v, err := await(t, f)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return v
}

func expectCode(t *testing.T, err error, code store.RetCode) {
	t.Helper()
	var serr *store.Error
	if !errors.As(err, &serr) {
		t.Fatalf("Expected *store.Error with code %s, got %v", code, err)
	}
	if serr.Code != code {
		t.Errorf("Expected code %s, got %s (%v)", code, serr.Code, err)
	}
}

// usersUpgrade creates store users with out-of-line keys and an index on name
func usersUpgrade(_ *engine.Event, db engine.Database) error {
	users, err := db.CreateObjectStore("users", engine.ObjectStoreOptions{})
	if err != nil {
		return err
	}
	_, err = users.CreateIndex("name", "name", engine.IndexOptions{})
	return err
}

func openUsers(t *testing.T, engineName string) *Store {
	t.Helper()
	s := newStore(t, engineName)
	mustAwait(t, s.CreateStore(1, usersUpgrade))
	return s
}

// allOperations issues every data operation against storeName
func allOperations(s *Store, storeName string) map[string]func() error {
	return map[string]func() error{
		"GetByKey":   func() error { _, err := s.GetByKey(storeName, 1).Await(context.Background()); return err },
		"GetAll":     func() error { _, err := s.GetAll(storeName, nil, nil).Await(context.Background()); return err },
		"GetByIndex": func() error { _, err := s.GetByIndex(storeName, "name", "a").Await(context.Background()); return err },
		"Add":        func() error { _, err := s.Add(storeName, "v", 1).Await(context.Background()); return err },
		"Update":     func() error { _, err := s.Update(storeName, "v", 1).Await(context.Background()); return err },
		"Delete":     func() error { _, err := s.Delete(storeName, 1).Await(context.Background()); return err },
		"Clear":      func() error { _, err := s.Clear(storeName).Await(context.Background()); return err },
		"OpenCursor": func() error {
			_, err := s.OpenCursor(storeName, func(engine.Cursor) {}, nil).Await(context.Background())
			return err
		},
	}
}

// --------------------------------------------------------------------------
// Guard
// --------------------------------------------------------------------------

func TestNotConnected(t *testing.T) {
	s := newStore(t, "maple")

	for name, call := range allOperations(s, "users") {
		t.Run(name, func(t *testing.T) {
			expectCode(t, call(), store.RetCConfigurationError)
		})
	}
	if s.State() != StateClosed {
		t.Errorf("Expected state closed, got %s", s.State())
	}

	// both checks are evaluated and reported
	n := uint64(len(allOperations(s, "users")))
	if got := s.metrics.counter(`fkv_guard_failures_total{code="ConfigurationError"}`); got != n {
		t.Errorf("Expected %d configuration failures, got %d", n, got)
	}
	if got := s.metrics.counter(`fkv_guard_failures_total{code="SchemaError"}`); got != n {
		t.Errorf("Expected %d schema failures, got %d", n, got)
	}
}

func TestUnknownStore(t *testing.T) {
	s := openUsers(t, "maple")

	for name, call := range allOperations(s, "orders") {
		t.Run(name, func(t *testing.T) {
			err := call()
			expectCode(t, err, store.RetCSchemaError)
			if !strings.Contains(err.Error(), "object store does not exist: orders") {
				t.Errorf("Unexpected message %v", err)
			}
		})
	}
	if got := s.metrics.counter(`fkv_guard_failures_total{code="ConfigurationError"}`); got != 0 {
		t.Errorf("Expected no configuration failures, got %d", got)
	}
}

func TestUnknownIndex(t *testing.T) {
	s := openUsers(t, "maple")

	_, err := await(t, s.GetByIndex("users", "email", "x"))
	expectCode(t, err, store.RetCSchemaError)

	_, err = await(t, s.GetAll("users", nil, &store.IndexDetails{IndexName: "email"}))
	expectCode(t, err, store.RetCSchemaError)
}

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

func TestCreateDb(t *testing.T) {
	s := New(mustFactory(t))
	t.Cleanup(func() { _ = s.Close() })

	_, err := await(t, s.CreateStore(1, nil))
	expectCode(t, err, store.RetCConfigurationError)

	expectCode(t, s.CreateDb("", 1), store.RetCConfigurationError)
	expectCode(t, s.CreateDb("db", 0), store.RetCConfigurationError)

	if err := s.CreateDb("db", 3); err != nil {
		t.Fatalf("Failed to create db: %v", err)
	}

	// version 0 uses the CreateDb version
	var newVersion uint64
	mustAwait(t, s.CreateStore(0, func(ev *engine.Event, _ engine.Database) error {
		newVersion = ev.NewVersion
		return nil
	}))
	if newVersion != 3 {
		t.Errorf("Expected upgrade to 3, got %d", newVersion)
	}
	if s.State() != StateReady {
		t.Errorf("Expected state ready, got %s", s.State())
	}
}

func TestUpgradeError(t *testing.T) {
	s := newStore(t, "maple")
	boom := errors.New("boom")

	_, err := await(t, s.CreateStore(1, func(_ *engine.Event, db engine.Database) error {
		if _, err := db.CreateObjectStore("users", engine.ObjectStoreOptions{}); err != nil {
			return err
		}
		return boom
	}))
	expectCode(t, err, store.RetCEngineRequestError)
	if !strings.Contains(err.Error(), "engine error: 20") || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Expected abort code and cause in message, got %v", err)
	}
	if !errors.Is(err, engine.ErrAbort) {
		t.Errorf("Expected AbortError cause, got %v", err)
	}
	if s.State() != StateFailed {
		t.Errorf("Expected state failed, got %s", s.State())
	}

	// the failed upgrade left nothing behind, a new attempt can create the store
	mustAwait(t, s.CreateStore(1, usersUpgrade))
	mustAwait(t, s.Add("users", "v", 1))
}

func TestUpgradePanic(t *testing.T) {
	s := newStore(t, "maple")

	_, err := await(t, s.CreateStore(1, func(*engine.Event, engine.Database) error {
		panic("upgrade exploded")
	}))
	expectCode(t, err, store.RetCEngineRequestError)
	if s.State() != StateFailed {
		t.Errorf("Expected state failed, got %s", s.State())
	}
}

func TestVersionError(t *testing.T) {
	s := openUsers(t, "bolt")
	mustAwait(t, s.CreateStore(2, nil))

	_, err := await(t, s.CreateStore(1, nil))
	expectCode(t, err, store.RetCEngineRequestError)
	if !strings.Contains(err.Error(), "engine error: 15") {
		t.Errorf("Expected version error code in message, got %v", err)
	}

	// the connection is gone until the next successful open
	_, err = await(t, s.GetByKey("users", 1))
	expectCode(t, err, store.RetCConfigurationError)
}

func TestReopenUpgrade(t *testing.T) {
	s := openUsers(t, "bolt")
	mustAwait(t, s.Add("users", user{"name": "a"}, 1))

	var oldVersion uint64
	mustAwait(t, s.CreateStore(2, func(ev *engine.Event, db engine.Database) error {
		oldVersion = ev.OldVersion
		if !db.Contains("users") {
			return errors.New("users is missing")
		}
		_, err := db.CreateObjectStore("orders", engine.ObjectStoreOptions{AutoIncrement: true})
		return err
	}))
	if oldVersion != 1 {
		t.Errorf("Expected upgrade from 1, got %d", oldVersion)
	}

	info := mustAwait(t, s.Info())
	if info.Version != 2 || len(info.Stores) != 2 {
		t.Errorf("Unexpected info %+v", info)
	}
	if info.Values.Count != 1 || info.Values.Total == 0 {
		t.Errorf("Expected one written value, got %+v", info.Values)
	}
	if got := mustAwait(t, s.GetByKey("users", 1)); !reflect.DeepEqual(got, user{"name": "a"}) {
		t.Errorf("Expected data to survive the upgrade, got %#v", got)
	}
}

func TestBackToBackCreateStore(t *testing.T) {
	s := newStore(t, "maple")

	// hold the loop so all three opens are scheduled before the first one starts
	gate := make(chan struct{})
	if !s.factory.Schedule(func() { <-gate }) {
		t.Fatal("Failed to schedule on the engine loop")
	}

	var upgrades []uint64
	f1 := s.CreateStore(1, func(ev *engine.Event, db engine.Database) error {
		upgrades = append(upgrades, ev.NewVersion)
		return usersUpgrade(ev, db)
	})
	f2 := s.CreateStore(2, func(ev *engine.Event, db engine.Database) error {
		upgrades = append(upgrades, ev.NewVersion)
		if !db.Contains("users") {
			return errors.New("users is missing")
		}
		_, err := db.CreateObjectStore("orders", engine.ObjectStoreOptions{AutoIncrement: true})
		return err
	})
	f3 := s.CreateStore(2, nil)
	close(gate)

	mustAwait(t, f1)
	mustAwait(t, f2)
	mustAwait(t, f3)

	if !reflect.DeepEqual(upgrades, []uint64{1, 2}) {
		t.Errorf("Expected upgrades to 1 then 2, got %v", upgrades)
	}
	if s.State() != StateReady {
		t.Errorf("Expected state ready, got %s", s.State())
	}
	info := mustAwait(t, s.Info())
	if info.Version != 2 || len(info.Stores) != 2 {
		t.Errorf("Expected version 2 with 2 stores, got %+v", info)
	}
}

func TestShutdownRejectsQueuedOpen(t *testing.T) {
	f := mustFactory(t)
	defer f.Close()
	c := newConnection(f)

	first := future.New[struct{}]()
	queued := future.New[struct{}]()
	done := make(chan struct{})
	f.Schedule(func() {
		defer close(done)
		c.open(first, "db", 1, nil)
		c.open(queued, "db", 2, nil)
		if len(c.pending) != 1 {
			t.Errorf("Expected 1 queued open, got %d", len(c.pending))
		}
		c.shutdown()
	})
	<-done

	_, err := await(t, queued)
	expectCode(t, err, store.RetCInternalError)
	mustAwait(t, first)
}

// --------------------------------------------------------------------------
// Operations
// --------------------------------------------------------------------------

func TestOperations(t *testing.T) {
	for _, engineName := range []string{"maple", "bolt", "lmdb"} {
		t.Run(engineName, func(t *testing.T) {
			t.Run("Scenario", func(t *testing.T) { testScenario(t, openUsers(t, engineName)) })
			t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, openUsers(t, engineName)) })
			t.Run("Upsert", func(t *testing.T) { testUpsert(t, openUsers(t, engineName)) })
			t.Run("Delete", func(t *testing.T) { testDelete(t, openUsers(t, engineName)) })
			t.Run("GetAllOrder", func(t *testing.T) { testGetAllOrder(t, openUsers(t, engineName)) })
			t.Run("GetAllRange", func(t *testing.T) { testGetAllRange(t, openUsers(t, engineName)) })
			t.Run("Clear", func(t *testing.T) { testClear(t, openUsers(t, engineName)) })
			t.Run("Duplicate", func(t *testing.T) { testDuplicate(t, openUsers(t, engineName)) })
			t.Run("OpenCursor", func(t *testing.T) { testOpenCursor(t, openUsers(t, engineName)) })
		})
	}
}

func testScenario(t *testing.T, s *Store) {
	mustAwait(t, s.Add("users", user{"id": 1, "name": "a"}, 1))
	mustAwait(t, s.Add("users", user{"id": 2, "name": "b"}, 2))

	all := mustAwait(t, s.GetAll("users", nil, nil))
	expected := []any{user{"id": 1.0, "name": "a"}, user{"id": 2.0, "name": "b"}}
	if !reflect.DeepEqual(all, expected) {
		t.Errorf("Expected %v, got %v", expected, all)
	}

	got := mustAwait(t, s.GetByIndex("users", "name", "b"))
	if !reflect.DeepEqual(got, user{"id": 2.0, "name": "b"}) {
		t.Errorf("Expected {id:2 name:b}, got %#v", got)
	}
}

func testRoundTrip(t *testing.T, s *Store) {
	values := map[any]any{
		1:        user{"name": "a", "tags": []any{"x", "y"}},
		"key":    "plain string",
		2.5:      true,
		"nested": user{"a": user{"b": 1.0}},
	}
	for k, v := range values {
		kv := mustAwait(t, s.Add("users", v, k))
		if !reflect.DeepEqual(kv.Value, v) {
			t.Errorf("Expected add to resolve with the input value, got %#v", kv.Value)
		}
		if got := mustAwait(t, s.GetByKey("users", k)); !reflect.DeepEqual(got, v) {
			t.Errorf("Expected %#v for key %v, got %#v", v, k, got)
		}
	}

	if got := mustAwait(t, s.GetByKey("users", "missing")); got != nil {
		t.Errorf("Expected nil for a missing key, got %#v", got)
	}
}

func testUpsert(t *testing.T, s *Store) {
	v1 := user{"name": "a"}
	v2 := user{"name": "z"}

	if got := mustAwait(t, s.Update("users", v1, 1)); !reflect.DeepEqual(got, v1) {
		t.Errorf("Expected update to resolve with the input value, got %#v", got)
	}
	mustAwait(t, s.Update("users", v2, 1))

	if got := mustAwait(t, s.GetByKey("users", 1)); !reflect.DeepEqual(got, v2) {
		t.Errorf("Expected %v, got %#v", v2, got)
	}
	if got := mustAwait(t, s.GetByIndex("users", "name", "a")); got != nil {
		t.Errorf("Expected old index entry to be gone, got %#v", got)
	}
}

func testDelete(t *testing.T, s *Store) {
	for i := 1; i <= 5; i++ {
		mustAwait(t, s.Add("users", user{"n": i}, i))
	}

	mustAwait(t, s.Delete("users", 1))
	if got := mustAwait(t, s.GetByKey("users", 1)); got != nil {
		t.Errorf("Expected deleted key to be absent, got %#v", got)
	}

	// deleting a missing key is not an error
	mustAwait(t, s.Delete("users", 1))

	rng, _ := engine.Bound(2, 4, false, false)
	mustAwait(t, s.Delete("users", rng))
	if all := mustAwait(t, s.GetAll("users", nil, nil)); len(all) != 1 {
		t.Errorf("Expected one record after range delete, got %v", all)
	}
}

func testGetAllOrder(t *testing.T, s *Store) {
	names := []string{"d", "b", "e", "a", "c"}
	for i, n := range names {
		mustAwait(t, s.Add("users", user{"name": n}, i))
	}

	all := mustAwait(t, s.GetAll("users", nil, nil))
	if len(all) != len(names) {
		t.Fatalf("Expected %d values, got %d", len(names), len(all))
	}

	asc := mustAwait(t, s.GetAll("users", nil, &store.IndexDetails{IndexName: "name", Order: "asc"}))
	desc := mustAwait(t, s.GetAll("users", nil, &store.IndexDetails{IndexName: "name", Order: "desc"}))

	var gotAsc []any
	for _, v := range asc {
		gotAsc = append(gotAsc, v.(user)["name"])
	}
	if !reflect.DeepEqual(gotAsc, []any{"a", "b", "c", "d", "e"}) {
		t.Errorf("Expected ascending names, got %v", gotAsc)
	}
	if len(desc) != len(asc) {
		t.Fatalf("Expected %d values, got %d", len(asc), len(desc))
	}
	for i := range asc {
		if !reflect.DeepEqual(asc[i], desc[len(desc)-1-i]) {
			t.Errorf("Expected desc to be the reverse of asc at %d: %v vs %v", i, asc[i], desc[len(desc)-1-i])
		}
	}
}

func testGetAllRange(t *testing.T, s *Store) {
	for i := 1; i <= 6; i++ {
		mustAwait(t, s.Add("users", user{"n": float64(i)}, i))
	}

	rng, _ := engine.Bound(2, 5, true, false)
	got := mustAwait(t, s.GetAll("users", rng, nil))
	expected := []any{user{"n": 3.0}, user{"n": 4.0}, user{"n": 5.0}}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}

	empty := mustAwait(t, s.GetAll("users", nil, &store.IndexDetails{IndexName: "name"}))
	if len(empty) != 0 {
		t.Errorf("Expected no index entries for records without name, got %v", empty)
	}
}

func testClear(t *testing.T, s *Store) {
	mustAwait(t, s.Add("users", user{"name": "a"}, 1))
	mustAwait(t, s.Add("users", user{"name": "b"}, 2))

	mustAwait(t, s.Clear("users"))

	all := mustAwait(t, s.GetAll("users", nil, nil))
	if all == nil || len(all) != 0 {
		t.Errorf("Expected an empty array, got %#v", all)
	}
	if got := mustAwait(t, s.GetByIndex("users", "name", "a")); got != nil {
		t.Errorf("Expected index to be cleared, got %#v", got)
	}
}

func testDuplicate(t *testing.T, s *Store) {
	mustAwait(t, s.Add("users", user{"name": "a"}, 1))

	_, err := await(t, s.Add("users", user{"name": "dup"}, 1))
	expectCode(t, err, store.RetCEngineRequestError)
	if !errors.Is(err, engine.ErrConstraint) {
		t.Errorf("Expected ConstraintError cause, got %v", err)
	}

	if got := mustAwait(t, s.GetByKey("users", 1)); !reflect.DeepEqual(got, user{"name": "a"}) {
		t.Errorf("Expected original value to survive, got %#v", got)
	}

	// invalid keys fail before the engine runs the request
	_, err = await(t, s.Add("users", "v", nil))
	expectCode(t, err, store.RetCEngineRequestError)
	if !errors.Is(err, engine.ErrData) {
		t.Errorf("Expected DataError cause, got %v", err)
	}
}

func testOpenCursor(t *testing.T, s *Store) {
	for i := 1; i <= 4; i++ {
		mustAwait(t, s.Add("users", float64(i*10), i))
	}

	// walk everything, the callback continues itself
	var keys []any
	exhausted := false
	mustAwait(t, s.OpenCursor("users", func(c engine.Cursor) {
		if c == nil {
			exhausted = true
			return
		}
		keys = append(keys, c.Key())
		_ = c.Continue()
	}, nil))
	if !exhausted || !reflect.DeepEqual(keys, []any{1.0, 2.0, 3.0, 4.0}) {
		t.Errorf("Expected keys 1..4 and exhaustion, got %v (%v)", keys, exhausted)
	}

	// a callback that does not continue sees exactly the first position
	calls := 0
	rng, _ := engine.LowerBound(3, false)
	mustAwait(t, s.OpenCursor("users", func(c engine.Cursor) {
		calls++
		if c == nil || c.Value() != 30.0 {
			t.Errorf("Expected first position 3 with value 30, got %v", c)
		}
	}, rng))
	if calls != 1 {
		t.Errorf("Expected one callback, got %d", calls)
	}

	// a panicking callback aborts the transaction
	_, err := await(t, s.OpenCursor("users", func(engine.Cursor) { panic("cursor exploded") }, nil))
	expectCode(t, err, store.RetCTransactionError)

	_, err = await(t, s.OpenCursor("users", nil, nil))
	expectCode(t, err, store.RetCConfigurationError)
}

// --------------------------------------------------------------------------
// Misc
// --------------------------------------------------------------------------

func TestAutoIncrementKey(t *testing.T) {
	s := newStore(t, "maple")
	mustAwait(t, s.CreateStore(1, func(_ *engine.Event, db engine.Database) error {
		_, err := db.CreateObjectStore("events", engine.ObjectStoreOptions{KeyPath: "id", AutoIncrement: true})
		return err
	}))

	first := mustAwait(t, s.Add("events", user{"kind": "a"}, nil))
	second := mustAwait(t, s.Add("events", user{"kind": "b"}, nil))
	if first.Key != 1.0 || second.Key != 2.0 {
		t.Errorf("Expected assigned keys 1 and 2, got %v and %v", first.Key, second.Key)
	}

	got := mustAwait(t, s.GetByKey("events", 2))
	if !reflect.DeepEqual(got, user{"id": 2.0, "kind": "b"}) {
		t.Errorf("Expected injected key, got %#v", got)
	}
}

func TestConcurrentCallers(t *testing.T) {
	s := openUsers(t, "maple")

	futures := make([]*future.Future[store.KeyValue], 50)
	for i := range futures {
		futures[i] = s.Add("users", user{"n": float64(i)}, i)
	}
	for _, f := range futures {
		mustAwait(t, f)
	}

	all := mustAwait(t, s.GetAll("users", nil, nil))
	if len(all) != len(futures) {
		t.Errorf("Expected %d records, got %d", len(futures), len(all))
	}
}

func TestClosed(t *testing.T) {
	s := openUsers(t, "maple")
	if err := s.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}
	if s.State() != StateClosed {
		t.Errorf("Expected state closed, got %s", s.State())
	}

	_, err := await(t, s.GetByKey("users", 1))
	expectCode(t, err, store.RetCInternalError)
	_, err = await(t, s.CreateStore(1, nil))
	expectCode(t, err, store.RetCInternalError)

	if err := s.Close(); err != nil {
		t.Errorf("Expected second close to succeed, got %v", err)
	}
}

func TestMetrics(t *testing.T) {
	s := openUsers(t, "maple")
	mustAwait(t, s.Add("users", "v", 1))
	_, _ = await(t, s.Add("users", "v", 1))

	var buf bytes.Buffer
	s.WritePrometheus(&buf)
	out := buf.String()

	for _, want := range []string{
		`fkv_operations_total{op="add",result="ok"} 1`,
		`fkv_operations_total{op="add",result="error"} 1`,
		`fkv_operation_duration_seconds_bucket{op="add"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in metrics output:\n%s", want, out)
		}
	}
}

func TestCurrentVersion(t *testing.T) {
	s := newStore(t, "bolt")

	// a new database starts at version 1
	if v := mustAwait(t, s.CurrentVersion()); v != 1 {
		t.Errorf("Expected version 1, got %d", v)
	}

	mustAwait(t, s.CreateStore(4, usersUpgrade))
	if v := mustAwait(t, s.CurrentVersion()); v != 4 {
		t.Errorf("Expected version 4, got %d", v)
	}

	// probing does not replace the installed connection
	mustAwait(t, s.Add("users", "v", 1))
	if s.State() != StateReady {
		t.Errorf("Expected state ready, got %s", s.State())
	}
}
