package core

import (
	"sort"

	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/ValentinKolb/fKV/lib/engine/kv"
	"github.com/google/uuid"
)

var _ engine.Transaction = &transaction{}

type txState int

const (
	txPending txState = iota
	txRunning
	txFinished
)

// upgrade holds the open request that created a versionchange transaction
type upgrade struct {
	req        *openRequest
	oldVersion uint64
	newVersion uint64
}

// transaction implements engine.Transaction.
//
// Requests are queued and executed one per loop turn. A turn that ends with
// an empty queue commits the transaction.
type transaction struct {
	id     string
	db     *database
	st     *dbState
	scope  []string
	mode   engine.Mode
	state  txState
	active bool

	kvtx       kv.Txn
	requests   []*request
	stepQueued bool
	err        *engine.Error
	upgrade    *upgrade
	stores     map[string]*objectStore

	onError    engine.EventHandler
	onComplete engine.EventHandler
	onAbort    engine.EventHandler
}

func newTransaction(db *database, scope []string, mode engine.Mode) *transaction {
	return &transaction{
		id:     uuid.NewString(),
		db:     db,
		st:     db.st,
		scope:  scope,
		mode:   mode,
		stores: map[string]*objectStore{},
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see engine.Transaction)
// --------------------------------------------------------------------------

func (tx *transaction) ID() string {
	return tx.id
}

func (tx *transaction) Mode() engine.Mode {
	return tx.mode
}

func (tx *transaction) ObjectStoreNames() []string {
	return append([]string(nil), tx.scope...)
}

func (tx *transaction) Database() engine.Database {
	return tx.db
}

func (tx *transaction) Error() *engine.Error {
	return tx.err
}

func (tx *transaction) OnError(h engine.EventHandler) { tx.onError = h }
func (tx *transaction) OnComplete(h engine.EventHandler) { tx.onComplete = h }
func (tx *transaction) OnAbort(h engine.EventHandler) { tx.onAbort = h }

func (tx *transaction) ObjectStore(name string) (engine.ObjectStore, error) {
	if tx.state == txFinished {
		return nil, engine.NewError(engine.InvalidStateError, "transaction %s has finished", tx.id)
	}
	if !tx.inScope(name) {
		return nil, engine.NewError(engine.NotFoundError, "object store %s is not in the transaction scope", name)
	}
	if s, ok := tx.stores[name]; ok {
		return s, nil
	}
	s := &objectStore{tx: tx, name: name}
	tx.stores[name] = s
	return s, nil
}

func (tx *transaction) Abort() error {
	if tx.state == txFinished {
		return engine.NewError(engine.InvalidStateError, "transaction %s has already finished", tx.id)
	}
	tx.abort(nil)
	return nil
}

// --------------------------------------------------------------------------
// Scope
// --------------------------------------------------------------------------

func (tx *transaction) inScope(name string) bool {
	i := sort.SearchStrings(tx.scope, name)
	return i < len(tx.scope) && tx.scope[i] == name
}

func (tx *transaction) addScope(name string) {
	if !tx.inScope(name) {
		tx.scope = append(tx.scope, name)
		sort.Strings(tx.scope)
	}
}

func (tx *transaction) removeScope(name string) {
	i := sort.SearchStrings(tx.scope, name)
	if i < len(tx.scope) && tx.scope[i] == name {
		tx.scope = append(tx.scope[:i], tx.scope[i+1:]...)
	}
	delete(tx.stores, name)
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// start runs when the scheduler hands the database to tx.
func (tx *transaction) start() {
	if tx.state != txPending {
		return
	}
	tx.state = txRunning

	kvtx, err := tx.st.backend.Begin(tx.mode != engine.ReadOnly)
	if err != nil {
		tx.abort(engine.WrapError(engine.UnknownError, err, "cannot begin transaction"))
		return
	}
	tx.kvtx = kvtx
	log.Debugf("tx %s started (db=%s, mode=%s, stores=%v)", tx.id, tx.st.name, tx.mode, tx.scope)

	if tx.upgrade != nil {
		tx.runUpgrade()
		if tx.state != txRunning {
			return
		}
	}
	tx.schedule()
}

// runUpgrade persists the new version and fires upgradeneeded.
func (tx *transaction) runUpgrade() {
	u := tx.upgrade
	if err := writeVersion(tx.kvtx, u.newVersion); err != nil {
		tx.abort(engine.WrapError(engine.UnknownError, err, "cannot persist version"))
		return
	}
	tx.db.version = u.newVersion

	u.req.result = tx.db
	ev := &engine.Event{
		Type:        engine.EventUpgradeNeeded,
		OldVersion:  u.oldVersion,
		NewVersion:  u.newVersion,
		Transaction: tx,
	}
	tx.active = true
	_, err := call(u.req.onUpgradeNeeded, ev)
	tx.active = false
	if err != nil && tx.state == txRunning {
		tx.abort(engine.WrapError(engine.AbortError, err, "upgrade handler failed"))
	}
}

// schedule posts the next step unless one is already queued
func (tx *transaction) schedule() {
	if tx.stepQueued || tx.state != txRunning {
		return
	}
	tx.stepQueued = true
	tx.st.f.loop.Post(tx.step)
}

// step executes one request, or commits if none is left.
func (tx *transaction) step() {
	tx.stepQueued = false
	if tx.state != txRunning {
		return
	}
	if len(tx.requests) == 0 {
		tx.commit()
		return
	}

	r := tx.requests[0]
	tx.requests = tx.requests[1:]

	result, eerr := r.exec(tx.kvtx)
	if tx.state != txRunning {
		return
	}
	if eerr != nil {
		tx.dispatchError(r, eerr)
	} else {
		tx.dispatchSuccess(r, result)
	}
	tx.schedule()
}

func (tx *transaction) dispatchSuccess(r *request, result any) {
	r.result = result
	r.err = nil

	tx.active = true
	_, err := call(r.onSuccess, &engine.Event{Type: engine.EventSuccess, Transaction: tx})
	tx.active = false

	if err != nil && tx.state == txRunning {
		tx.abort(engine.WrapError(engine.AbortError, err, "success handler failed"))
	}
}

// dispatchError fires the request error, bubbles it to the transaction and
// aborts unless a handler prevented the default.
func (tx *transaction) dispatchError(r *request, eerr *engine.Error) {
	r.result = nil
	r.err = eerr
	ev := &engine.Event{Type: engine.EventError, Err: eerr, Transaction: tx}

	tx.active = true
	_, err := call(r.onError, ev)
	tx.active = false

	if tx.state != txRunning {
		return
	}
	if err != nil {
		tx.abort(engine.WrapError(engine.AbortError, err, "error handler failed"))
		return
	}
	if ev.DefaultPrevented() {
		return
	}

	log.Debugf("tx %s: request failed: %v", tx.id, eerr)
	if _, err := call(tx.onError, ev); err != nil {
		log.Errorf("tx %s: error handler: %v", tx.id, err)
	}
	if tx.state == txRunning {
		tx.abort(eerr)
	}
}

func (tx *transaction) commit() {
	if err := tx.kvtx.Commit(); err != nil {
		_ = tx.kvtx.Rollback()
		tx.kvtx = nil
		tx.abort(engine.WrapError(engine.UnknownError, err, "commit failed"))
		return
	}
	tx.state = txFinished
	log.Debugf("tx %s committed", tx.id)

	if u := tx.upgrade; u != nil {
		tx.st.version = u.newVersion
		tx.st.schema = tx.db.schema.clone()
		tx.db.upgradeTx = nil
	}

	if _, err := call(tx.onComplete, &engine.Event{Type: engine.EventComplete, Transaction: tx}); err != nil {
		log.Errorf("tx %s: complete handler: %v", tx.id, err)
	}
	if u := tx.upgrade; u != nil && !tx.db.closePending {
		u.req.succeed(tx.db)
	} else if u != nil {
		u.req.fail(engine.NewError(engine.AbortError, "connection closed during upgrade"))
	}
	tx.st.finished(tx)
}

// abort rolls back immediately and fires the abort signals in a later turn.
// A nil err is an explicit abort.
func (tx *transaction) abort(err *engine.Error) {
	if tx.state == txFinished {
		return
	}
	wasPending := tx.state == txPending
	tx.state = txFinished
	tx.err = err

	if tx.kvtx != nil {
		if rerr := tx.kvtx.Rollback(); rerr != nil {
			log.Errorf("tx %s: rollback failed: %v", tx.id, rerr)
		}
	}
	if wasPending {
		tx.st.remove(tx)
	}
	if u := tx.upgrade; u != nil {
		tx.db.version = u.oldVersion
		tx.db.schema = tx.st.schema.clone()
		tx.db.upgradeTx = nil
		tx.db.Close()
	}

	reason := err
	if reason == nil {
		reason = engine.NewError(engine.AbortError, "transaction %s was aborted", tx.id)
	}
	log.Debugf("tx %s aborted: %v", tx.id, reason)

	pending := tx.requests
	tx.requests = nil

	tx.st.f.loop.Post(func() {
		for _, r := range pending {
			r.err = engine.NewError(engine.AbortError, "transaction aborted")
			_, _ = call(r.onError, &engine.Event{Type: engine.EventError, Err: r.err, Transaction: tx})
		}
		if _, cerr := call(tx.onAbort, &engine.Event{Type: engine.EventAbort, Err: reason, Transaction: tx}); cerr != nil {
			log.Errorf("tx %s: abort handler: %v", tx.id, cerr)
		}
		if u := tx.upgrade; u != nil {
			u.req.fail(engine.WrapError(engine.AbortError, reason, "version change transaction was aborted"))
		}
		tx.st.finished(tx)
	})
}

// fail aborts the transaction and returns err, for synchronous schema failures
func (tx *transaction) fail(err *engine.Error) error {
	tx.abort(err)
	return err
}

// --------------------------------------------------------------------------
// Requests
// --------------------------------------------------------------------------

// issue queues a new request
func (tx *transaction) issue(exec execFunc) (engine.Request, error) {
	r, err := tx.newRequest(exec)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (tx *transaction) newRequest(exec execFunc) (*request, error) {
	if err := tx.checkActive(); err != nil {
		return nil, err
	}
	r := &request{tx: tx, exec: exec}
	tx.requests = append(tx.requests, r)
	tx.schedule()
	return r, nil
}

// requeue queues an existing request again, used by cursors
func (tx *transaction) requeue(r *request) {
	tx.requests = append(tx.requests, r)
	tx.schedule()
}

func (tx *transaction) checkActive() error {
	if tx.state == txFinished || !tx.active {
		return engine.NewError(engine.TransactionInactiveError, "transaction %s is not active", tx.id)
	}
	return nil
}

func (tx *transaction) checkWritable() error {
	if tx.mode == engine.ReadOnly {
		return engine.NewError(engine.ReadOnlyError, "transaction %s is read-only", tx.id)
	}
	return nil
}
