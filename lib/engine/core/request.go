package core

import (
	"fmt"

	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/ValentinKolb/fKV/lib/engine/kv"
)

// execFunc runs a request against the backend transaction
type execFunc func(tx kv.Txn) (any, *engine.Error)

// request implements engine.Request
type request struct {
	tx     *transaction
	exec   execFunc
	result any
	err    *engine.Error

	onSuccess engine.EventHandler
	onError   engine.EventHandler
}

func (r *request) Result() any { return r.result }
func (r *request) Error() *engine.Error { return r.err }
func (r *request) OnSuccess(h engine.EventHandler) { r.onSuccess = h }
func (r *request) OnError(h engine.EventHandler) { r.onError = h }

func (r *request) Transaction() engine.Transaction {
	if r.tx == nil {
		return nil
	}
	return r.tx
}

// openRequest implements engine.OpenRequest
type openRequest struct {
	request
	onUpgradeNeeded engine.EventHandler
}

func (r *openRequest) OnUpgradeNeeded(h engine.EventHandler) { r.onUpgradeNeeded = h }

func (r *openRequest) succeed(db *database) {
	r.result = db
	r.err = nil
	if _, err := call(r.onSuccess, &engine.Event{Type: engine.EventSuccess}); err != nil {
		log.Errorf("open %s: success handler: %v", db.st.name, err)
	}
}

func (r *openRequest) fail(err *engine.Error) {
	r.result = nil
	r.err = err
	if _, perr := call(r.onError, &engine.Event{Type: engine.EventError, Err: err}); perr != nil {
		log.Errorf("open: error handler: %v", perr)
	}
}

// call runs a handler and converts a panic into an error.
func call(h engine.EventHandler, ev *engine.Event) (called bool, err error) {
	if h == nil {
		return false, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	h(ev)
	return true, nil
}
