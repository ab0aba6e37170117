package fstore

import (
	"github.com/ValentinKolb/fKV/lib/engine"
)

// begin opens a transaction over exactly one store and binds the lifecycle
// callbacks. It does not validate; callers run the guard first.
func begin(conn *connection, storeName string, mode engine.Mode, onError, onComplete, onAbort engine.EventHandler) (engine.Transaction, error) {
	tx, err := conn.handle.Transaction([]string{storeName}, mode)
	if err != nil {
		return nil, err
	}

	if onError != nil {
		tx.OnError(onError)
	}
	if onComplete != nil {
		tx.OnComplete(onComplete)
	}
	if onAbort != nil {
		tx.OnAbort(onAbort)
	}

	log.Debugf("tx %s: %s on %s", tx.ID(), mode, storeName)
	return tx, nil
}
