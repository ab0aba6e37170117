/*
Package fstore implements store.IStore on top of an engine.Factory.

The store is split the same way every operation flows through it:

  - connection: the open/upgrade/ready sequence. It owns the database handle
    and its version and tracks its state with a looplab/fsm state machine
    (closed, opening, upgrading, ready, failed).
  - guard: validates, before any transaction is started, that a connection
    exists and that the store is part of the schema. Both checks always run
    and every failure is logged and counted; the first one is returned.
  - begin: opens a single-store transaction in one mode and binds the error,
    complete and abort callbacks.
  - Store: the eight operations. Each one runs as a task on the engine loop,
    issues its primitive and settles exactly one future.

Reads resolve from the request's success callback. Writes, Clear and
OpenCursor resolve once the transaction completes, so a resolved write is
committed. A failed request rejects with RetCEngineRequestError; a
transaction error or abort rejects with RetCTransactionError.

Usage:

	s, _, err := fstore.Open(cfg)
	...
	_, err = s.CreateStore(1, func(ev *engine.Event, db engine.Database) error {
		users, err := db.CreateObjectStore("users", engine.ObjectStoreOptions{})
		if err != nil {
			return err
		}
		_, err = users.CreateIndex("name", "name", engine.IndexOptions{})
		return err
	}).Await(ctx)
	...
	_, err = s.Add("users", map[string]any{"id": 1, "name": "a"}, 1).Await(ctx)
*/
package fstore
