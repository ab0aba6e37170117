package fstore

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/ValentinKolb/fKV/lib/future"
	"github.com/ValentinKolb/fKV/lib/store"
	"github.com/looplab/fsm"
)

// Connection states
const (
	StateClosed    = "closed"
	StateOpening   = "opening"
	StateUpgrading = "upgrading"
	StateReady     = "ready"
	StateFailed    = "failed"
)

// Connection events
const (
	eventOpen    = "open"
	eventUpgrade = "upgrade"
	eventReady   = "ready"
	eventFail    = "fail"
	eventClose   = "close"
)

// connection owns the open database handle and its version. Everything but
// the state machine is only touched on the engine loop.
type connection struct {
	factory engine.Factory
	name    string
	version uint64
	handle  engine.Database
	state   *fsm.FSM

	// opens issued while another open is in flight, started in order
	pending []pendingOpen
}

type pendingOpen struct {
	fut     *future.Future[struct{}]
	name    string
	version uint64
	upgrade store.UpgradeFunc
}

func newConnection(f engine.Factory) *connection {
	c := &connection{factory: f}
	c.state = fsm.NewFSM(
		StateClosed,
		fsm.Events{
			{Name: eventOpen, Src: []string{StateClosed, StateFailed}, Dst: StateOpening},
			{Name: eventUpgrade, Src: []string{StateOpening}, Dst: StateUpgrading},
			{Name: eventReady, Src: []string{StateOpening, StateUpgrading}, Dst: StateReady},
			{Name: eventFail, Src: []string{StateOpening, StateUpgrading}, Dst: StateFailed},
			{Name: eventClose, Src: []string{StateReady, StateFailed}, Dst: StateClosed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.Debugf("connection %s: %s -> %s", c.name, e.Src, e.Dst)
			},
		},
	)
	return c
}

// State returns the current connection state.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *connection) State() string {
	return c.state.Current()
}

// transition fires a state machine event and logs transitions that are not
// allowed from the current state.
func (c *connection) transition(event string) {
	if err := c.state.Event(context.Background(), event); err != nil {
		log.Warningf("connection %s: event %s in state %s: %v", c.name, event, c.state.Current(), err)
	}
}

// Open opens name at version. upgrade runs inside the upgradeneeded signal.
func (c *connection) Open(name string, version uint64, upgrade store.UpgradeFunc) *future.Future[struct{}] {
	fut := future.New[struct{}]()
	switch {
	case name == "":
		fut.Reject(store.NewError(store.RetCConfigurationError, "database name must not be empty"))
		return fut
	case version == 0:
		fut.Reject(store.NewError(store.RetCConfigurationError, "database version must be at least 1"))
		return fut
	}

	if !c.factory.Schedule(func() { c.open(fut, name, version, upgrade) }) {
		fut.Reject(store.NewError(store.RetCInternalError, "engine is closed"))
	}
	return fut
}

// busy reports whether an open request is in flight
func (c *connection) busy() bool {
	st := c.state.Current()
	return st == StateOpening || st == StateUpgrading
}

// open runs on the loop. It queues behind an open that is still in flight.
func (c *connection) open(fut *future.Future[struct{}], name string, version uint64, upgrade store.UpgradeFunc) {
	if c.busy() || len(c.pending) > 0 {
		log.Debugf("connection %s: queueing open of %s at version %d", c.name, name, version)
		c.pending = append(c.pending, pendingOpen{fut: fut, name: name, version: version, upgrade: upgrade})
		return
	}
	c.start(fut, name, version, upgrade)
}

// next starts the oldest queued open once the current one has settled
func (c *connection) next() {
	if len(c.pending) == 0 {
		return
	}
	p := c.pending[0]
	c.pending = c.pending[1:]
	c.start(p.fut, p.name, p.version, p.upgrade)
}

// start issues the engine open request
func (c *connection) start(fut *future.Future[struct{}], name string, version uint64, upgrade store.UpgradeFunc) {
	c.close()
	c.name = name
	c.transition(eventOpen)

	req, err := c.factory.Open(name, version)
	if err != nil {
		c.transition(eventFail)
		fut.Reject(store.WrapError(store.RetCEngineRequestError, err, "cannot open database"))
		c.next()
		return
	}

	var upgradeErr error
	req.OnUpgradeNeeded(func(ev *engine.Event) {
		c.transition(eventUpgrade)
		log.Infof("upgrading database %s from version %d to %d", name, ev.OldVersion, ev.NewVersion)
		if upgrade == nil {
			return
		}
		db := req.Result().(engine.Database)
		if upgradeErr = upgrade(ev, db); upgradeErr != nil {
			log.Warningf("upgrade of database %s failed: %v", name, upgradeErr)
			_ = ev.Transaction.Abort()
		}
	})

	req.OnSuccess(func(*engine.Event) {
		db := req.Result().(engine.Database)
		c.handle = db
		c.version = db.Version()
		c.transition(eventReady)
		log.Infof("database %s is ready at version %d", name, c.version)
		fut.Resolve(struct{}{})
		c.next()
	})

	req.OnError(func(ev *engine.Event) {
		c.transition(eventFail)
		msg := fmt.Sprintf("engine error: %d", ev.Err.Code)
		if upgradeErr != nil {
			msg = fmt.Sprintf("%s (upgrade failed: %v)", msg, upgradeErr)
		}
		log.Warningf("cannot open database %s at version %d: %v", name, version, ev.Err)
		fut.Reject(store.WrapError(store.RetCEngineRequestError, ev.Err, msg))
		c.next()
	})
}

// shutdown rejects queued opens and releases the handle, on the loop
func (c *connection) shutdown() {
	for _, p := range c.pending {
		p.fut.Reject(store.NewError(store.RetCInternalError, "store is closed"))
	}
	c.pending = nil
	c.close()
}

// close releases the handle, on the loop
func (c *connection) close() {
	if c.handle != nil {
		c.handle.Close()
		c.handle = nil
		c.version = 0
	}
	if c.state.Can(eventClose) {
		c.transition(eventClose)
	}
}
