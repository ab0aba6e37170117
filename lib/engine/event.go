package engine

// EventType names the signal an event belongs to
type EventType string

const (
	EventSuccess       EventType = "success"
	EventError         EventType = "error"
	EventUpgradeNeeded EventType = "upgradeneeded"
	EventComplete      EventType = "complete"
	EventAbort         EventType = "abort"
)

// Event is passed to every handler.
type Event struct {
	Type EventType

	// Err is set for error and abort events
	Err *Error

	// OldVersion and NewVersion are set for upgradeneeded events
	OldVersion uint64
	NewVersion uint64

	// Transaction is the versionchange transaction of an upgradeneeded event,
	// or the transaction a request belongs to
	Transaction Transaction

	defaultPrevented bool
}

// PreventDefault stops a request error from aborting its transaction.
// It must be called by the request's own error handler.
func (e *Event) PreventDefault() {
	e.defaultPrevented = true
}

// DefaultPrevented reports whether PreventDefault was called
func (e *Event) DefaultPrevented() bool {
	return e.defaultPrevented
}

// EventHandler handles an engine event. Handlers run on the engine loop.
type EventHandler func(e *Event)
