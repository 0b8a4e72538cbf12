package watch

import "time"

// EventKind identifies the type of event emitted by a Watcher.
type EventKind string

const (
	// EventWatchAdded is emitted when a callback is registered.
	EventWatchAdded EventKind = "watch.added"

	// EventWatchRemoved is emitted when a callback is unregistered.
	EventWatchRemoved EventKind = "watch.removed"

	// EventRuleAdded is emitted when a match rule is installed for a
	// name (first watcher for that name).
	EventRuleAdded EventKind = "rule.added"

	// EventRuleRemoved is emitted when a match rule is removed (last
	// watcher for that name unregistered).
	EventRuleRemoved EventKind = "rule.removed"

	// EventNameLost is emitted when a watched name lost its owner,
	// after its subscription entry is consumed but before the
	// callbacks run.
	EventNameLost EventKind = "name.lost"

	// EventSignalStale is emitted when an ownership-loss signal
	// arrives for a name with no registered watchers. Expected under
	// the race between a local Unwatch and an in-flight signal.
	EventSignalStale EventKind = "signal.stale"

	// EventDecodeFailed is emitted when a NameOwnerChanged signal does
	// not carry three string arguments.
	EventDecodeFailed EventKind = "signal.decode_failed"
)

// Event describes a state change inside a Watcher. Events are emitted
// synchronously after the change takes effect; handlers feed metrics,
// tracing, and the firing journal.
type Event struct {
	Kind     EventKind
	Name     string
	OldOwner string    // set for name.lost
	Time     time.Time
	Count    int // callbacks touched: registered total, or invoked on firing
}

// EventEmitter receives Watcher events. Emitters must not block and
// must not call back into the Watcher; they may run while it holds its
// internal lock.
type EventEmitter func(Event)

// MultiEmitter fans one event out to several emitters in order.
func MultiEmitter(emitters ...EventEmitter) EventEmitter {
	return func(e Event) {
		for _, emit := range emitters {
			if emit != nil {
				emit(e)
			}
		}
	}
}
