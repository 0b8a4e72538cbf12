package watch

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Conn is the bus connection. Required.
	Conn Conn

	// Logger receives diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// Emit receives lifecycle events (optional). See EventEmitter.
	Emit EventEmitter
}

// Watcher multiplexes per-name disappearance subscriptions onto one
// bus connection. It installs a single inbound filter lazily on the
// first Watch call and keeps exactly one match rule per distinct
// watched name.
//
// A Watcher is safe for concurrent use. Callbacks run synchronously on
// the connection's dispatch goroutine, outside the Watcher's lock, so
// they may call Watch and Unwatch re-entrantly.
type Watcher struct {
	conn   Conn
	logger *slog.Logger
	emit   EventEmitter

	mu              sync.Mutex
	registry        *Registry
	filterInstalled bool
}

// NewWatcher creates a Watcher on the given connection. The inbound
// filter is not installed until the first Watch call.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Conn == nil {
		return nil, errors.New("watch: conn is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		conn:     cfg.Conn,
		logger:   logger,
		emit:     cfg.Emit,
		registry: NewRegistry(),
	}, nil
}

// Watch registers cb to fire once when name loses its bus owner. The
// first registration for a name installs a NameOwnerChanged match rule
// scoped to that name; later registrations share it. Registering the
// same (callback, context) pair twice for one name is a no-op.
//
// Returns ErrFilterInstall if the bus rejects the process-wide filter
// (nothing registered), or ErrMatchRule if the bus rejects the match
// rule (the registration is rolled back).
func (w *Watcher) Watch(name string, cb Callback, ctx any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.logger.Debug("watch", "name", name)

	if !w.filterInstalled {
		if err := w.conn.AddFilter(w.handleSignal); err != nil {
			return fmt.Errorf("%w: %v", ErrFilterInstall, err)
		}
		w.filterInstalled = true
	}

	first, added := w.registry.Add(name, cb, ctx)
	if !added {
		// Already registered; the existing match rule covers it.
		w.logger.Debug("watch already registered", "name", name)
		return nil
	}

	if !first {
		// The match rule installed by the first registration already
		// covers this name.
		w.emitEvent(EventWatchAdded, name, "", w.registry.CallbackCount(name))
		return nil
	}

	rule := MatchRule(name)
	if err := w.conn.AddMatch(rule); err != nil {
		// Roll back so registry state and bus-side subscriptions
		// never diverge.
		w.registry.Remove(name, cb, ctx)
		w.logger.Error("adding owner match rule failed",
			"name", name, "error", err)
		return fmt.Errorf("%w for %s: %v", ErrMatchRule, name, err)
	}

	w.emitEvent(EventWatchAdded, name, "", 1)
	w.emitEvent(EventRuleAdded, name, "", 1)
	return nil
}

// Unwatch removes the (cb, ctx) registration for name. Removing the
// last registration for a name also removes its match rule from the
// bus. Returns ErrNotFound when the name or callback is unknown,
// including after the watch already fired.
//
// If the bus rejects the rule removal, ErrMatchRuleRemoval is returned
// but the local registration stays removed: a stale server-side rule
// is a best-effort cleanup issue, not a reason to resurrect local
// bookkeeping.
func (w *Watcher) Unwatch(name string, cb Callback, ctx any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.logger.Debug("unwatch", "name", name)

	found, last := w.registry.Remove(name, cb, ctx)
	if !found {
		w.logger.Warn("unwatch: no matching watch", "name", name)
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	w.emitEvent(EventWatchRemoved, name, "", w.registry.CallbackCount(name))

	if !last {
		// Other callbacks still rely on the match rule.
		return nil
	}

	if err := w.conn.RemoveMatch(MatchRule(name)); err != nil {
		w.logger.Error("removing owner match rule failed",
			"name", name, "error", err)
		return fmt.Errorf("%w for %s: %v", ErrMatchRuleRemoval, name, err)
	}

	w.emitEvent(EventRuleRemoved, name, "", 0)
	return nil
}

// WatchedNames returns the currently watched names in the order their
// first watchers registered.
func (w *Watcher) WatchedNames() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.registry.Names()
}

// handleSignal is the inbound filter. It always returns false so the
// connection keeps offering the message to other filters, regardless
// of what happens here.
func (w *Watcher) handleSignal(sig *Signal) bool {
	if sig.Interface != BusInterface || sig.Member != MemberNameOwnerChanged {
		return false
	}

	name, oldOwner, newOwner, ok := decodeOwnerChange(sig)
	if !ok {
		w.logger.Error("invalid arguments for NameOwnerChanged signal",
			"args", len(sig.Body))
		w.emitEvent(EventDecodeFailed, "", "", 0)
		return false
	}

	// Only ownership loss is interesting; a name gaining an owner is
	// ignored even when watched.
	if newOwner != "" {
		return false
	}

	w.mu.Lock()
	callbacks, found := w.registry.Take(name)
	w.mu.Unlock()

	if !found {
		// Legitimate race: a local Unwatch can overtake an in-flight
		// signal for the same name.
		w.logger.Info("NameOwnerChanged for name with no watchers", "name", name)
		w.emitEvent(EventSignalStale, name, oldOwner, 0)
		return false
	}

	w.logger.Info("watched name lost its owner",
		"name", name, "old_owner", oldOwner, "callbacks", len(callbacks))

	// The loss is emitted before the callbacks run: a callback may
	// re-watch the same name, and its watch.added/rule.added events
	// belong after the loss that triggered it.
	w.emitEvent(EventNameLost, name, oldOwner, len(callbacks))

	// The entry is already gone; the snapshot keeps delivery in
	// registration order and makes re-entrant Watch/Unwatch calls from
	// inside a callback safe. Firing is terminal: the match rule is
	// not removed here because the owning peer is gone.
	for _, c := range callbacks {
		c.fn(name, c.ctx)
	}
	return false
}

// decodeOwnerChange extracts the three string arguments of a
// NameOwnerChanged signal: name, previous owner, new owner.
func decodeOwnerChange(sig *Signal) (name, oldOwner, newOwner string, ok bool) {
	if len(sig.Body) < 3 {
		return "", "", "", false
	}
	name, ok1 := sig.Body[0].(string)
	oldOwner, ok2 := sig.Body[1].(string)
	newOwner, ok3 := sig.Body[2].(string)
	if !ok1 || !ok2 || !ok3 {
		return "", "", "", false
	}
	return name, oldOwner, newOwner, true
}

func (w *Watcher) emitEvent(kind EventKind, name, oldOwner string, count int) {
	if w.emit == nil {
		return
	}
	w.emit(Event{
		Kind:     kind,
		Name:     name,
		OldOwner: oldOwner,
		Time:     time.Now(),
		Count:    count,
	})
}
