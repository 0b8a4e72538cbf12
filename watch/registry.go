package watch

import "reflect"

// callbackRecord is one registration under a name. Identity for
// removal is the (function, context) pair: the same function
// registered with different contexts forms independent subscriptions.
type callbackRecord struct {
	fn  Callback
	ptr uintptr // code pointer of fn, for identity matching
	ctx any
}

func (c callbackRecord) matches(ptr uintptr, ctx any) bool {
	return c.ptr == ptr && c.ctx == ctx
}

func callbackPtr(cb Callback) uintptr {
	return reflect.ValueOf(cb).Pointer()
}

// entry holds all registrations for one watched name, in registration
// order. An entry exists iff it has at least one callback.
type entry struct {
	name      string
	callbacks []callbackRecord
}

// Registry maps watched names to their registered callbacks. It is a
// pure data structure with no I/O and no locking; the Watcher owns the
// lock. Name iteration preserves insertion order so callback delivery
// and rule bookkeeping are deterministic.
//
// Context values are compared with == when matching callbacks, so
// contexts must be comparable; pointer contexts give the same identity
// semantics as the usual (function pointer, user data) pair.
type Registry struct {
	entries map[string]*entry
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

// Find returns whether any callbacks are registered for name.
func (r *Registry) Find(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Add registers (cb, ctx) under name. It reports whether this call
// created the entry (first watcher for the name, so a match rule is
// needed) and whether the callback was actually added. A duplicate
// (function, context) pair under the same name is ignored: added is
// false and the existing registration stands, so the eventual firing
// never invokes it twice.
func (r *Registry) Add(name string, cb Callback, ctx any) (first, added bool) {
	ptr := callbackPtr(cb)

	e, ok := r.entries[name]
	if !ok {
		e = &entry{name: name}
		r.entries[name] = e
		r.order = append(r.order, name)
		first = true
	} else if e.find(ptr, ctx) >= 0 {
		return false, false
	}

	e.callbacks = append(e.callbacks, callbackRecord{fn: cb, ptr: ptr, ctx: ctx})
	return first, true
}

// find returns the index of the callback matching (ptr, ctx), or -1.
func (e *entry) find(ptr uintptr, ctx any) int {
	for i, c := range e.callbacks {
		if c.matches(ptr, ctx) {
			return i
		}
	}
	return -1
}

// Remove unregisters (cb, ctx) from name. It reports whether the
// callback was found and whether its removal destroyed the entry
// (last watcher for the name, so the match rule should go too).
func (r *Registry) Remove(name string, cb Callback, ctx any) (found, last bool) {
	e, ok := r.entries[name]
	if !ok {
		return false, false
	}

	i := e.find(callbackPtr(cb), ctx)
	if i < 0 {
		return false, false
	}

	e.callbacks = append(e.callbacks[:i], e.callbacks[i+1:]...)
	if len(e.callbacks) == 0 {
		r.RemoveEntry(name)
		return true, true
	}
	return true, false
}

// Take removes the entire entry for name and returns its callbacks in
// registration order. Used when a firing signal consumes the
// subscription: the entry is destroyed before callbacks run, so
// re-entrant Watch and Unwatch calls from inside a callback cannot
// touch a half-dismantled entry.
func (r *Registry) Take(name string) ([]callbackRecord, bool) {
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	callbacks := e.callbacks
	r.RemoveEntry(name)
	return callbacks, true
}

// RemoveEntry unconditionally drops the entry for name and all its
// callbacks.
func (r *Registry) RemoveEntry(name string) {
	if _, ok := r.entries[name]; !ok {
		return
	}
	delete(r.entries, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Names returns the watched names in insertion order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Len returns the number of watched names.
func (r *Registry) Len() int {
	return len(r.entries)
}

// CallbackCount returns the number of callbacks registered for name.
func (r *Registry) CallbackCount(name string) int {
	e, ok := r.entries[name]
	if !ok {
		return 0
	}
	return len(e.callbacks)
}
