// Package watch implements a subscription registry for detecting the
// disappearance of named peers on a message bus. Many logical
// subscriptions ("tell me when name X is released") multiplex onto a
// single bus-level subscription per distinct name: a NameOwnerChanged
// match rule scoped to that name. The Watcher reference-counts
// callbacks per name, installs the match rule when the first watcher
// arrives, removes it when the last one leaves, and fires every
// registered callback exactly once when the name loses its owner.
//
// The bus connection itself is a collaborator supplied through the
// Conn interface; see package dbusconn for the D-Bus implementation.
package watch

import "fmt"

// BusInterface is the bus control interface that emits ownership
// change signals.
const BusInterface = "org.freedesktop.DBus"

// MemberNameOwnerChanged is the signal member announcing that a bus
// name changed owner.
const MemberNameOwnerChanged = "NameOwnerChanged"

// Signal is a decoded inbound bus message as delivered to filters.
// Body holds the signal arguments in wire order; this package reads
// only the first three as strings.
type Signal struct {
	Sender    string
	Path      string
	Interface string
	Member    string
	Body      []any
}

// FilterFunc is an inbound-message hook invoked for every signal the
// connection receives. It returns true when the message was consumed;
// the Watcher's filter always returns false so other filters still
// see the message.
type FilterFunc func(*Signal) bool

// Conn is the bus connection contract the Watcher depends on.
// AddMatch and RemoveMatch are synchronous round trips: they return
// once the bus daemon has confirmed or rejected the rule.
type Conn interface {
	// AddFilter installs a process-wide inbound-message hook. The
	// Watcher installs at most one filter for the lifetime of the
	// connection, no matter how many names are watched.
	AddFilter(FilterFunc) error

	// AddMatch asks the bus daemon to deliver signals matching the
	// textual rule.
	AddMatch(rule string) error

	// RemoveMatch revokes a previously added rule.
	RemoveMatch(rule string) error
}

// Callback is invoked when a watched name loses its owner. It receives
// the name and the opaque context supplied at registration. A callback
// fires at most once per successful Watch call.
type Callback func(name string, ctx any)

// MatchRule returns the bus match rule scoping NameOwnerChanged
// signals to the given name. The rule text must match exactly between
// AddMatch and RemoveMatch for the bus daemon to pair them up.
func MatchRule(name string) string {
	return fmt.Sprintf("interface=%s,member=%s,arg0=%s",
		BusInterface, MemberNameOwnerChanged, name)
}
