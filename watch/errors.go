package watch

import "errors"

var (
	// ErrFilterInstall indicates the bus rejected the process-wide
	// inbound filter. Nothing was registered; the Watcher is left
	// unchanged and the next Watch call will retry the install.
	ErrFilterInstall = errors.New("bus rejected inbound filter")

	// ErrMatchRule indicates the bus rejected the match rule for a
	// first-of-name registration. The local registration was rolled
	// back, so registry state and bus-side subscriptions never diverge.
	ErrMatchRule = errors.New("bus rejected match rule")

	// ErrMatchRuleRemoval indicates the bus rejected removing a match
	// rule on the last Unwatch for a name. Local state is already
	// updated; a stale server-side rule is a remote leak, not a local
	// inconsistency.
	ErrMatchRuleRemoval = errors.New("bus rejected match rule removal")

	// ErrNotFound indicates an Unwatch for a name or callback that is
	// not registered, including names whose watch already fired.
	ErrNotFound = errors.New("no such watch")
)
