package session

import "errors"

var (
	// ErrAlreadyStarted is returned by Start on a session that was started
	// before.
	ErrAlreadyStarted = errors.New("session already started")

	// ErrStopped is returned by operations on a stopped session. A stopped
	// session cannot be restarted; create a new one.
	ErrStopped = errors.New("session stopped")

	// ErrAlreadyOnline is returned by ReAuthenticate while the session is
	// online.
	ErrAlreadyOnline = errors.New("session already online")
)

// Offline reasons reported to OnOffline observers.
const (
	ReasonStopped         = "stopped"
	ReasonUnauthorized    = "unauthorized"
	ReasonCapacity        = "capacity"
	ReasonReconnectFailed = "reconnect-failed"
	ReasonCritical        = "critical-network-issue"
	ReasonDisconnected    = "disconnected"
	ReasonUnreachable     = "unreachable"
	ReasonFailed          = "failed"
)
