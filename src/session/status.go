package session

import (
	"sync"
	"sync/atomic"
)

// Status captures the connection status of a Session: Offline, Connecting,
// Online, Reconnecting, Reconnected, Unauthorized, ReconnectFailed, or
// CriticalNetworkIssue.
type Status uint32

const (
	// Offline is the initial status, and the status of a stopped session. A
	// started session also goes offline when its connection drops while no
	// media link is up; it comes back through Connecting when the transport
	// is redialled.
	Offline Status = iota

	// Connecting is the status in which a session resolves its endpoint,
	// opens the transport, and authenticates.
	Connecting

	// Online is the status in which the session is authenticated and streams
	// can be negotiated.
	Online

	// Reconnecting is the status in which the transport was lost while some
	// media link was still up, and is being redialled.
	Reconnecting

	// Reconnected is the status in which the transport is back and the session
	// is re-authenticating with its previous session id.
	Reconnected

	// Unauthorized is the status in which the backend rejected the
	// authentication token. A new token can be supplied with ReAuthenticate.
	Unauthorized

	// ReconnectFailed is the status in which the transport could not be
	// redialled, or re-authentication after a reconnect was refused.
	ReconnectFailed

	// CriticalNetworkIssue is the terminal status in which every media link was
	// lost while reconnecting. The session is stopped and cannot be recovered.
	CriticalNetworkIssue
)

// String returns the string representation of a Status
func (s Status) String() string {
	switch s {
	case Offline:
		return "offline"
	case Connecting:
		return "connecting"
	case Online:
		return "online"
	case Reconnecting:
		return "reconnecting"
	case Reconnected:
		return "reconnected"
	case Unauthorized:
		return "unauthorized"
	case ReconnectFailed:
		return "reconnect-failed"
	case CriticalNetworkIssue:
		return "critical-network-issue"
	default:
		return "unknown"
	}
}

// down reports whether s ends an online period.
func (s Status) down() bool {
	switch s {
	case Offline, Unauthorized, ReconnectFailed, CriticalNetworkIssue:
		return true
	}
	return false
}

// manager wraps a Status with atomic get and set methods. It also keeps track
// of the background goroutines started by the session so they can be waited
// for.
type manager struct {
	status  Status
	wg      sync.WaitGroup
	wgCount int32
}

func (m *manager) getStatus() Status {
	return Status(atomic.LoadUint32((*uint32)(&m.status)))
}

func (m *manager) setStatus(s Status) {
	atomic.StoreUint32((*uint32)(&m.status), uint32(s))
}

// goFunc launches f in a goroutine tracked by the waitgroup.
func (m *manager) goFunc(f func()) {
	m.wg.Add(1)
	atomic.AddInt32(&m.wgCount, 1)
	go func() {
		defer m.wg.Done()
		defer atomic.AddInt32(&m.wgCount, -1)
		f()
	}()
}

func (m *manager) waitRoutines() {
	m.wg.Wait()
}
