package negotiation

import "time"

// Direction of a stream, as seen from this client.
type Direction string

// Directions.
const (
	Publish   Direction = "publish"
	Subscribe Direction = "subscribe"
)

// LinkState is the connection state of a media link.
type LinkState int

// Link states.
const (
	LinkNew LinkState = iota
	LinkConnecting
	LinkConnected
	LinkDisconnected
	LinkFailed
	LinkClosed
)

// String returns the string representation of a LinkState
func (s LinkState) String() string {
	switch s {
	case LinkNew:
		return "new"
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	case LinkDisconnected:
		return "disconnected"
	case LinkFailed:
		return "failed"
	case LinkClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// up reports whether a link in state s may still carry media.
func (s LinkState) up() bool {
	return s != LinkFailed && s != LinkClosed
}

// Candidate is a local transport candidate.
type Candidate struct {
	Candidate     string
	SDPMid        string
	SDPMLineIndex uint16
}

// Stats is a snapshot of a link's counters.
type Stats struct {
	BytesSent       uint64
	BytesReceived   uint64
	PacketsSent     uint64
	PacketsReceived uint64
	RoundTripTime   time.Duration
}

// LinkConfig describes the link to create for a stream.
type LinkConfig struct {
	StreamID  string
	Direction Direction
}

// MediaTransport creates media links.
type MediaTransport interface {
	NewLink(conf LinkConfig) (Link, error)
}

// Link is one peer connection. Callbacks may be invoked from any goroutine.
// OnCandidate receives nil once gathering is complete.
type Link interface {
	SetRemoteDescription(sdpType, sdp string) error
	CreateAnswer() (string, error)
	SetLocalDescription(sdpType, sdp string) error
	OnCandidate(func(c *Candidate))
	OnStateChange(func(s LinkState))
	Stats() (Stats, error)
	LimitBandwidth(bps uint64) error
	Close() error
}
