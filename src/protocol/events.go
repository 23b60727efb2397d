package protocol

import "github.com/mosaicnetworks/rtcsession/src/codec"

// Client events.
const (
	EventConnected          = "connected"
	EventDisconnected       = "disconnected"
	EventReconnectFailed    = "reconnect-failed"
	EventStreamEnded        = "stream-ended"
	EventDataQualityChanged = "data-quality-changed"
)

// pushEvents maps the message types the backend sends unsolicited to the
// event they are dispatched under.
var pushEvents = map[string]string{
	codec.TypeStreamEnded:        EventStreamEnded,
	codec.TypeDataQualityChanged: EventDataQualityChanged,
}

// Handler receives an event. msg is nil for connection events.
type Handler func(msg codec.Fields)
