package mobile

/*
These types are exported and need to be implemented and used by the mobile
application.
*/

//------------------------------------------------------------------------------

// StatusHandler receives every session status transition.
type StatusHandler interface {
	OnStatus(status string)
}

// StreamHandler receives the events of the streams set up through the Client.
type StreamHandler interface {
	OnStreamEnded(streamID string, reason string)
	OnDataQuality(streamID string, status string, reason string)
}

// ExceptionHandler receives the errors the Client cannot return directly.
type ExceptionHandler interface {
	OnException(string)
}
