package negotiation

// Status is the outcome of a publish or subscribe.
type Status int

const (
	// StatusOK means the stream is set up and registered.
	StatusOK Status = iota
	// StatusCapacity means the backend has no room for the stream.
	StatusCapacity
	// StatusUnauthorized means the stream token was refused.
	StatusUnauthorized
	// StatusTimeout means the caller's budget ran out.
	StatusTimeout
	// StatusEnded means the origin stream no longer exists.
	StatusEnded
	// StatusOffline means the session was not online.
	StatusOffline
	// StatusUnsupportedDeliveryKind means no offered delivery is playable
	// locally.
	StatusUnsupportedDeliveryKind
	// StatusFailed covers every other failure.
	StatusFailed
)

// String returns the string representation of a Status
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusCapacity:
		return "capacity"
	case StatusUnauthorized:
		return "unauthorized"
	case StatusTimeout:
		return "timeout"
	case StatusEnded:
		return "ended"
	case StatusOffline:
		return "offline"
	case StatusUnsupportedDeliveryKind:
		return "unsupported-delivery-kind"
	default:
		return "failed"
	}
}

// statusFromBackend maps a response status. Unknown statuses collapse to
// StatusFailed.
func statusFromBackend(s string) Status {
	switch s {
	case "ok":
		return StatusOK
	case "capacity":
		return StatusCapacity
	case "unauthorized":
		return StatusUnauthorized
	case "timeout":
		return StatusTimeout
	case "ended":
		return StatusEnded
	default:
		return StatusFailed
	}
}

// Reasons a stream ends with.
const (
	ReasonEnded         = "ended"
	ReasonFailed        = "failed"
	ReasonCensored      = "censored"
	ReasonMaintenance   = "maintenance"
	ReasonCapacity      = "capacity"
	ReasonAppBackground = "app-background"
	ReasonCustom        = "custom"
)

// normalizeReason maps a backend or caller supplied reason to one of the
// known reasons. An empty reason is a regular end; anything unrecognized is a
// failure.
func normalizeReason(r string) string {
	switch r {
	case "":
		return ReasonEnded
	case ReasonEnded, ReasonFailed, ReasonCensored, ReasonMaintenance,
		ReasonCapacity, ReasonAppBackground, ReasonCustom:
		return r
	default:
		return ReasonFailed
	}
}
