package negotiation

import "errors"

var (
	// ErrNoLink is returned by stream operations that need a media link on a
	// stream delivered through a URL.
	ErrNoLink = errors.New("stream has no media link")

	// ErrNotPublisher is returned by LimitBandwidth on a subscribed stream.
	ErrNotPublisher = errors.New("bandwidth can only be limited on published streams")

	// ErrStreamStopped is returned by operations on a stopped stream.
	ErrStreamStopped = errors.New("stream stopped")

	// ErrDuplicateStream is returned when the backend reuses a stream id that
	// is still registered.
	ErrDuplicateStream = errors.New("stream id already registered")

	// ErrNegotiationRefused is reported when the backend accepts a setup
	// without offering to negotiate.
	ErrNegotiationRefused = errors.New("backend did not offer negotiation")

	// ErrMissingOffer is reported when a setup response lacks an offer.
	ErrMissingOffer = errors.New("setup response carries no offer")
)
