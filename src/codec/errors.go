package codec

import "errors"

var (
	// ErrUnsupportedType is returned when a message type has no registered
	// schema.
	ErrUnsupportedType = errors.New("unsupported message type")

	// ErrInvalidMessage is returned when a message does not satisfy its schema,
	// e.g. a required field is missing or a value has the wrong kind.
	ErrInvalidMessage = errors.New("invalid message")
)
