package protocol

import (
	"errors"
	"fmt"

	"github.com/mosaicnetworks/rtcsession/src/codec"
)

var (
	// ErrNotConnected is delivered to requests issued while no connection is
	// open.
	ErrNotConnected = errors.New("not connected")

	// ErrDisconnected is delivered to requests that were outstanding when the
	// connection closed.
	ErrDisconnected = errors.New("disconnected")

	// ErrConnClosed is returned by a Conn used after Close.
	ErrConnClosed = errors.New("connection closed")
)

// ResponseError is delivered to a request callback when the backend answers
// with a non-ok status, or with a wire.Error.
type ResponseError struct {
	// Type is the type of the response message
	Type string
	// Status is the response status, or "error" for a wire.Error
	Status string
	// Message is the decoded response
	Message codec.Fields
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	if reason := e.Message.String("reason"); reason != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Status, reason)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Status)
}

// StatusOf returns the backend status carried by err, if err is a
// ResponseError.
func StatusOf(err error) (string, bool) {
	var re *ResponseError
	if errors.As(err, &re) {
		return re.Status, true
	}
	return "", false
}

// ErrAlreadyConnected is returned by Connect when a connection is already
// open.
var ErrAlreadyConnected = errors.New("already connected")
