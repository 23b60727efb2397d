package protocol

import "context"

// Transport opens message-framed duplex connections.
type Transport interface {
	Dial(ctx context.Context, uri string) (Conn, error)
}

// Conn is a persistent, ordered connection carrying opaque binary frames.
// ReadMessage is only ever called from one goroutine; WriteMessage calls are
// serialized by the Client.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}
