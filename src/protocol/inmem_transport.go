package protocol

import (
	"context"
	"sync"
)

// InmemTransport implements the Transport interface without going over a
// network. Each Dial creates a pipe whose far end is handed out through
// Accept, which lets tests play the backend.
type InmemTransport struct {
	sync.Mutex
	acceptCh chan *InmemConn
	dialErr  error
	dials    int
}

// NewInmemTransport is used to initialize a new transport.
func NewInmemTransport() *InmemTransport {
	return &InmemTransport{
		acceptCh: make(chan *InmemConn, 16),
	}
}

// Accept returns the channel through which the server ends of dialled pipes
// are delivered.
func (t *InmemTransport) Accept() <-chan *InmemConn {
	return t.acceptCh
}

// SetDialError makes subsequent dials fail with err, or succeed again if err
// is nil.
func (t *InmemTransport) SetDialError(err error) {
	t.Lock()
	defer t.Unlock()
	t.dialErr = err
}

// Dials returns the number of dial attempts made so far.
func (t *InmemTransport) Dials() int {
	t.Lock()
	defer t.Unlock()
	return t.dials
}

// Dial implements the Transport interface.
func (t *InmemTransport) Dial(ctx context.Context, uri string) (Conn, error) {
	t.Lock()
	t.dials++
	err := t.dialErr
	t.Unlock()

	if err != nil {
		return nil, err
	}

	client, server := newInmemPipe(uri)

	select {
	case t.acceptCh <- server:
		return client, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type inmemPipe struct {
	once sync.Once
	done chan struct{}
}

func (p *inmemPipe) close() {
	p.once.Do(func() { close(p.done) })
}

// InmemConn is one end of an in-memory pipe. Closing either end closes the
// pipe.
type InmemConn struct {
	uri  string
	in   chan []byte
	peer *InmemConn
	pipe *inmemPipe
}

func newInmemPipe(uri string) (*InmemConn, *InmemConn) {
	pipe := &inmemPipe{done: make(chan struct{})}

	a := &InmemConn{uri: uri, in: make(chan []byte, 64), pipe: pipe}
	b := &InmemConn{uri: uri, in: make(chan []byte, 64), pipe: pipe}
	a.peer = b
	b.peer = a

	return a, b
}

// URI returns the address the pipe was dialled with.
func (c *InmemConn) URI() string {
	return c.uri
}

// ReadMessage implements the Conn interface. Frames already delivered are
// still readable after the pipe is closed.
func (c *InmemConn) ReadMessage() ([]byte, error) {
	select {
	case m := <-c.in:
		return m, nil
	default:
	}

	select {
	case m := <-c.in:
		return m, nil
	case <-c.pipe.done:
		return nil, ErrConnClosed
	}
}

// WriteMessage implements the Conn interface.
func (c *InmemConn) WriteMessage(data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)

	select {
	case <-c.pipe.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.peer.in <- cp:
		return nil
	case <-c.pipe.done:
		return ErrConnClosed
	}
}

// Close implements the Conn interface.
func (c *InmemConn) Close() error {
	c.pipe.close()
	return nil
}

// Closed returns a channel that is closed with the pipe.
func (c *InmemConn) Closed() <-chan struct{} {
	return c.pipe.done
}
