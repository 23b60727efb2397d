package protocol

import (
	"fmt"
	"sync"
	"time"

	"github.com/mosaicnetworks/rtcsession/src/codec"
	"github.com/sirupsen/logrus"
)

// BackendHandler answers a request received by an InmemBackend. Returning an
// empty type sends nothing, leaving the request pending until Reply is called.
type BackendHandler func(req ReceivedRequest) (typ string, resp codec.Fields)

// ReceivedRequest is a request as seen by an InmemBackend.
type ReceivedRequest struct {
	Type      string
	RequestID uint64
	SessionID string
	Message   codec.Fields

	conn *InmemConn
}

// InmemBackend plays the server side of an InmemTransport. It decodes the
// requests sent by clients, records them, and answers them through the
// handlers registered per message type.
type InmemBackend struct {
	sync.Mutex

	registry  *codec.Registry
	transport *InmemTransport
	logger    *logrus.Entry

	handlers  map[string]BackendHandler
	sessionID string
	conns     []*InmemConn
	received  []ReceivedRequest
	notify    chan struct{}

	shutdownCh chan struct{}
}

// NewInmemBackend starts accepting the connections dialled on transport.
func NewInmemBackend(registry *codec.Registry, transport *InmemTransport, logger *logrus.Entry) *InmemBackend {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	b := &InmemBackend{
		registry:   registry,
		transport:  transport,
		logger:     logger,
		handlers:   make(map[string]BackendHandler),
		notify:     make(chan struct{}),
		shutdownCh: make(chan struct{}),
	}

	go b.acceptLoop()

	return b
}

// Handle registers the handler for requests of type typ.
func (b *InmemBackend) Handle(typ string, h BackendHandler) {
	b.Lock()
	defer b.Unlock()
	b.handlers[typ] = h
}

// SetSessionID makes every reply carry id in its envelope, the way a backend
// announces the session it assigned.
func (b *InmemBackend) SetSessionID(id string) {
	b.Lock()
	defer b.Unlock()
	b.sessionID = id
}

// Requests returns the requests of type typ received so far. An empty typ
// returns all of them.
func (b *InmemBackend) Requests(typ string) []ReceivedRequest {
	b.Lock()
	defer b.Unlock()

	var res []ReceivedRequest
	for _, r := range b.received {
		if typ == "" || r.Type == typ {
			res = append(res, r)
		}
	}
	return res
}

// WaitRequests blocks until n requests of type typ have been received, or
// timeout expires.
func (b *InmemBackend) WaitRequests(typ string, n int, timeout time.Duration) ([]ReceivedRequest, error) {
	deadline := time.After(timeout)
	for {
		b.Lock()
		notify := b.notify
		b.Unlock()

		if reqs := b.Requests(typ); len(reqs) >= n {
			return reqs, nil
		}

		select {
		case <-notify:
		case <-deadline:
			return nil, fmt.Errorf("timeout waiting for %d %s requests", n, typ)
		}
	}
}

// Reply answers req, which a handler left pending.
func (b *InmemBackend) Reply(req ReceivedRequest, typ string, resp codec.Fields) error {
	return b.write(req.conn, req.RequestID, req.SessionID, typ, resp)
}

// Push sends an unsolicited message to every open connection.
func (b *InmemBackend) Push(typ string, msg codec.Fields) error {
	b.Lock()
	conns := make([]*InmemConn, len(b.conns))
	copy(conns, b.conns)
	b.Unlock()

	for _, c := range conns {
		if err := b.write(c, 0, "", typ, msg); err != nil {
			return err
		}
	}
	return nil
}

// PushRaw writes data as-is to every open connection.
func (b *InmemBackend) PushRaw(data []byte) {
	b.Lock()
	conns := make([]*InmemConn, len(b.conns))
	copy(conns, b.conns)
	b.Unlock()

	for _, c := range conns {
		c.WriteMessage(data)
	}
}

// Connections returns the number of connections accepted so far.
func (b *InmemBackend) Connections() int {
	b.Lock()
	defer b.Unlock()
	return len(b.conns)
}

// DropConnections closes every open connection from the server side.
func (b *InmemBackend) DropConnections() {
	b.Lock()
	conns := b.conns
	b.conns = nil
	b.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// Close stops accepting connections and closes the open ones.
func (b *InmemBackend) Close() {
	select {
	case <-b.shutdownCh:
		return
	default:
		close(b.shutdownCh)
	}
	b.DropConnections()
}

func (b *InmemBackend) acceptLoop() {
	for {
		select {
		case conn := <-b.transport.Accept():
			b.Lock()
			b.conns = append(b.conns, conn)
			b.Unlock()
			go b.serve(conn)
		case <-b.shutdownCh:
			return
		}
	}
}

func (b *InmemBackend) serve(conn *InmemConn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		env, err := b.registry.Decode(codec.TypeRequest, data)
		if err != nil {
			b.logger.WithError(err).Warn("Backend received malformed frame")
			continue
		}

		typ := env.String("type")
		msg, err := b.registry.Decode(typ, env.Bytes("payload"))
		if err != nil {
			b.logger.WithError(err).Warn("Backend received undecodable payload")
			continue
		}

		req := ReceivedRequest{
			Type:      typ,
			RequestID: env.Uint64("requestId"),
			SessionID: env.String("sessionId"),
			Message:   msg,
			conn:      conn,
		}

		b.Lock()
		b.received = append(b.received, req)
		h := b.handlers[typ]
		close(b.notify)
		b.notify = make(chan struct{})
		b.Unlock()

		if h == nil {
			b.Reply(req, codec.TypeError, codec.Fields{"reason": "unsupported"})
			continue
		}

		if rtyp, resp := h(req); rtyp != "" {
			if err := b.Reply(req, rtyp, resp); err != nil {
				b.logger.WithError(err).Debug("Backend reply failed")
			}
		}
	}
}

func (b *InmemBackend) write(conn *InmemConn, requestID uint64, sessionID, typ string, msg codec.Fields) error {
	payload, err := b.registry.Encode(typ, msg)
	if err != nil {
		return err
	}

	env := codec.Fields{
		"requestId": requestID,
		"type":      typ,
		"encoding":  "msgpack",
		"payload":   payload,
	}
	b.Lock()
	if b.sessionID != "" {
		sessionID = b.sessionID
	}
	b.Unlock()
	if sessionID != "" {
		env["sessionId"] = sessionID
	}

	frame, err := b.registry.Encode(codec.TypeResponse, env)
	if err != nil {
		return err
	}

	return conn.WriteMessage(frame)
}
