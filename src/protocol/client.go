package protocol

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/mosaicnetworks/rtcsession/src/codec"
	"github.com/mosaicnetworks/rtcsession/src/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// ReconnectPolicy bounds the redialling done after an unexpected close. A
// zero MaxRetries disables redialling.
type ReconnectPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultReconnectPolicy returns the policy used when none is configured.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxRetries:      5,
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// Config holds the optional settings of a Client.
type Config struct {
	Reconnect  ReconnectPolicy
	Registerer prometheus.Registerer
}

// Client is a request/response client over a single Conn. See the package
// documentation for the threading model.
type Client struct {
	registry   *codec.Registry
	transport  Transport
	dispatcher *common.Dispatcher
	conf       Config
	logger     *logrus.Entry
	metrics    *metrics

	pending *pendingRegistry

	handlerLock sync.RWMutex
	handlers    map[string][]Handler

	connLock  sync.Mutex
	conn      Conn
	uri       string
	sessionID string
	closed    bool
	ctx       context.Context
	cancel    context.CancelFunc

	writeLock sync.Mutex
}

// NewClient creates a Client. Nothing is dialled until Connect is called.
func NewClient(
	registry *codec.Registry,
	transport Transport,
	dispatcher *common.Dispatcher,
	conf Config,
	logger *logrus.Entry,
) *Client {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Client{
		registry:   registry,
		transport:  transport,
		dispatcher: dispatcher,
		conf:       conf,
		logger:     logger,
		metrics:    newMetrics(conf.Registerer),
		pending:    newPendingRegistry(),
		handlers:   make(map[string][]Handler),
	}
}

// Connect dials uri and starts reading frames. The connected event is fired on
// the dispatcher once the connection is open.
func (c *Client) Connect(ctx context.Context, uri string) error {
	c.connLock.Lock()
	if c.conn != nil {
		c.connLock.Unlock()
		return ErrAlreadyConnected
	}
	c.uri = uri
	c.closed = false
	if c.ctx == nil || c.ctx.Err() != nil {
		c.ctx, c.cancel = context.WithCancel(context.Background())
	}
	c.connLock.Unlock()

	c.logger.WithField("uri", uri).Debug("Connecting")

	conn, err := c.transport.Dial(ctx, uri)
	if err != nil {
		return err
	}

	if !c.attach(conn, false) {
		conn.Close()
		return ErrAlreadyConnected
	}

	return nil
}

// Disconnect closes the connection and disables redialling. Outstanding
// requests complete with ErrDisconnected.
func (c *Client) Disconnect() {
	c.connLock.Lock()
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	conn := c.conn
	c.conn = nil
	c.connLock.Unlock()

	if conn == nil {
		return
	}

	c.logger.Debug("Disconnecting")

	conn.Close()
	c.dispatcher.Post(c.teardown)
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	c.connLock.Lock()
	defer c.connLock.Unlock()
	return c.conn != nil
}

// SessionID returns the session id attached to outgoing requests.
func (c *Client) SessionID() string {
	c.connLock.Lock()
	defer c.connLock.Unlock()
	return c.sessionID
}

// SetSessionID sets the session id attached to outgoing requests.
func (c *Client) SetSessionID(id string) {
	c.connLock.Lock()
	defer c.connLock.Unlock()
	c.sessionID = id
}

// On registers handler for event. Handlers run on the dispatcher in
// registration order.
func (c *Client) On(event string, handler Handler) {
	c.handlerLock.Lock()
	defer c.handlerLock.Unlock()
	c.handlers[event] = append(c.handlers[event], handler)
}

// Post runs fn on the dispatcher.
func (c *Client) Post(fn func()) bool {
	return c.dispatcher.Post(fn)
}

// PendingCount returns the number of requests awaiting a response.
func (c *Client) PendingCount() int {
	return c.pending.len()
}

// SendRequest encodes msg as typ and sends it. cb is invoked exactly once on
// the dispatcher, with the response or with the error that prevented one. An
// error is returned directly only when msg cannot be encoded, in which case cb
// is never invoked.
func (c *Client) SendRequest(typ string, msg codec.Fields, cb Callback) error {
	payload, err := c.registry.Encode(typ, msg)
	if err != nil {
		return err
	}

	c.connLock.Lock()
	conn := c.conn
	sid := c.sessionID
	c.connLock.Unlock()

	if conn == nil {
		c.complete(cb, ErrNotConnected, nil)
		return nil
	}

	id := c.pending.add(typ, cb)

	env := codec.Fields{
		"requestId": id,
		"type":      typ,
		"encoding":  "msgpack",
		"payload":   payload,
	}
	if sid != "" {
		env["sessionId"] = sid
	}

	frame, err := c.registry.Encode(codec.TypeRequest, env)
	if err != nil {
		c.pending.take(id)
		return err
	}

	c.metrics.request(typ)
	c.metrics.setPending(c.pending.len())

	c.logger.WithFields(logrus.Fields{
		"type":       typ,
		"request_id": id,
	}).Debug("Sending request")

	c.writeLock.Lock()
	err = conn.WriteMessage(frame)
	c.writeLock.Unlock()

	if err != nil {
		c.logger.WithError(err).WithField("request_id", id).Debug("Write failed")
		if p := c.pending.take(id); p != nil {
			c.metrics.setPending(c.pending.len())
			c.complete(p.callback, err, nil)
		}
	}

	return nil
}

type result struct {
	msg codec.Fields
	err error
}

// Request sends a request and waits for its outcome or for ctx to be done. It
// must not be called from the dispatcher goroutine.
func (c *Client) Request(ctx context.Context, typ string, msg codec.Fields) (codec.Fields, error) {
	resCh := make(chan result, 1)

	err := c.SendRequest(typ, msg, func(err error, m codec.Fields) {
		if ctx.Err() != nil {
			c.logger.WithField("type", typ).Debug("Dropping late response")
		}
		resCh <- result{m, err}
	})
	if err != nil {
		return nil, err
	}

	select {
	case r := <-resCh:
		return r.msg, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) complete(cb Callback, err error, msg codec.Fields) {
	if cb == nil {
		return
	}
	if !c.dispatcher.Post(func() { cb(err, msg) }) {
		c.logger.Debug("Dispatcher closed, dropping completion")
	}
}

func (c *Client) attach(conn Conn, redialed bool) bool {
	c.connLock.Lock()
	if c.closed || c.conn != nil {
		c.connLock.Unlock()
		return false
	}
	c.conn = conn
	c.connLock.Unlock()

	if redialed {
		c.metrics.reconnect()
	}

	c.dispatcher.Post(func() { c.emit(EventConnected, nil) })

	go c.readLoop(conn)

	return true
}

func (c *Client) readLoop(conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}
		c.dispatcher.Post(func() { c.handleFrame(data) })
	}
}

func (c *Client) handleClose(conn Conn, err error) {
	c.connLock.Lock()
	if c.conn != conn {
		// closed locally by Disconnect
		c.connLock.Unlock()
		return
	}
	c.conn = nil
	redial := !c.closed && c.conf.Reconnect.MaxRetries > 0
	uri := c.uri
	ctx := c.ctx
	c.connLock.Unlock()

	c.logger.WithError(err).Debug("Connection closed")

	conn.Close()
	c.dispatcher.Post(c.teardown)

	if redial {
		go c.redial(ctx, uri)
	}
}

// teardown rejects every outstanding request and fires the disconnected
// event.
func (c *Client) teardown() {
	rejected := c.pending.drain()
	c.metrics.setPending(0)

	for _, p := range rejected {
		if p.callback != nil {
			p.callback(ErrDisconnected, nil)
		}
	}

	c.emit(EventDisconnected, nil)
}

func (c *Client) redial(ctx context.Context, uri string) {
	policy := c.conf.Reconnect

	eb := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		eb.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		eb.MaxInterval = policy.MaxInterval
	}
	eb.MaxElapsedTime = 0

	var conn Conn
	attempt := 0

	op := func() error {
		attempt++
		cn, err := c.transport.Dial(ctx, uri)
		if err != nil {
			c.logger.WithError(err).WithField("attempt", attempt).Debug("Redial failed")
			return err
		}
		conn = cn
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(eb, policy.MaxRetries), ctx))
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.WithError(err).Warn("Reconnect failed")
		c.dispatcher.Post(func() { c.emit(EventReconnectFailed, nil) })
		return
	}

	c.logger.WithField("attempts", attempt).Info("Reconnected")

	if !c.attach(conn, true) {
		conn.Close()
	}
}

func (c *Client) handleFrame(data []byte) {
	env, err := c.registry.Decode(codec.TypeResponse, data)
	if err != nil {
		c.metrics.drop("envelope")
		c.logger.WithError(err).Warn("Dropping malformed frame")
		return
	}

	if sid := env.String("sessionId"); sid != "" {
		c.SetSessionID(sid)
	}

	typ := env.String("type")
	requestID := env.Uint64("requestId")

	msg, err := c.registry.Decode(typ, env.Bytes("payload"))
	if err != nil {
		c.metrics.drop("payload")
		c.logger.WithError(err).WithFields(logrus.Fields{
			"type":       typ,
			"request_id": requestID,
		}).Warn("Dropping undecodable payload")
		return
	}

	if event, ok := pushEvents[typ]; ok {
		c.logger.WithField("event", event).Debug("Received event")
		c.emit(event, msg)
		return
	}

	p := c.pending.take(requestID)
	if p == nil {
		c.metrics.drop("unmatched")
		c.logger.WithFields(logrus.Fields{
			"type":       typ,
			"request_id": requestID,
		}).Warn("No pending request for response")
		return
	}
	c.metrics.setPending(c.pending.len())

	status := msg.String("status")
	if typ == codec.TypeError {
		status = "error"
	}
	c.metrics.response(status)

	c.logger.WithFields(logrus.Fields{
		"type":       typ,
		"request_id": requestID,
		"status":     status,
		"elapsed":    time.Since(p.issuedAt),
	}).Debug("Received response")

	if p.callback == nil {
		return
	}

	if typ == codec.TypeError || (msg.Has("status") && status != "ok") {
		p.callback(&ResponseError{Type: typ, Status: status, Message: msg}, nil)
		return
	}

	p.callback(nil, msg)
}

func (c *Client) emit(event string, msg codec.Fields) {
	c.handlerLock.RLock()
	handlers := make([]Handler, len(c.handlers[event]))
	copy(handlers, c.handlers[event])
	c.handlerLock.RUnlock()

	for _, h := range handlers {
		h(msg)
	}
}
