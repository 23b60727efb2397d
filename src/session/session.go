package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mosaicnetworks/rtcsession/src/codec"
	"github.com/mosaicnetworks/rtcsession/src/protocol"
	"github.com/sirupsen/logrus"
)

// Resolver turns the configured endpoint into a transport address.
type Resolver interface {
	Resolve(ctx context.Context, base string) (string, time.Duration, error)
}

// LinkMonitor reports how many media links are currently up. A session that
// loses its transport while links are up reconnects instead of going offline.
type LinkMonitor interface {
	ActiveLinks() int
}

// Config holds what a Session announces when authenticating.
type Config struct {
	// Endpoint is the discovery base URL, or a direct websocket address
	Endpoint        string
	ClientVersion   string
	DeviceID        string
	Platform        string
	PlatformVersion string
	Capabilities    []string
}

// Session drives a protocol.Client through authentication and reconnects.
type Session struct {
	conf     Config
	client   *protocol.Client
	resolver Resolver
	logger   *logrus.Entry

	manager

	mu        sync.Mutex
	token     string
	sessionID string
	started   bool
	stopped   bool
	links     LinkMonitor
	ctx       context.Context
	cancel    context.CancelFunc

	// dispatcher only
	authInFlight  bool
	reauthPending bool
	lastLatency   time.Duration

	handlerLock     sync.Mutex
	statusHandlers  []func(Status)
	onlineHandlers  []func(sessionID string)
	offlineHandlers []func(reason string)
	stopHandlers    []func()
}

// NewSession creates a Session over client. The session registers itself for
// the client's connection events.
func NewSession(conf Config, client *protocol.Client, resolver Resolver, logger *logrus.Entry) *Session {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	if conf.DeviceID == "" {
		conf.DeviceID = uuid.New().String()
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		conf:     conf,
		client:   client,
		resolver: resolver,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	client.On(protocol.EventConnected, func(codec.Fields) { s.onConnected() })
	client.On(protocol.EventDisconnected, func(codec.Fields) { s.onDisconnected() })
	client.On(protocol.EventReconnectFailed, func(codec.Fields) { s.onReconnectFailed() })

	return s
}

// SetLinkMonitor sets the source of the active link count.
func (s *Session) SetLinkMonitor(m LinkMonitor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links = m
}

// OnStatus registers an observer of every status transition.
func (s *Session) OnStatus(f func(Status)) {
	s.handlerLock.Lock()
	defer s.handlerLock.Unlock()
	s.statusHandlers = append(s.statusHandlers, f)
}

// OnOnline registers an observer called when an online period begins. A
// reconnect that ends online does not begin a new period.
func (s *Session) OnOnline(f func(sessionID string)) {
	s.handlerLock.Lock()
	defer s.handlerLock.Unlock()
	s.onlineHandlers = append(s.onlineHandlers, f)
}

// OnOffline registers an observer called when the session goes down, with
// the reason.
func (s *Session) OnOffline(f func(reason string)) {
	s.handlerLock.Lock()
	defer s.handlerLock.Unlock()
	s.offlineHandlers = append(s.offlineHandlers, f)
}

// OnStop registers a hook run on the dispatcher when the session stops,
// before the goodbye is sent.
func (s *Session) OnStop(f func()) {
	s.handlerLock.Lock()
	defer s.handlerLock.Unlock()
	s.stopHandlers = append(s.stopHandlers, f)
}

// Status returns the current status.
func (s *Session) Status() Status {
	return s.getStatus()
}

// SessionID returns the id assigned by the backend, or "" before the first
// successful authentication.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Client returns the protocol client the session runs on.
func (s *Session) Client() *protocol.Client {
	return s.client
}

// Latency returns the probe latency of the endpoint the session connected
// to.
func (s *Session) Latency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastLatency
}

// Start resolves the endpoint, connects, and authenticates with token. It
// returns immediately; progress is reported through the status observers.
func (s *Session) Start(token string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.token = token
	ctx := s.ctx
	s.mu.Unlock()

	s.client.Post(func() { s.transition(Connecting, "") })

	s.goFunc(func() { s.connect(ctx) })

	return nil
}

func (s *Session) connect(ctx context.Context) {
	uri, latency, err := s.resolver.Resolve(ctx, s.conf.Endpoint)
	if err != nil {
		s.logger.WithError(err).WithField("endpoint", s.conf.Endpoint).Error("Resolving endpoint")
		s.client.Post(func() { s.transition(Offline, ReasonUnreachable) })
		return
	}

	s.mu.Lock()
	s.lastLatency = latency
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"uri":     uri,
		"latency": latency,
	}).Debug("Endpoint resolved")

	if err := s.client.Connect(ctx, uri); err != nil {
		s.logger.WithError(err).WithField("uri", uri).Error("Connecting")
		s.client.Post(func() { s.transition(Offline, ReasonUnreachable) })
	}
}

// ReAuthenticate replaces the cached token and, if the transport is open,
// authenticates with it immediately.
func (s *Session) ReAuthenticate(token string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.getStatus() == Online {
		s.mu.Unlock()
		return ErrAlreadyOnline
	}
	s.token = token
	s.mu.Unlock()

	s.client.Post(func() {
		if s.isStopped() || !s.client.Connected() {
			return
		}
		switch s.getStatus() {
		case Online:
			return
		case Offline, Unauthorized, ReconnectFailed:
			s.transition(Connecting, "")
		}
		if s.authInFlight {
			// the outstanding attempt carries the old token
			s.reauthPending = true
			return
		}
		s.authenticate()
	})

	return nil
}

// Stop releases the session: stop hooks run, a goodbye is sent if the
// session is connected, and the transport is closed. Stop is idempotent and
// a stopped session cannot be started again.
func (s *Session) Stop() {
	if !s.markStopped() {
		return
	}

	s.client.Post(func() { s.shutdown(Offline, ReasonStopped) })
}

// Wait blocks until the background connect routine has returned.
func (s *Session) Wait() {
	s.waitRoutines()
}

func (s *Session) markStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	s.stopped = true
	s.cancel()

	return true
}

func (s *Session) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Session) shutdown(final Status, reason string) {
	s.handlerLock.Lock()
	hooks := make([]func(), len(s.stopHandlers))
	copy(hooks, s.stopHandlers)
	s.handlerLock.Unlock()

	for _, h := range hooks {
		h()
	}

	if sid := s.SessionID(); sid != "" && s.client.Connected() {
		bye := codec.Fields{"sessionId": sid, "reason": reason}
		err := s.client.SendRequest(codec.TypeBye, bye, func(err error, _ codec.Fields) {
			if err != nil {
				s.logger.WithError(err).Debug("Bye not acknowledged")
			}
		})
		if err != nil {
			s.logger.WithError(err).Warn("Sending bye")
		}
	}

	s.client.Disconnect()

	s.transition(final, reason)
}

func (s *Session) activeLinks() int {
	s.mu.Lock()
	links := s.links
	s.mu.Unlock()

	if links == nil {
		return 0
	}
	return links.ActiveLinks()
}

func (s *Session) authenticate() {
	if s.authInFlight {
		return
	}

	s.mu.Lock()
	msg := codec.Fields{
		"apiVersion":          codec.APIVersion,
		"clientVersion":       s.conf.ClientVersion,
		"deviceId":            s.conf.DeviceID,
		"platform":            s.conf.Platform,
		"platformVersion":     s.conf.PlatformVersion,
		"authenticationToken": s.token,
		"capabilities":        s.conf.Capabilities,
	}
	if s.sessionID != "" {
		msg["sessionId"] = s.sessionID
	}
	s.mu.Unlock()

	s.authInFlight = true

	if err := s.client.SendRequest(codec.TypeAuthenticate, msg, s.onAuthenticated); err != nil {
		s.authInFlight = false
		s.logger.WithError(err).Error("Encoding authentication")
		s.transition(Offline, ReasonFailed)
	}
}

func (s *Session) onAuthenticated(err error, resp codec.Fields) {
	s.authInFlight = false
	reauth := s.reauthPending
	s.reauthPending = false

	if s.isStopped() {
		return
	}

	if err == nil {
		sid := resp.String("sessionId")
		if sid == "" {
			sid = s.client.SessionID()
		}

		s.mu.Lock()
		s.sessionID = sid
		s.mu.Unlock()
		s.client.SetSessionID(sid)

		s.logger.WithField("session_id", sid).Debug("Authenticated")

		s.transition(Online, "")
		return
	}

	if errors.Is(err, protocol.ErrDisconnected) || errors.Is(err, protocol.ErrNotConnected) {
		// the disconnected event drives the transition
		return
	}

	status, _ := protocol.StatusOf(err)

	if reauth {
		s.logger.WithError(err).WithField("status", status).Debug("Authentication failed, retrying with the new token")
		s.authenticate()
		return
	}

	s.logger.WithError(err).WithField("status", status).Warn("Authentication failed")

	if s.getStatus() == Reconnected {
		reason := ReasonReconnectFailed
		if status == ReasonCapacity {
			reason = ReasonCapacity
		}
		s.transition(ReconnectFailed, reason)
		return
	}

	if status == ReasonUnauthorized {
		s.transition(Unauthorized, ReasonUnauthorized)
		return
	}

	reason := status
	if reason == "" {
		reason = ReasonFailed
	}
	s.transition(Offline, reason)
}

func (s *Session) onConnected() {
	if s.isStopped() {
		// the connect routine lost the race with Stop
		s.client.Disconnect()
		return
	}

	switch s.getStatus() {
	case Connecting:
		s.authenticate()
	case Offline:
		s.transition(Connecting, "")
		s.authenticate()
	case Reconnecting:
		s.transition(Reconnected, "")
		s.authenticate()
	default:
		s.logger.WithField("status", s.getStatus()).Debug("Connected event ignored")
	}
}

func (s *Session) onDisconnected() {
	if s.isStopped() {
		return
	}

	links := s.activeLinks()

	switch s.getStatus() {
	case Online:
		if links > 0 {
			s.transition(Reconnecting, "")
		} else {
			s.transition(Offline, ReasonDisconnected)
		}
	case Reconnecting, Reconnected:
		if links == 0 {
			s.critical()
			return
		}
		s.transition(Reconnecting, "")
	case Connecting:
		s.transition(Offline, ReasonDisconnected)
	}
}

func (s *Session) onReconnectFailed() {
	if s.isStopped() {
		return
	}

	switch s.getStatus() {
	case Reconnecting, Reconnected:
		s.transition(ReconnectFailed, ReasonReconnectFailed)
	default:
		s.transition(Offline, ReasonReconnectFailed)
	}
}

// LinkLost tells the session that a media link went down. Losing the last
// link while reconnecting is a critical network issue.
func (s *Session) LinkLost() {
	s.client.Post(func() {
		if s.isStopped() {
			return
		}
		switch s.getStatus() {
		case Reconnecting, Reconnected:
			if s.activeLinks() == 0 {
				s.critical()
			}
		}
	})
}

func (s *Session) critical() {
	s.logger.Error("All media links lost while reconnecting")

	s.markStopped()
	s.shutdown(CriticalNetworkIssue, ReasonCritical)
}

// transition must only be called on the dispatcher.
func (s *Session) transition(to Status, reason string) {
	from := s.getStatus()

	if from == to {
		return
	}
	if from == CriticalNetworkIssue && to == Offline {
		s.logger.Debug("Already offline after critical network issue")
		return
	}

	s.setStatus(to)

	s.logger.WithFields(logrus.Fields{
		"from":   from,
		"to":     to,
		"reason": reason,
	}).Info("Session status changed")

	s.handlerLock.Lock()
	statusHandlers := append([]func(Status){}, s.statusHandlers...)
	onlineHandlers := append([]func(string){}, s.onlineHandlers...)
	offlineHandlers := append([]func(string){}, s.offlineHandlers...)
	s.handlerLock.Unlock()

	for _, h := range statusHandlers {
		h(to)
	}

	if to == Online && from != Reconnected {
		sid := s.SessionID()
		for _, h := range onlineHandlers {
			h(sid)
		}
	}

	if to.down() && !from.down() {
		for _, h := range offlineHandlers {
			h(reason)
		}
	}
}
