// Package sdk assembles the components of an rtcsession client from a
// config.Config: endpoint resolver, protocol client, session, negotiation
// engine, media transport and the optional status service.
package sdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/mosaicnetworks/rtcsession/src/codec"
	"github.com/mosaicnetworks/rtcsession/src/common"
	"github.com/mosaicnetworks/rtcsession/src/config"
	"github.com/mosaicnetworks/rtcsession/src/media/webrtc"
	"github.com/mosaicnetworks/rtcsession/src/negotiation"
	"github.com/mosaicnetworks/rtcsession/src/protocol"
	"github.com/mosaicnetworks/rtcsession/src/resolver"
	"github.com/mosaicnetworks/rtcsession/src/service"
	"github.com/mosaicnetworks/rtcsession/src/session"
	"github.com/mosaicnetworks/rtcsession/src/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const cancelGrace = time.Second

var (
	// ErrNotInitialized is returned by operations called before Init.
	ErrNotInitialized = errors.New("sdk not initialized")

	// ErrOffline is returned by WaitOnline when the session goes down before
	// it comes online.
	ErrOffline = errors.New("session offline")
)

// SDK is a complete client. The exported components may be set before Init
// to replace the defaults, which is how tests substitute in-memory fakes.
type SDK struct {
	Config *config.Config

	Registry   *prometheus.Registry
	Dispatcher *common.Dispatcher
	Codec      *codec.Registry
	Transport  protocol.Transport
	Resolver   session.Resolver
	Media      negotiation.MediaTransport
	Client     *protocol.Client
	Session    *session.Session
	Engine     *negotiation.Engine
	Service    *service.Service

	online  chan struct{}
	offline chan string

	logger *logrus.Entry
}

// NewSDK creates an SDK. Nothing is built until Init is called.
func NewSDK(conf *config.Config) *SDK {
	return &SDK{
		Config:  conf,
		online:  make(chan struct{}, 1),
		offline: make(chan string, 1),
		logger:  conf.Logger(),
	}
}

func (s *SDK) initRegistry() {
	if s.Registry == nil {
		s.Registry = prometheus.NewRegistry()
	}
}

func (s *SDK) initTransport() {
	if s.Transport == nil {
		s.Transport = protocol.NewWebsocketTransport(s.Config.HandshakeTimeout)
	}
}

func (s *SDK) initResolver() {
	if s.Resolver != nil {
		return
	}

	s.Resolver = resolver.NewResolver(resolver.Config{
		Version:          s.Config.DiscoveryVersion,
		ProbeAttempts:    s.Config.ProbeAttempts,
		DiscoveryRetries: nonNegative(s.Config.DiscoveryRetries),
		RetryInterval:    s.Config.RetryInterval,
		HTTPClient:       &http.Client{Timeout: s.Config.ProbeTimeout},
		Registerer:       s.Registry,
	}, s.logger)
}

func (s *SDK) initClient() {
	if s.Dispatcher == nil {
		s.Dispatcher = common.NewDispatcher(s.logger.WithField("component", "dispatcher"))
	}
	if s.Codec == nil {
		s.Codec = codec.NewProtocolRegistry()
	}

	s.Client = protocol.NewClient(
		s.Codec,
		s.Transport,
		s.Dispatcher,
		protocol.Config{
			Reconnect: protocol.ReconnectPolicy{
				MaxRetries:      nonNegative(s.Config.ReconnectRetries),
				InitialInterval: s.Config.ReconnectInterval,
				MaxInterval:     s.Config.ReconnectMaxInterval,
			},
			Registerer: s.Registry,
		},
		s.logger.WithField("component", "client"),
	)
}

func (s *SDK) initSession() {
	s.Session = session.NewSession(
		session.Config{
			Endpoint:        s.Config.Endpoint,
			ClientVersion:   version.Version,
			DeviceID:        s.Config.DeviceID,
			Platform:        s.Config.Platform,
			PlatformVersion: s.Config.PlatformVersion,
			Capabilities:    s.Config.Capabilities,
		},
		s.Client,
		s.Resolver,
		s.logger.WithField("component", "session"),
	)

	s.Session.OnOnline(func(sessionID string) {
		select {
		case s.online <- struct{}{}:
		default:
		}
	})

	s.Session.OnOffline(func(reason string) {
		select {
		case s.offline <- reason:
		default:
		}
	})
}

func (s *SDK) initEngine() error {
	caps := negotiation.Capabilities{
		PreferManifestB:   s.Config.PreferManifestB,
		H264ProfileLevels: s.Config.H264ProfileLevels,
	}
	for _, k := range s.Config.DeliveryKinds {
		kind, err := negotiation.ParseKind(k)
		if err != nil {
			return err
		}
		caps.Kinds = append(caps.Kinds, kind)
	}

	var pattern *regexp.Regexp
	if s.Config.ManifestPattern != "" {
		var err error
		pattern, err = regexp.Compile(s.Config.ManifestPattern)
		if err != nil {
			return fmt.Errorf("manifest pattern: %w", err)
		}
	}

	if s.Media == nil {
		s.Media = webrtc.NewTransport(s.Config.ICEServers(), s.logger.WithField("component", "media"))
	}

	s.Engine = negotiation.NewEngine(
		s.Client,
		s.Session,
		s.Media,
		negotiation.Config{
			Capabilities:        caps,
			ManifestPattern:     pattern,
			ManifestReplacement: s.Config.ManifestReplacement,
			Registerer:          s.Registry,
		},
		s.logger.WithField("component", "engine"),
	)

	s.Session.SetLinkMonitor(s.Engine)
	s.Session.OnStop(func() { s.Engine.StopAll(negotiation.ReasonEnded) })

	return nil
}

func (s *SDK) initService() {
	if !s.Config.NoService && s.Config.ServiceAddr != "" {
		s.Service = service.NewService(
			s.Config.ServiceAddr,
			s.Session,
			s.Engine,
			s.Registry,
			s.logger.WithField("component", "service"),
		)
	}
}

// Init builds every component.
func (s *SDK) Init() error {
	s.initRegistry()
	s.initTransport()
	s.initResolver()
	s.initClient()
	s.initSession()

	if err := s.initEngine(); err != nil {
		return err
	}

	s.initService()

	return nil
}

// Start starts the status service, if any, and the session. Progress is
// reported through the session observers and WaitOnline.
func (s *SDK) Start(token string) error {
	if s.Session == nil {
		return ErrNotInitialized
	}

	if s.Service != nil {
		go s.Service.Serve()
	}

	return s.Session.Start(token)
}

// WaitOnline blocks until the session is online, goes down, or ctx expires.
func (s *SDK) WaitOnline(ctx context.Context) error {
	if s.Session == nil {
		return ErrNotInitialized
	}

	for {
		if s.Session.Status() == session.Online {
			return nil
		}

		select {
		case <-s.online:
		case reason := <-s.offline:
			if s.Session.Status() == session.Online {
				return nil
			}
			return fmt.Errorf("%w: %s", ErrOffline, reason)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Publish negotiates an outgoing stream and blocks until the negotiation
// completes. It must not be called from a session or stream callback.
func (s *SDK) Publish(ctx context.Context, opts negotiation.Options) negotiation.Result {
	return s.negotiate(ctx, negotiation.Publish, opts)
}

// Subscribe negotiates an incoming stream and blocks until the negotiation
// completes. It must not be called from a session or stream callback.
func (s *SDK) Subscribe(ctx context.Context, opts negotiation.Options) negotiation.Result {
	return s.negotiate(ctx, negotiation.Subscribe, opts)
}

func (s *SDK) negotiate(ctx context.Context, dir negotiation.Direction, opts negotiation.Options) negotiation.Result {
	if s.Engine == nil {
		return negotiation.Result{Status: negotiation.StatusFailed, Err: ErrNotInitialized}
	}

	if opts.Timeout == 0 {
		opts.Timeout = s.Config.NegotiationTimeout
	}

	resCh := make(chan negotiation.Result, 1)
	done := func(r negotiation.Result) { resCh <- r }

	if dir == negotiation.Publish {
		s.Engine.Publish(ctx, opts, done)
	} else {
		s.Engine.Subscribe(ctx, opts, done)
	}

	select {
	case r := <-resCh:
		return r
	case <-ctx.Done():
	}

	// the engine completes cancelled negotiations unless it is shutting down
	select {
	case r := <-resCh:
		return r
	case <-time.After(cancelGrace):
		return negotiation.Result{Status: negotiation.StatusFailed, Err: ctx.Err()}
	}
}

// ReAuthenticate replaces the session token and authenticates again.
func (s *SDK) ReAuthenticate(token string) error {
	if s.Session == nil {
		return ErrNotInitialized
	}
	return s.Session.ReAuthenticate(token)
}

// Status returns the session status.
func (s *SDK) Status() session.Status {
	if s.Session == nil {
		return session.Offline
	}
	return s.Session.Status()
}

// Stop ends every stream, says goodbye, closes the transport and the status
// service, and waits for the queued callbacks to run. The SDK cannot be
// restarted. Stop must not be called from a session or stream callback.
func (s *SDK) Stop() {
	if s.Session == nil {
		return
	}

	s.Session.Stop()
	s.Dispatcher.Flush()
	s.Session.Wait()

	if s.Service != nil {
		if err := s.Service.Close(context.Background()); err != nil {
			s.logger.WithError(err).Warn("Closing service")
		}
	}

	s.Dispatcher.Flush()
	s.Dispatcher.Close()
}

func nonNegative(n int) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}
