package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mosaicnetworks/rtcsession/src/codec"
	"github.com/mosaicnetworks/rtcsession/src/common"
	"github.com/mosaicnetworks/rtcsession/src/protocol"
)

type fixedResolver struct {
	uri string
	err error
}

func (r fixedResolver) Resolve(ctx context.Context, base string) (string, time.Duration, error) {
	if r.err != nil {
		return "", 0, r.err
	}
	return r.uri, 10 * time.Millisecond, nil
}

type linkCount struct {
	n int32
}

func (l *linkCount) ActiveLinks() int {
	return int(atomic.LoadInt32(&l.n))
}

func (l *linkCount) set(n int) {
	atomic.StoreInt32(&l.n, int32(n))
}

type harness struct {
	session    *Session
	client     *protocol.Client
	backend    *protocol.InmemBackend
	transport  *protocol.InmemTransport
	dispatcher *common.Dispatcher
	links      *linkCount

	statuses chan Status
	online   chan string
	offline  chan string
	stops    int32
}

func newHarness(t *testing.T, resolveErr error) *harness {
	logger := common.NewTestEntry(t, common.TestLogLevel)
	registry := codec.NewProtocolRegistry()
	trans := protocol.NewInmemTransport()
	backend := protocol.NewInmemBackend(registry, trans, logger.WithField("prefix", "backend"))
	dispatcher := common.NewDispatcher(logger)

	client := protocol.NewClient(registry, trans, dispatcher, protocol.Config{
		Reconnect: protocol.ReconnectPolicy{MaxRetries: 3, InitialInterval: time.Millisecond},
	}, logger.WithField("prefix", "client"))

	sess := NewSession(Config{
		Endpoint:      "inmem://backend",
		ClientVersion: "test",
		Platform:      "linux",
	}, client, fixedResolver{uri: "inmem://backend", err: resolveErr}, logger.WithField("prefix", "session"))

	h := &harness{
		session:    sess,
		client:     client,
		backend:    backend,
		transport:  trans,
		dispatcher: dispatcher,
		links:      &linkCount{},
		statuses:   make(chan Status, 64),
		online:     make(chan string, 8),
		offline:    make(chan string, 8),
	}

	sess.SetLinkMonitor(h.links)
	sess.OnStatus(func(s Status) { h.statuses <- s })
	sess.OnOnline(func(sid string) { h.online <- sid })
	sess.OnOffline(func(reason string) { h.offline <- reason })
	sess.OnStop(func() { atomic.AddInt32(&h.stops, 1) })

	t.Cleanup(func() {
		sess.Stop()
		dispatcher.Flush()
		sess.Wait()
		backend.Close()
		dispatcher.Close()
	})

	return h
}

func (h *harness) expectStatuses(t *testing.T, want ...Status) {
	t.Helper()
	for i, w := range want {
		select {
		case s := <-h.statuses:
			if s != w {
				t.Fatalf("status %d should be %s, got %s", i, w, s)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timeout waiting for status %s", w)
		}
	}
}

func expectString(t *testing.T, ch chan string, want string) {
	t.Helper()
	select {
	case s := <-ch:
		if s != want {
			t.Fatalf("expected %q, got %q", want, s)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timeout waiting for %q", want)
	}
}

func (h *harness) expectQuiet(t *testing.T) {
	t.Helper()
	h.dispatcher.Flush()
	select {
	case s := <-h.statuses:
		t.Fatalf("unexpected status %s", s)
	case sid := <-h.online:
		t.Fatalf("unexpected online callback %q", sid)
	case reason := <-h.offline:
		t.Fatalf("unexpected offline callback %q", reason)
	default:
	}
}

func authOK(sid string) protocol.BackendHandler {
	return func(req protocol.ReceivedRequest) (string, codec.Fields) {
		return codec.TypeAuthenticateResponse, codec.Fields{"status": "ok", "sessionId": sid}
	}
}

// authThen answers the first authentication with ok, and the following ones
// with next.
func authThen(sid string, next protocol.BackendHandler) protocol.BackendHandler {
	var n int32
	return func(req protocol.ReceivedRequest) (string, codec.Fields) {
		if atomic.AddInt32(&n, 1) == 1 {
			return authOK(sid)(req)
		}
		return next(req)
	}
}

func authStatus(status string) protocol.BackendHandler {
	return func(req protocol.ReceivedRequest) (string, codec.Fields) {
		return codec.TypeAuthenticateResponse, codec.Fields{"status": status}
	}
}

func noReply(req protocol.ReceivedRequest) (string, codec.Fields) {
	return "", nil
}

func TestStartOnline(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.Handle(codec.TypeAuthenticate, authOK("sess-1"))

	if err := h.session.Start("tok"); err != nil {
		t.Fatal(err)
	}

	h.expectStatuses(t, Connecting, Online)
	expectString(t, h.online, "sess-1")

	if sid := h.session.SessionID(); sid != "sess-1" {
		t.Fatalf("session id should be sess-1, got %q", sid)
	}
	if sid := h.client.SessionID(); sid != "sess-1" {
		t.Fatalf("client should carry the session id, got %q", sid)
	}

	auth := h.backend.Requests(codec.TypeAuthenticate)[0].Message
	if auth.String("authenticationToken") != "tok" {
		t.Fatalf("wrong token in %v", auth)
	}
	if auth.Int64("apiVersion") != codec.APIVersion {
		t.Fatalf("wrong api version in %v", auth)
	}
	if auth.String("deviceId") == "" {
		t.Fatal("a device id should be generated")
	}
	if auth.Has("sessionId") {
		t.Fatal("first authentication must not carry a session id")
	}

	if err := h.session.Start("tok"); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
	if err := h.session.ReAuthenticate("other"); !errors.Is(err, ErrAlreadyOnline) {
		t.Fatalf("expected ErrAlreadyOnline, got %v", err)
	}

	h.expectQuiet(t)
}

func TestUnauthorizedThenReAuthenticate(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.Handle(codec.TypeAuthenticate, func(req protocol.ReceivedRequest) (string, codec.Fields) {
		if req.Message.String("authenticationToken") == "good" {
			return authOK("sess-2")(req)
		}
		return authStatus("unauthorized")(req)
	})

	h.session.Start("bad")

	h.expectStatuses(t, Connecting, Unauthorized)
	expectString(t, h.offline, ReasonUnauthorized)

	if err := h.session.ReAuthenticate("good"); err != nil {
		t.Fatal(err)
	}

	h.expectStatuses(t, Connecting, Online)
	expectString(t, h.online, "sess-2")

	reqs := h.backend.Requests(codec.TypeAuthenticate)
	if len(reqs) != 2 || reqs[1].Message.String("authenticationToken") != "good" {
		t.Fatalf("second authentication should use the new token: %v", reqs)
	}
}

func TestReAuthenticateDuringAuthentication(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.Handle(codec.TypeAuthenticate, func(req protocol.ReceivedRequest) (string, codec.Fields) {
		if req.Message.String("authenticationToken") == "good" {
			return authOK("sess-3")(req)
		}
		return noReply(req)
	})

	h.session.Start("bad")
	h.expectStatuses(t, Connecting)

	reqs, err := h.backend.WaitRequests(codec.TypeAuthenticate, 1, 3*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	if err := h.session.ReAuthenticate("good"); err != nil {
		t.Fatal(err)
	}
	h.dispatcher.Flush()

	if err := h.backend.Reply(reqs[0], codec.TypeAuthenticateResponse, codec.Fields{"status": "unauthorized"}); err != nil {
		t.Fatal(err)
	}

	h.expectStatuses(t, Online)
	expectString(t, h.online, "sess-3")

	reqs = h.backend.Requests(codec.TypeAuthenticate)
	if len(reqs) != 2 || reqs[1].Message.String("authenticationToken") != "good" {
		t.Fatalf("the new token should be sent once the pending attempt fails: %v", reqs)
	}

	h.expectQuiet(t)
}

func TestResolveFailure(t *testing.T) {
	h := newHarness(t, errors.New("no endpoint"))

	h.session.Start("tok")

	h.expectStatuses(t, Connecting, Offline)
	expectString(t, h.offline, ReasonUnreachable)
}

func TestDisconnectWithoutLinks(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.Handle(codec.TypeAuthenticate, authOK("sess-1"))

	h.session.Start("tok")
	h.expectStatuses(t, Connecting, Online)
	expectString(t, h.online, "sess-1")

	h.backend.DropConnections()

	h.expectStatuses(t, Offline, Connecting, Online)
	expectString(t, h.offline, ReasonDisconnected)
	expectString(t, h.online, "sess-1")

	reqs := h.backend.Requests(codec.TypeAuthenticate)
	if len(reqs) != 2 {
		t.Fatalf("expected 2 authentications, got %d", len(reqs))
	}
	if sid := reqs[1].Message.String("sessionId"); sid != "sess-1" {
		t.Fatalf("re-authentication should carry the previous session id, got %q", sid)
	}
}

func TestReconnectWithLinks(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.Handle(codec.TypeAuthenticate, authOK("sess-1"))
	h.links.set(1)

	h.session.Start("tok")
	h.expectStatuses(t, Connecting, Online)
	expectString(t, h.online, "sess-1")

	h.backend.DropConnections()

	h.expectStatuses(t, Reconnecting, Reconnected, Online)
	// the online period continues across the reconnect
	h.expectQuiet(t)

	reqs := h.backend.Requests(codec.TypeAuthenticate)
	if len(reqs) != 2 {
		t.Fatalf("expected 2 authentications, got %d", len(reqs))
	}
	if m := reqs[1].Message; m.String("sessionId") != "sess-1" || m.String("authenticationToken") != "tok" {
		t.Fatalf("re-authentication should reuse session id and token: %v", m)
	}
}

func TestReAuthenticationRefused(t *testing.T) {
	testCases := []struct {
		name   string
		status string
		reason string
	}{
		{"capacity", "capacity", ReasonCapacity},
		{"unauthorized", "unauthorized", ReasonReconnectFailed},
		{"other", "failed", ReasonReconnectFailed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.backend.Handle(codec.TypeAuthenticate, authThen("sess-1", authStatus(tc.status)))
			h.links.set(1)

			h.session.Start("tok")
			h.expectStatuses(t, Connecting, Online)

			h.backend.DropConnections()

			h.expectStatuses(t, Reconnecting, Reconnected, ReconnectFailed)
			expectString(t, h.offline, tc.reason)
		})
	}
}

func TestRedialExhausted(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.Handle(codec.TypeAuthenticate, authOK("sess-1"))
	h.links.set(1)

	h.session.Start("tok")
	h.expectStatuses(t, Connecting, Online)

	h.transport.SetDialError(errors.New("connection refused"))
	h.backend.DropConnections()

	h.expectStatuses(t, Reconnecting, ReconnectFailed)
	expectString(t, h.offline, ReasonReconnectFailed)
}

func TestCriticalNetworkIssue(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.Handle(codec.TypeAuthenticate, authThen("sess-1", noReply))
	h.links.set(1)

	h.session.Start("tok")
	h.expectStatuses(t, Connecting, Online)

	h.backend.DropConnections()
	h.expectStatuses(t, Reconnecting, Reconnected)

	if _, err := h.backend.WaitRequests(codec.TypeAuthenticate, 2, 3*time.Second); err != nil {
		t.Fatal(err)
	}

	h.links.set(0)
	h.backend.DropConnections()

	h.expectStatuses(t, CriticalNetworkIssue)
	expectString(t, h.offline, ReasonCritical)

	// the forced stop is final: no offline transition follows
	h.session.Stop()
	h.expectQuiet(t)

	if s := h.session.Status(); s != CriticalNetworkIssue {
		t.Fatalf("status should stay critical, got %s", s)
	}
	if n := atomic.LoadInt32(&h.stops); n != 1 {
		t.Fatalf("stop hooks should run once, ran %d times", n)
	}
	if err := h.session.Start("tok"); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestLinkLostWhileReconnecting(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.Handle(codec.TypeAuthenticate, authThen("sess-1", noReply))
	h.links.set(1)

	h.session.Start("tok")
	h.expectStatuses(t, Connecting, Online)

	h.backend.DropConnections()
	h.expectStatuses(t, Reconnecting, Reconnected)

	h.links.set(0)
	h.session.LinkLost()

	h.expectStatuses(t, CriticalNetworkIssue)
	expectString(t, h.offline, ReasonCritical)
}

func TestLinkLostWhileOnline(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.Handle(codec.TypeAuthenticate, authOK("sess-1"))

	h.session.Start("tok")
	h.expectStatuses(t, Connecting, Online)
	expectString(t, h.online, "sess-1")

	h.session.LinkLost()
	h.expectQuiet(t)
}

func TestStop(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.Handle(codec.TypeAuthenticate, authOK("sess-1"))
	h.backend.Handle(codec.TypeBye, func(req protocol.ReceivedRequest) (string, codec.Fields) {
		return codec.TypeByeResponse, codec.Fields{"status": "ok"}
	})

	h.session.Start("tok")
	h.expectStatuses(t, Connecting, Online)
	expectString(t, h.online, "sess-1")

	h.session.Stop()
	h.session.Stop()

	h.expectStatuses(t, Offline)
	expectString(t, h.offline, ReasonStopped)

	byes, err := h.backend.WaitRequests(codec.TypeBye, 1, 3*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if m := byes[0].Message; m.String("sessionId") != "sess-1" || m.String("reason") != ReasonStopped {
		t.Fatalf("unexpected bye %v", m)
	}

	h.expectQuiet(t)

	if n := atomic.LoadInt32(&h.stops); n != 1 {
		t.Fatalf("stop hooks should run once, ran %d times", n)
	}
	if h.client.Connected() {
		t.Fatal("client should be disconnected")
	}
	if err := h.session.Start("tok"); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if err := h.session.ReAuthenticate("tok"); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestStatusString(t *testing.T) {
	want := map[Status]string{
		Offline:              "offline",
		Connecting:           "connecting",
		Online:               "online",
		Reconnecting:         "reconnecting",
		Reconnected:          "reconnected",
		Unauthorized:         "unauthorized",
		ReconnectFailed:      "reconnect-failed",
		CriticalNetworkIssue: "critical-network-issue",
		Status(42):           "unknown",
	}
	for s, w := range want {
		if s.String() != w {
			t.Errorf("%d: expected %q, got %q", s, w, s.String())
		}
	}
}
