package negotiation

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/mosaicnetworks/rtcsession/src/session"
)

const testAnswer = "v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"

type fakeSession struct {
	status int32
	id     string
	lost   int32
}

func (s *fakeSession) Status() session.Status {
	return session.Status(atomic.LoadInt32(&s.status))
}

func (s *fakeSession) setStatus(st session.Status) {
	atomic.StoreInt32(&s.status, int32(st))
}

func (s *fakeSession) SessionID() string {
	return s.id
}

func (s *fakeSession) LinkLost() {
	atomic.AddInt32(&s.lost, 1)
}

type fakeMedia struct {
	sync.Mutex
	links  []*fakeLink
	newErr error

	setRemoteErr error
}

func (m *fakeMedia) NewLink(conf LinkConfig) (Link, error) {
	m.Lock()
	defer m.Unlock()

	if m.newErr != nil {
		return nil, m.newErr
	}

	l := &fakeLink{conf: conf, setRemoteErr: m.setRemoteErr}
	m.links = append(m.links, l)

	return l, nil
}

func (m *fakeMedia) all() []*fakeLink {
	m.Lock()
	defer m.Unlock()
	res := make([]*fakeLink, len(m.links))
	copy(res, m.links)
	return res
}

type fakeLink struct {
	sync.Mutex
	conf         LinkConfig
	remote       string
	local        string
	bandwidth    uint64
	closed       int32
	setRemoteErr error

	onCandidate func(*Candidate)
	onState     func(LinkState)
}

func (l *fakeLink) SetRemoteDescription(sdpType, sdp string) error {
	if l.setRemoteErr != nil {
		return l.setRemoteErr
	}
	if sdpType != "offer" {
		return errors.New("expected an offer")
	}
	l.Lock()
	l.remote = sdp
	l.Unlock()
	return nil
}

func (l *fakeLink) CreateAnswer() (string, error) {
	return testAnswer, nil
}

func (l *fakeLink) SetLocalDescription(sdpType, sdp string) error {
	l.Lock()
	l.local = sdp
	l.Unlock()
	return nil
}

func (l *fakeLink) OnCandidate(f func(*Candidate)) {
	l.Lock()
	defer l.Unlock()
	l.onCandidate = f
}

func (l *fakeLink) OnStateChange(f func(LinkState)) {
	l.Lock()
	defer l.Unlock()
	l.onState = f
}

func (l *fakeLink) Stats() (Stats, error) {
	return Stats{BytesSent: 100, PacketsSent: 2}, nil
}

func (l *fakeLink) LimitBandwidth(bps uint64) error {
	l.Lock()
	defer l.Unlock()
	l.bandwidth = bps
	return nil
}

func (l *fakeLink) Close() error {
	atomic.AddInt32(&l.closed, 1)
	return nil
}

func (l *fakeLink) emitCandidate(c *Candidate) {
	l.Lock()
	f := l.onCandidate
	l.Unlock()
	f(c)
}

func (l *fakeLink) emitState(s LinkState) {
	l.Lock()
	f := l.onState
	l.Unlock()
	f(s)
}

func (l *fakeLink) descriptions() (string, string) {
	l.Lock()
	defer l.Unlock()
	return l.remote, l.local
}

func (l *fakeLink) closeCount() int {
	return int(atomic.LoadInt32(&l.closed))
}
