// Package webrtc adapts pion peer connections to the negotiation engine's
// MediaTransport interface.
package webrtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mosaicnetworks/rtcsession/src/negotiation"
	pion "github.com/pion/webrtc/v2"
	"github.com/sirupsen/logrus"
)

// ErrBandwidthUnsupported is returned by LimitBandwidth. Pion does not expose
// sender bitrate caps.
var ErrBandwidthUnsupported = errors.New("bandwidth limits are not supported by this media transport")

// Transport implements negotiation.MediaTransport with pion peer connections.
type Transport struct {
	api    *pion.API
	config pion.Configuration
	logger *logrus.Entry
}

// NewTransport creates a Transport using the given STUN/TURN servers. Links
// answer with pion's default audio and video codecs.
func NewTransport(iceServers []pion.ICEServer, logger *logrus.Entry) *Transport {
	m := pion.MediaEngine{}
	m.RegisterDefaultCodecs()

	config := pion.Configuration{
		ICEServers: iceServers,
	}

	return &Transport{
		api:    pion.NewAPI(pion.WithMediaEngine(m)),
		config: config,
		logger: logger,
	}
}

// NewLink implements the negotiation.MediaTransport interface.
func (t *Transport) NewLink(conf negotiation.LinkConfig) (negotiation.Link, error) {
	pc, err := t.api.NewPeerConnection(t.config)
	if err != nil {
		return nil, err
	}

	return &link{
		pc: pc,
		logger: t.logger.WithFields(logrus.Fields{
			"stream_id": conf.StreamID,
			"direction": conf.Direction,
		}),
	}, nil
}

type link struct {
	pc     *pion.PeerConnection
	logger *logrus.Entry

	closeOnce sync.Once
	closeErr  error
}

func sdpType(s string) (pion.SDPType, error) {
	switch s {
	case "offer":
		return pion.SDPTypeOffer, nil
	case "answer":
		return pion.SDPTypeAnswer, nil
	case "pranswer":
		return pion.SDPTypePranswer, nil
	case "rollback":
		return pion.SDPTypeRollback, nil
	default:
		return pion.SDPType(0), fmt.Errorf("unknown description type %q", s)
	}
}

func (l *link) SetRemoteDescription(typ, sdp string) error {
	t, err := sdpType(typ)
	if err != nil {
		return err
	}
	return l.pc.SetRemoteDescription(pion.SessionDescription{
		Type: t,
		SDP:  sdp,
	})
}

func (l *link) CreateAnswer() (string, error) {
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	return answer.SDP, nil
}

// SetLocalDescription commits the answer and starts gathering.
func (l *link) SetLocalDescription(typ, sdp string) error {
	t, err := sdpType(typ)
	if err != nil {
		return err
	}
	return l.pc.SetLocalDescription(pion.SessionDescription{
		Type: t,
		SDP:  sdp,
	})
}

func (l *link) OnCandidate(f func(*negotiation.Candidate)) {
	l.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			f(nil)
			return
		}

		init := c.ToJSON()
		cand := &negotiation.Candidate{Candidate: init.Candidate}
		if init.SDPMid != nil {
			cand.SDPMid = *init.SDPMid
		}
		if init.SDPMLineIndex != nil {
			cand.SDPMLineIndex = *init.SDPMLineIndex
		}

		f(cand)
	})
}

func (l *link) OnStateChange(f func(negotiation.LinkState)) {
	l.pc.OnICEConnectionStateChange(func(s pion.ICEConnectionState) {
		l.logger.WithField("state", s.String()).Debug("ICE Connection State has changed")
		f(linkState(s))
	})
}

func linkState(s pion.ICEConnectionState) negotiation.LinkState {
	switch s {
	case pion.ICEConnectionStateChecking:
		return negotiation.LinkConnecting
	case pion.ICEConnectionStateConnected, pion.ICEConnectionStateCompleted:
		return negotiation.LinkConnected
	case pion.ICEConnectionStateDisconnected:
		return negotiation.LinkDisconnected
	case pion.ICEConnectionStateFailed:
		return negotiation.LinkFailed
	case pion.ICEConnectionStateClosed:
		return negotiation.LinkClosed
	default:
		return negotiation.LinkNew
	}
}

// Stats sums the transport and data channel counters of the connection.
func (l *link) Stats() (negotiation.Stats, error) {
	var res negotiation.Stats

	for _, s := range l.pc.GetStats() {
		switch st := s.(type) {
		case pion.TransportStats:
			res.BytesSent += st.BytesSent
			res.BytesReceived += st.BytesReceived
		case pion.DataChannelStats:
			res.PacketsSent += uint64(st.MessagesSent)
			res.PacketsReceived += uint64(st.MessagesReceived)
		}
	}

	return res, nil
}

func (l *link) LimitBandwidth(bps uint64) error {
	return ErrBandwidthUnsupported
}

func (l *link) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.pc.Close()
	})
	return l.closeErr
}
