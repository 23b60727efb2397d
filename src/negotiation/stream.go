package negotiation

import (
	"sync"

	"github.com/mosaicnetworks/rtcsession/src/codec"
	"github.com/sirupsen/logrus"
)

// DataQuality is reported by the backend when the media quality of a stream
// changes.
type DataQuality struct {
	Status string
	Reason string
}

// Stream is a registered publish or subscribe stream.
type Stream struct {
	engine      *Engine
	id          string
	direction   Direction
	kind        Kind
	manifestURL string
	link        Link
	trickle     bool
	logger      *logrus.Entry

	mu              sync.Mutex
	stopped         bool
	endReason       string
	linkState       LinkState
	endedHandlers   []func(reason string)
	qualityHandlers []func(DataQuality)

	// dispatcher only
	candidates    []*Candidate
	sending       bool
	gatheringDone bool
}

// ID returns the stream id assigned by the backend.
func (s *Stream) ID() string {
	return s.id
}

// Direction returns whether the stream is published or subscribed.
func (s *Stream) Direction() Direction {
	return s.direction
}

// Kind returns the delivery of the stream.
func (s *Stream) Kind() Kind {
	return s.kind
}

// ManifestURL returns the URL of a push-relay or manifest delivery, or "" for
// an interactive stream.
func (s *Stream) ManifestURL() string {
	return s.manifestURL
}

// LinkState returns the last state reported by the media link.
func (s *Stream) LinkState() LinkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linkState
}

// Stopped reports whether the stream has ended.
func (s *Stream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// OnEnded registers a callback invoked once with the reason the stream ended.
// If the stream has already ended, f is called right away.
func (s *Stream) OnEnded(f func(reason string)) {
	s.mu.Lock()
	if s.stopped {
		reason := s.endReason
		s.mu.Unlock()
		f(reason)
		return
	}
	s.endedHandlers = append(s.endedHandlers, f)
	s.mu.Unlock()
}

// OnDataQualityChanged registers a callback for quality changes.
func (s *Stream) OnDataQualityChanged(f func(DataQuality)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.qualityHandlers = append(s.qualityHandlers, f)
}

// Stop ends the stream. Only the first call has an effect.
func (s *Stream) Stop(reason string) {
	s.engine.client.Post(func() { s.end(reason) })
}

// Stats returns the counters of the media link.
func (s *Stream) Stats() (Stats, error) {
	if s.link == nil {
		return Stats{}, ErrNoLink
	}
	if s.Stopped() {
		return Stats{}, ErrStreamStopped
	}
	return s.link.Stats()
}

// LimitBandwidth caps the outgoing bitrate of a published stream.
func (s *Stream) LimitBandwidth(bps uint64) error {
	if s.direction != Publish {
		return ErrNotPublisher
	}
	if s.link == nil {
		return ErrNoLink
	}
	if s.Stopped() {
		return ErrStreamStopped
	}
	return s.link.LimitBandwidth(bps)
}

// end runs on the dispatcher. The link is closed and the ended callbacks run
// exactly once, however many times end is called.
func (s *Stream) end(reason string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	reason = normalizeReason(reason)
	s.stopped = true
	s.endReason = reason
	handlers := make([]func(string), len(s.endedHandlers))
	copy(handlers, s.endedHandlers)
	s.mu.Unlock()

	s.logger.WithField("reason", reason).Info("Stream ended")

	e := s.engine
	e.streams.remove(s.id)
	e.metrics.setStreams(e.streams.len())

	if s.link != nil {
		if err := s.link.Close(); err != nil {
			s.logger.WithError(err).Warn("Closing media link")
		}
	}

	for _, h := range handlers {
		h(reason)
	}

	e.destroy(s.id, reason)

	if s.link != nil {
		e.session.LinkLost()
	}
}

func (s *Stream) qualityChanged(q DataQuality) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	handlers := make([]func(DataQuality), len(s.qualityHandlers))
	copy(handlers, s.qualityHandlers)
	s.mu.Unlock()

	for _, h := range handlers {
		h(q)
	}
}

func (s *Stream) setLinkState(st LinkState) {
	s.mu.Lock()
	s.linkState = st
	s.mu.Unlock()

	s.logger.WithField("state", st).Debug("Media link state changed")

	if st == LinkFailed {
		s.end(ReasonFailed)
	}
}

// addCandidate queues a local candidate, or the end of gathering when c is
// nil, and sends the queue one request at a time.
func (s *Stream) addCandidate(c *Candidate) {
	if !s.trickle || s.gatheringDone || s.Stopped() {
		return
	}
	if c == nil {
		s.gatheringDone = true
	}
	s.candidates = append(s.candidates, c)
	s.flushCandidates()
}

func (s *Stream) flushCandidates() {
	if s.sending || len(s.candidates) == 0 || s.Stopped() {
		return
	}

	c := s.candidates[0]
	s.candidates = s.candidates[1:]

	msg := codec.Fields{"streamId": s.id}
	if c == nil {
		msg["candidates"] = []codec.Fields{}
		msg["options"] = []string{OptionCompleted}
	} else {
		msg["candidates"] = []codec.Fields{{
			"candidate":     c.Candidate,
			"sdpMid":        c.SDPMid,
			"sdpMLineIndex": c.SDPMLineIndex,
		}}
	}

	s.sending = true
	err := s.engine.client.SendRequest(codec.TypeAddIceCandidates, msg, func(err error, _ codec.Fields) {
		s.sending = false
		if err != nil {
			s.logger.WithError(err).Warn("Sending candidate")
			s.end(ReasonFailed)
			return
		}
		s.engine.metrics.candidate()
		s.flushCandidates()
	})
	if err != nil {
		s.sending = false
		s.logger.WithError(err).Error("Encoding candidate")
		s.end(ReasonFailed)
	}
}
