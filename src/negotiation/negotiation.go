package negotiation

import (
	"context"
	"errors"
	"time"

	"github.com/mosaicnetworks/rtcsession/src/codec"
	"github.com/mosaicnetworks/rtcsession/src/protocol"
	"github.com/mosaicnetworks/rtcsession/src/session"
	"github.com/sirupsen/logrus"
)

var errLinkFailed = errors.New("media link failed during negotiation")

// negotiation carries one publish or subscribe from setup to registration.
// Apart from watch, its methods run on the dispatcher.
type negotiation struct {
	engine    *Engine
	ctx       context.Context
	cancel    context.CancelFunc
	direction Direction
	opts      Options
	done      func(Result)
	logger    *logrus.Entry

	finished bool
	streamID string
	options  []string
	link     Link
	answer   string
	stream   *Stream
}

func newNegotiation(
	e *Engine,
	ctx context.Context,
	cancel context.CancelFunc,
	dir Direction,
	opts Options,
	done func(Result),
) *negotiation {
	return &negotiation{
		engine:    e,
		ctx:       ctx,
		cancel:    cancel,
		direction: dir,
		opts:      opts,
		done:      done,
		logger:    e.logger.WithField("direction", dir),
	}
}

// watch fails the negotiation when its context is done first.
func (n *negotiation) watch() {
	<-n.ctx.Done()

	n.engine.client.Post(func() {
		if n.finished {
			return
		}
		if errors.Is(n.ctx.Err(), context.DeadlineExceeded) {
			n.fail(StatusTimeout, n.ctx.Err())
			return
		}
		n.fail(StatusFailed, n.ctx.Err())
	})
}

func (n *negotiation) setup() {
	if n.finished {
		return
	}

	if st := n.engine.session.Status(); st != session.Online {
		n.logger.WithField("session_status", st).Debug("Session not online")
		n.complete(Result{Status: StatusOffline})
		return
	}

	msg := codec.Fields{
		"sessionId":    n.engine.session.SessionID(),
		"direction":    string(n.direction),
		"capabilities": n.opts.Capabilities,
		"options":      n.opts.Options,
		"tags":         n.opts.Tags,
	}
	if n.opts.StreamToken != "" {
		msg["streamToken"] = n.opts.StreamToken
	}
	if n.opts.OriginStreamID != "" {
		msg["originStreamId"] = n.opts.OriginStreamID
	}
	if deadline, ok := n.ctx.Deadline(); ok {
		if budget := time.Until(deadline); budget > 0 {
			msg["wallClockBudgetMs"] = uint64(budget / time.Millisecond)
		}
	}

	if err := n.engine.client.SendRequest(codec.TypeSetupStream, msg, n.onSetup); err != nil {
		n.fail(StatusFailed, err)
	}
}

func (n *negotiation) onSetup(err error, resp codec.Fields) {
	if n.finished {
		if err == nil {
			if id := resp.String("streamId"); id != "" {
				n.logger.WithField("stream_id", id).Info("Late setup response, destroying stream")
				n.engine.destroy(id, ReasonFailed)
			}
		}
		return
	}

	if err != nil {
		n.fail(errStatus(err), err)
		return
	}

	n.streamID = resp.String("streamId")
	n.logger = n.logger.WithField("stream_id", n.streamID)

	n.options = n.opts.Options
	if resp.Has("options") {
		n.options = resp.Strings("options")
	}

	if !resp.Bool("negotiate") {
		n.fail(StatusFailed, ErrNegotiationRefused)
		return
	}

	offer := resp.Message("offer")
	if offer == nil || offer.String("sdp") == "" {
		n.fail(StatusFailed, ErrMissingOffer)
		return
	}
	raw := offer.String("sdp")

	caps := n.engine.conf.Capabilities

	if n.direction == Subscribe {
		markers, err := offerMarkers(raw)
		if err != nil {
			n.fail(StatusFailed, err)
			return
		}

		kind, url, ok := selectKind(markers, caps)
		if !ok {
			n.fail(StatusUnsupportedDeliveryKind, nil)
			return
		}

		if kind != KindInteractive {
			url = rewriteURL(url, n.engine.conf.ManifestPattern, n.engine.conf.ManifestReplacement)
			n.register(kind, url, nil)
			return
		}
	}

	adapted := adaptProfileLevels(raw, caps.H264ProfileLevels, n.logger)

	link, err := n.engine.media.NewLink(LinkConfig{
		StreamID:  n.streamID,
		Direction: n.direction,
	})
	if err != nil {
		n.fail(StatusFailed, err)
		return
	}
	n.link = link

	link.OnCandidate(func(c *Candidate) {
		n.engine.client.Post(func() {
			if n.stream != nil {
				n.stream.addCandidate(c)
			}
		})
	})
	link.OnStateChange(func(st LinkState) {
		n.engine.client.Post(func() {
			if n.stream != nil {
				n.stream.setLinkState(st)
				return
			}
			if st == LinkFailed && !n.finished {
				n.fail(StatusFailed, errLinkFailed)
			}
		})
	})

	if err := link.SetRemoteDescription("offer", adapted); err != nil {
		n.fail(StatusFailed, err)
		return
	}

	answer, err := link.CreateAnswer()
	if err != nil {
		n.fail(StatusFailed, err)
		return
	}
	n.answer = answer

	msg := codec.Fields{
		"streamId": n.streamID,
		"sessionDescription": codec.Fields{
			"type": "answer",
			"sdp":  answer,
		},
	}

	if err := n.engine.client.SendRequest(codec.TypeSetRemoteDescription, msg, n.onAnswerAcknowledged); err != nil {
		n.fail(StatusFailed, err)
	}
}

func (n *negotiation) onAnswerAcknowledged(err error, _ codec.Fields) {
	if n.finished {
		return
	}

	if err != nil {
		n.fail(errStatus(err), err)
		return
	}

	if err := n.link.SetLocalDescription("answer", n.answer); err != nil {
		n.fail(StatusFailed, err)
		return
	}

	n.register(KindInteractive, "", n.link)
}

func (n *negotiation) register(kind Kind, url string, link Link) {
	e := n.engine

	s := &Stream{
		engine:      e,
		id:          n.streamID,
		direction:   n.direction,
		kind:        kind,
		manifestURL: url,
		link:        link,
		trickle:     contains(n.options, OptionTrickleICE),
		logger:      e.logger.WithField("stream_id", n.streamID),
		linkState:   LinkNew,
	}

	if err := e.streams.add(s); err != nil {
		n.fail(StatusFailed, err)
		return
	}
	n.stream = s
	e.metrics.setStreams(e.streams.len())

	n.logger.WithField("kind", kind).Info("Stream registered")

	n.complete(Result{Status: StatusOK, Stream: s})
}

// fail releases what the negotiation created and completes it.
func (n *negotiation) fail(status Status, err error) {
	if n.finished {
		return
	}

	if n.link != nil {
		if cerr := n.link.Close(); cerr != nil {
			n.logger.WithError(cerr).Debug("Closing media link")
		}
	}
	if n.streamID != "" {
		n.engine.destroy(n.streamID, ReasonFailed)
	}

	n.logger.WithError(err).WithField("status", status).Warn("Negotiation failed")

	n.complete(Result{Status: status, Err: err})
}

func (n *negotiation) complete(res Result) {
	if n.finished {
		return
	}
	n.finished = true
	n.cancel()

	n.engine.metrics.negotiated(n.direction, res.Status)

	if n.done != nil {
		n.done(res)
	}
}

// errStatus classifies the error a request completed with.
func errStatus(err error) Status {
	if status, ok := protocol.StatusOf(err); ok {
		return statusFromBackend(status)
	}
	if errors.Is(err, protocol.ErrNotConnected) || errors.Is(err, protocol.ErrDisconnected) {
		return StatusOffline
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusTimeout
	}
	return StatusFailed
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
