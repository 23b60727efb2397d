package negotiation

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/mosaicnetworks/rtcsession/src/codec"
	"github.com/mosaicnetworks/rtcsession/src/protocol"
	"github.com/mosaicnetworks/rtcsession/src/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Negotiation options.
const (
	OptionTrickleICE = "trickle-ice"
	OptionCompleted  = "completed"
)

// SessionState is the view of the session the engine needs.
type SessionState interface {
	Status() session.Status
	SessionID() string
	LinkLost()
}

// Config holds the local settings of an Engine.
type Config struct {
	Capabilities Capabilities

	// ManifestPattern, when set, rewrites manifest and relay URLs with
	// ManifestReplacement before they are handed out.
	ManifestPattern     *regexp.Regexp
	ManifestReplacement string

	Registerer prometheus.Registerer
}

// Options are the per-stream settings of a publish or subscribe.
type Options struct {
	StreamToken string
	// OriginStreamID is the published stream to subscribe to
	OriginStreamID string
	Capabilities   []string
	// Options are the negotiation options requested, e.g. OptionTrickleICE
	Options []string
	Tags    []string
	// Timeout bounds the whole negotiation. Zero means no deadline beyond
	// the context's.
	Timeout time.Duration
}

// Result is delivered to the completion callback of a publish or subscribe.
// Stream is set only when Status is StatusOK.
type Result struct {
	Status Status
	Stream *Stream
	Err    error
}

// Engine negotiates streams for one session.
type Engine struct {
	client  *protocol.Client
	session SessionState
	media   MediaTransport
	conf    Config
	logger  *logrus.Entry
	metrics *metrics

	streams *registry
}

// NewEngine creates an Engine and subscribes it to the stream events of
// client.
func NewEngine(client *protocol.Client, sess SessionState, media MediaTransport, conf Config, logger *logrus.Entry) *Engine {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	e := &Engine{
		client:  client,
		session: sess,
		media:   media,
		conf:    conf,
		logger:  logger,
		metrics: newMetrics(conf.Registerer),
		streams: newRegistry(),
	}

	client.On(protocol.EventStreamEnded, e.onStreamEnded)
	client.On(protocol.EventDataQualityChanged, e.onDataQualityChanged)

	return e
}

// Publish sets up an outgoing stream. done is invoked once, on the
// dispatcher.
func (e *Engine) Publish(ctx context.Context, opts Options, done func(Result)) {
	e.start(ctx, Publish, opts, done)
}

// Subscribe sets up an incoming stream. done is invoked once, on the
// dispatcher.
func (e *Engine) Subscribe(ctx context.Context, opts Options, done func(Result)) {
	e.start(ctx, Subscribe, opts, done)
}

// Stream returns the registered stream with the given id.
func (e *Engine) Stream(id string) (*Stream, bool) {
	return e.streams.get(id)
}

// Streams returns the registered streams.
func (e *Engine) Streams() []*Stream {
	return e.streams.all()
}

// ActiveLinks returns the number of registered streams whose media link is
// still up.
func (e *Engine) ActiveLinks() int {
	return e.streams.activeLinks()
}

// StopAll ends every registered stream with reason. It must run on the
// dispatcher, which is where session stop hooks run.
func (e *Engine) StopAll(reason string) {
	for _, s := range e.streams.all() {
		s.end(reason)
	}
}

func (e *Engine) start(ctx context.Context, dir Direction, opts Options, done func(Result)) {
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	n := newNegotiation(e, ctx, cancel, dir, opts, done)

	if !e.client.Post(n.setup) {
		cancel()
		e.logger.Warn("Dispatcher closed, negotiation dropped")
		if done != nil {
			done(Result{Status: StatusOffline, Err: session.ErrStopped})
		}
		return
	}

	go n.watch()
}

// destroy tells the backend a stream is gone. The response is only logged.
func (e *Engine) destroy(streamID, reason string) {
	msg := codec.Fields{
		"streamId": streamID,
		"reason":   reason,
	}
	if sid := e.session.SessionID(); sid != "" {
		msg["sessionId"] = sid
	}

	err := e.client.SendRequest(codec.TypeDestroyStream, msg, func(err error, _ codec.Fields) {
		if err != nil {
			e.logger.WithError(err).WithField("stream_id", streamID).Debug("DestroyStream not acknowledged")
		}
	})
	if err != nil {
		e.logger.WithError(err).WithField("stream_id", streamID).Warn("Encoding DestroyStream")
	}
}

func (e *Engine) onStreamEnded(msg codec.Fields) {
	id := msg.String("streamId")

	s, ok := e.streams.get(id)
	if !ok {
		e.logger.WithField("stream_id", id).Debug("StreamEnded for unknown stream")
		return
	}

	s.end(msg.String("reason"))
}

func (e *Engine) onDataQualityChanged(msg codec.Fields) {
	id := msg.String("streamId")

	s, ok := e.streams.get(id)
	if !ok {
		e.logger.WithField("stream_id", id).Debug("DataQualityChanged for unknown stream")
		return
	}

	s.qualityChanged(DataQuality{
		Status: enumString(msg["status"]),
		Reason: enumString(msg["reason"]),
	})
}

// enumString renders an enum field. A value unknown to this client stays
// numeric and is rendered as its number.
func enumString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
