package resolver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Default values.
const (
	DefaultProbeAttempts    = 4
	DefaultDiscoveryRetries = 3
	DefaultRetryInterval    = 250 * time.Millisecond
	DefaultProbeTimeout     = 5 * time.Second
	DiscoveryPath           = "/rtc/endpoints"
)

var (
	// ErrDiscoveryFailed is returned when the candidate list cannot be fetched
	// or is empty.
	ErrDiscoveryFailed = errors.New("endpoint discovery failed")

	// ErrNoEndpointResolved is returned when no probe succeeded against any
	// candidate.
	ErrNoEndpointResolved = errors.New("no endpoint resolved")
)

// Prober measures the round-trip time to an endpoint.
type Prober interface {
	Probe(ctx context.Context, uri string) (time.Duration, error)
}

// Config configures a Resolver. Zero values are replaced by defaults.
type Config struct {
	// Version is sent as the version parameter of the discovery request.
	Version string

	// ProbeAttempts is the number of probes a loop makes before giving up on
	// its candidate.
	ProbeAttempts int

	// DiscoveryRetries bounds the retries of the discovery request on 5xx and
	// network errors.
	DiscoveryRetries uint64

	// RetryInterval is the initial backoff interval between discovery
	// attempts.
	RetryInterval time.Duration

	// HTTPClient is used for discovery. Defaults to a client with
	// DefaultProbeTimeout.
	HTTPClient *http.Client

	// Prober measures candidates. Defaults to an HTTPProber sharing
	// HTTPClient.
	Prober Prober

	// Registerer, if set, receives the resolver metrics.
	Registerer prometheus.Registerer
}

// Resolver implements endpoint discovery and selection.
type Resolver struct {
	conf    Config
	metrics *metrics
	logger  *logrus.Entry
}

// NewResolver creates a Resolver.
func NewResolver(conf Config, logger *logrus.Entry) *Resolver {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	if conf.ProbeAttempts <= 0 {
		conf.ProbeAttempts = DefaultProbeAttempts
	}
	if conf.DiscoveryRetries == 0 {
		conf.DiscoveryRetries = DefaultDiscoveryRetries
	}
	if conf.RetryInterval <= 0 {
		conf.RetryInterval = DefaultRetryInterval
	}
	if conf.HTTPClient == nil {
		conf.HTTPClient = &http.Client{Timeout: DefaultProbeTimeout}
	}
	if conf.Prober == nil {
		conf.Prober = &HTTPProber{Client: conf.HTTPClient}
	}

	return &Resolver{
		conf:    conf,
		metrics: newMetrics(conf.Registerer),
		logger:  logger.WithField("component", "resolver"),
	}
}

// IsDirect reports whether address already names a transport endpoint, in
// which case no discovery is needed.
func IsDirect(address string) bool {
	a := strings.ToLower(address)
	return strings.HasPrefix(a, "ws://") || strings.HasPrefix(a, "wss://")
}

// Resolve returns the endpoint to connect to for baseAddress, along with the
// round-trip time measured for it. A direct transport address is returned as
// is, with zero latency.
func (r *Resolver) Resolve(ctx context.Context, baseAddress string) (string, time.Duration, error) {
	if IsDirect(baseAddress) {
		r.logger.WithField("uri", baseAddress).Debug("Direct transport address, skipping discovery")
		return baseAddress, 0, nil
	}

	uris, err := r.discover(ctx, baseAddress)
	if err != nil {
		return "", 0, err
	}

	r.logger.WithField("candidates", uris).Debug("Discovered endpoints")

	return r.race(ctx, uris)
}

// candidate is the per-pass state of one endpoint.
type candidate struct {
	uri             string
	measuredLatency *time.Duration
	attemptsMade    int
}

type probeResult struct {
	uri string
	rtt time.Duration
}

// best is the result cell shared by all probe loops of a pass. It only ever
// moves to a lower latency.
type best struct {
	p atomic.Pointer[probeResult]
}

func (b *best) offer(uri string, rtt time.Duration) {
	next := &probeResult{uri: uri, rtt: rtt}
	for {
		cur := b.p.Load()
		if cur != nil && cur.rtt <= rtt {
			return
		}
		if b.p.CompareAndSwap(cur, next) {
			return
		}
	}
}

func (b *best) load() *probeResult {
	return b.p.Load()
}

func (r *Resolver) race(ctx context.Context, uris []string) (string, time.Duration, error) {
	ctx, cancel := context.WithCancel(ctx)
	// losing loops stop at their next attempt
	defer cancel()

	cell := &best{}
	finished := make(chan *candidate, len(uris))

	for _, uri := range uris {
		c := &candidate{uri: uri}
		go r.probeLoop(ctx, c, cell, finished)
	}

	for i := 0; i < len(uris); i++ {
		var c *candidate
		select {
		case c = <-finished:
		case <-ctx.Done():
			return "", 0, ctx.Err()
		}

		res := cell.load()
		if res == nil {
			r.logger.WithFields(logrus.Fields{
				"uri":      c.uri,
				"attempts": c.attemptsMade,
			}).Debug("Probe loop exhausted with no result yet")
			continue
		}

		r.logger.WithFields(logrus.Fields{
			"uri":         res.uri,
			"rtt":         res.rtt,
			"finished_by": c.uri,
		}).Info("Endpoint resolved")

		return res.uri, res.rtt, nil
	}

	return "", 0, ErrNoEndpointResolved
}

func (r *Resolver) probeLoop(ctx context.Context, c *candidate, cell *best, finished chan<- *candidate) {
	defer func() { finished <- c }()

	for c.attemptsMade < r.conf.ProbeAttempts {
		if ctx.Err() != nil {
			return
		}

		c.attemptsMade++

		rtt, err := r.conf.Prober.Probe(ctx, c.uri)
		if err != nil {
			r.metrics.probeFailed(c.uri)
			r.logger.WithError(err).WithFields(logrus.Fields{
				"uri":     c.uri,
				"attempt": c.attemptsMade,
			}).Debug("Probe failed")
			continue
		}

		r.metrics.probeSucceeded(c.uri, rtt)

		c.measuredLatency = &rtt
		cell.offer(c.uri, rtt)

		return
	}
}
