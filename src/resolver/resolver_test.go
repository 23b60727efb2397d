package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mosaicnetworks/rtcsession/src/common"
	"github.com/prometheus/client_golang/prometheus"
)

// step is the scripted outcome of one probe.
type step struct {
	rtt time.Duration
	err error
	// when set, the probe waits for the channel to close (or for the context
	// to be cancelled) before returning.
	gate chan struct{}
}

// scriptedProber replays per-endpoint scripts, so tests control which loop
// finishes first independently of the latencies it reports.
type scriptedProber struct {
	sync.Mutex
	scripts map[string][]step
	calls   map[string]int
}

func newScriptedProber(scripts map[string][]step) *scriptedProber {
	return &scriptedProber{scripts: scripts, calls: make(map[string]int)}
}

func (p *scriptedProber) Probe(ctx context.Context, uri string) (time.Duration, error) {
	p.Lock()
	i := p.calls[uri]
	p.calls[uri]++
	script := p.scripts[uri]
	p.Unlock()

	if i >= len(script) {
		return 0, fmt.Errorf("no more steps for %s", uri)
	}
	s := script[i]

	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	return s.rtt, s.err
}

func (p *scriptedProber) callCount(uri string) int {
	p.Lock()
	defer p.Unlock()
	return p.calls[uri]
}

func discoveryServer(t *testing.T, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != DiscoveryPath {
			t.Errorf("unexpected discovery path %s", r.URL.Path)
		}
		fmt.Fprint(w, body)
	}))
}

func newTestResolver(t *testing.T, prober Prober) *Resolver {
	return NewResolver(Config{
		Version:       "2024-01-01",
		Prober:        prober,
		RetryInterval: time.Millisecond,
	}, common.NewTestEntry(t, common.TestLogLevel))
}

var errProbe = errors.New("probe failed")

func TestResolveDirectAddress(t *testing.T) {
	prober := newScriptedProber(nil)
	r := newTestResolver(t, prober)

	uri, rtt, err := r.Resolve(context.Background(), "wss://edge.example.com/ws")
	if err != nil {
		t.Fatal(err)
	}
	if uri != "wss://edge.example.com/ws" || rtt != 0 {
		t.Fatalf("expected direct address with zero latency, got %s %v", uri, rtt)
	}
}

func TestResolveFirstFinisherIsFastest(t *testing.T) {
	srv := discoveryServer(t, "https://a,https://b")
	defer srv.Close()

	never := make(chan struct{})
	prober := newScriptedProber(map[string][]step{
		"https://a": {{rtt: 50 * time.Millisecond}},
		"https://b": {{rtt: 10 * time.Millisecond, gate: never}},
	})

	r := newTestResolver(t, prober)

	uri, rtt, err := r.Resolve(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if uri != "https://a" {
		t.Fatalf("expected https://a, got %s", uri)
	}
	if rtt != 50*time.Millisecond {
		t.Fatalf("expected 50ms, got %v", rtt)
	}
}

func TestResolveRaceSlowerLoopFinishesFirst(t *testing.T) {
	srv := discoveryServer(t, "https://fast, https://slow")
	defer srv.Close()

	// fast would report 5ms but its loop cannot finish before slow's loop
	gate := make(chan struct{})
	prober := newScriptedProber(map[string][]step{
		"https://fast": {{rtt: 5 * time.Millisecond, gate: gate}},
		"https://slow": {{rtt: 200 * time.Millisecond}},
	})

	r := newTestResolver(t, prober)

	uri, rtt, err := r.Resolve(context.Background(), srv.URL)
	close(gate)
	if err != nil {
		t.Fatal(err)
	}
	if uri != "https://slow" || rtt != 200*time.Millisecond {
		t.Fatalf("expected the first finisher's best (slow, 200ms), got %s %v", uri, rtt)
	}
}

func TestResolveExhaustedLoopWaitsForResult(t *testing.T) {
	srv := discoveryServer(t, "https://bad,https://good")
	defer srv.Close()

	gate := make(chan struct{})
	prober := newScriptedProber(map[string][]step{
		"https://bad": {{err: errProbe}, {err: errProbe}, {err: errProbe}, {err: errProbe}},
		"https://good": {
			{err: errProbe},
			{rtt: 30 * time.Millisecond, gate: gate},
		},
	})

	r := newTestResolver(t, prober)

	go func() {
		// let bad exhaust its attempts before good reports
		for prober.callCount("https://bad") < DefaultProbeAttempts {
			time.Sleep(time.Millisecond)
		}
		time.Sleep(10 * time.Millisecond)
		close(gate)
	}()

	uri, rtt, err := r.Resolve(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if uri != "https://good" || rtt != 30*time.Millisecond {
		t.Fatalf("expected good/30ms, got %s %v", uri, rtt)
	}
	if n := prober.callCount("https://bad"); n != DefaultProbeAttempts {
		t.Fatalf("bad should have been probed %d times, got %d", DefaultProbeAttempts, n)
	}
}

func TestResolveNoEndpoint(t *testing.T) {
	srv := discoveryServer(t, "https://a,https://b")
	defer srv.Close()

	fail := []step{{err: errProbe}, {err: errProbe}, {err: errProbe}, {err: errProbe}}
	prober := newScriptedProber(map[string][]step{
		"https://a": fail,
		"https://b": fail,
	})

	r := newTestResolver(t, prober)

	_, _, err := r.Resolve(context.Background(), srv.URL)
	if !errors.Is(err, ErrNoEndpointResolved) {
		t.Fatalf("expected ErrNoEndpointResolved, got %v", err)
	}
}

func TestDiscoveryEmptyList(t *testing.T) {
	srv := discoveryServer(t, " , ")
	defer srv.Close()

	r := newTestResolver(t, newScriptedProber(nil))

	_, _, err := r.Resolve(context.Background(), srv.URL)
	if !errors.Is(err, ErrDiscoveryFailed) {
		t.Fatalf("expected ErrDiscoveryFailed, got %v", err)
	}
}

func TestDiscoveryRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("version") != "2024-01-01" {
			t.Errorf("missing version parameter: %s", r.URL.RawQuery)
		}
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "https://a")
	}))
	defer srv.Close()

	prober := newScriptedProber(map[string][]step{"https://a": {{rtt: time.Millisecond}}})
	r := newTestResolver(t, prober)

	uri, _, err := r.Resolve(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if uri != "https://a" {
		t.Fatalf("expected https://a, got %s", uri)
	}
	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Fatalf("expected 3 discovery attempts, got %d", n)
	}
}

func TestDiscoveryClientErrorIsPermanent(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := newTestResolver(t, newScriptedProber(nil))

	_, _, err := r.Resolve(context.Background(), srv.URL)
	if !errors.Is(err, ErrDiscoveryFailed) {
		t.Fatalf("expected ErrDiscoveryFailed, got %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("4xx should not be retried, got %d attempts", n)
	}
}

func TestHTTPProber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/edge"+ProbePath {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := &HTTPProber{Client: srv.Client()}

	wsURI := strings.Replace(srv.URL, "http://", "ws://", 1) + "/edge"
	rtt, err := p.Probe(context.Background(), wsURI)
	if err != nil {
		t.Fatal(err)
	}
	if rtt <= 0 {
		t.Fatalf("expected a positive rtt, got %v", rtt)
	}

	if _, err := p.Probe(context.Background(), srv.URL+"/other"); err == nil {
		t.Fatal("non-2xx probe should fail")
	}
}

func TestResolveRecordsMetrics(t *testing.T) {
	srv := discoveryServer(t, "https://a")
	defer srv.Close()

	reg := prometheus.NewRegistry()
	prober := newScriptedProber(map[string][]step{
		"https://a": {{err: errProbe}, {rtt: 20 * time.Millisecond}},
	})

	r := NewResolver(Config{Prober: prober, Registerer: reg}, common.NewTestEntry(t, common.TestLogLevel))

	if _, _, err := r.Resolve(context.Background(), srv.URL); err != nil {
		t.Fatal(err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}

	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, name := range []string{"rtcsession_resolver_probe_latency_seconds", "rtcsession_resolver_probe_errors_total"} {
		if !found[name] {
			t.Fatalf("metric %s not gathered", name)
		}
	}
}
