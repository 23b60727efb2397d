package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ProbePath is appended to a candidate's path to form the probe URL.
const ProbePath = "/ping"

// HTTPProber times a GET request against the probe path of an endpoint.
// Transport schemes are mapped to their HTTP counterparts (ws to http, wss to
// https).
type HTTPProber struct {
	Client *http.Client
}

// Probe implements the Prober interface.
func (p *HTTPProber) Probe(ctx context.Context, uri string) (time.Duration, error) {
	target, err := probeURL(uri)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	start := time.Now()

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return 0, err
	}

	rtt := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("probe %s returned %d", target, resp.StatusCode)
	}

	return rtt, nil
}

func probeURL(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}

	switch strings.ToLower(u.Scheme) {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("cannot probe scheme %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + ProbePath

	return u.String(), nil
}
