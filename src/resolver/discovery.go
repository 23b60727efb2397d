package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cenkalti/backoff"
)

// discover fetches the comma-separated candidate list for base.
func (r *Resolver) discover(ctx context.Context, base string) ([]string, error) {
	target, err := discoveryURL(base, r.conf.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiscoveryFailed, err)
	}

	var body string

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := r.conf.HTTPClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			r.logger.WithError(err).WithField("url", target).Debug("Discovery request failed")
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode >= 500:
			r.logger.WithField("status", resp.StatusCode).Debug("Discovery server error, retrying")
			return fmt.Errorf("discovery returned %d", resp.StatusCode)
		case resp.StatusCode >= 300:
			return backoff.Permanent(fmt.Errorf("discovery returned %d", resp.StatusCode))
		}

		body = string(raw)

		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.conf.RetryInterval

	policy := backoff.WithContext(backoff.WithMaxRetries(eb, r.conf.DiscoveryRetries), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiscoveryFailed, err)
	}

	uris := parseCandidates(body)
	if len(uris) == 0 {
		return nil, fmt.Errorf("%w: empty candidate list", ErrDiscoveryFailed)
	}

	return uris, nil
}

func discoveryURL(base, version string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid base address %q", base)
	}

	u.Path = strings.TrimRight(u.Path, "/") + DiscoveryPath

	q := u.Query()
	if version != "" {
		q.Set("version", version)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func parseCandidates(body string) []string {
	var res []string
	for _, s := range strings.Split(body, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			res = append(res, s)
		}
	}
	return res
}
