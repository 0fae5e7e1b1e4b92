package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"DocChat/internal/backend"

	"github.com/cenkalti/backoff/v4"
)

const (
	// HealthInitialInterval is the first wait between health probes.
	HealthInitialInterval = 500 * time.Millisecond
	// HealthMaxInterval caps the wait between health probes.
	HealthMaxInterval = 5 * time.Second
)

// newHealthBackoff creates the exponential backoff used while waiting for the
// API to come up. maxElapsed bounds the whole wait.
func newHealthBackoff(ctx context.Context, maxElapsed time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = HealthInitialInterval
	b.MaxInterval = HealthMaxInterval
	b.MaxElapsedTime = maxElapsed
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(b, ctx)
}

// WaitHealthy polls the health endpoint until it answers 200, maxElapsed
// passes or ctx is done.
func (g *HTTPGateway) WaitHealthy(ctx context.Context, maxElapsed time.Duration) error {
	probe := func() error {
		req, err := g.newRequest(ctx, http.MethodGet, backend.PathHealth, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		return g.do(req, "health", nil)
	}

	notify := func(err error, wait time.Duration) {
		g.logger.Warn("API not healthy yet, retrying", "error", err, "wait", wait)
	}

	if err := backoff.RetryNotify(probe, newHealthBackoff(ctx, maxElapsed), notify); err != nil {
		return fmt.Errorf("API at %s is not reachable: %w", g.baseURL, err)
	}

	g.logger.Info("API is healthy", "url", g.baseURL)
	return nil
}
