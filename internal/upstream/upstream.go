// Package upstream holds the clients the companion server proxies to: the
// weather provider, the AI chat provider and the profile writers.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"mmuni/internal/models"
	"mmuni/internal/observability"
)

// maxBody caps how much of an upstream response is read.
const maxBody = 4 << 20

// StatusError is a non-2xx upstream reply.
type StatusError struct {
	Upstream string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Upstream, e.Status, e.Body)
}

type call struct {
	upstream string
	method   string
	url      string
	headers  map[string]string
	body     any
	timeout  time.Duration
}

// do performs c and returns the response body of a 2xx reply. Every call
// is traced and counted per upstream.
func do(ctx context.Context, hc *http.Client, c call) (raw []byte, err error) {
	ctx, span := observability.StartClientSpan(ctx, "upstream "+c.upstream,
		attribute.String("http.method", c.method))
	start := time.Now()
	defer func() {
		observability.UpstreamLatency.WithLabelValues(c.upstream).Observe(time.Since(start).Seconds())
		observability.UpstreamRequests.WithLabelValues(c.upstream, observability.Outcome(err)).Inc()
		observability.EndSpan(span, err)
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if c.body != nil {
		b, merr := json.Marshal(c.body)
		if merr != nil {
			return nil, fmt.Errorf("failed to marshal %s request: %w", c.upstream, merr)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, c.url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", c.upstream, err)
	}
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, models.NewRemoteError(c.upstream+" unreachable", err)
	}
	defer resp.Body.Close()

	raw, err = io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, models.NewRemoteError("failed to read "+c.upstream+" response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Upstream: c.upstream, Status: resp.StatusCode, Body: string(bytes.TrimSpace(raw))}
	}
	return raw, nil
}
