package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"time"
)

// LLM completions can legitimately take a minute or more, so the client
// timeout is generous. Individual callers bound the wait with their context.
const defaultHTTPTimeout = 120 * time.Second

const maxSendAttempts = 4

// newPooledClient builds the HTTP client all providers share the shape of:
// pooled connections, bounded dial and TLS handshake times, and a response
// header timeout matching the overall budget.
func newPooledClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// sendWithRetry issues a request, retrying transient failures with
// exponential backoff and jitter. buildReq is called per attempt because a
// request body cannot be replayed once consumed. Non-transient HTTP errors
// are returned to the caller untouched.
func sendWithRetry(ctx context.Context, client *http.Client, buildReq func() (*http.Request, error), logger *slog.Logger) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		if attempt > 1 {
			if err := backoff(ctx, attempt, logger); err != nil {
				return nil, err
			}
		}

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			logger.Warn("provider request failed", "attempt", attempt, "err", err)
			continue
		}

		if !transientStatus(resp.StatusCode) {
			return resp, nil
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
		logger.Warn("provider returned transient error",
			"attempt", attempt, "status", resp.StatusCode)
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxSendAttempts, lastErr)
}

// transientStatus reports whether a status code is worth retrying:
// rate limits and server-side failures. Client errors are final.
func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// backoff sleeps for a growing interval with jitter, or returns early when
// the context is cancelled. attempt is 1-based; the first retry waits ~1s.
func backoff(ctx context.Context, attempt int, logger *slog.Logger) error {
	n := attempt - 1
	base := time.Duration(n*n) * time.Second
	wait := base + time.Duration(rand.Int64N(int64(base/2+1)))
	logger.Warn("retrying provider request", "attempt", attempt, "backoff", wait)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}
