package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"
)

// HTTPClient sends outbound requests through a Breaker. Only GET and HEAD
// are retried; every other method is attempted exactly once.
type HTTPClient struct {
	Client  *http.Client
	Breaker *Breaker
	// Timeout bounds each attempt. Zero falls back to Client.Timeout.
	Timeout time.Duration
	// Retries is the number of extra attempts allowed for GET and HEAD.
	Retries int
	Backoff time.Duration
}

// Do executes req. A 5xx response counts as a failure for the breaker and is
// returned as an error after the body is drained.
func (c HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	breaker := c.Breaker
	if breaker == nil {
		breaker = NewBreaker(BreakerConfig{Window: 1, FailureRatio: 1, Cooldown: time.Second})
	}
	attempts := 1
	if retryable(req.Method) && c.Retries > 0 {
		attempts += c.Retries
	}
	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := breaker.Allow(ctx); err != nil {
			outboundAttempts.WithLabelValues(breaker.Name(), "rejected").Inc()
			return nil, err
		}
		resp, err := c.once(ctx, req, body)
		switch {
		case err != nil:
			lastErr = err
		case resp.StatusCode >= http.StatusInternalServerError:
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("resilience: %s responded %s", breaker.Name(), resp.Status)
		default:
			breaker.Record(ctx, true)
			outboundAttempts.WithLabelValues(breaker.Name(), "ok").Inc()
			return resp, nil
		}
		breaker.Record(ctx, false)
		outboundAttempts.WithLabelValues(breaker.Name(), "failed").Inc()
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(backoff(c.Backoff, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func (c HTTPClient) once(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = c.Client.Timeout
	}
	var callCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	attempt := req.Clone(callCtx)
	if body != nil {
		attempt.Body = io.NopCloser(bytes.NewReader(body))
	}
	resp, err := c.Client.Do(attempt)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose keeps the per-attempt context alive until the caller has read
// the response.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func retryable(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("resilience: buffer request body: %w", err)
	}
	return data, nil
}

// backoff doubles base per attempt with up to 20% jitter either way.
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base << (attempt - 1)
	jitter := (rand.Float64()*0.4 - 0.2) * float64(d)
	return d + time.Duration(jitter)
}
