package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

var errNoClient = errors.New("resilience: http client not configured")

// HTTPClient sends backend requests through a Breaker. Reads set
// MaxAttempts above one; writes leave it at one so a sale is never sent
// twice by the gateway.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	// Timeout bounds each attempt, body read included.
	Timeout time.Duration
}

// Do sends req. Transport errors and 5xx answers are retried while attempts
// remain. The last upstream response is returned whatever its status so the
// caller can surface the backend's message.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errNoClient
	}
	attempts := max(cl.MaxAttempts, 1)
	rewind, err := rewinder(req, attempts)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if cl.Breaker != nil && !cl.Breaker.Allow(ctx) {
			return nil, ErrOpenCircuit
		}
		attemptReq := req.Clone(ctx)
		if attemptReq.Body, err = rewind(); err != nil {
			return nil, err
		}
		resp, err := cl.send(ctx, attemptReq)
		failed := err != nil || resp.StatusCode >= http.StatusInternalServerError
		if cl.Breaker != nil {
			cl.Breaker.Report(ctx, !failed)
		}
		if !failed || attempt == attempts {
			if err != nil {
				return nil, err
			}
			return resp, nil
		}

		delay := Backoff(cl.BaseBackoff, attempt, cl.Jitter)
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("resilience: upstream status %s", resp.Status)
			delay = max(delay, retryAfter(resp))
			discard(resp)
		}
		if err := sleep(ctx, delay); err != nil {
			return nil, errors.Join(err, lastErr)
		}
	}
}

func (cl HTTPClient) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Timeout <= 0 {
		return cl.Client.Do(req)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, cl.Timeout)
	resp, err := cl.Client.Do(req.WithContext(attemptCtx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &releasingBody{ReadCloser: resp.Body, release: cancel}
	return resp, nil
}

// rewinder returns a function producing a fresh copy of the request body
// for each attempt.
func rewinder(req *http.Request, attempts int) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return func() (io.ReadCloser, error) { return http.NoBody, nil }, nil
	}
	if req.GetBody != nil {
		first := true
		return func() (io.ReadCloser, error) {
			if first {
				first = false
				return req.Body, nil
			}
			return req.GetBody()
		}, nil
	}
	if attempts == 1 {
		return func() (io.ReadCloser, error) { return req.Body, nil }, nil
	}
	buf, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("resilience: buffer request body: %w", err)
	}
	return func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(buf)), nil }, nil
}

// retryAfter reads a delay-seconds Retry-After header, capped at MaxBackoff.
func retryAfter(resp *http.Response) time.Duration {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, MaxBackoff)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

type releasingBody struct {
	io.ReadCloser
	release context.CancelFunc
}

func (b *releasingBody) Close() error {
	defer b.release()
	return b.ReadCloser.Close()
}
