package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"time"
)

// retryPolicy is shared by every HTTP runtime.
type retryPolicy struct {
	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
}

// postJSON sends payload to endpoint and decodes a 2xx response into out.
// Timeouts, 429 and 5xx responses are retried with jittered exponential
// backoff; a Retry-After header wins over the computed delay.
func (p retryPolicy) postJSON(ctx context.Context, hc *http.Client, host, endpoint string, headers map[string]string, payload any, out any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	attempts := p.attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.baseDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = &UnreachableError{Host: host, Err: err}
			if isRetryableNetErr(err) && attempt < attempts {
				if err := p.wait(ctx, withJitter(backoff)); err != nil {
					return "", err
				}
				backoff *= 2
				continue
			}
			return "", lastErr
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := readAPIError(resp)
			resp.Body.Close()
			lastErr = classifyAPIError(apiErr, resp)
			retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
			if !retryable || attempt == attempts {
				return "", lastErr
			}
			delay := withJitter(backoff)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := parseRetryAfterSeconds(ra); err == nil && secs > 0 {
					delay = time.Duration(secs) * time.Second
				}
			} else if p.maxDelay > 0 && delay > p.maxDelay {
				delay = p.maxDelay
			}
			if err := p.wait(ctx, delay); err != nil {
				return "", err
			}
			backoff *= 2
			continue
		}
		reqID := extractRequestID(resp)
		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		return reqID, nil
	}
	return "", lastErr
}

func (p retryPolicy) wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isRetryableNetErr(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// withJitter returns a backoff duration with +/- 20% jitter applied.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 200 * time.Millisecond
	}
	f := 0.8 + rand.Float64()*0.4
	out := time.Duration(float64(d) * f)
	if out <= 0 {
		return d
	}
	return out
}
