package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// retryPolicy decides how an endpoint is retried. attempts <= 0 means one.
type retryPolicy struct {
	attempts  int
	retryable func(status int) bool
	// delay returns the wait before the next attempt.
	delay func(attempt int, header http.Header, body []byte) time.Duration
	// transport reports whether a failed round trip (no status) is retried.
	transport bool
}

type endpoint struct {
	provider string
	client   *http.Client
	url      string
	header   http.Header
	policy   retryPolicy
	debug    bool
	prompts  bool
}

type statusError struct {
	provider string
	status   int
	body     string
}

func (e *statusError) Error() string {
	msg := e.body
	if msg == "" {
		msg = http.StatusText(e.status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.provider, e.status, truncateForError(msg, 300))
}

// post sends payload as JSON and decodes a 200 answer into out, retrying per
// the endpoint policy.
func (e endpoint) post(ctx context.Context, prompt string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling %s request: %w", e.provider, err)
	}
	if e.debug {
		slog.Info("Inference request", "provider", e.provider, "url", e.url,
			"prompt_chars", len(prompt), "request_bytes", len(body))
	}
	if e.prompts {
		slog.Info("Inference prompt body", "provider", e.provider, "prompt", prompt)
	}

	attempts := max(e.policy.attempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		data, hdr, err := e.roundTrip(ctx, body)
		if err == nil {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("parsing %s response: %w", e.provider, err)
			}
			return nil
		}
		lastErr = err

		var se *statusError
		isStatus := errors.As(err, &se)
		retry := (isStatus && e.policy.retryable != nil && e.policy.retryable(se.status)) ||
			(!isStatus && e.policy.transport)
		if !retry || attempt == attempts || ctx.Err() != nil {
			break
		}

		var wait time.Duration
		if e.policy.delay != nil {
			var b []byte
			if isStatus {
				b = []byte(se.body)
			}
			wait = e.policy.delay(attempt, hdr, b)
		}
		slog.Warn("Inference call failed, retrying", "provider", e.provider,
			"attempt", attempt, "max_attempts", attempts, "wait", wait.String(), "error", err)
		if err := sleepWithContext(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

func (e endpoint) roundTrip(ctx context.Context, body []byte) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s request: %w", e.provider, err)
	}
	for k, v := range e.header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	// #nosec G107 -- the URL comes from local config and is validated by the provider constructor.
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("calling %s: %w", e.provider, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.Header, fmt.Errorf("reading %s response: %w", e.provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.Header, &statusError{provider: e.provider, status: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}
	return data, resp.Header, nil
}

// probe reports whether GET url answers 200.
func probe(ctx context.Context, client *http.Client, url string, header http.Header) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// rateLimitDelay honours Retry-After, then the "please try again in Xs"
// hint some APIs put in the body, then a capped quadratic backoff.
func rateLimitDelay(attempt int, header http.Header, body []byte) time.Duration {
	if ra := strings.TrimSpace(header.Get("Retry-After")); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	const hint = "please try again in "
	lower := strings.ToLower(string(body))
	if i := strings.Index(lower, hint); i >= 0 {
		if fields := strings.Fields(lower[i+len(hint):]); len(fields) > 0 {
			if d, err := time.ParseDuration(strings.Trim(fields[0], ".,")); err == nil && d > 0 {
				return d
			}
		}
	}
	return min(time.Duration(attempt*attempt)*500*time.Millisecond, 8*time.Second)
}

func truncateForError(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
