// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/pdiddy/rdm-harvest/pkg/types"
)

// maxErrorBody caps how much of an error response body is kept in a
// ServiceError message.
const maxErrorBody = 512

// RoundTripFunc adapts a function to http.RoundTripper.
type RoundTripFunc func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

// RateLimitedTransport waits on limiter before every request. A nil
// limiter returns rt unchanged; a nil rt uses http.DefaultTransport.
func RateLimitedTransport(limiter *rate.Limiter, rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		rt = http.DefaultTransport
	}
	if limiter == nil {
		return rt
	}
	return RoundTripFunc(func(req *http.Request) (*http.Response, error) {
		if err := limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
		return rt.RoundTrip(req)
	})
}

// NewClient builds an *http.Client from cfg: timeout plus a token bucket
// of cfg.RequestsPerSecond (burst 1) when positive.
func NewClient(cfg types.HTTPConfig) *http.Client {
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: RateLimitedTransport(limiter, nil),
	}
}

// Request describes one JSON API call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    io.Reader

	// Service names the remote API in errors (e.g. "ROR").
	Service string

	// UserAgent is sent when non-empty.
	UserAgent string
}

// Do sends r with 429 backoff and returns the raw body of a 2xx response.
// A non-2xx response yields a *types.ServiceError whose Kind is
// ErrNotFound for 404 and ErrTransient otherwise.
func Do(ctx context.Context, client *http.Client, r Request) ([]byte, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, r.URL, r.Body)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", r.Service, err)
	}
	if r.UserAgent != "" {
		req.Header.Set("User-Agent", r.UserAgent)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	resp, err := DoWithRetry(ctx, client, req, 0)
	if err != nil {
		return nil, &types.ServiceError{Service: r.Service, Message: err.Error(), Kind: types.ErrTransient}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.ServiceError{Service: r.Service, StatusCode: resp.StatusCode, Message: "reading body: " + err.Error(), Kind: types.ErrTransient}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind := types.ErrTransient
		if resp.StatusCode == http.StatusNotFound {
			kind = types.ErrNotFound
		}
		return nil, &types.ServiceError{
			Service:    r.Service,
			StatusCode: resp.StatusCode,
			Message:    truncateBody(body),
			Kind:       kind,
		}
	}
	return body, nil
}

// DoJSON sends r and decodes a 2xx JSON body into v.
func DoJSON(ctx context.Context, client *http.Client, r Request, v any) error {
	body, err := Do(ctx, client, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("parsing %s response: %w", r.Service, err)
	}
	return nil
}

func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}
