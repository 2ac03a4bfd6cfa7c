// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package repository is a client for the InvenioRDM REST API of the target
// institutional repository: existence checks, searches used for duplicate
// detection and name lookup, and record writes.
package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/pdiddy/rdm-harvest/internal/httputil"
	"github.com/pdiddy/rdm-harvest/internal/logging"
	"github.com/pdiddy/rdm-harvest/pkg/types"
)

// searchSize bounds the hits requested from search endpoints.
const searchSize = 25

// Client talks to one repository instance.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a client for the repository at baseURL
// (e.g. "https://authors.library.caltech.edu").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDiscard(c.logger)
	return c
}

// ForEnvironment returns a client for the instance cfg names for env.
func ForEnvironment(cfg types.RepositoryConfig, env types.Environment, opts ...Option) *Client {
	return New(cfg.BaseURL(env), opts...)
}

// BaseURL returns the repository base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// call performs one API request. in is JSON-encoded when non-nil; raw
// bodies use callRaw.
func (c *Client) call(ctx context.Context, method, path, token string, in any) ([]byte, error) {
	var body io.Reader
	headers := map[string]string{"Accept": "application/json"}
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
		headers["Content-Type"] = "application/json"
	}
	return c.callRaw(ctx, method, path, token, body, headers)
}

func (c *Client) callRaw(ctx context.Context, method, path, token string, body io.Reader, headers map[string]string) ([]byte, error) {
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	return httputil.Do(ctx, c.httpClient, httputil.Request{
		Method:    method,
		URL:       c.baseURL + path,
		Headers:   headers,
		Body:      body,
		Service:   "repository",
		UserAgent: c.userAgent,
	})
}

// DOIExists reports whether a record with doi exists. Any non-2xx response
// is an error.
func (c *Client) DOIExists(ctx context.Context, doi, token string) (bool, error) {
	q := url.Values{"q": {fmt.Sprintf("pids.doi.identifier:%q", doi)}, "size": {"1"}}
	body, err := c.call(ctx, http.MethodGet, "/api/records?"+q.Encode(), token, nil)
	if err != nil {
		return false, fmt.Errorf("checking DOI %s: %w", doi, err)
	}
	return gjson.GetBytes(body, "hits.total").Int() > 0, nil
}

// SearchRecords returns published records matching title.
func (c *Client) SearchRecords(ctx context.Context, title string) ([]types.RecordHit, error) {
	q := url.Values{"q": {fmt.Sprintf("metadata.title:%q", title)}, "size": {fmt.Sprint(searchSize)}}
	body, err := c.call(ctx, http.MethodGet, "/api/records?"+q.Encode(), "", nil)
	if err != nil {
		return nil, err
	}
	return parseHits(body, "metadata.title"), nil
}

// SearchOpenRequests returns open review requests visible to token whose
// title matches.
func (c *Client) SearchOpenRequests(ctx context.Context, title, token string) ([]types.RecordHit, error) {
	q := url.Values{"q": {fmt.Sprintf("%q", title)}, "is_open": {"true"}, "size": {fmt.Sprint(searchSize)}}
	body, err := c.call(ctx, http.MethodGet, "/api/user/requests?"+q.Encode(), token, nil)
	if err != nil {
		return nil, err
	}
	return parseHits(body, "title"), nil
}

func parseHits(body []byte, titlePath string) []types.RecordHit {
	var hits []types.RecordHit
	gjson.GetBytes(body, "hits.hits").ForEach(func(_, v gjson.Result) bool {
		hits = append(hits, types.RecordHit{
			ID:    v.Get("id").String(),
			Title: v.Get(titlePath).String(),
		})
		return true
	})
	return hits
}

// LookupNameByORCID searches the names vocabulary for an ORCID.
func (c *Client) LookupNameByORCID(ctx context.Context, orcid string) ([]types.NameRecord, error) {
	q := url.Values{"q": {fmt.Sprintf("identifiers.identifier:%q", orcid)}}
	body, err := c.call(ctx, http.MethodGet, "/api/names?"+q.Encode(), "", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Hits struct {
			Hits []types.NameRecord `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing names response: %w", err)
	}
	return resp.Hits.Hits, nil
}
