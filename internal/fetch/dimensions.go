// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/pdiddy/rdm-harvest/internal/httputil"
	"github.com/pdiddy/rdm-harvest/pkg/types"
)

// dimensionsAPIBase is the Dimensions API root. Declared as a var so tests
// can substitute an httptest server.
var dimensionsAPIBase = "https://app.dimensions.ai/api"

// dimensionsPageSize is the DSL page size for organization harvests.
const dimensionsPageSize = 1000

// DimensionsClient queries the Dimensions DSL. It exchanges the API key for
// a JWT on first use.
type DimensionsClient struct {
	Client    *http.Client
	Key       string
	UserAgent string

	mu    sync.Mutex
	token string
}

func (c *DimensionsClient) httpClient() *http.Client {
	if c.Client == nil {
		return http.DefaultClient
	}
	return c.Client
}

func (c *DimensionsClient) authenticate(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}
	if c.Key == "" {
		return "", fmt.Errorf("%w: no Dimensions API key", types.ErrFatalConfig)
	}
	body, err := json.Marshal(map[string]string{"key": c.Key})
	if err != nil {
		return "", err
	}
	resp, err := httputil.Do(ctx, c.httpClient(), httputil.Request{
		Method:    http.MethodPost,
		URL:       dimensionsAPIBase + "/auth.json",
		Headers:   map[string]string{"Content-Type": "application/json"},
		Body:      bytes.NewReader(body),
		Service:   "Dimensions",
		UserAgent: c.UserAgent,
	})
	if err != nil {
		return "", fmt.Errorf("authenticating with Dimensions: %w", err)
	}
	c.token = gjson.GetBytes(resp, "token").String()
	if c.token == "" {
		return "", fmt.Errorf("no token in Dimensions auth response")
	}
	return c.token, nil
}

// query runs one DSL statement.
func (c *DimensionsClient) query(ctx context.Context, dsl string) ([]byte, error) {
	token, err := c.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	return httputil.Do(ctx, c.httpClient(), httputil.Request{
		Method:    http.MethodPost,
		URL:       dimensionsAPIBase + "/dsl/v2",
		Headers:   map[string]string{"Authorization": "JWT " + token, "Content-Type": "text/plain"},
		Body:      strings.NewReader(dsl),
		Service:   "Dimensions",
		UserAgent: c.UserAgent,
	})
}

// Authors returns the Dimensions author list of a publication, in author
// order. An unknown DOI yields an empty list.
func (c *DimensionsClient) Authors(ctx context.Context, doi string) ([]types.SecondaryAuthor, error) {
	dsl := fmt.Sprintf(`search publications where doi = %s return publications[authors]`, quoteDSL(doi))
	body, err := c.query(ctx, dsl)
	if err != nil {
		return nil, err
	}
	raw := gjson.GetBytes(body, "publications.0.authors")
	if !raw.Exists() {
		return nil, nil
	}
	var authors []types.SecondaryAuthor
	if err := json.Unmarshal([]byte(raw.Raw), &authors); err != nil {
		return nil, fmt.Errorf("parsing Dimensions authors for %s: %w", doi, err)
	}
	return authors, nil
}

// DOIsForOrganization returns DOIs of publications affiliated with the
// grid id orgID and indexed on or after since.
func (c *DimensionsClient) DOIsForOrganization(ctx context.Context, orgID string, since time.Time) ([]string, error) {
	var dois []string
	for skip := 0; ; skip += dimensionsPageSize {
		dsl := fmt.Sprintf(`search publications where research_orgs.id = %s and date_inserted >= %s return publications[doi] limit %d skip %d`,
			quoteDSL(orgID), quoteDSL(since.Format("2006-01-02")), dimensionsPageSize, skip)
		body, err := c.query(ctx, dsl)
		if err != nil {
			return nil, err
		}
		page := gjson.GetBytes(body, "publications.#.doi").Array()
		for _, d := range page {
			if s := d.String(); s != "" {
				dois = append(dois, s)
			}
		}
		total := gjson.GetBytes(body, "_stats.total_count").Int()
		if len(page) < dimensionsPageSize || int64(skip+dimensionsPageSize) >= total {
			return dois, nil
		}
	}
}

// quoteDSL quotes a string literal for the Dimensions DSL.
func quoteDSL(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}
