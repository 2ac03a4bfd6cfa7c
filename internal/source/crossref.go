// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/pdiddy/rdm-harvest/internal/httputil"
)

// crossrefWorksBase is the Crossref works endpoint. Declared as a var so
// tests can substitute an httptest server.
var crossrefWorksBase = "https://api.crossref.org/works"

// crossrefRows is the page size for cursor paging.
const crossrefRows = 1000

// DefaultExcludedTypes are Crossref work types never harvested.
var DefaultExcludedTypes = []string{"peer-review", "grant"}

// Crossref lists works affiliated with a ROR id and indexed since a date.
type Crossref struct {
	Client    *http.Client
	UserAgent string

	ROR   string
	Email string
	Since time.Time

	// Excluded lists work types to skip. Nil means DefaultExcludedTypes.
	Excluded []string
}

// Name returns the source identifier.
func (c *Crossref) Name() string { return "crossref" }

// DOIs pages through the works filter with a deep-paging cursor.
func (c *Crossref) DOIs(ctx context.Context) ([]string, error) {
	if c.ROR == "" {
		return nil, fmt.Errorf("crossref source needs a ROR id")
	}
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	excluded := c.Excluded
	if excluded == nil {
		excluded = DefaultExcludedTypes
	}
	skip := make(map[string]bool, len(excluded))
	for _, t := range excluded {
		skip[t] = true
	}

	filters := []string{"ror-id:" + c.ROR}
	if !c.Since.IsZero() {
		filters = append(filters, "from-index-date:"+c.Since.Format("2006-01-02"))
	}

	var dois []string
	cursor := "*"
	for {
		params := url.Values{
			"filter": {strings.Join(filters, ",")},
			"rows":   {fmt.Sprint(crossrefRows)},
			"cursor": {cursor},
			"select": {"DOI,type"},
		}
		if c.Email != "" {
			params.Set("mailto", c.Email)
		}
		body, err := httputil.Do(ctx, client, httputil.Request{
			URL:       crossrefWorksBase + "?" + params.Encode(),
			Service:   "Crossref",
			UserAgent: c.UserAgent,
		})
		if err != nil {
			return nil, err
		}

		items := gjson.GetBytes(body, "message.items")
		n := 0
		items.ForEach(func(_, item gjson.Result) bool {
			n++
			if !skip[item.Get("type").String()] {
				if d := item.Get("DOI").String(); d != "" {
					dois = append(dois, d)
				}
			}
			return true
		})

		next := gjson.GetBytes(body, "message.next-cursor").String()
		if n < crossrefRows || next == "" || next == cursor {
			return dois, nil
		}
		cursor = next
	}
}
