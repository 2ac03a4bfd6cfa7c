// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/pdiddy/rdm-harvest/internal/httputil"
	"github.com/pdiddy/rdm-harvest/internal/identifier"
)

// wosAPIBase is the Web of Science Expanded API root. Declared as a var so
// tests can substitute an httptest server.
var wosAPIBase = "https://api.clarivate.com/api/wos"

// wosPageSize is the largest page the API serves.
const wosPageSize = 100

// DefaultWoSQuery is the address query for the home institution, excluding
// the national-lab partner unless both postal codes appear.
const DefaultWoSQuery = `AD=(((91125 OR "California Institute of Technology" OR "Caltech" OR "Thirty-meter Telescope") not (91109 or (jet and prop and lab))) OR (91125 AND 91109))`

// WebOfScience lists DOIs of records matching an address query within a
// load time span.
type WebOfScience struct {
	Client    *http.Client
	UserAgent string
	Key       string

	Query string

	// Period is the load time span, e.g. "5D", "2M" or "1Y".
	Period string
}

// Name returns the source identifier.
func (w *WebOfScience) Name() string { return "wos" }

// DOIs runs the query and follows the query id through every page.
func (w *WebOfScience) DOIs(ctx context.Context) ([]string, error) {
	if w.Key == "" {
		return nil, fmt.Errorf("web of science source needs an API key")
	}
	query := w.Query
	if query == "" {
		query = DefaultWoSQuery
	}
	period := w.Period
	if period == "" {
		period = "5D"
	}

	params := url.Values{
		"databaseId":   {"WOK"},
		"loadTimeSpan": {period},
		"usrQuery":     {query},
		"count":        {fmt.Sprint(wosPageSize)},
		"firstRecord":  {"1"},
	}
	body, err := w.get(ctx, wosAPIBase+"/?"+params.Encode())
	if err != nil {
		return nil, err
	}
	found := int(gjson.GetBytes(body, "QueryResult.RecordsFound").Int())
	queryID := gjson.GetBytes(body, "QueryResult.QueryID").String()

	var dois []string
	dois = appendWoSDOIs(dois, gjson.GetBytes(body, "Data.Records.records.REC"))

	for first := wosPageSize + 1; first <= found; first += wosPageSize {
		count := found - first + 1
		if count > wosPageSize {
			count = wosPageSize
		}
		pageURL := fmt.Sprintf("%s/query/%s?count=%d&firstRecord=%d", wosAPIBase, url.PathEscape(queryID), count, first)
		body, err := w.get(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		dois = appendWoSDOIs(dois, gjson.GetBytes(body, "Records.records.REC"))
	}
	return dois, nil
}

func (w *WebOfScience) get(ctx context.Context, u string) ([]byte, error) {
	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	return httputil.Do(ctx, client, httputil.Request{
		URL:       u,
		Headers:   map[string]string{"X-ApiKey": w.Key, "Accept": "application/json"},
		Service:   "Web of Science",
		UserAgent: w.UserAgent,
	})
}

// appendWoSDOIs extracts DOI identifiers from a REC list. The identifier
// field is an object when a record has one identifier and an array
// otherwise; arXiv identifiers are rewritten to DataCite DOIs.
func appendWoSDOIs(dois []string, recs gjson.Result) []string {
	recs.ForEach(func(_, rec gjson.Result) bool {
		ids := rec.Get("dynamic_data.cluster_related.identifiers.identifier")
		visit := func(id gjson.Result) {
			if id.Get("type").String() != "doi" {
				return
			}
			v := id.Get("value").String()
			if strings.Contains(v, "arXiv") {
				v = identifier.ArxivDOI(v)
			}
			if v != "" {
				dois = append(dois, v)
			}
		}
		if ids.IsArray() {
			ids.ForEach(func(_, id gjson.Result) bool {
				visit(id)
				return true
			})
		} else if ids.IsObject() {
			visit(ids)
		}
		return true
	})
	return dois
}
