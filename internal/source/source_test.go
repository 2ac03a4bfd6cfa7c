// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// swap points a package base URL at ts for the duration of the test.
func swap(t *testing.T, target *string, ts *httptest.Server) {
	t.Helper()
	orig := *target
	*target = ts.URL
	t.Cleanup(func() { *target = orig })
}

type staticSource struct {
	name string
	dois []string
	err  error
}

func (s staticSource) Name() string                          { return s.name }
func (s staticSource) DOIs(context.Context) ([]string, error) { return s.dois, s.err }

func TestCollect(t *testing.T) {
	dois, err := Collect(context.Background(), nil,
		List{"10.1000/A", "https://doi.org/10.1000/b", "not a doi"},
		staticSource{name: "second", dois: []string{"10.1000/a", "10.1000/c"}},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.1000/a", "10.1000/b", "10.1000/c"}, dois)

	_, err = Collect(context.Background(), nil, staticSource{name: "broken", err: errors.New("boom")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestCrossref_DOIs(t *testing.T) {
	var filters, cursors []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filters = append(filters, q.Get("filter"))
		cursors = append(cursors, q.Get("cursor"))
		assert.Equal(t, "library@example.edu", q.Get("mailto"))

		if q.Get("cursor") == "*" {
			var items []string
			for i := 0; i < crossrefRows; i++ {
				typ := "journal-article"
				if i == 1 {
					typ = "peer-review"
				}
				items = append(items, fmt.Sprintf(`{"DOI":"10.1000/p1-%d","type":%q}`, i, typ))
			}
			fmt.Fprintf(w, `{"message":{"next-cursor":"c2","items":[%s]}}`, strings.Join(items, ","))
			return
		}
		w.Write([]byte(`{"message":{"next-cursor":"c3","items":[{"DOI":"10.1000/last","type":"grant"},{"DOI":"10.1000/p2","type":"posted-content"}]}}`))
	}))
	defer ts.Close()
	swap(t, &crossrefWorksBase, ts)

	c := &Crossref{Client: ts.Client(), ROR: "05dxps055", Email: "library@example.edu", Since: time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC)}
	dois, err := c.DOIs(context.Background())
	require.NoError(t, err)

	assert.Len(t, dois, crossrefRows, "one peer-review dropped, one posted-content added")
	assert.Equal(t, "10.1000/p1-0", dois[0])
	assert.NotContains(t, dois, "10.1000/p1-1")
	assert.NotContains(t, dois, "10.1000/last")
	assert.Equal(t, "10.1000/p2", dois[len(dois)-1])
	assert.Equal(t, []string{"*", "c2"}, cursors)
	assert.Equal(t, "ror-id:05dxps055,from-index-date:2024-07-04", filters[0])
}

func TestCrossref_RequiresROR(t *testing.T) {
	_, err := (&Crossref{}).DOIs(context.Background())
	assert.Error(t, err)
}

func TestORCID_DOIs(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0000-0002-1825-0097/works", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte(`{"group":[
			{"work-summary":[{"external-ids":{"external-id":[
				{"external-id-type":"doi","external-id-value":"10.1000/one"},
				{"external-id-type":"eid","external-id-value":"2-s2.0-1"}]}}]},
			{"work-summary":[{"external-ids":{"external-id":[]}}]},
			{"work-summary":[{"external-ids":{"external-id":[
				{"external-id-type":"DOI","external-id-value":"10.1000/two"}]}}]}
		]}`))
	}))
	defer ts.Close()
	swap(t, &orcidAPIBase, ts)

	o := &ORCID{Client: ts.Client(), ORCID: "https://orcid.org/0000-0002-1825-0097"}
	dois, err := o.DOIs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"10.1000/one", "10.1000/two"}, dois)

	_, err = (&ORCID{ORCID: "0000-0003-1234-5678"}).DOIs(context.Background())
	assert.Error(t, err, "bad checksum")
}

func TestWebOfScience_DOIs(t *testing.T) {
	var pages []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-ApiKey"))
		if r.URL.Path == "/" {
			assert.Equal(t, "WOK", r.URL.Query().Get("databaseId"))
			assert.Equal(t, "1Y", r.URL.Query().Get("loadTimeSpan"))
			w.Write([]byte(`{"QueryResult":{"QueryID":7,"RecordsFound":150},"Data":{"Records":{"records":{"REC":[
				{"dynamic_data":{"cluster_related":{"identifiers":{"identifier":{"type":"doi","value":"10.1000/single"}}}}},
				{"dynamic_data":{"cluster_related":{"identifiers":{"identifier":[
					{"type":"issn","value":"1234-5678"},
					{"type":"doi","value":"arXiv:2301.07041"}]}}}},
				{"dynamic_data":{}}
			]}}}}`))
			return
		}
		pages = append(pages, r.URL.Path+"?"+r.URL.RawQuery)
		w.Write([]byte(`{"Records":{"records":{"REC":[
			{"dynamic_data":{"cluster_related":{"identifiers":{"identifier":[{"type":"doi","value":"10.1000/page2"}]}}}}
		]}}}`))
	}))
	defer ts.Close()
	swap(t, &wosAPIBase, ts)

	wos := &WebOfScience{Client: ts.Client(), Key: "secret", Period: "1Y"}
	dois, err := wos.DOIs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"10.1000/single", "10.48550/arXiv.2301.07041", "10.1000/page2"}, dois)
	assert.Equal(t, []string{"/query/7?count=50&firstRecord=101"}, pages)
}

func TestWebOfScience_RequiresKey(t *testing.T) {
	_, err := (&WebOfScience{}).DOIs(context.Background())
	assert.Error(t, err)
}

type fakeOrgSearch struct {
	gotOrg   string
	gotSince time.Time
}

func (f *fakeOrgSearch) DOIsForOrganization(_ context.Context, org string, since time.Time) ([]string, error) {
	f.gotOrg, f.gotSince = org, since
	return []string{"10.1000/dim"}, nil
}

func TestDimensions_DOIs(t *testing.T) {
	search := &fakeOrgSearch{}
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := &Dimensions{Search: search, GridID: "grid.20861.3d", Since: since}

	dois, err := d.DOIs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"10.1000/dim"}, dois)
	assert.Equal(t, "grid.20861.3d", search.gotOrg)
	assert.Equal(t, since, search.gotSince)

	_, err = (&Dimensions{Search: search}).DOIs(context.Background())
	assert.Error(t, err)
}
