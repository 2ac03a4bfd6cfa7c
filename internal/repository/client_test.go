// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package repository

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/rdm-harvest/pkg/types"
)

// fakeRDM is a minimal InvenioRDM stand-in that records every call.
type fakeRDM struct {
	mu     sync.Mutex
	calls  []string
	bodies map[string]string
	auth   map[string]string
	fail   map[string]int
}

func newFakeRDM() *fakeRDM {
	return &fakeRDM{bodies: map[string]string{}, auth: map[string]string{}, fail: map[string]int{}}
}

func (f *fakeRDM) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.bodies[key] = string(body)
	f.auth[key] = r.Header.Get("Authorization")
	status := f.fail[key]
	f.mu.Unlock()

	if status != 0 {
		http.Error(w, `{"message":"boom"}`, status)
		return
	}

	q := r.URL.Query().Get("q")
	switch key {
	case "GET /api/records":
		switch {
		case strings.Contains(q, "10.1000/present"):
			w.Write([]byte(`{"hits":{"total":1,"hits":[{"id":"abcd-1234"}]}}`))
		case strings.Contains(q, "metadata.title"):
			w.Write([]byte(`{"hits":{"total":2,"hits":[
				{"id":"abcd-1234","metadata":{"title":"Example Paper"}},
				{"id":"efgh-5678","metadata":{"title":"Example Paper II"}}]}}`))
		default:
			w.Write([]byte(`{"hits":{"total":0,"hits":[]}}`))
		}
	case "GET /api/user/requests":
		w.Write([]byte(`{"hits":{"total":1,"hits":[{"id":"req-1","title":"Example Paper","is_open":true}]}}`))
	case "GET /api/names":
		w.Write([]byte(`{"hits":{"total":1,"hits":[{"id":"carberry-j","given_name":"Josiah","family_name":"Carberry",
			"identifiers":[{"scheme":"orcid","identifier":"0000-0002-1825-0097"}],
			"affiliations":[{"id":"05dxps055","name":"Caltech"}]}]}}`))
	case "POST /api/records":
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"new-1","links":{}}`))
	case "POST /api/records/new-1/draft/actions/submit-review":
		w.Write([]byte(`{"id":"req-9","status":"submitted"}`))
	case "POST /api/records/rec-1/draft":
		w.Write([]byte(`{"id":"rec-1","metadata":{"title":"Old","creators":[{"person_or_org":{"family_name":"Keep"}}]}}`))
	case "POST /api/records/rec-1/versions":
		w.Write([]byte(`{"id":"rec-2","metadata":{"title":"Old","creators":[{"person_or_org":{"family_name":"Keep"}}]}}`))
	default:
		w.Write([]byte(`{}`))
	}
}

func (f *fakeRDM) setFail(key string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[key] = status
}

func (f *fakeRDM) body(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[key]
}

func (f *fakeRDM) authFor(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auth[key]
}

func (f *fakeRDM) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestClient(t *testing.T) (*Client, *fakeRDM) {
	t.Helper()
	fake := newFakeRDM()
	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)
	return New(ts.URL+"/", WithHTTPClient(ts.Client()), WithUserAgent("rdm-harvest-test")), fake
}

func TestDOIExists(t *testing.T) {
	c, fake := newTestClient(t)

	ok, err := c.DOIExists(context.Background(), "10.1000/present", "tok")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Bearer tok", fake.authFor("GET /api/records"))

	ok, err = c.DOIExists(context.Background(), "10.1000/absent", "")
	require.NoError(t, err)
	assert.False(t, ok)

	fake.setFail("GET /api/records", http.StatusInternalServerError)
	_, err = c.DOIExists(context.Background(), "10.1000/present", "")
	require.Error(t, err, "non-2xx is a hard error")
	assert.Equal(t, http.StatusInternalServerError, types.StatusCode(err))
}

func TestSearches(t *testing.T) {
	c, fake := newTestClient(t)

	hits, err := c.SearchRecords(context.Background(), "Example Paper")
	require.NoError(t, err)
	assert.Equal(t, []types.RecordHit{
		{ID: "abcd-1234", Title: "Example Paper"},
		{ID: "efgh-5678", Title: "Example Paper II"},
	}, hits)

	reqs, err := c.SearchOpenRequests(context.Background(), "Example Paper", "tok")
	require.NoError(t, err)
	assert.Equal(t, []types.RecordHit{{ID: "req-1", Title: "Example Paper"}}, reqs)
	assert.Equal(t, "Bearer tok", fake.authFor("GET /api/user/requests"))

	names, err := c.LookupNameByORCID(context.Background(), "0000-0002-1825-0097")
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.Equal(t, "Carberry", names[0].FamilyName)
	assert.Equal(t, []types.Affiliation{{ID: "05dxps055", Name: "Caltech"}}, names[0].Affiliations)
}

func TestBaseURLAndEnvironment(t *testing.T) {
	cfg := types.RepositoryConfig{ProductionURL: "https://authors.example.edu/", StagingURL: "https://authors.example.dev"}
	assert.Equal(t, "https://authors.example.edu", ForEnvironment(cfg, types.Production).BaseURL())
	assert.Equal(t, "https://authors.example.dev", ForEnvironment(cfg, types.Staging).BaseURL())
}

func TestWriteRecord_CommunityPublish(t *testing.T) {
	c, fake := newTestClient(t)
	pdf := filepath.Join(t.TempDir(), "paper.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.7"), 0o644))

	rec := types.PublicationRecord{Metadata: types.Metadata{Title: "Example Paper"}}
	res, err := c.WriteRecord(context.Background(), rec, "tok", WriteOptions{
		Community:     "community-uuid",
		ReviewMessage: "Automatically added from Crossref",
		Attachment:    &types.Attachment{URL: "https://example.org/paper.pdf", Filename: "paper.pdf", LocalPath: pdf},
		Publish:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, WriteResult{RecordID: "new-1", RequestID: "req-9", Published: true}, res)

	assert.Equal(t, []string{
		"POST /api/records",
		"POST /api/records/new-1/draft/files",
		"PUT /api/records/new-1/draft/files/paper.pdf/content",
		"POST /api/records/new-1/draft/files/paper.pdf/commit",
		"PUT /api/records/new-1/draft/review",
		"POST /api/records/new-1/draft/actions/submit-review",
		"POST /api/requests/req-9/actions/accept",
	}, fake.callList())

	var created types.PublicationRecord
	require.NoError(t, json.Unmarshal([]byte(fake.body("POST /api/records")), &created))
	assert.True(t, created.Files.Enabled)
	assert.Equal(t, "%PDF-1.7", fake.body("PUT /api/records/new-1/draft/files/paper.pdf/content"))
	assert.Contains(t, fake.body("PUT /api/records/new-1/draft/review"), "community-uuid")
	assert.Contains(t, fake.body("POST /api/records/new-1/draft/actions/submit-review"), "Automatically added from Crossref")
}

func TestWriteRecord_DirectPublish(t *testing.T) {
	c, fake := newTestClient(t)

	res, err := c.WriteRecord(context.Background(), types.PublicationRecord{Metadata: types.Metadata{Title: "T"}}, "tok", WriteOptions{Publish: true})
	require.NoError(t, err)
	assert.True(t, res.Published)
	assert.Equal(t, []string{"POST /api/records", "POST /api/records/new-1/draft/actions/publish"}, fake.callList())
}

func TestWriteRecord_Errors(t *testing.T) {
	t.Run("draft rejected", func(t *testing.T) {
		c, fake := newTestClient(t)
		fake.setFail("POST /api/records", http.StatusBadRequest)
		_, err := c.WriteRecord(context.Background(), types.PublicationRecord{}, "tok", WriteOptions{Community: "c"})
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrWrite)
		assert.Equal(t, http.StatusBadRequest, types.StatusCode(err))
	})

	t.Run("attachment not downloaded", func(t *testing.T) {
		c, _ := newTestClient(t)
		_, err := c.WriteRecord(context.Background(), types.PublicationRecord{}, "tok", WriteOptions{
			Attachment: &types.Attachment{URL: "https://example.org/p.pdf", Filename: "p.pdf"},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrWrite)
		assert.Contains(t, err.Error(), "was not downloaded")
	})

	t.Run("submit rejected", func(t *testing.T) {
		c, fake := newTestClient(t)
		fake.setFail("POST /api/records/new-1/draft/actions/submit-review", http.StatusForbidden)
		res, err := c.WriteRecord(context.Background(), types.PublicationRecord{}, "tok", WriteOptions{Community: "c"})
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrWrite)
		assert.Equal(t, "new-1", res.RecordID, "draft id is reported for cleanup")
		assert.Contains(t, err.Error(), "draft new-1")
	})

	t.Run("upload rejected names draft", func(t *testing.T) {
		c, fake := newTestClient(t)
		pdf := filepath.Join(t.TempDir(), "p.pdf")
		require.NoError(t, os.WriteFile(pdf, []byte("%PDF"), 0o644))
		fake.setFail("POST /api/records/new-1/draft/files", http.StatusInternalServerError)
		res, err := c.WriteRecord(context.Background(), types.PublicationRecord{}, "tok", WriteOptions{
			Community:  "c",
			Attachment: &types.Attachment{URL: "https://example.org/p.pdf", Filename: "p.pdf", LocalPath: pdf},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrWrite)
		assert.Equal(t, "new-1", res.RecordID)
		assert.Contains(t, err.Error(), "draft new-1: uploading p.pdf")
	})
}

func TestWriteRecord_ReviewMessageLines(t *testing.T) {
	c, fake := newTestClient(t)

	_, err := c.WriteRecord(context.Background(), types.PublicationRecord{}, "tok", WriteOptions{
		Community:     "c",
		ReviewMessage: "Automatically added from DOI 10.1000/a\nAdded ORCID for Roe & Doe",
	})
	require.NoError(t, err)

	var sent struct {
		Payload struct {
			Content string `json:"content"`
			Format  string `json:"format"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(fake.body("POST /api/records/new-1/draft/actions/submit-review")), &sent))
	assert.Equal(t, "html", sent.Payload.Format)
	assert.Equal(t, "Automatically added from DOI 10.1000/a<br>Added ORCID for Roe &amp; Doe", sent.Payload.Content)
}

func TestEditRecord(t *testing.T) {
	source := types.PublicationRecord{Metadata: types.Metadata{
		Title:    "New title",
		Creators: []types.Creator{{PersonOrOrg: types.PersonOrOrg{FamilyName: "Replace"}}},
	}}

	t.Run("keeps creators", func(t *testing.T) {
		c, fake := newTestClient(t)
		id, err := c.EditRecord(context.Background(), "rec-1", source, "tok", EditOptions{})
		require.NoError(t, err)
		assert.Equal(t, "rec-1", id)
		assert.Equal(t, []string{
			"POST /api/records/rec-1/draft",
			"PUT /api/records/rec-1/draft",
			"POST /api/records/rec-1/draft/actions/publish",
		}, fake.callList())

		var sent types.PublicationRecord
		require.NoError(t, json.Unmarshal([]byte(fake.body("PUT /api/records/rec-1/draft")), &sent))
		assert.Equal(t, "New title", sent.Metadata.Title)
		require.Len(t, sent.Metadata.Creators, 1)
		assert.Equal(t, "Keep", sent.Metadata.Creators[0].PersonOrOrg.FamilyName)
	})

	t.Run("new version with authors", func(t *testing.T) {
		c, fake := newTestClient(t)
		id, err := c.EditRecord(context.Background(), "rec-1", source, "tok", EditOptions{Authors: true, NewVersion: true})
		require.NoError(t, err)
		assert.Equal(t, "rec-2", id)

		var sent types.PublicationRecord
		require.NoError(t, json.Unmarshal([]byte(fake.body("PUT /api/records/rec-2/draft")), &sent))
		assert.Equal(t, "Replace", sent.Metadata.Creators[0].PersonOrOrg.FamilyName)
	})

	t.Run("publish rejected", func(t *testing.T) {
		c, fake := newTestClient(t)
		fake.setFail("POST /api/records/rec-1/draft/actions/publish", http.StatusBadRequest)
		_, err := c.EditRecord(context.Background(), "rec-1", source, "tok", EditOptions{})
		assert.ErrorIs(t, err, types.ErrWrite)
	})
}
