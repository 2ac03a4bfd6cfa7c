// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dedup

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/rdm-harvest/pkg/types"
)

type fakeSearcher struct {
	base      string
	records   []types.RecordHit
	requests  []types.RecordHit
	err       error
	gotTokens []string
}

func (f *fakeSearcher) BaseURL() string { return f.base }

func (f *fakeSearcher) SearchRecords(context.Context, string) ([]types.RecordHit, error) {
	return f.records, f.err
}

func (f *fakeSearcher) SearchOpenRequests(_ context.Context, _ string, token string) ([]types.RecordHit, error) {
	f.gotTokens = append(f.gotTokens, token)
	return f.requests, f.err
}

func record(title string) types.PublicationRecord {
	return types.PublicationRecord{Metadata: types.Metadata{Title: title}}
}

func TestCheck_RecordAndRequest(t *testing.T) {
	s := &fakeSearcher{
		base:     "https://authors.example.edu/",
		records:  []types.RecordHit{{ID: "abcd-1234", Title: "Example Paper"}, {ID: "zzzz-0000", Title: "Example Paper, Part 2"}},
		requests: []types.RecordHit{{ID: "req-42", Title: "Example Paper"}},
	}
	d := &Detector{Select: func(types.Environment) Searcher { return s }}
	msg := types.NewReviewMessage("Automatically added")

	out := d.Check(context.Background(), record("Example Paper"), msg, "tok", types.Staging)

	assert.Same(t, msg, out)
	lines := out.Lines()
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "https://authors.example.edu/records/abcd-1234")
	assert.Contains(t, lines[2], "https://authors.example.edu/me/requests/req-42")
	assert.NotEqual(t, lines[1], lines[2])
	assert.Equal(t, []string{"tok"}, s.gotTokens)
}

func TestCheck_NoMatch(t *testing.T) {
	tests := []struct {
		name string
		s    *fakeSearcher
	}{
		{"similar titles only", &fakeSearcher{records: []types.RecordHit{{ID: "1", Title: "example paper"}}}},
		{"search failures", &fakeSearcher{err: &types.ServiceError{Service: "repository", StatusCode: 503, Kind: types.ErrTransient}}},
		{"transport failure", &fakeSearcher{err: errors.New("dial tcp: connection refused")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Detector{Select: func(types.Environment) Searcher { return tt.s }}
			msg := d.Check(context.Background(), record("Example Paper"), types.NewReviewMessage("start"), "", types.Production)
			assert.Equal(t, 1, msg.Len())
		})
	}
}

func TestCheck_SelectsEnvironment(t *testing.T) {
	prod := &fakeSearcher{base: "https://prod", records: []types.RecordHit{{ID: "p", Title: "T"}}}
	staging := &fakeSearcher{base: "https://staging"}
	d := &Detector{Select: func(env types.Environment) Searcher {
		if env == types.Production {
			return prod
		}
		return staging
	}}

	msg := d.Check(context.Background(), record("T"), nil, "", types.Production)
	assert.Equal(t, []string{"Warning: a record with the same title already exists: https://prod/records/p"}, msg.Lines())

	msg = d.Check(context.Background(), record("T"), nil, "", types.Staging)
	assert.Zero(t, msg.Len())
}
