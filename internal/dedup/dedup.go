// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dedup warns reviewers about records and open requests that share
// a candidate's title.
package dedup

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pdiddy/rdm-harvest/internal/logging"
	"github.com/pdiddy/rdm-harvest/pkg/types"
)

// Searcher queries one repository instance.
type Searcher interface {
	BaseURL() string
	SearchRecords(ctx context.Context, title string) ([]types.RecordHit, error)
	SearchOpenRequests(ctx context.Context, title, token string) ([]types.RecordHit, error)
}

// Detector checks candidates against the repository selected per call.
type Detector struct {
	// Select returns the searcher for an environment.
	Select func(types.Environment) Searcher
	Logger *slog.Logger
}

// Check appends one warning line per existing record and per open request
// whose title equals the candidate's title. Search failures count as no
// match. msg is returned for chaining; a nil msg is allocated.
func (d *Detector) Check(ctx context.Context, rec types.PublicationRecord, msg *types.ReviewMessage, token string, env types.Environment) *types.ReviewMessage {
	if msg == nil {
		msg = &types.ReviewMessage{}
	}
	title := strings.TrimSpace(rec.Metadata.Title)
	if title == "" || d.Select == nil {
		return msg
	}
	s := d.Select(env)
	if s == nil {
		return msg
	}
	log := logging.OrDiscard(d.Logger)
	base := strings.TrimRight(s.BaseURL(), "/")

	records, err := s.SearchRecords(ctx, title)
	if err != nil {
		log.Warn("duplicate record search failed", "title", title, "error", err)
	}
	for _, h := range exact(records, title) {
		msg.Appendf("Warning: a record with the same title already exists: %s/records/%s", base, h.ID)
	}

	requests, err := s.SearchOpenRequests(ctx, title, token)
	if err != nil {
		log.Warn("open request search failed", "title", title, "error", err)
	}
	for _, h := range exact(requests, title) {
		msg.Appendf("Warning: an open request with the same title is pending: %s/me/requests/%s", base, h.ID)
	}
	return msg
}

func exact(hits []types.RecordHit, title string) []types.RecordHit {
	var out []types.RecordHit
	for _, h := range hits {
		if strings.TrimSpace(h.Title) == title {
			out = append(out, h)
		}
	}
	return out
}
