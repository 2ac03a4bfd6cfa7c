// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package source builds DOI worklists from bibliographic services.
package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pdiddy/rdm-harvest/internal/identifier"
	"github.com/pdiddy/rdm-harvest/internal/logging"
)

// Source produces a DOI worklist.
type Source interface {
	Name() string
	DOIs(ctx context.Context) ([]string, error)
}

// List is an explicit worklist.
type List []string

// Name returns the source identifier.
func (l List) Name() string { return "doi" }

// DOIs returns the list unchanged.
func (l List) DOIs(context.Context) ([]string, error) { return l, nil }

// Collect runs every source in order and returns the normalized union of
// their DOIs, first occurrence first. Values that are not DOIs are logged
// and skipped. Any source error aborts collection.
func Collect(ctx context.Context, logger *slog.Logger, sources ...Source) ([]string, error) {
	log := logging.OrDiscard(logger)
	seen := make(map[string]bool)
	var out []string
	for _, s := range sources {
		dois, err := s.DOIs(ctx)
		if err != nil {
			return nil, fmt.Errorf("collecting DOIs from %s: %w", s.Name(), err)
		}
		added := 0
		for _, raw := range dois {
			doi, ok := identifier.NormalizeDOI(raw)
			if !ok {
				log.Warn("skipping malformed DOI", "source", s.Name(), "value", raw)
				continue
			}
			if seen[doi] {
				continue
			}
			seen[doi] = true
			out = append(out, doi)
			added++
		}
		log.Info("worklist collected", "source", s.Name(), "returned", len(dois), "added", added)
	}
	return out, nil
}
