// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"fmt"
	"time"
)

// OrganizationSearcher lists DOIs affiliated with an organization.
type OrganizationSearcher interface {
	DOIsForOrganization(ctx context.Context, orgID string, since time.Time) ([]string, error)
}

// Dimensions lists publications of an organization inserted since a date.
type Dimensions struct {
	Search OrganizationSearcher
	GridID string
	Since  time.Time
}

// Name returns the source identifier.
func (d *Dimensions) Name() string { return "dimensions" }

// DOIs queries the organization's publications.
func (d *Dimensions) DOIs(ctx context.Context) ([]string, error) {
	if d.GridID == "" {
		return nil, fmt.Errorf("dimensions source needs an organization id")
	}
	return d.Search.DOIsForOrganization(ctx, d.GridID, d.Since)
}
