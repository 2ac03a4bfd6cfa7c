// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/pdiddy/rdm-harvest/internal/httputil"
	"github.com/pdiddy/rdm-harvest/internal/identifier"
)

// orcidAPIBase is the ORCID public API root. Declared as a var so tests can
// substitute an httptest server.
var orcidAPIBase = "https://pub.orcid.org/v3.0"

// ORCID lists the DOIs on a researcher's ORCID works.
type ORCID struct {
	Client    *http.Client
	UserAgent string
	ORCID     string
}

// Name returns the source identifier.
func (o *ORCID) Name() string { return "orcid" }

// DOIs reads the works summary and returns each work's DOI external ids.
func (o *ORCID) DOIs(ctx context.Context) ([]string, error) {
	id, ok := identifier.NormalizeORCID(o.ORCID)
	if !ok {
		return nil, fmt.Errorf("invalid ORCID %q", o.ORCID)
	}
	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}
	body, err := httputil.Do(ctx, client, httputil.Request{
		URL:       orcidAPIBase + "/" + id + "/works",
		Headers:   map[string]string{"Accept": "application/json"},
		Service:   "ORCID",
		UserAgent: o.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	var dois []string
	gjson.GetBytes(body, "group").ForEach(func(_, group gjson.Result) bool {
		group.Get("work-summary.0.external-ids.external-id").ForEach(func(_, ext gjson.Result) bool {
			if strings.EqualFold(ext.Get("external-id-type").String(), "doi") {
				if v := ext.Get("external-id-value").String(); v != "" {
					dois = append(dois, v)
				}
			}
			return true
		})
		return true
	})
	return dois, nil
}
