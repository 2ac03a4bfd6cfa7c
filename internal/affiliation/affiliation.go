// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package affiliation resolves organization references (grid-style ids or
// free text) to canonical ROR ids.
package affiliation

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/pdiddy/rdm-harvest/internal/httputil"
	"github.com/pdiddy/rdm-harvest/internal/identifier"
	"github.com/pdiddy/rdm-harvest/internal/logging"
	"github.com/pdiddy/rdm-harvest/pkg/types"
)

// Fixed ROR ids of the home institution and its two partners.
const (
	HomeROR        = "05dxps055"
	NationalLabROR = "027k65916"
	ObservatoryROR = "00hm6j694"
)

// overrides maps grid ids to ROR ids without consulting the registry.
var overrides = map[string]string{
	"grid.20861.3d": HomeROR,
	"grid.211367.0": NationalLabROR,
	"grid.451078.f": ObservatoryROR,
}

// textRules are applied in order to the free-text name; later matches win.
var textRules = []struct {
	substr string
	id     string
}{
	{"91125", HomeROR},
	{"Jet Propulsion Laboratory", NationalLabROR},
	{"JPL", NationalLabROR},
}

// Registry looks up an organization by external id. An empty id with a nil
// error means no match.
type Registry interface {
	Lookup(ctx context.Context, externalID string) (string, error)
}

// Resolver resolves organization references. The zero value resolves
// overrides and text rules only.
type Resolver struct {
	Registry Registry
	Logger   *slog.Logger

	mu    sync.Mutex
	cache map[string]string
}

// NewResolver returns a Resolver backed by reg.
func NewResolver(reg Registry, logger *slog.Logger) *Resolver {
	return &Resolver{Registry: reg, Logger: logger}
}

// Resolve returns the canonical ROR id for ref. Registry failures are
// logged and treated as no match.
func (r *Resolver) Resolve(ctx context.Context, ref types.OrgRef) (string, bool) {
	id := r.byExternalID(ctx, strings.TrimSpace(ref.ExternalID))
	for _, rule := range textRules {
		if strings.Contains(ref.Name, rule.substr) {
			id = rule.id
		}
	}
	return id, id != ""
}

func (r *Resolver) byExternalID(ctx context.Context, ext string) string {
	if ext == "" {
		return ""
	}
	if id, ok := overrides[strings.ToLower(ext)]; ok {
		return id
	}
	if bare, ok := identifier.BareROR(ext); ok {
		return bare
	}
	if r.Registry == nil {
		return ""
	}

	r.mu.Lock()
	id, hit := r.cache[ext]
	r.mu.Unlock()
	if hit {
		return id
	}

	id, err := r.Registry.Lookup(ctx, ext)
	if err != nil {
		logging.OrDiscard(r.Logger).Warn("organization lookup failed", "external_id", ext, "error", err)
		return ""
	}

	r.mu.Lock()
	if r.cache == nil {
		r.cache = make(map[string]string)
	}
	r.cache[ext] = id
	r.mu.Unlock()
	return id
}

// ResolveAll resolves a secondary-source affiliation list. Entries that
// resolve keep their id and label; entries that do not keep only the label.
// Entries with neither are dropped and the result is deduplicated.
func (r *Resolver) ResolveAll(ctx context.Context, affs []types.SecondaryAffiliation) []types.Affiliation {
	var out []types.Affiliation
	for _, a := range affs {
		name := strings.TrimSpace(a.Label())
		id, _ := r.Resolve(ctx, types.OrgRef{ExternalID: a.ID, Name: name})
		if id == "" && name == "" {
			continue
		}
		out = append(out, types.Affiliation{ID: id, Name: name})
	}
	return Dedupe(out)
}

// Dedupe removes structurally identical affiliations, keeping the first.
func Dedupe(affs []types.Affiliation) []types.Affiliation {
	if len(affs) == 0 {
		return affs
	}
	seen := make(map[types.Affiliation]bool, len(affs))
	out := make([]types.Affiliation, 0, len(affs))
	for _, a := range affs {
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

// rorAPIBase is the ROR organizations endpoint. Declared as a var so tests
// can substitute an httptest server.
var rorAPIBase = "https://api.ror.org/organizations"

// RORClient queries the ROR registry.
type RORClient struct {
	Client    *http.Client
	UserAgent string
}

// Lookup searches ROR for externalID and returns the first hit's bare id.
func (c *RORClient) Lookup(ctx context.Context, externalID string) (string, error) {
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	reqURL := rorAPIBase + "?" + url.Values{"query": {`"` + externalID + `"`}}.Encode()
	body, err := httputil.Do(ctx, client, httputil.Request{
		URL:       reqURL,
		Service:   "ROR",
		UserAgent: c.UserAgent,
		Headers:   map[string]string{"Accept": "application/json"},
	})
	if err != nil {
		return "", err
	}
	if gjson.GetBytes(body, "number_of_results").Int() == 0 {
		return "", nil
	}
	bare, ok := identifier.BareROR(gjson.GetBytes(body, "items.0.id").String())
	if !ok {
		return "", nil
	}
	return bare, nil
}
