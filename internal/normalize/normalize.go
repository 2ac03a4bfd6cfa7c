// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize applies institutional policy to a raw record and
// produces a submission-ready record plus an optional attachment.
package normalize

import (
	"context"
	"log/slog"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/pdiddy/rdm-harvest/internal/affiliation"
	"github.com/pdiddy/rdm-harvest/internal/identifier"
	"github.com/pdiddy/rdm-harvest/internal/logging"
	"github.com/pdiddy/rdm-harvest/pkg/types"
)

// Policy values written to every record.
const (
	PublicationStatus = "published"
	Version           = "Published"
)

// NameLookup searches the repository's names vocabulary by ORCID.
type NameLookup interface {
	LookupNameByORCID(ctx context.Context, orcid string) ([]types.NameRecord, error)
}

// Tables is the subset of the reference data the normalizer reads.
type Tables interface {
	LicenseIDFor(url string) (string, bool)
	IsAllowedAffiliation(id string) bool
	GroupsFor(orcid string) []string
	PersonIDFor(orcid string) (string, bool)
}

// Normalizer runs the normalization steps. Names may be nil, in which case
// the authoritative name step is skipped.
type Normalizer struct {
	Names  NameLookup
	Tables Tables
	Logger *slog.Logger
}

// Normalize returns a normalized copy of raw. Every step tolerates missing
// sections; a failed lookup for one creator leaves that creator as is.
func (n *Normalizer) Normalize(ctx context.Context, raw types.PublicationRecord) (types.PublicationRecord, *types.Attachment) {
	rec := clone(raw)
	log := logging.OrDiscard(n.Logger)

	n.applyNames(ctx, log, &rec)
	n.assignPersonIDs(&rec)
	n.filterAffiliations(&rec)
	n.aggregateGroups(&rec)
	n.collapseRights(&rec)
	pruneIdentifiers(&rec)

	rec.SetCustomField(types.FieldPublicationStatus, []types.VocabularyRef{{ID: PublicationStatus}})
	rec.Metadata.Version = Version

	att := attachmentFor(&rec)
	delete(rec.CustomFields, types.FieldOAPDFURL)
	rec.Files.Enabled = att != nil
	return rec, att
}

// applyNames copies authoritative identity data for creators whose ORCID
// matches exactly one names entry.
func (n *Normalizer) applyNames(ctx context.Context, log *slog.Logger, rec *types.PublicationRecord) {
	if n.Names == nil {
		return
	}
	for i := range rec.Metadata.Creators {
		c := &rec.Metadata.Creators[i]
		orcid, ok := c.PersonOrOrg.IdentifierValue(types.SchemeORCID)
		if !ok {
			continue
		}
		hits, err := n.Names.LookupNameByORCID(ctx, orcid)
		if err != nil {
			log.Warn("name lookup failed", "orcid", orcid, "error", err)
			continue
		}
		if len(hits) != 1 {
			log.Debug("name lookup not unique", "orcid", orcid, "hits", len(hits))
			continue
		}
		hit := hits[0]
		if len(c.Affiliations) == 0 && len(hit.Affiliations) > 0 {
			c.Affiliations = append([]types.Affiliation(nil), hit.Affiliations...)
		}
		if len(hit.Identifiers) > 0 {
			c.PersonOrOrg.Identifiers = append([]types.Identifier(nil), hit.Identifiers...)
		}
	}
}

func (n *Normalizer) assignPersonIDs(rec *types.PublicationRecord) {
	if n.Tables == nil {
		return
	}
	for i := range rec.Metadata.Creators {
		p := &rec.Metadata.Creators[i].PersonOrOrg
		if _, has := p.IdentifierValue(types.SchemeCLPID); has {
			continue
		}
		orcid, ok := p.IdentifierValue(types.SchemeORCID)
		if !ok {
			continue
		}
		if clpid, ok := n.Tables.PersonIDFor(orcid); ok {
			p.Identifiers = append(p.Identifiers, types.Identifier{Scheme: types.SchemeCLPID, Identifier: clpid})
		}
	}
}

// filterAffiliations drops ids not on the allow-list and removes
// duplicates. Entries without an id pass.
func (n *Normalizer) filterAffiliations(rec *types.PublicationRecord) {
	for i := range rec.Metadata.Creators {
		c := &rec.Metadata.Creators[i]
		if len(c.Affiliations) == 0 {
			continue
		}
		kept := c.Affiliations[:0:0]
		for _, a := range c.Affiliations {
			if a.ID != "" && (n.Tables == nil || !n.Tables.IsAllowedAffiliation(a.ID)) {
				continue
			}
			kept = append(kept, a)
		}
		c.Affiliations = affiliation.Dedupe(kept)
	}
}

func (n *Normalizer) aggregateGroups(rec *types.PublicationRecord) {
	if n.Tables == nil {
		return
	}
	set := make(map[string]bool)
	for _, id := range rec.Groups() {
		set[id] = true
	}
	for _, c := range rec.Metadata.Creators {
		orcid, ok := c.PersonOrOrg.IdentifierValue(types.SchemeORCID)
		if !ok {
			continue
		}
		for _, g := range n.Tables.GroupsFor(orcid) {
			set[g] = true
		}
	}
	if len(set) == 0 {
		return
	}
	ids := make([]string, 0, len(set))
	for g := range set {
		ids = append(ids, g)
	}
	sort.Strings(ids)
	refs := make([]types.VocabularyRef, len(ids))
	for i, g := range ids {
		refs[i] = types.VocabularyRef{ID: g}
	}
	rec.SetCustomField(types.FieldGroups, refs)
}

// collapseRights maps license links to ids. Unknown links are dropped;
// entries that already carry only an id are kept. An empty result gets the
// default sentinel.
func (n *Normalizer) collapseRights(rec *types.PublicationRecord) {
	var out []types.Right
	seen := make(map[string]bool)
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			out = append(out, types.Right{ID: id})
		}
	}
	for _, r := range rec.Metadata.Rights {
		switch {
		case r.Link != "":
			if n.Tables == nil {
				continue
			}
			if id, ok := n.Tables.LicenseIDFor(r.Link); ok {
				add(id)
			}
		case r.ID != "":
			add(r.ID)
		}
	}
	if len(out) == 0 {
		out = []types.Right{{ID: types.DefaultRightsID}}
	}
	rec.Metadata.Rights = out
}

func pruneIdentifiers(rec *types.PublicationRecord) {
	ids := rec.Metadata.Identifiers[:0:0]
	for _, id := range rec.Metadata.Identifiers {
		if strings.EqualFold(id.Scheme, types.SchemeISSN) {
			continue
		}
		ids = append(ids, id)
	}
	rec.Metadata.Identifiers = ids
	rec.Metadata.Dates = nil
}

// attachmentFor returns the open-access PDF when the record is CC BY
// licensed.
func attachmentFor(rec *types.PublicationRecord) *types.Attachment {
	pdf := strings.TrimSpace(rec.CustomString(types.FieldOAPDFURL))
	if pdf == "" {
		return nil
	}
	licensed := false
	for _, r := range rec.Metadata.Rights {
		if strings.HasPrefix(r.ID, "cc-by") {
			licensed = true
			break
		}
	}
	if !licensed {
		return nil
	}

	name := ""
	if u, err := url.Parse(pdf); err == nil {
		name = path.Base(u.Path)
	}
	if name == "" || name == "/" || name == "." || !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		stem := identifier.Slug(rec.DOI())
		if stem == "" {
			stem = "fulltext"
		}
		name = stem + ".pdf"
	}
	return &types.Attachment{URL: pdf, Filename: name}
}

// clone copies the parts of a record the normalizer mutates.
func clone(raw types.PublicationRecord) types.PublicationRecord {
	rec := raw
	rec.Metadata.Creators = make([]types.Creator, len(raw.Metadata.Creators))
	for i, c := range raw.Metadata.Creators {
		c.PersonOrOrg.Identifiers = append([]types.Identifier(nil), c.PersonOrOrg.Identifiers...)
		c.Affiliations = append([]types.Affiliation(nil), c.Affiliations...)
		rec.Metadata.Creators[i] = c
	}
	rec.Metadata.Rights = append([]types.Right(nil), raw.Metadata.Rights...)
	rec.Metadata.Identifiers = append([]types.Identifier(nil), raw.Metadata.Identifiers...)
	if raw.CustomFields != nil {
		rec.CustomFields = make(map[string]any, len(raw.CustomFields))
		for k, v := range raw.CustomFields {
			rec.CustomFields[k] = v
		}
	}
	return rec
}
