// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package reconcile merges author identity data from a secondary metadata
// source into the authoritative author list of a record.
//
// Authors are aligned by position. The only correction applied is the
// collaboration-name shift: when the secondary list is one entry short and
// its first family name matches the second primary author, alignment
// starts at primary index 1. Nothing else is guessed.
package reconcile

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/pdiddy/rdm-harvest/internal/identifier"
	"github.com/pdiddy/rdm-harvest/pkg/types"
)

// AffiliationResolver turns secondary-source affiliations into resolved,
// deduplicated record affiliations.
type AffiliationResolver interface {
	ResolveAll(ctx context.Context, affs []types.SecondaryAffiliation) []types.Affiliation
}

// Reconciler enriches primary author lists.
type Reconciler struct {
	Affiliations AffiliationResolver

	// Source names the secondary source in review notes. Defaults to
	// "Dimensions".
	Source string
}

// Result counts what one reconciliation did.
type Result struct {
	Offset            int
	Aligned           bool
	ORCIDsAdded       int
	AffiliationsAdded int
}

// Changed reports whether any creator was modified.
func (r Result) Changed() bool {
	return r.ORCIDsAdded > 0 || r.AffiliationsAdded > 0
}

// Alignment decides how secondary[i] maps onto primary[i+offset]. A
// non-empty warning must be shown to the reviewer. ok is false when no
// enrichment should be attempted.
func Alignment(primary []types.Creator, secondary []types.SecondaryAuthor) (offset int, ok bool, warning string) {
	switch {
	case len(secondary) == 0:
		return 0, false, ""
	case len(secondary) == len(primary):
		return 0, true, ""
	case len(secondary) > len(primary):
		return 0, false, fmt.Sprintf(
			"Secondary source lists %d authors but the record has %d; author identifiers and affiliations were not merged",
			len(secondary), len(primary))
	}

	warning = fmt.Sprintf(
		"Secondary source lists %d authors but the record has %d; verify author identifiers and affiliations manually",
		len(secondary), len(primary))
	if len(primary) > 1 && sameFamilyName(secondary[0].FamilyName, primary[1].PersonOrOrg.FamilyName) {
		offset = 1
	}
	return offset, true, warning
}

func sameFamilyName(a, b string) bool {
	a = norm.NFC.String(strings.TrimSpace(a))
	b = norm.NFC.String(strings.TrimSpace(b))
	return a != "" && a == b
}

// Reconcile merges secondary into primary in place. An ORCID is only added
// to a creator with no identifiers at all, and affiliations only to a
// creator with none; existing data is never overwritten, so a second call
// with the same input changes nothing. Notes are appended to msg in author
// order, and an alignment warning already in msg is not repeated.
func (r *Reconciler) Reconcile(ctx context.Context, primary []types.Creator, secondary []types.SecondaryAuthor, msg *types.ReviewMessage) Result {
	offset, ok, warning := Alignment(primary, secondary)
	msg.AppendOnce(warning)
	res := Result{Offset: offset, Aligned: ok}
	if !ok {
		return res
	}

	source := r.Source
	if source == "" {
		source = "Dimensions"
	}

	for i, sec := range secondary {
		j := i + offset
		if j >= len(primary) {
			break
		}
		c := &primary[j]
		who := c.PersonOrOrg.DisplayName()

		if len(c.PersonOrOrg.Identifiers) == 0 {
			if orcid := firstORCID(sec.ORCIDs); orcid != "" {
				c.PersonOrOrg.Identifiers = append(c.PersonOrOrg.Identifiers,
					types.Identifier{Scheme: types.SchemeORCID, Identifier: orcid})
				res.ORCIDsAdded++
				msg.Appendf("Added ORCID %s for %s from %s", orcid, who, source)
			}
		}

		if len(c.Affiliations) == 0 && len(sec.Affiliations) > 0 && r.Affiliations != nil {
			resolved := r.Affiliations.ResolveAll(ctx, sec.Affiliations)
			if len(resolved) == 0 {
				continue
			}
			c.Affiliations = resolved
			for _, a := range resolved {
				res.AffiliationsAdded++
				label := a.Name
				if label == "" {
					label = a.ID
				}
				msg.Appendf("Added affiliation %s for %s from %s", label, who, source)
			}
		}
	}
	return res
}

// firstORCID returns the first value that passes the ORCID checksum.
func firstORCID(values []string) string {
	for _, v := range values {
		if id, ok := identifier.NormalizeORCID(v); ok {
			return id
		}
	}
	return ""
}
