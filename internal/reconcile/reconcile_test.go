// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/rdm-harvest/internal/affiliation"
	"github.com/pdiddy/rdm-harvest/pkg/types"
)

func person(family string, ids ...types.Identifier) types.Creator {
	return types.Creator{PersonOrOrg: types.PersonOrOrg{
		Type:        "personal",
		FamilyName:  family,
		GivenName:   "A.",
		Identifiers: ids,
	}}
}

func orcid(v string) types.Identifier {
	return types.Identifier{Scheme: types.SchemeORCID, Identifier: v}
}

func newReconciler() *Reconciler {
	return &Reconciler{Affiliations: affiliation.NewResolver(nil, nil)}
}

func TestAlignment(t *testing.T) {
	tests := []struct {
		name        string
		primary     []types.Creator
		secondary   []types.SecondaryAuthor
		wantOffset  int
		wantOK      bool
		wantWarning bool
	}{
		{
			name:      "equal length",
			primary:   []types.Creator{person("Doe"), person("Roe")},
			secondary: []types.SecondaryAuthor{{FamilyName: "Doe"}, {FamilyName: "Roe"}},
			wantOK:    true,
		},
		{
			name:        "shorter without shift",
			primary:     []types.Creator{person("Doe"), person("Roe"), person("Poe")},
			secondary:   []types.SecondaryAuthor{{FamilyName: "Doe"}, {FamilyName: "Roe"}},
			wantOK:      true,
			wantWarning: true,
		},
		{
			name:        "collaboration shift",
			primary:     []types.Creator{{PersonOrOrg: types.PersonOrOrg{Type: "organizational", Name: "LIGO Collaboration"}}, person("Doe"), person("Roe")},
			secondary:   []types.SecondaryAuthor{{FamilyName: "Doe"}, {FamilyName: "Roe"}},
			wantOffset:  1,
			wantOK:      true,
			wantWarning: true,
		},
		{
			name:        "shift compares normalized forms",
			primary:     []types.Creator{person("Collab"), person("Müller")},
			secondary:   []types.SecondaryAuthor{{FamilyName: "Mu\u0308ller"}},
			wantOffset:  1,
			wantOK:      true,
			wantWarning: true,
		},
		{
			name:        "longer is not aligned",
			primary:     []types.Creator{person("Doe")},
			secondary:   []types.SecondaryAuthor{{FamilyName: "Doe"}, {FamilyName: "Roe"}},
			wantWarning: true,
		},
		{
			name:    "no secondary data",
			primary: []types.Creator{person("Doe")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offset, ok, warning := Alignment(tt.primary, tt.secondary)
			assert.Equal(t, tt.wantOffset, offset)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantWarning, warning != "")
		})
	}
}

func TestReconcile_FillsMissingData(t *testing.T) {
	primary := []types.Creator{person("Doe"), person("Roe", orcid("0000-0001-5109-3700"))}
	secondary := []types.SecondaryAuthor{
		{FamilyName: "Doe", ORCIDs: []string{"0000000218250097"}, Affiliations: []types.SecondaryAffiliation{
			{ID: "grid.451078.f", RawAffiliation: "X"},
		}},
		{FamilyName: "Roe", ORCIDs: []string{"0000-0002-1694-233X"}},
	}
	msg := types.NewReviewMessage("Automatically added")

	res := newReconciler().Reconcile(context.Background(), primary, secondary, msg)

	assert.Equal(t, Result{Aligned: true, ORCIDsAdded: 1, AffiliationsAdded: 1}, res)
	require.Len(t, primary, 2)
	assert.Equal(t, []types.Identifier{orcid("0000-0002-1825-0097")}, primary[0].PersonOrOrg.Identifiers)
	assert.Equal(t, []types.Affiliation{{ID: affiliation.ObservatoryROR, Name: "X"}}, primary[0].Affiliations)
	assert.Equal(t, []types.Identifier{orcid("0000-0001-5109-3700")}, primary[1].PersonOrOrg.Identifiers, "existing ORCID kept")

	lines := msg.Lines()
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "0000-0002-1825-0097")
	assert.Contains(t, lines[2], "X")
}

func TestReconcile_NeverOverwrites(t *testing.T) {
	existing := []types.Affiliation{{ID: "05dxps055", Name: "Caltech"}}
	primary := []types.Creator{person("Doe", orcid("0000-0003-5555-5559"))}
	primary[0].Affiliations = existing
	secondary := []types.SecondaryAuthor{{
		FamilyName:   "Doe",
		ORCIDs:       []string{"0000-0002-1825-0097"},
		Affiliations: []types.SecondaryAffiliation{{ID: "grid.211367.0", RawAffiliation: "JPL"}},
	}}
	msg := types.NewReviewMessage("")

	res := newReconciler().Reconcile(context.Background(), primary, secondary, msg)

	assert.False(t, res.Changed())
	assert.Equal(t, existing, primary[0].Affiliations)
	assert.Equal(t, []types.Identifier{orcid("0000-0003-5555-5559")}, primary[0].PersonOrOrg.Identifiers)
	assert.Zero(t, msg.Len())
}

func TestReconcile_Idempotent(t *testing.T) {
	primary := []types.Creator{person("Doe"), person("Roe")}
	secondary := []types.SecondaryAuthor{
		{FamilyName: "Doe", ORCIDs: []string{"0000-0002-1825-0097"}, Affiliations: []types.SecondaryAffiliation{{ID: "grid.20861.3d", Name: "Caltech"}}},
		{FamilyName: "Roe", Affiliations: []types.SecondaryAffiliation{{Name: "Pasadena, CA 91125"}}},
	}
	r := newReconciler()

	first := r.Reconcile(context.Background(), primary, secondary, types.NewReviewMessage(""))
	require.True(t, first.Changed())
	snapshot := make([]types.Creator, len(primary))
	copy(snapshot, primary)

	msg := types.NewReviewMessage("")
	second := r.Reconcile(context.Background(), primary, secondary, msg)

	assert.False(t, second.Changed())
	assert.Equal(t, snapshot, primary)
	assert.Zero(t, msg.Len())
}

func TestReconcile_IdentifiedCreatorKept(t *testing.T) {
	clpid := types.Identifier{Scheme: "clpid", Identifier: "Roe-A"}
	primary := []types.Creator{person("Roe", clpid)}
	secondary := []types.SecondaryAuthor{{FamilyName: "Roe", ORCIDs: []string{"0000-0002-1825-0097"}}}
	msg := types.NewReviewMessage("")

	res := newReconciler().Reconcile(context.Background(), primary, secondary, msg)

	assert.Zero(t, res.ORCIDsAdded)
	assert.Equal(t, []types.Identifier{clpid}, primary[0].PersonOrOrg.Identifiers)
	assert.Zero(t, msg.Len())
}

func TestReconcile_BadChecksumORCIDSkipped(t *testing.T) {
	tests := []struct {
		name   string
		orcids []string
		want   []types.Identifier
	}{
		{"only invalid", []string{"0000-0002-1825-0098"}, nil},
		{"first valid wins", []string{"0000-0002-1825-0098", "", "0000-0002-1825-0097"}, []types.Identifier{orcid("0000-0002-1825-0097")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := []types.Creator{person("Roe")}
			secondary := []types.SecondaryAuthor{{FamilyName: "Roe", ORCIDs: tt.orcids}}
			msg := types.NewReviewMessage("")

			res := newReconciler().Reconcile(context.Background(), primary, secondary, msg)

			assert.Equal(t, len(tt.want), res.ORCIDsAdded)
			assert.Equal(t, tt.want, primary[0].PersonOrOrg.Identifiers)
			assert.NotContains(t, msg.String(), "0000-0002-1825-0098")
		})
	}
}

func TestReconcile_WarningNotRepeated(t *testing.T) {
	primary := []types.Creator{person("Doe"), person("Roe"), person("Poe")}
	secondary := []types.SecondaryAuthor{{FamilyName: "Doe"}, {FamilyName: "Roe"}}
	msg := types.NewReviewMessage("Automatically added")
	r := newReconciler()

	r.Reconcile(context.Background(), primary, secondary, msg)
	require.Equal(t, 2, msg.Len())
	r.Reconcile(context.Background(), primary, secondary, msg)

	assert.Equal(t, 2, msg.Len())
}

func TestReconcile_CollaborationShift(t *testing.T) {
	primary := []types.Creator{
		{PersonOrOrg: types.PersonOrOrg{Type: "organizational", Name: "Event Horizon Telescope Collaboration"}},
		person("Doe"),
		person("Roe"),
	}
	secondary := []types.SecondaryAuthor{
		{FamilyName: "Doe", ORCIDs: []string{"0000-0002-1825-0097"}},
		{FamilyName: "Roe", ORCIDs: []string{"0000-0001-5109-3700"}},
	}
	msg := types.NewReviewMessage("")

	res := newReconciler().Reconcile(context.Background(), primary, secondary, msg)

	assert.Equal(t, 1, res.Offset)
	assert.Empty(t, primary[0].PersonOrOrg.Identifiers, "collaboration entry untouched")
	assert.Equal(t, []types.Identifier{orcid("0000-0002-1825-0097")}, primary[1].PersonOrOrg.Identifiers)
	assert.Equal(t, []types.Identifier{orcid("0000-0001-5109-3700")}, primary[2].PersonOrOrg.Identifiers)
	require.GreaterOrEqual(t, msg.Len(), 1)
	assert.Contains(t, msg.Lines()[0], "verify author identifiers and affiliations manually")
}

func TestReconcile_LongerSecondarySkips(t *testing.T) {
	primary := []types.Creator{person("Doe")}
	secondary := []types.SecondaryAuthor{
		{FamilyName: "Doe", ORCIDs: []string{"0000-0002-1825-0097"}},
		{FamilyName: "Roe", ORCIDs: []string{"0000-0001-5109-3700"}},
	}
	msg := types.NewReviewMessage("")

	res := newReconciler().Reconcile(context.Background(), primary, secondary, msg)

	assert.False(t, res.Aligned)
	assert.Empty(t, primary[0].PersonOrOrg.Identifiers)
	require.Equal(t, 1, msg.Len())
	assert.Contains(t, msg.String(), "were not merged")
}

func TestReconcile_UnresolvableAffiliationsLeaveCreatorEmpty(t *testing.T) {
	primary := []types.Creator{person("Doe")}
	secondary := []types.SecondaryAuthor{{FamilyName: "Doe", Affiliations: []types.SecondaryAffiliation{{}}}}
	msg := types.NewReviewMessage("")

	res := newReconciler().Reconcile(context.Background(), primary, secondary, msg)

	assert.Zero(t, res.AffiliationsAdded)
	assert.Empty(t, primary[0].Affiliations)
	assert.Zero(t, msg.Len())
}
