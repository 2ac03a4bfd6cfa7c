// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the rdm-harvest pipeline:
// the repository record schema, secondary-source author data, run
// configuration, per-DOI results and the error taxonomy.
package types

import (
	"errors"
	"fmt"
	"strings"
)

// Identifier schemes used on records and creators.
const (
	SchemeDOI   = "doi"
	SchemeORCID = "orcid"
	SchemeCLPID = "clpid"
	SchemeISSN  = "issn"
	SchemePMID  = "pmid"
	SchemePMCID = "pmcid"
)

// Custom field keys set by the normalizer.
const (
	FieldGroups            = "caltech:groups"
	FieldPublicationStatus = "caltech:publication_status"
	FieldOAPDFURL          = "oa:pdf_url"
)

// DefaultRightsID is the sentinel rights entry used when no license
// could be mapped.
const DefaultRightsID = "default"

// PublicationRecord is the unit of work: one repository record in the
// InvenioRDM JSON shape.
type PublicationRecord struct {
	Metadata     Metadata       `json:"metadata" yaml:"metadata"`
	CustomFields map[string]any `json:"custom_fields,omitempty" yaml:"custom_fields,omitempty"`
	Files        Files          `json:"files" yaml:"files"`
	PIDs         map[string]PID `json:"pids,omitempty" yaml:"pids,omitempty"`
}

// Metadata holds the descriptive part of a record.
type Metadata struct {
	// Title is required and used as the duplicate-detection key.
	Title string `json:"title" yaml:"title"`

	// Creators lists authors in author order. Order is significant and is
	// preserved by every merge.
	Creators []Creator `json:"creators" yaml:"creators"`

	ResourceType    *ResourceType `json:"resource_type,omitempty" yaml:"resource_type,omitempty"`
	PublicationDate string        `json:"publication_date,omitempty" yaml:"publication_date,omitempty"`
	Publisher       string        `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	Description     string        `json:"description,omitempty" yaml:"description,omitempty"`
	Rights          []Right       `json:"rights,omitempty" yaml:"rights,omitempty"`
	Identifiers     []Identifier  `json:"identifiers,omitempty" yaml:"identifiers,omitempty"`
	Dates           []Date        `json:"dates,omitempty" yaml:"dates,omitempty"`
	Version         string        `json:"version,omitempty" yaml:"version,omitempty"`
}

// ResourceType is a controlled-vocabulary reference.
type ResourceType struct {
	ID string `json:"id" yaml:"id"`
}

// Creator is one author entry.
type Creator struct {
	PersonOrOrg  PersonOrOrg   `json:"person_or_org" yaml:"person_or_org"`
	Affiliations []Affiliation `json:"affiliations,omitempty" yaml:"affiliations,omitempty"`
}

// PersonOrOrg is the identity sub-record of a creator.
type PersonOrOrg struct {
	Type        string       `json:"type,omitempty" yaml:"type,omitempty"`
	GivenName   string       `json:"given_name,omitempty" yaml:"given_name,omitempty"`
	FamilyName  string       `json:"family_name,omitempty" yaml:"family_name,omitempty"`
	Name        string       `json:"name,omitempty" yaml:"name,omitempty"`
	Identifiers []Identifier `json:"identifiers,omitempty" yaml:"identifiers,omitempty"`
}

// Affiliation is an organization reference. ID is a canonical ROR id;
// Name is free text. Affiliations compare structurally with ==.
type Affiliation struct {
	ID   string `json:"id,omitempty" yaml:"id,omitempty"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Identifier is a {scheme, identifier} pair.
type Identifier struct {
	Scheme     string `json:"scheme" yaml:"scheme"`
	Identifier string `json:"identifier" yaml:"identifier"`
}

// Right is a rights/license entry. Link is set on raw records; after
// normalization only ID remains.
type Right struct {
	ID          string            `json:"id,omitempty" yaml:"id,omitempty"`
	Link        string            `json:"link,omitempty" yaml:"link,omitempty"`
	Title       map[string]string `json:"title,omitempty" yaml:"title,omitempty"`
	Description map[string]string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Date is an additional dated event on a record.
type Date struct {
	Date        string        `json:"date" yaml:"date"`
	Type        *ResourceType `json:"type,omitempty" yaml:"type,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
}

// Files controls whether a record carries file attachments.
type Files struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// PID is a persistent identifier registration.
type PID struct {
	Identifier string `json:"identifier" yaml:"identifier"`
	Provider   string `json:"provider" yaml:"provider"`
}

// Attachment is an optional file uploaded alongside a new record.
type Attachment struct {
	// URL is the remote location of the file.
	URL string `json:"url" yaml:"url"`

	// Filename is the key the file is stored under in the repository.
	Filename string `json:"filename" yaml:"filename"`

	// LocalPath is set once the file has been downloaded.
	LocalPath string `json:"local_path,omitempty" yaml:"local_path,omitempty"`
}

// ErrInvalidRecord is returned by Validate for records that do not meet
// the schema.
var ErrInvalidRecord = errors.New("invalid publication record")

// Validate checks the structural guarantees downstream components rely on.
func (r *PublicationRecord) Validate() error {
	if strings.TrimSpace(r.Metadata.Title) == "" {
		return fmt.Errorf("%w: missing title", ErrInvalidRecord)
	}
	for i, c := range r.Metadata.Creators {
		p := c.PersonOrOrg
		if p.FamilyName == "" && p.Name == "" {
			return fmt.Errorf("%w: creator %d has no name", ErrInvalidRecord, i)
		}
	}
	return nil
}

// DOI returns the record's DOI from pids or identifiers, or "".
func (r *PublicationRecord) DOI() string {
	if pid, ok := r.PIDs[SchemeDOI]; ok && pid.Identifier != "" {
		return pid.Identifier
	}
	for _, id := range r.Metadata.Identifiers {
		if id.Scheme == SchemeDOI {
			return id.Identifier
		}
	}
	return ""
}

// SetCustomField sets a custom field, allocating the map when needed.
func (r *PublicationRecord) SetCustomField(key string, value any) {
	if r.CustomFields == nil {
		r.CustomFields = make(map[string]any)
	}
	r.CustomFields[key] = value
}

// CustomString returns a string custom field, or "".
func (r *PublicationRecord) CustomString(key string) string {
	s, _ := r.CustomFields[key].(string)
	return s
}

// Groups returns the group tag ids stored in the groups custom field.
func (r *PublicationRecord) Groups() []string {
	var ids []string
	switch v := r.CustomFields[FieldGroups].(type) {
	case []VocabularyRef:
		for _, g := range v {
			ids = append(ids, g.ID)
		}
	case []any:
		for _, g := range v {
			if m, ok := g.(map[string]any); ok {
				if id, ok := m["id"].(string); ok {
					ids = append(ids, id)
				}
			}
		}
	}
	return ids
}

// VocabularyRef is a reference to a vocabulary term in a custom field.
type VocabularyRef struct {
	ID string `json:"id" yaml:"id"`
}

// IdentifierValue returns the first identifier with the given scheme.
func (p *PersonOrOrg) IdentifierValue(scheme string) (string, bool) {
	for _, id := range p.Identifiers {
		if id.Scheme == scheme && id.Identifier != "" {
			return id.Identifier, true
		}
	}
	return "", false
}

// DisplayName returns "Family, Given" for persons or Name for
// organizations.
func (p *PersonOrOrg) DisplayName() string {
	switch {
	case p.FamilyName != "" && p.GivenName != "":
		return p.FamilyName + ", " + p.GivenName
	case p.FamilyName != "":
		return p.FamilyName
	default:
		return p.Name
	}
}

// SecondaryAuthor is an author as reported by a secondary metadata source
// (Dimensions).
type SecondaryAuthor struct {
	GivenName    string                 `json:"first_name" yaml:"given_name"`
	FamilyName   string                 `json:"last_name" yaml:"family_name"`
	ORCIDs       []string               `json:"orcid" yaml:"orcid"`
	Affiliations []SecondaryAffiliation `json:"affiliations" yaml:"affiliations"`
}

// SecondaryAffiliation is an affiliation as reported by a secondary source:
// an external (grid-style) id, a registry name and the raw affiliation
// string printed on the paper.
type SecondaryAffiliation struct {
	ID             string `json:"id" yaml:"id"`
	Name           string `json:"name" yaml:"name"`
	RawAffiliation string `json:"raw_affiliation" yaml:"raw_affiliation"`
}

// OrgRef is the input to affiliation resolution.
type OrgRef struct {
	// ExternalID is a grid-style organization id, possibly empty.
	ExternalID string

	// Name is free-text affiliation, possibly empty.
	Name string
}

// Label returns the text used when reporting the affiliation.
func (a SecondaryAffiliation) Label() string {
	if a.RawAffiliation != "" {
		return a.RawAffiliation
	}
	return a.Name
}

// ReviewMessage accumulates human-readable notes attached to a submission.
// It is append-only.
type ReviewMessage struct {
	lines []string
}

// NewReviewMessage starts a review message with an initial line.
func NewReviewMessage(initial string) *ReviewMessage {
	m := &ReviewMessage{}
	m.Append(initial)
	return m
}

// Append adds a note. Empty notes are ignored.
func (m *ReviewMessage) Append(note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	m.lines = append(m.lines, note)
}

// AppendOnce adds a note unless an identical one is already present.
func (m *ReviewMessage) AppendOnce(note string) {
	note = strings.TrimSpace(note)
	for _, l := range m.lines {
		if l == note {
			return
		}
	}
	m.Append(note)
}

// Appendf formats and appends a note.
func (m *ReviewMessage) Appendf(format string, args ...any) {
	m.Append(fmt.Sprintf(format, args...))
}

// Len returns the number of notes.
func (m *ReviewMessage) Len() int { return len(m.lines) }

// Lines returns a copy of the notes in append order.
func (m *ReviewMessage) Lines() []string {
	out := make([]string, len(m.lines))
	copy(out, m.lines)
	return out
}

// String joins the notes with newlines.
func (m *ReviewMessage) String() string {
	return strings.Join(m.lines, "\n")
}

// NameRecord is an authoritative person entry from the repository's names
// vocabulary.
type NameRecord struct {
	ID           string        `json:"id" yaml:"id"`
	GivenName    string        `json:"given_name" yaml:"given_name"`
	FamilyName   string        `json:"family_name" yaml:"family_name"`
	Identifiers  []Identifier  `json:"identifiers" yaml:"identifiers"`
	Affiliations []Affiliation `json:"affiliations" yaml:"affiliations"`
}

// RecordHit is a search hit from the repository: a record or a review
// request.
type RecordHit struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
}
