// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package refdata loads the static crosswalk tables consumed by the
// enrichment pipeline: license URL to license id, the ROR allow-list,
// group tags by ORCID and local person ids by ORCID.
//
// Tables are loaded once per run and are read-only afterwards, so a
// *Tables value is safe to share between goroutines.
package refdata

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/pdiddy/rdm-harvest/internal/httputil"
	"github.com/pdiddy/rdm-harvest/internal/identifier"
	"github.com/pdiddy/rdm-harvest/pkg/types"
)

// Tables holds the loaded crosswalks.
type Tables struct {
	licenses map[string]string
	allowed  map[string]bool
	groups   map[string][]string
	people   map[string]string
}

// LicenseIDFor returns the license id for a license URL.
func (t *Tables) LicenseIDFor(url string) (string, bool) {
	id, ok := t.licenses[strings.TrimSpace(url)]
	return id, ok
}

// IsAllowedAffiliation reports whether a ROR id is on the allow-list.
func (t *Tables) IsAllowedAffiliation(id string) bool {
	bare, _ := identifier.BareROR(id)
	return t.allowed[bare]
}

// GroupsFor returns the group tags of a researcher, sorted.
func (t *Tables) GroupsFor(orcid string) []string {
	key, _ := identifier.NormalizeORCID(orcid)
	return t.groups[key]
}

// PersonIDFor returns the local person id (clpid) of a researcher.
func (t *Tables) PersonIDFor(orcid string) (string, bool) {
	key, _ := identifier.NormalizeORCID(orcid)
	id, ok := t.people[key]
	return id, ok
}

// Sizes reports the number of entries per table, for logging.
func (t *Tables) Sizes() map[string]int {
	return map[string]int{
		"licenses": len(t.licenses),
		"ror":      len(t.allowed),
		"groups":   len(t.groups),
		"people":   len(t.people),
	}
}

// New builds Tables from in-memory maps. Used by tests and by callers that
// assemble tables themselves.
func New(licenses map[string]string, allowed []string, groups map[string][]string, people map[string]string) *Tables {
	t := &Tables{
		licenses: make(map[string]string),
		allowed:  make(map[string]bool),
		groups:   make(map[string][]string),
		people:   make(map[string]string),
	}
	for k, v := range licenses {
		t.licenses[k] = v
	}
	for _, id := range allowed {
		bare, _ := identifier.BareROR(id)
		t.allowed[bare] = true
	}
	for k, v := range groups {
		for _, g := range v {
			t.addGroup(k, g)
		}
	}
	for k, v := range people {
		key, _ := identifier.NormalizeORCID(k)
		t.people[key] = v
	}
	return t
}

// Load reads every table named in cfg. Licenses and the ROR allow-list are
// required; groups and people are optional and empty when unset. Any
// configured source that cannot be read or parsed is fatal: the error wraps
// types.ErrFatalConfig so a run never proceeds with under-tagged records.
func Load(ctx context.Context, client *http.Client, cfg types.ReferenceConfig) (*Tables, error) {
	t := New(nil, nil, nil, nil)

	if cfg.Licenses == "" {
		return nil, fmt.Errorf("%w: no license table configured", types.ErrFatalConfig)
	}
	if cfg.RORAllowList == "" {
		return nil, fmt.Errorf("%w: no ROR allow-list configured", types.ErrFatalConfig)
	}

	loaders := []struct {
		name   string
		source string
		parse  func(io.Reader) error
	}{
		{"licenses", cfg.Licenses, t.parseLicenses},
		{"ror allow-list", cfg.RORAllowList, t.parseAllowList},
		{"groups", cfg.Groups, t.parseGroups},
		{"people", cfg.PeopleIDs, t.parsePeople},
	}
	for _, l := range loaders {
		if l.source == "" {
			continue
		}
		data, err := readSource(ctx, client, l.source)
		if err != nil {
			return nil, fmt.Errorf("%w: loading %s from %s: %v", types.ErrFatalConfig, l.name, l.source, err)
		}
		if err := l.parse(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("%w: parsing %s from %s: %v", types.ErrFatalConfig, l.name, l.source, err)
		}
	}
	return t, nil
}

// readSource returns the bytes of a local file or a remote feed.
func readSource(ctx context.Context, client *http.Client, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		if client == nil {
			client = http.DefaultClient
		}
		return httputil.Do(ctx, client, httputil.Request{URL: source, Service: "reference feed"})
	}
	return os.ReadFile(source)
}

// parseLicenses reads a ';'-delimited CSV with props__url and id columns.
func (t *Tables) parseLicenses(r io.Reader) error {
	rows, err := readTable(r, ';', "props__url", "id")
	if err != nil {
		return err
	}
	for _, row := range rows {
		url, id := strings.TrimSpace(row[0]), strings.TrimSpace(row[1])
		if url == "" || id == "" {
			continue
		}
		t.licenses[url] = id
	}
	return nil
}

// parseAllowList reads one ROR id per line. Blank lines and # comments are
// skipped; a line that is not a ROR id is an error.
func (t *Tables) parseAllowList(r io.Reader) error {
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		// Tolerate a trailing name column: "05dxps055,Caltech".
		if i := strings.IndexAny(text, ",;\t"); i >= 0 {
			text = strings.TrimSpace(text[:i])
		}
		bare, ok := identifier.BareROR(text)
		if !ok {
			if line == 1 {
				continue // header row
			}
			return fmt.Errorf("line %d: %q is not a ROR id", line, text)
		}
		t.allowed[bare] = true
	}
	return sc.Err()
}

// parseGroups reads a CSV with orcid and group columns. A group cell may
// hold several tags separated by ';'.
func (t *Tables) parseGroups(r io.Reader) error {
	rows, err := readTable(r, ',', "orcid", "group")
	if err != nil {
		return err
	}
	for _, row := range rows {
		for _, g := range strings.Split(row[1], ";") {
			t.addGroup(row[0], g)
		}
	}
	return nil
}

// parsePeople reads a CSV with orcid and clpid columns.
func (t *Tables) parsePeople(r io.Reader) error {
	rows, err := readTable(r, ',', "orcid", "clpid")
	if err != nil {
		return err
	}
	for _, row := range rows {
		orcid, clpid := strings.TrimSpace(row[0]), strings.TrimSpace(row[1])
		if orcid == "" || clpid == "" {
			continue
		}
		key, _ := identifier.NormalizeORCID(orcid)
		t.people[key] = clpid
	}
	return nil
}

func (t *Tables) addGroup(orcid, group string) {
	orcid, group = strings.TrimSpace(orcid), strings.TrimSpace(group)
	if orcid == "" || group == "" {
		return
	}
	key, _ := identifier.NormalizeORCID(orcid)
	existing := t.groups[key]
	for _, g := range existing {
		if g == group {
			return
		}
	}
	existing = append(existing, group)
	sort.Strings(existing)
	t.groups[key] = existing
}

// readTable reads a delimited file with a header row and returns, for each
// data row, the values of the named columns in order.
func readTable(r io.Reader, delim rune, columns ...string) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	index := make([]int, len(columns))
	for i, col := range columns {
		index[i] = -1
		for j, h := range header {
			if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), col) {
				index[i] = j
				break
			}
		}
		if index[i] < 0 {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make([]string, len(columns))
		for i, j := range index {
			if j < len(rec) {
				row[i] = rec[j]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
