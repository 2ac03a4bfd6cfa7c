// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report builds triage reports for DOI worklists and writes run
// summaries.
package report

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/pdiddy/rdm-harvest/internal/httputil"
	"github.com/pdiddy/rdm-harvest/internal/identifier"
	"github.com/pdiddy/rdm-harvest/internal/logging"
)

// crossrefWorkBase is the Crossref single-work endpoint. Declared as a var
// so tests can substitute an httptest server.
var crossrefWorkBase = "https://api.crossref.org/works"

// Header is the column row of a triage report.
var Header = []string{"DOI", "Type", "Publisher", "Title", "Journal", "Year"}

// Row is one triage report line.
type Row struct {
	DOI       string
	Type      string
	Publisher string
	Title     string
	Journal   string
	Year      string
}

func (r Row) record() []string {
	return []string{r.DOI, r.Type, r.Publisher, r.Title, r.Journal, r.Year}
}

// ReadRows parses a report. The first line is a header.
func ReadRows(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	var rows []Row
	for _, rec := range records[1:] {
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		padded := make([]string, len(Header))
		copy(padded, rec)
		rows = append(rows, Row{
			DOI: padded[0], Type: padded[1], Publisher: padded[2],
			Title: padded[3], Journal: padded[4], Year: padded[5],
		})
	}
	return rows, nil
}

// ReadDOIList reads the first column of a header-less CSV.
func ReadDOIList(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	var dois []string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading DOI list: %w", err)
		}
		if len(rec) > 0 && strings.TrimSpace(rec[0]) != "" {
			dois = append(dois, strings.TrimSpace(rec[0]))
		}
	}
	return dois, nil
}

// WriteRows writes the header and rows as CSV.
func WriteRows(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Enhancer looks up report columns on Crossref.
type Enhancer struct {
	Client    *http.Client
	UserAgent string
	Email     string
	Logger    *slog.Logger
}

// Row fetches the report line for one DOI.
func (e *Enhancer) Row(ctx context.Context, doi string) (Row, error) {
	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	u := crossrefWorkBase + "/" + doi
	if e.Email != "" {
		u += "?" + url.Values{"mailto": {e.Email}}.Encode()
	}
	body, err := httputil.Do(ctx, client, httputil.Request{
		URL:       u,
		Service:   "Crossref",
		UserAgent: e.UserAgent,
	})
	if err != nil {
		return Row{}, err
	}
	msg := gjson.GetBytes(body, "message")
	if !msg.Exists() {
		return Row{}, fmt.Errorf("crossref response for %s has no message", doi)
	}
	return Row{
		DOI:       doi,
		Type:      msg.Get("type").String(),
		Publisher: msg.Get("publisher").String(),
		Title:     msg.Get("title.0").String(),
		Journal:   msg.Get("container-title.0").String(),
		Year:      msg.Get("issued.date-parts.0.0").String(),
	}, nil
}

// Enhance keeps every existing row and appends a looked-up row for each DOI
// not already covered. DOIs whose lookup fails are logged and left out.
func (e *Enhancer) Enhance(ctx context.Context, dois []string, existing []Row) []Row {
	log := logging.OrDiscard(e.Logger)
	rows := append([]Row(nil), existing...)
	have := make(map[string]bool, len(existing))
	for _, r := range existing {
		have[key(r.DOI)] = true
	}
	for _, doi := range dois {
		if have[key(doi)] {
			continue
		}
		have[key(doi)] = true
		row, err := e.Row(ctx, doi)
		if err != nil {
			log.Warn("crossref lookup failed", "doi", doi, "error", err)
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// ExistenceChecker reports whether the repository already holds a DOI.
type ExistenceChecker interface {
	DOIExists(ctx context.Context, doi, token string) (bool, error)
}

// Validate drops rows whose DOI is already in the repository. A failed
// check aborts.
func Validate(ctx context.Context, rows []Row, checker ExistenceChecker, token string) ([]Row, error) {
	var kept []Row
	for _, r := range rows {
		exists, err := checker.DOIExists(ctx, key(r.DOI), token)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", r.DOI, err)
		}
		if !exists {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

func key(doi string) string {
	if d, ok := identifier.NormalizeDOI(doi); ok {
		return d
	}
	return strings.ToLower(strings.TrimSpace(doi))
}
