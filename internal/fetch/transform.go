// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch retrieves raw metadata for a DOI: the primary record from
// the external transform tool, secondary author data from Dimensions and
// open-access files for attachment.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/pdiddy/rdm-harvest/pkg/types"
)

// DefaultTransformer is the tool that turns a DOI into a repository record.
const DefaultTransformer = "doi2rdm"

// exitNotFound is the transform tool's exit status for an unknown DOI.
const exitNotFound = 2

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	Output(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (o *osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (o *osExecutor) Output(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

var defaultExec executor = &osExecutor{}

// RecordFetcher runs the transform tool for one DOI at a time.
type RecordFetcher struct {
	tool string
	exec executor
}

// NewRecordFetcher returns a fetcher for tool; empty means doi2rdm.
func NewRecordFetcher(tool string) *RecordFetcher {
	return newRecordFetcher(tool, defaultExec)
}

func newRecordFetcher(tool string, exec executor) *RecordFetcher {
	if tool == "" {
		tool = DefaultTransformer
	}
	return &RecordFetcher{tool: tool, exec: exec}
}

// Available reports an error when the tool is not on PATH.
func (f *RecordFetcher) Available() error {
	if _, err := f.exec.LookPath(f.tool); err != nil {
		return fmt.Errorf("%w: transform tool %s not found: %v", types.ErrFatalConfig, f.tool, err)
	}
	return nil
}

// Fetch runs the tool and decodes its output. Exit status 2 yields an
// error wrapping types.ErrNotFound; records that fail Validate are
// rejected.
func (f *RecordFetcher) Fetch(ctx context.Context, doi string) (types.PublicationRecord, error) {
	var rec types.PublicationRecord

	stdout, stderr, err := f.exec.Output(ctx, f.tool, doi)
	if err != nil {
		detail := strings.TrimSpace(string(stderr))
		var coded interface{ ExitCode() int }
		if errors.As(err, &coded) && coded.ExitCode() == exitNotFound {
			return rec, &types.ServiceError{Service: f.tool, Message: strings.TrimSpace("DOI " + doi + " not found " + detail), Kind: types.ErrNotFound}
		}
		if detail != "" {
			return rec, fmt.Errorf("running %s %s: %w: %s", f.tool, doi, err, detail)
		}
		return rec, fmt.Errorf("running %s %s: %w", f.tool, doi, err)
	}

	if err := json.Unmarshal(stdout, &rec); err != nil {
		return rec, fmt.Errorf("decoding %s output for %s: %w", f.tool, doi, err)
	}
	if err := rec.Validate(); err != nil {
		return rec, fmt.Errorf("record for %s: %w", doi, err)
	}
	return rec, nil
}
