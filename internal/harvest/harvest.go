// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package harvest drives one DOI at a time through existence check, fetch,
// author enrichment, normalization, duplicate detection and write, and
// applies the batch error policy across a worklist.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pdiddy/rdm-harvest/internal/identifier"
	"github.com/pdiddy/rdm-harvest/internal/logging"
	"github.com/pdiddy/rdm-harvest/internal/reconcile"
	"github.com/pdiddy/rdm-harvest/internal/repository"
	"github.com/pdiddy/rdm-harvest/pkg/types"
)

// ErrAborted marks a batch stopped before its worklist was exhausted.
var ErrAborted = errors.New("batch aborted")

// ExistenceChecker reports whether the repository already holds a DOI.
type ExistenceChecker interface {
	DOIExists(ctx context.Context, doi, token string) (bool, error)
}

// Ledger remembers harvested DOIs and run outcomes.
type Ledger interface {
	Contains(ctx context.Context, doi string) (bool, error)
	Add(ctx context.Context, doi, runID, recordID string) error
	RecordOutcome(ctx context.Context, runID string, res types.DOIResult) error
}

// RecordFetcher produces the raw record for a DOI.
type RecordFetcher interface {
	Fetch(ctx context.Context, doi string) (types.PublicationRecord, error)
}

// AuthorSource returns secondary-source authors for a DOI.
type AuthorSource interface {
	Authors(ctx context.Context, doi string) ([]types.SecondaryAuthor, error)
}

// AuthorReconciler merges secondary authors into the primary list in place.
type AuthorReconciler interface {
	Reconcile(ctx context.Context, primary []types.Creator, secondary []types.SecondaryAuthor, msg *types.ReviewMessage) reconcile.Result
}

// RecordNormalizer applies repository policy to a raw record.
type RecordNormalizer interface {
	Normalize(ctx context.Context, raw types.PublicationRecord) (types.PublicationRecord, *types.Attachment)
}

// DuplicateDetector adds reviewer warnings for title collisions.
type DuplicateDetector interface {
	Check(ctx context.Context, rec types.PublicationRecord, msg *types.ReviewMessage, token string, env types.Environment) *types.ReviewMessage
}

// AttachmentDownloader fetches an attachment to local disk.
type AttachmentDownloader interface {
	Download(ctx context.Context, att *types.Attachment) error
}

// RecordWriter submits a normalized record.
type RecordWriter interface {
	WriteRecord(ctx context.Context, rec types.PublicationRecord, token string, opts repository.WriteOptions) (repository.WriteResult, error)
}

// Pipeline holds the components of a harvest run. Ledger, Authors,
// Reconciler, Detector and Downloader are optional.
type Pipeline struct {
	Exists     ExistenceChecker
	Ledger     Ledger
	Fetcher    RecordFetcher
	Authors    AuthorSource
	Reconciler AuthorReconciler
	Normalizer RecordNormalizer
	Detector   DuplicateDetector
	Downloader AttachmentDownloader
	Writer     RecordWriter

	Config    types.HarvestConfig
	Community string
	Token     string
	RunID     string
	Logger    *slog.Logger

	// Note opens every review message. Empty uses a per-DOI default.
	Note string

	// OnResult is called after each DOI of Run.
	OnResult func(types.DOIResult)

	now func() time.Time
}

// BatchResult holds the outcome of a batch harvest run.
type BatchResult struct {
	RunID   string
	Written int
	Skipped int
	Failed  int
	Results []types.DOIResult

	// Aborted is set when the error policy or a fatal error stopped the
	// batch before the worklist was exhausted.
	Aborted bool
}

// Total returns the number of DOIs processed.
func (r BatchResult) Total() int {
	return r.Written + r.Skipped + r.Failed
}

// HasFailures reports whether any DOI failed.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// Err returns ErrAborted when the batch stopped early.
func (r BatchResult) Err() error {
	if r.Aborted {
		return ErrAborted
	}
	return nil
}

func (p *Pipeline) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

// Process runs one DOI through the state machine. A DOI already present in
// the ledger or the repository is never fetched or written. A DOI the
// fetcher cannot resolve is skipped, not failed.
func (p *Pipeline) Process(ctx context.Context, raw string) types.DOIResult {
	res := types.DOIResult{DOI: strings.TrimSpace(raw), State: types.StatePending}
	log := logging.OrDiscard(p.Logger)

	done := func(o types.Outcome, detail string, err error) types.DOIResult {
		res.Outcome = o
		res.Detail = Sanitize(detail)
		res.Err = err
		res.ProcessedAt = p.clock()
		return res
	}

	doi, ok := identifier.NormalizeDOI(raw)
	if !ok {
		return done(types.OutcomeFailed, "invalid DOI", fmt.Errorf("invalid DOI %q", raw))
	}
	res.DOI = doi
	log = log.With("doi", doi)

	if p.Ledger != nil {
		seen, err := p.Ledger.Contains(ctx, doi)
		if err != nil {
			return done(types.OutcomeFailed, err.Error(), err)
		}
		if seen {
			res.State = types.StateExistenceChecked
			return done(types.OutcomeSkipped, "already harvested", nil)
		}
	}

	exists, err := p.Exists.DOIExists(ctx, doi, p.Token)
	if err != nil {
		return done(types.OutcomeFailed, "existence check failed: "+err.Error(), err)
	}
	res.State = types.StateExistenceChecked
	if exists {
		return done(types.OutcomeSkipped, "already in repository", nil)
	}

	rec, err := p.Fetcher.Fetch(ctx, doi)
	if err != nil {
		if types.IsNotFound(err) {
			log.Info("no record for DOI, skipping")
			return done(types.OutcomeSkipped, "not found", err)
		}
		return done(types.OutcomeFailed, "fetch failed: "+err.Error(), err)
	}
	res.State = types.StateFetched

	note := p.Note
	if note == "" {
		note = "Automatically added from DOI " + doi
	}
	msg := types.NewReviewMessage(note)
	if p.Authors != nil && p.Reconciler != nil {
		secondary, err := p.Authors.Authors(ctx, doi)
		if err != nil {
			log.Warn("secondary authors unavailable", "error", err)
		} else if r := p.Reconciler.Reconcile(ctx, rec.Metadata.Creators, secondary, msg); r.Changed() {
			log.Info("authors enriched", "orcids", r.ORCIDsAdded, "affiliations", r.AffiliationsAdded)
		}
	}
	res.State = types.StateEnriched

	rec, att := p.Normalizer.Normalize(ctx, rec)
	res.State = types.StateNormalized

	if p.Detector != nil {
		msg = p.Detector.Check(ctx, rec, msg, p.Token, p.Config.Environment)
	}
	res.State = types.StateDedupChecked

	att = p.download(ctx, log, att)
	if att != nil {
		defer os.Remove(att.LocalPath)
	}

	written, err := p.Writer.WriteRecord(ctx, rec, p.Token, repository.WriteOptions{
		Community:     p.Community,
		ReviewMessage: msg.String(),
		Attachment:    att,
		Publish:       p.Config.Publish,
	})
	if err != nil {
		// A draft left behind by a later step is reported for cleanup.
		res.RecordID = written.RecordID
		return done(types.OutcomeFailed, err.Error(), err)
	}
	res.State = types.StateWritten
	res.RecordID = written.RecordID

	if p.Ledger != nil {
		if err := p.Ledger.Add(ctx, doi, p.RunID, written.RecordID); err != nil {
			log.Warn("ledger update failed", "error", err)
		}
	}
	log.Info("record written", "record_id", written.RecordID, "published", written.Published)
	return done(types.OutcomeWritten, "", nil)
}

// download fetches att and returns it, or nil when the record should be
// written without a file.
func (p *Pipeline) download(ctx context.Context, log *slog.Logger, att *types.Attachment) *types.Attachment {
	if att == nil || p.Downloader == nil {
		return nil
	}
	if err := p.Downloader.Download(ctx, att); err != nil {
		log.Warn("attachment download failed, writing metadata only", "url", att.URL, "error", err)
		return nil
	}
	return att
}

// Run processes dois in order with the configured delay between them.
// Under AbortBatchOnError the batch stops after the first failure; a fatal
// configuration error stops it under any policy.
func (p *Pipeline) Run(ctx context.Context, dois []string) BatchResult {
	result := BatchResult{RunID: p.RunID}
	log := logging.OrDiscard(p.Logger)

	for i, doi := range dois {
		if i > 0 && p.Config.Delay > 0 {
			if err := sleep(ctx, p.Config.Delay); err != nil {
				result.Aborted = true
				break
			}
		}
		if ctx.Err() != nil {
			result.Aborted = true
			break
		}

		res := p.Process(ctx, doi)
		result.Results = append(result.Results, res)
		switch res.Outcome {
		case types.OutcomeWritten:
			result.Written++
		case types.OutcomeSkipped:
			result.Skipped++
		default:
			result.Failed++
		}
		if p.Ledger != nil && p.RunID != "" {
			if err := p.Ledger.RecordOutcome(ctx, p.RunID, res); err != nil {
				log.Warn("recording outcome failed", "doi", res.DOI, "error", err)
			}
		}
		if p.OnResult != nil {
			p.OnResult(res)
		}

		if res.Outcome == types.OutcomeFailed &&
			(p.Config.Policy == types.AbortBatchOnError || types.IsFatal(res.Err)) {
			log.Error("batch aborted", "doi", res.DOI, "error", res.Err)
			result.Aborted = i < len(dois)-1
			break
		}
	}
	log.Info("batch complete", "written", result.Written, "skipped", result.Skipped,
		"failed", result.Failed, "total", result.Total())
	return result
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var detailStripper = strings.NewReplacer(
	`"`, "",
	`'`, "",
	":", "",
	"(", "",
	")", "",
	"\r", " ",
	"\n", " ",
)

// Sanitize removes characters that break the one-line result format.
func Sanitize(s string) string {
	return strings.Join(strings.Fields(detailStripper.Replace(s)), " ")
}
