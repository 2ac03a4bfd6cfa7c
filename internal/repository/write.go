// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/pdiddy/rdm-harvest/pkg/types"
)

// WriteOptions controls how a new record is submitted.
type WriteOptions struct {
	// Community receives the review request. Empty publishes directly
	// when Publish is set and leaves a draft otherwise.
	Community string

	ReviewMessage string

	// Attachment is uploaded when non-nil; LocalPath must be set.
	Attachment *types.Attachment

	// Publish accepts the review request right after submission.
	Publish bool
}

// WriteResult identifies what a write created.
type WriteResult struct {
	RecordID  string `json:"record_id" yaml:"record_id"`
	RequestID string `json:"request_id,omitempty" yaml:"request_id,omitempty"`
	Published bool   `json:"published" yaml:"published"`
}

// WriteRecord creates a draft from rec, uploads the attachment, submits it
// to the community and optionally accepts it. Errors wrap types.ErrWrite.
// When a step after draft creation fails, the returned result still carries
// the draft id and the error names it.
func (c *Client) WriteRecord(ctx context.Context, rec types.PublicationRecord, token string, opts WriteOptions) (WriteResult, error) {
	var res WriteResult
	rec.Files.Enabled = opts.Attachment != nil

	body, err := c.call(ctx, http.MethodPost, "/api/records", token, rec)
	if err != nil {
		return res, writeErr("creating draft", err)
	}
	res.RecordID = gjson.GetBytes(body, "id").String()
	if res.RecordID == "" {
		return res, writeErr("creating draft", fmt.Errorf("response has no record id"))
	}
	draft := "/api/records/" + url.PathEscape(res.RecordID) + "/draft"

	if opts.Attachment != nil {
		if err := c.uploadFile(ctx, draft, token, opts.Attachment); err != nil {
			return res, draftErr(res.RecordID, "uploading "+opts.Attachment.Filename, err)
		}
	}

	if opts.Community == "" {
		if opts.Publish {
			if _, err := c.call(ctx, http.MethodPost, draft+"/actions/publish", token, nil); err != nil {
				return res, draftErr(res.RecordID, "publishing", err)
			}
			res.Published = true
		}
		c.logger.Info("record written", "record_id", res.RecordID, "published", res.Published)
		return res, nil
	}

	review := map[string]any{
		"receiver": map[string]string{"community": opts.Community},
		"type":     "community-submission",
	}
	if _, err := c.call(ctx, http.MethodPut, draft+"/review", token, review); err != nil {
		return res, draftErr(res.RecordID, "creating review request", err)
	}

	body, err = c.call(ctx, http.MethodPost, draft+"/actions/submit-review", token, comment(opts.ReviewMessage))
	if err != nil {
		return res, draftErr(res.RecordID, "submitting review", err)
	}
	res.RequestID = gjson.GetBytes(body, "id").String()

	if opts.Publish && res.RequestID != "" {
		accept := "/api/requests/" + url.PathEscape(res.RequestID) + "/actions/accept"
		if _, err := c.call(ctx, http.MethodPost, accept, token, comment("Automatically accepted")); err != nil {
			return res, draftErr(res.RecordID, "accepting review", err)
		}
		res.Published = true
	}
	c.logger.Info("record written", "record_id", res.RecordID, "request_id", res.RequestID, "published", res.Published)
	return res, nil
}

func (c *Client) uploadFile(ctx context.Context, draft, token string, att *types.Attachment) error {
	if att.LocalPath == "" {
		return fmt.Errorf("attachment %s was not downloaded", att.URL)
	}
	data, err := os.ReadFile(att.LocalPath)
	if err != nil {
		return err
	}
	files := draft + "/files"
	if _, err := c.call(ctx, http.MethodPost, files, token, []map[string]string{{"key": att.Filename}}); err != nil {
		return err
	}
	entry := files + "/" + url.PathEscape(att.Filename)
	headers := map[string]string{"Content-Type": "application/octet-stream"}
	if _, err := c.callRaw(ctx, http.MethodPut, entry+"/content", token, bytes.NewReader(data), headers); err != nil {
		return err
	}
	_, err = c.call(ctx, http.MethodPost, entry+"/commit", token, nil)
	return err
}

// EditOptions controls EditRecord.
type EditOptions struct {
	// Authors replaces the destination's creators with the source's.
	Authors bool

	// NewVersion creates a new version instead of editing in place.
	NewVersion bool
}

// EditRecord replaces the metadata of record destID with source and
// publishes the result. It returns the id of the published record, which
// differs from destID for a new version. Errors wrap types.ErrWrite.
func (c *Client) EditRecord(ctx context.Context, destID string, source types.PublicationRecord, token string, opts EditOptions) (string, error) {
	base := "/api/records/" + url.PathEscape(destID)

	var (
		body []byte
		err  error
	)
	if opts.NewVersion {
		body, err = c.call(ctx, http.MethodPost, base+"/versions", token, nil)
	} else {
		body, err = c.call(ctx, http.MethodPost, base+"/draft", token, nil)
	}
	if err != nil {
		return "", writeErr("opening draft of "+destID, err)
	}

	var current types.PublicationRecord
	if err := json.Unmarshal(body, &current); err != nil {
		return "", writeErr("parsing draft of "+destID, err)
	}
	draftID := gjson.GetBytes(body, "id").String()
	if draftID == "" {
		draftID = destID
	}

	merged := current
	creators := current.Metadata.Creators
	merged.Metadata = source.Metadata
	if !opts.Authors {
		merged.Metadata.Creators = creators
	}
	for k, v := range source.CustomFields {
		merged.SetCustomField(k, v)
	}

	draft := "/api/records/" + url.PathEscape(draftID) + "/draft"
	if _, err := c.call(ctx, http.MethodPut, draft, token, merged); err != nil {
		return "", writeErr("updating draft "+draftID, err)
	}
	if _, err := c.call(ctx, http.MethodPost, draft+"/actions/publish", token, nil); err != nil {
		return "", writeErr("publishing "+draftID, err)
	}
	c.logger.Info("record edited", "record_id", draftID, "new_version", opts.NewVersion, "authors", opts.Authors)
	return draftID, nil
}

// comment builds a request comment payload. Lines of text become separate
// HTML lines.
func comment(text string) map[string]any {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = html.EscapeString(l)
	}
	return map[string]any{"payload": map[string]string{"content": strings.Join(lines, "<br>"), "format": "html"}}
}

func writeErr(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", types.ErrWrite, step, err)
}

func draftErr(id, step string, err error) error {
	return fmt.Errorf("%w: draft %s: %s: %w", types.ErrWrite, id, step, err)
}
