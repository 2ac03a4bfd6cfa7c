// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pdiddy/rdm-harvest/internal/httputil"
	"github.com/pdiddy/rdm-harvest/pkg/types"
)

// Downloader fetches attachment files into Dir.
type Downloader struct {
	Client    *http.Client
	UserAgent string
	Dir       string
}

// Download saves att.URL under Dir and sets att.LocalPath. The file is
// written to a temp file and renamed so a partial download never looks
// complete.
func (d *Downloader) Download(ctx context.Context, att *types.Attachment) error {
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("creating download directory: %w", err)
	}
	destPath := filepath.Join(d.Dir, filepath.Base(att.Filename))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if d.UserAgent != "" {
		req.Header.Set("User-Agent", d.UserAgent)
	}
	req.Header.Set("Accept", "application/pdf")

	resp, err := httputil.DoWithRetry(ctx, client, req, 0)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", att.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &types.ServiceError{Service: "attachment download", StatusCode: resp.StatusCode, Message: att.URL, Kind: types.ErrTransient}
	}

	tmpFile, err := os.CreateTemp(d.Dir, ".download-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, resp.Body)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing download: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	att.LocalPath = destPath
	return nil
}
