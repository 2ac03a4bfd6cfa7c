// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API tokens from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key
// name and the file contents (trimmed) are the value.
//
// Known keys: rdm-token, dimensions-api-key, wos-api-key, crossref-email.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Key names understood by the harvester, paired with the environment
// variables that may carry the same value.
const (
	RepositoryToken = "rdm-token"
	DimensionsKey   = "dimensions-api-key"
	WoSKey          = "wos-api-key"
	CrossrefEmail   = "crossref-email"
)

// envFallback maps key names onto environment variables. Environment
// variables win over files so a .env file or CI secret can override a
// stale local file.
var envFallback = map[string]string{
	RepositoryToken: "RDMTOK",
	DimensionsKey:   "DIMKEY",
	WoSKey:          "WOSTOK",
	CrossrefEmail:   "EMAIL",
}

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory is not an error; Load returns an empty map.
// Unreadable files are logged and skipped.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			slog.Warn("could not read secret", "name", name, "error", err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// Lookup returns the value for key: its environment variable when set,
// otherwise the loaded file value, otherwise "".
func Lookup(loaded map[string]string, key string) string {
	if env, ok := envFallback[key]; ok {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v
		}
	}
	return loaded[key]
}
