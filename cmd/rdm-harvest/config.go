// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/rdm-harvest/internal/httputil"
	"github.com/pdiddy/rdm-harvest/internal/repository"
	"github.com/pdiddy/rdm-harvest/internal/secrets"
	"github.com/pdiddy/rdm-harvest/pkg/types"
)

const defaultUserAgent = "rdm-harvest/0.1"

// setDefaults registers the built-in configuration on v.
func setDefaults(v *viper.Viper) {
	v.SetDefault("harvest.timeout", 60*time.Second)
	v.SetDefault("harvest.user_agent", defaultUserAgent)
	v.SetDefault("harvest.requests_per_second", 5.0)
	v.SetDefault("harvest.environment", string(types.Staging))
	v.SetDefault("harvest.policy", string(types.ContinueOnError))
	v.SetDefault("harvest.transformer", "doi2rdm")
	v.SetDefault("harvest.data_dir", ".rdm-harvest")
	v.SetDefault("harvest.delay", time.Second)

	v.SetDefault("repository.production_url", "https://authors.caltech.edu")
	v.SetDefault("repository.staging_url", "https://authors.caltechlibrary.dev")
	v.SetDefault("repository.community", "9b22c27e-e7f6-4699-adf2-4593dce9cc48")

	v.SetDefault("reference.licenses", "licenses.csv")
	v.SetDefault("reference.ror_allow_list", "ror_allow_list.txt")

	v.SetDefault("sources.ror", "05dxps055")
	v.SetDefault("sources.grid_id", "grid.20861.3d")
	v.SetDefault("sources.email", "")
}

// loadRunConfig builds the explicit run configuration from v and the
// loaded secrets.
func loadRunConfig(v *viper.Viper, loaded map[string]string) (types.RunConfig, error) {
	setDefaults(v)

	var cfg types.RunConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: decoding configuration: %w", types.ErrFatalConfig, err)
	}

	env, err := types.ParseEnvironment(string(cfg.Harvest.Environment))
	if err != nil {
		return cfg, fmt.Errorf("%w: %w", types.ErrFatalConfig, err)
	}
	cfg.Harvest.Environment = env

	switch cfg.Harvest.Policy {
	case types.ContinueOnError, types.AbortBatchOnError:
	default:
		return cfg, fmt.Errorf("%w: unknown error policy %q: use continue or abort", types.ErrFatalConfig, cfg.Harvest.Policy)
	}

	if cfg.Sources.Email == "" {
		cfg.Sources.Email = secrets.Lookup(loaded, secrets.CrossrefEmail)
	}
	cfg.Credentials = types.Credentials{
		RepositoryToken: secrets.Lookup(loaded, secrets.RepositoryToken),
		DimensionsKey:   secrets.Lookup(loaded, secrets.DimensionsKey),
		WoSKey:          secrets.Lookup(loaded, secrets.WoSKey),
	}
	return cfg, nil
}

// requireToken fails unless the repository token is configured.
func requireToken(cfg types.RunConfig) error {
	if cfg.Credentials.RepositoryToken == "" {
		return fmt.Errorf("%w: no repository token: set RDMTOK or .secrets/%s", types.ErrFatalConfig, secrets.RepositoryToken)
	}
	return nil
}

// repositoryFor returns a repository client for env sharing client.
func repositoryFor(cfg types.RunConfig, env types.Environment, client *http.Client) *repository.Client {
	return repository.ForEnvironment(cfg.Repository, env,
		repository.WithHTTPClient(client),
		repository.WithUserAgent(cfg.Harvest.UserAgent),
		repository.WithLogger(logger),
	)
}

// newHTTPClient builds the rate-limited client shared by a command.
func newHTTPClient(cfg types.RunConfig) *http.Client {
	return httputil.NewClient(cfg.Harvest.HTTPConfig)
}
