package types

import (
	"fmt"
	"time"
)

// HTTPConfig holds shared HTTP settings used by components that make
// network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "rdm-harvest/0.1 (mailto:library@caltech.edu)").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// RequestsPerSecond bounds outbound requests per client. Zero disables
	// the limiter.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// Environment selects the target repository instance.
type Environment string

const (
	Production Environment = "production"
	Staging    Environment = "staging"
)

// ParseEnvironment maps a flag value onto an Environment.
func ParseEnvironment(s string) (Environment, error) {
	switch s {
	case "production", "prod":
		return Production, nil
	case "staging", "test", "dev":
		return Staging, nil
	default:
		return "", fmt.Errorf("unknown environment %q: use production or staging", s)
	}
}

// RepositoryConfig holds settings for the InvenioRDM repository.
type RepositoryConfig struct {
	// ProductionURL is the base URL of the production repository.
	ProductionURL string `json:"production_url" yaml:"production_url" mapstructure:"production_url"`

	// StagingURL is the base URL of the staging repository.
	StagingURL string `json:"staging_url" yaml:"staging_url" mapstructure:"staging_url"`

	// Community is the id of the community new records are submitted to.
	Community string `json:"community" yaml:"community" mapstructure:"community"`
}

// BaseURL returns the repository base URL for env.
func (c RepositoryConfig) BaseURL(env Environment) string {
	if env == Production {
		return c.ProductionURL
	}
	return c.StagingURL
}

// ReferenceConfig names the sources of the reference tables. Each value is
// a local path or an http(s) URL of a tabular feed.
type ReferenceConfig struct {
	Licenses     string `json:"licenses" yaml:"licenses" mapstructure:"licenses"`
	RORAllowList string `json:"ror_allow_list" yaml:"ror_allow_list" mapstructure:"ror_allow_list"`
	Groups       string `json:"groups,omitempty" yaml:"groups,omitempty" mapstructure:"groups"`
	PeopleIDs    string `json:"people,omitempty" yaml:"people,omitempty" mapstructure:"people"`
}

// ErrorPolicy decides what the orchestrator does after a fetch or write
// failure on one DOI.
type ErrorPolicy string

const (
	// ContinueOnError records the failure and moves on to the next DOI.
	ContinueOnError ErrorPolicy = "continue"

	// AbortBatchOnError stops the batch after the first fetch or write
	// failure, keeping what was already written.
	AbortBatchOnError ErrorPolicy = "abort"
)

// HarvestConfig holds settings for the harvest orchestrator.
type HarvestConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Environment selects the target repository.
	Environment Environment `json:"environment" yaml:"environment" mapstructure:"environment"`

	// Policy selects the batch error policy.
	Policy ErrorPolicy `json:"policy" yaml:"policy" mapstructure:"policy"`

	// Publish accepts the community review immediately after submission.
	Publish bool `json:"publish" yaml:"publish" mapstructure:"publish"`

	// Transformer is the external tool that turns a DOI into a record.
	Transformer string `json:"transformer" yaml:"transformer" mapstructure:"transformer"`

	// DataDir holds the ledger database, lock file, downloads and run files.
	DataDir string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`

	// Delay is the pause between consecutive DOIs.
	Delay time.Duration `json:"delay" yaml:"delay" mapstructure:"delay"`
}

// SourceConfig holds settings for DOI worklist sources.
type SourceConfig struct {
	// ROR is the home organization's ROR id used for Crossref harvesting.
	ROR string `json:"ror" yaml:"ror" mapstructure:"ror"`

	// GridID is the home organization's grid id used for Dimensions.
	GridID string `json:"grid_id" yaml:"grid_id" mapstructure:"grid_id"`

	// Email is sent to Crossref as the polite-pool mailto.
	Email string `json:"email" yaml:"email" mapstructure:"email"`

	// WoSQuery is the Web of Science address query.
	WoSQuery string `json:"wos_query" yaml:"wos_query" mapstructure:"wos_query"`

	// ExcludedTypes lists Crossref work types that are never harvested.
	ExcludedTypes []string `json:"excluded_types" yaml:"excluded_types" mapstructure:"excluded_types"`
}

// Credentials holds secrets for the external services.
type Credentials struct {
	RepositoryToken string `json:"-" yaml:"-"`
	DimensionsKey   string `json:"-" yaml:"-"`
	WoSKey          string `json:"-" yaml:"-"`
}

// RunConfig is the explicit configuration passed to every component of a
// run.
type RunConfig struct {
	Harvest     HarvestConfig    `json:"harvest" yaml:"harvest" mapstructure:"harvest"`
	Repository  RepositoryConfig `json:"repository" yaml:"repository" mapstructure:"repository"`
	Reference   ReferenceConfig  `json:"reference" yaml:"reference" mapstructure:"reference"`
	Sources     SourceConfig     `json:"sources" yaml:"sources" mapstructure:"sources"`
	Credentials Credentials      `json:"-" yaml:"-" mapstructure:"-"`
}
