// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/rdm-harvest/internal/affiliation"
	"github.com/pdiddy/rdm-harvest/internal/dedup"
	"github.com/pdiddy/rdm-harvest/internal/fetch"
	"github.com/pdiddy/rdm-harvest/internal/harvest"
	"github.com/pdiddy/rdm-harvest/internal/ledger"
	"github.com/pdiddy/rdm-harvest/internal/logging"
	"github.com/pdiddy/rdm-harvest/internal/normalize"
	"github.com/pdiddy/rdm-harvest/internal/reconcile"
	"github.com/pdiddy/rdm-harvest/internal/refdata"
	"github.com/pdiddy/rdm-harvest/internal/report"
	"github.com/pdiddy/rdm-harvest/internal/source"
	"github.com/pdiddy/rdm-harvest/pkg/types"
)

const dayFmt = "2006-01-02"

var harvestCmd = &cobra.Command{
	Use:   "harvest <crossref|orcid|doi|wos|dimensions> [args...]",
	Short: "Harvest new records from a DOI source",
	Long: `Harvest collects a DOI worklist from one source and runs each DOI through
the pipeline: existence check, fetch, author enrichment, normalization,
duplicate detection and write.

  harvest crossref            works indexed since the last run with the home ROR id
  harvest orcid <orcid>       works on a researcher's ORCID record
  harvest doi <doi>...        explicit DOIs
  harvest wos                 Web of Science address query over --period
  harvest dimensions          Dimensions publications of the home organization`,
	Args: cobra.MinimumNArgs(1),
	RunE: runHarvest,
}

func init() {
	f := harvestCmd.Flags()
	f.String("actor", "", "name recorded in the review message")
	f.String("since", "", "start date YYYY-MM-DD (default: last run, or yesterday)")
	f.String("period", "5D", "Web of Science load time span, e.g. 5D, 2M, 1Y")
	f.String("policy", "", "error policy: continue or abort")
	f.Bool("publish", false, "accept the community review right after submission")
	f.Duration("delay", 0, "delay between consecutive DOIs (default 1s)")

	_ = viper.BindPFlag("harvest.policy", f.Lookup("policy"))
	_ = viper.BindPFlag("harvest.publish", f.Lookup("publish"))
	_ = viper.BindPFlag("harvest.delay", f.Lookup("delay"))

	rootCmd.AddCommand(harvestCmd)
}

func runHarvest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	kind := args[0]

	cfg, err := loadRunConfig(viper.GetViper(), loadedSecrets)
	if err != nil {
		return err
	}
	if err := requireToken(cfg); err != nil {
		return err
	}

	client := newHTTPClient(cfg)
	tables, err := refdata.Load(ctx, client, cfg.Reference)
	if err != nil {
		return err
	}
	logger.Debug("reference tables loaded", "sizes", tables.Sizes())

	fetcher := fetch.NewRecordFetcher(cfg.Harvest.Transformer)
	if err := fetcher.Available(); err != nil {
		return err
	}

	store, err := ledger.Open(cfg.Harvest.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	runID, err := store.StartRun(ctx, kind)
	if err != nil {
		return err
	}
	log := logging.WithRun(logger, runID, kind)
	started := time.Now()

	var dimensions *fetch.DimensionsClient
	if cfg.Credentials.DimensionsKey != "" {
		dimensions = &fetch.DimensionsClient{Client: client, Key: cfg.Credentials.DimensionsKey, UserAgent: cfg.Harvest.UserAgent}
	}

	src, note, err := buildSource(ctx, cmd, cfg, client, store, dimensions, kind, args[1:])
	if err != nil {
		return err
	}
	dois, err := source.Collect(ctx, log, src)
	if err != nil {
		return err
	}
	log.Info("worklist collected", "dois", len(dois))

	repo := repositoryFor(cfg, cfg.Harvest.Environment, client)
	p := &harvest.Pipeline{
		Exists:     repo,
		Ledger:     store,
		Fetcher:    fetcher,
		Normalizer: &normalize.Normalizer{Names: repo, Tables: tables, Logger: log},
		Detector: &dedup.Detector{
			Select: func(env types.Environment) dedup.Searcher { return repositoryFor(cfg, env, client) },
			Logger: log,
		},
		Downloader: &fetch.Downloader{
			Client:    client,
			UserAgent: cfg.Harvest.UserAgent,
			Dir:       filepath.Join(cfg.Harvest.DataDir, "downloads"),
		},
		Writer:    repo,
		Config:    cfg.Harvest,
		Community: cfg.Repository.Community,
		Token:     cfg.Credentials.RepositoryToken,
		RunID:     runID,
		Logger:    log,
		Note:      note,
		OnResult: func(res types.DOIResult) {
			fmt.Fprintln(cmd.OutOrStdout(), formatResult(res))
		},
	}
	if dimensions != nil {
		p.Authors = dimensions
		p.Reconciler = &reconcile.Reconciler{
			Affiliations: affiliation.NewResolver(&affiliation.RORClient{Client: client, UserAgent: cfg.Harvest.UserAgent}, log),
		}
	}

	result := p.Run(ctx, dois)

	if err := store.FinishRun(ctx, runID); err != nil {
		log.Warn("finishing run failed", "error", err)
	}
	if (kind == "crossref" || kind == "dimensions") && !result.Aborted {
		if err := store.SetLastRun(ctx, kind, started); err != nil {
			log.Warn("storing last run failed", "error", err)
		}
	}

	path, err := report.WriteRunSummary(cfg.Harvest.DataDir, report.RunSummary{
		RunID:       runID,
		Source:      kind,
		Environment: cfg.Harvest.Environment,
		Policy:      cfg.Harvest.Policy,
		Started:     started,
		Finished:    time.Now(),
		Totals:      report.Totals{Written: result.Written, Skipped: result.Skipped, Failed: result.Failed},
		Aborted:     result.Aborted,
		Results:     result.Results,
	})
	if err != nil {
		log.Warn("writing run summary failed", "error", err)
	} else {
		log.Info("run summary written", "path", path)
	}

	fmt.Fprintln(cmd.ErrOrStderr(), renderSummary(result))

	if err := result.Err(); err != nil {
		return err
	}
	if result.HasFailures() {
		return fmt.Errorf("%d DOI(s) failed", result.Failed)
	}
	return nil
}

// buildSource returns the worklist source for kind and the review note
// that opens each submission from it.
func buildSource(ctx context.Context, cmd *cobra.Command, cfg types.RunConfig, client *http.Client, store *ledger.Store, dimensions *fetch.DimensionsClient, kind string, rest []string) (source.Source, string, error) {
	actor, _ := cmd.Flags().GetString("actor")
	by := ""
	if actor != "" {
		by = " by " + actor
	}
	ua := cfg.Harvest.UserAgent

	switch kind {
	case "crossref":
		since, err := sinceDate(ctx, cmd, store, kind)
		if err != nil {
			return nil, "", err
		}
		return &source.Crossref{
				Client: client, UserAgent: ua,
				ROR: cfg.Sources.ROR, Email: cfg.Sources.Email, Since: since,
				Excluded: cfg.Sources.ExcludedTypes,
			},
			"Automatically added from Crossref based on ROR affiliation" + by, nil

	case "orcid":
		if len(rest) != 1 {
			return nil, "", fmt.Errorf("harvest orcid takes exactly one ORCID")
		}
		return &source.ORCID{Client: client, UserAgent: ua, ORCID: rest[0]},
			fmt.Sprintf("Automatically added from ORCID from record %s%s", rest[0], by), nil

	case "doi":
		if len(rest) == 0 {
			return nil, "", fmt.Errorf("harvest doi needs one or more DOIs")
		}
		// An empty note lets the pipeline name each DOI.
		note := ""
		if len(rest) == 1 {
			note = fmt.Sprintf("Automatically added from DOI %s%s", rest[0], by)
		}
		return source.List(rest), note, nil

	case "wos":
		if cfg.Credentials.WoSKey == "" {
			return nil, "", fmt.Errorf("%w: no Web of Science key: set WOSTOK", types.ErrFatalConfig)
		}
		period, _ := cmd.Flags().GetString("period")
		return &source.WebOfScience{
				Client: client, UserAgent: ua, Key: cfg.Credentials.WoSKey,
				Query: cfg.Sources.WoSQuery, Period: period,
			},
			"Automatically added from Web of Science address search" + by, nil

	case "dimensions":
		if dimensions == nil {
			return nil, "", fmt.Errorf("%w: no Dimensions key: set DIMKEY", types.ErrFatalConfig)
		}
		since, err := sinceDate(ctx, cmd, store, kind)
		if err != nil {
			return nil, "", err
		}
		return &source.Dimensions{Search: dimensions, GridID: cfg.Sources.GridID, Since: since},
			"Automatically added from Dimensions based on organization affiliation" + by, nil

	default:
		return nil, "", fmt.Errorf("unknown harvest source %q: use crossref, orcid, doi, wos or dimensions", kind)
	}
}

// sinceDate resolves the lower date bound: --since, else the stored last
// run of kind, else yesterday.
func sinceDate(ctx context.Context, cmd *cobra.Command, store *ledger.Store, kind string) (time.Time, error) {
	if s, _ := cmd.Flags().GetString("since"); s != "" {
		t, err := time.Parse(dayFmt, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing --since: %w", err)
		}
		return t, nil
	}
	last, ok, err := store.LastRun(ctx, kind)
	if err != nil {
		return time.Time{}, err
	}
	if ok {
		return last, nil
	}
	return time.Now().AddDate(0, 0, -1), nil
}
