// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/rdm-harvest/internal/fetch"
	"github.com/pdiddy/rdm-harvest/internal/normalize"
	"github.com/pdiddy/rdm-harvest/internal/refdata"
	"github.com/pdiddy/rdm-harvest/internal/repository"
)

var editCmd = &cobra.Command{
	Use:   "edit <record-id> <doi>",
	Short: "Replace an existing record's metadata with a fresh harvest of a DOI",
	Long: `Edit fetches and normalizes the DOI the same way harvest does, then merges
the result into an existing record and publishes it. Creators are kept
unless --authors is given.`,
	Args: cobra.ExactArgs(2),
	RunE: runEdit,
}

func init() {
	editCmd.Flags().Bool("authors", false, "replace the record's creators")
	editCmd.Flags().Bool("new-version", false, "publish a new version instead of editing in place")
	rootCmd.AddCommand(editCmd)
}

func runEdit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	recordID, doi := args[0], args[1]

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
	fetcher := fetch.NewRecordFetcher(cfg.Harvest.Transformer)
	if err := fetcher.Available(); err != nil {
		return err
	}
	raw, err := fetcher.Fetch(ctx, doi)
	if err != nil {
		return err
	}

	repo := repositoryFor(cfg, cfg.Harvest.Environment, client)
	n := &normalize.Normalizer{Names: repo, Tables: tables, Logger: logger}
	rec, _ := n.Normalize(ctx, raw)

	authors, _ := cmd.Flags().GetBool("authors")
	newVersion, _ := cmd.Flags().GetBool("new-version")
	id, err := repo.EditRecord(ctx, recordID, rec, cfg.Credentials.RepositoryToken, repository.EditOptions{
		Authors:    authors,
		NewVersion: newVersion,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "doi=%s record=%s\n", doi, id)
	return nil
}
