// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/rdm-harvest/internal/identifier"
)

var checkDOICmd = &cobra.Command{
	Use:   "check-doi <doi>",
	Short: "Report whether the repository already holds a DOI",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckDOI,
}

func init() {
	rootCmd.AddCommand(checkDOICmd)
}

func runCheckDOI(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(viper.GetViper(), loadedSecrets)
	if err != nil {
		return err
	}
	doi, ok := identifier.NormalizeDOI(args[0])
	if !ok {
		return fmt.Errorf("invalid DOI %q", args[0])
	}
	repo := repositoryFor(cfg, cfg.Harvest.Environment, newHTTPClient(cfg))
	exists, err := repo.DOIExists(cmd.Context(), doi, cfg.Credentials.RepositoryToken)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "doi=%s exists=%t repository=%s\n", doi, exists, repo.BaseURL())
	return nil
}
