// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/rdm-harvest/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build DOI triage reports",
}

var reportEnhanceCmd = &cobra.Command{
	Use:   "enhance <doi-list.csv>",
	Short: "Look up Crossref details for a DOI list",
	Long: `Enhance reads DOIs from the first column of a CSV and writes a report with
DOI, Type, Publisher, Title, Journal and Year. Rows of an --existing report
are carried over and their DOIs are not looked up again.`,
	Args: cobra.ExactArgs(1),
	RunE: runReportEnhance,
}

var reportValidateCmd = &cobra.Command{
	Use:   "validate <report.csv>",
	Short: "Drop report rows whose DOI is already in the repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportValidate,
}

func init() {
	reportEnhanceCmd.Flags().String("existing", "", "previous report whose rows are kept")
	reportEnhanceCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
	reportValidateCmd.Flags().StringP("output", "o", "", "output file (default stdout)")

	reportCmd.AddCommand(reportEnhanceCmd, reportValidateCmd)
	rootCmd.AddCommand(reportCmd)
}

func runReportEnhance(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(viper.GetViper(), loadedSecrets)
	if err != nil {
		return err
	}

	dois, err := readFile(args[0], report.ReadDOIList)
	if err != nil {
		return err
	}
	var existing []report.Row
	if path, _ := cmd.Flags().GetString("existing"); path != "" {
		if existing, err = readFile(path, report.ReadRows); err != nil {
			return err
		}
	}

	e := &report.Enhancer{
		Client:    newHTTPClient(cfg),
		UserAgent: cfg.Harvest.UserAgent,
		Email:     cfg.Sources.Email,
		Logger:    logger,
	}
	rows := e.Enhance(cmd.Context(), dois, existing)
	return writeReport(cmd, rows)
}

func runReportValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(viper.GetViper(), loadedSecrets)
	if err != nil {
		return err
	}
	rows, err := readFile(args[0], report.ReadRows)
	if err != nil {
		return err
	}
	repo := repositoryFor(cfg, cfg.Harvest.Environment, newHTTPClient(cfg))
	kept, err := report.Validate(cmd.Context(), rows, repo, cfg.Credentials.RepositoryToken)
	if err != nil {
		return err
	}
	logger.Info("report validated", "rows", len(rows), "kept", len(kept))
	return writeReport(cmd, kept)
}

func readFile[T any](path string, parse func(io.Reader) (T, error)) (T, error) {
	f, err := os.Open(path)
	if err != nil {
		var zero T
		return zero, err
	}
	defer f.Close()
	return parse(f)
}

func writeReport(cmd *cobra.Command, rows []report.Row) error {
	path, _ := cmd.Flags().GetString("output")
	if path == "" {
		return report.WriteRows(cmd.OutOrStdout(), rows)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	if err := report.WriteRows(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
