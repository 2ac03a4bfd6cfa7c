// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/rdm-harvest/internal/ledger"
)

// clearColumn is the DOI column of a triage CSV.
const clearColumn = 3

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and maintain the harvested-DOI ledger",
}

var ledgerImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Add DOIs from a one-per-line file such as harvested_dois.txt",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedgerImport,
}

var ledgerClearCmd = &cobra.Command{
	Use:   "clear <csv>",
	Short: "Remove DOIs listed in column 4 of a CSV so they can be harvested again",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedgerClear,
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List harvested DOIs",
	Args:  cobra.NoArgs,
	RunE:  runLedgerList,
}

func init() {
	ledgerCmd.AddCommand(ledgerImportCmd, ledgerClearCmd, ledgerListCmd)
	rootCmd.AddCommand(ledgerCmd)
}

func openLedger() (*ledger.Store, error) {
	cfg, err := loadRunConfig(viper.GetViper(), loadedSecrets)
	if err != nil {
		return nil, err
	}
	return ledger.Open(cfg.Harvest.DataDir)
}

func runLedgerImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	store, err := openLedger()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Import(cmd.Context(), f)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d new DOI(s)\n", n)
	return nil
}

func runLedgerClear(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	store, err := openLedger()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.ClearFromCSV(cmd.Context(), f, clearColumn)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d DOI(s)\n", n)
	return nil
}

func runLedgerList(cmd *cobra.Command, args []string) error {
	store, err := openLedger()
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderLedger(entries))
	return nil
}

func renderLedger(entries []ledger.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.DOI, e.RecordID, e.AddedAt.Local().Format(time.DateTime)})
	}
	return renderTable([]string{"DOI", "Record", "Added"}, rows, nil)
}
