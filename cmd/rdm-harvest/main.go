// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the rdm-harvest CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/rdm-harvest/internal/logging"
	"github.com/pdiddy/rdm-harvest/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds credentials loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// logger is the root logger built from the persistent log flags.
var logger = logging.Discard()

// rootCmd is the base command for the rdm-harvest CLI.
var rootCmd = &cobra.Command{
	Use:   "rdm-harvest",
	Short: "Harvest publication metadata into an InvenioRDM repository",
	Long: `rdm-harvest collects DOIs from Crossref, ORCID, Web of Science or
Dimensions, turns each into a repository record, enriches authors and
affiliations, applies repository policy and submits the record for review.

DOIs already in the repository or in the local ledger are never written
twice. Each DOI produces one result line: doi=... on success and error=...
on failure.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		level, _ := cmd.Flags().GetString("log-level")
		format, _ := cmd.Flags().GetString("log-format")
		l, err := logging.New(logging.Options{Level: level, Format: format, Output: cmd.ErrOrStderr()})
		if err != nil {
			return err
		}
		logger = l

		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.Debug("loaded secrets", "keys", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./rdm-harvest.yaml or ~/.config/rdm-harvest/rdm-harvest.yaml)")
	pf.String("env", "", "target repository: production or staging (default staging)")
	pf.String("data-dir", "", "directory for the ledger, downloads and run summaries")
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	pf.String("log-format", "console", "log format: console or json")

	_ = viper.BindPFlag("harvest.environment", pf.Lookup("env"))
	_ = viper.BindPFlag("harvest.data_dir", pf.Lookup("data-dir"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("rdm-harvest")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "rdm-harvest"))
		}
	}

	viper.SetEnvPrefix("RDM_HARVEST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("sources.ror", "RDM_HARVEST_SOURCES_ROR", "ROR")

	if err := viper.ReadInConfig(); err == nil {
		slog.Debug("using config file", "path", viper.ConfigFileUsed())
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
