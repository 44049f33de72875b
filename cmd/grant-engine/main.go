// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the grant-engine CLI, a pipeline for
// drafting NIH Specific Aims sections from a corpus of funded exemplars.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/grant-engine/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns fallback when set, otherwise the secret value for
// key, otherwise empty.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the grant-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "grant-engine",
	Short: "Draft NIH Specific Aims sections from funded exemplars",
	Long: `grant-engine maintains a local corpus of funded NIH grant applications and
drafts new Specific Aims sections grounded in the best-matching exemplars.

Each pipeline stage is a subcommand: fetch downloads exemplar PDFs, convert
extracts their text, ingest structures the Specific Aims sections, embed
vectorizes them, retrieve finds exemplars for a topic, and generate drafts a
new section. serve and tui expose the same pipeline over HTTP and in the
terminal.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
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
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./grant-engine.yaml or ~/.config/grant-engine/config.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "data", "root of the pipeline data directories")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("grant-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "grant-engine"))
		}
	}

	viper.SetEnvPrefix("GRANT_ENGINE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
