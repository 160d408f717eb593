//-------------------------------------------------------------------------
//
// warehousectl - e-commerce warehouse builder
//
// Copyright (c) 2025 - 2026, Shopmetrics, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package cli implements the command-line interface for warehousectl.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/shopmetrics/warehousectl/internal/config"
	"github.com/shopmetrics/warehousectl/internal/logging"
	"github.com/shopmetrics/warehousectl/pkg/version"
)

var (
	// Global flags
	cfgFile    string
	connection string
	logLevel   string

	// Global config
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "warehousectl",
		Short: "Star-schema warehouse builder for e-commerce transaction data",
		Long: `warehousectl builds and maintains a PostgreSQL star-schema warehouse
from raw e-commerce transaction exports. It creates the dimensional
schema, validates and loads transaction CSVs, maintains a monthly
rollup table, and answers the standard analytical questions over the
finished warehouse.

Loads are batch-oriented and idempotent per file: dimensions are
upserted before facts, and customer aggregates are recomputed from the
fact table after every load.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./warehousectl.yaml)")
	rootCmd.PersistentFlags().StringVar(&connection, "connection", "",
		"PostgreSQL connection string")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(sampleCmd)
}

func initConfig() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	// Override with CLI flags
	if connection != "" {
		cfg.Connection = connection
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	// Reinitialize logger with config
	logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(version.Info())
	},
}
