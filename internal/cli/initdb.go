package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shopmetrics/warehousectl/internal/config"
	"github.com/shopmetrics/warehousectl/internal/db"
	"github.com/shopmetrics/warehousectl/internal/etl"
	"github.com/shopmetrics/warehousectl/internal/logging"
	"github.com/shopmetrics/warehousectl/internal/warehouse"
)

var (
	initDateRange    string
	initDropExisting bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the warehouse schema",
	Long: `Initialize a PostgreSQL database with the star schema: the date,
customer, and product dimensions, the transaction fact table, and the
monthly metrics rollup.

A date range prepopulates the date dimension so loads within the range
never create date rows on the fly.

Example:
  warehousectl init --date-range 2023-01-01:2024-12-31 --connection "postgres://..."`,
	RunE: runInitDB,
}

func init() {
	initCmd.Flags().StringVar(&initDateRange, "date-range", "",
		"prepopulate the date dimension, inclusive (YYYY-MM-DD:YYYY-MM-DD)")
	initCmd.Flags().BoolVar(&initDropExisting, "drop-existing", false,
		"drop existing schema before initialization")
}

func runInitDB(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	if initDateRange != "" {
		cfg.Init.DateRange = initDateRange
	}
	if initDropExisting {
		cfg.Init.DropExisting = true
	}

	// Validate configuration
	if err := cfg.ValidateInit(); err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Connection)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	// Refuse to clobber an initialized warehouse without --drop-existing.
	exists, err := db.MetadataExists(ctx, pool)
	if err != nil {
		return err
	}
	if exists && !cfg.Init.DropExisting {
		return fmt.Errorf("warehouse is already initialized; use --drop-existing to recreate it")
	}

	if cfg.Init.DropExisting {
		logging.Info().Msg("Dropping existing schema")
		if err := warehouse.DropSchema(ctx, pool); err != nil {
			return fmt.Errorf("failed to drop schema: %w", err)
		}
		if err := db.DropMetadata(ctx, pool); err != nil {
			logging.Debug().Err(err).Msg("No metadata table to drop")
		}
	}

	logging.Info().Msg("Creating schema")
	if err := warehouse.CreateSchema(ctx, pool); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if cfg.Init.DateRange != "" {
		start, end, err := config.ParseDateRange(cfg.Init.DateRange)
		if err != nil {
			return err
		}

		rows, err := etl.GenerateDateRange(start, end)
		if err != nil {
			return err
		}

		store := warehouse.NewPGStore(pool)
		if err := store.EnsureDates(ctx, rows); err != nil {
			return fmt.Errorf("failed to populate date dimension: %w", err)
		}

		logging.Info().
			Str("range", cfg.Init.DateRange).
			Int("dates", len(rows)).
			Msg("Date dimension populated")
	}

	if err := db.SaveInitMetadata(ctx, pool); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}

	logging.Info().Msg("Warehouse initialization complete")
	return nil
}
