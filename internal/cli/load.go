package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shopmetrics/warehousectl/internal/db"
	"github.com/shopmetrics/warehousectl/internal/etl"
	"github.com/shopmetrics/warehousectl/internal/logging"
	"github.com/shopmetrics/warehousectl/internal/warehouse"
)

var (
	loadFile           string
	loadRejectsFile    string
	loadMaxRejectRatio float64
	loadBatchSize      int
	loadRefresh        bool
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load a raw transaction CSV into the warehouse",
	Long: `Validate and load a raw transaction CSV export. Rows that fail
validation are rejected individually and reported; the load aborts only
when the rejected fraction exceeds the maximum reject ratio.

Dimensions are upserted before facts, and customer order counts and
lifetime values are recomputed from the fact table once the facts are
in. Reloading the same file is idempotent for the dimensions but
appends facts again; deduplicate upstream before reloading.

Example:
  warehousectl load --file transactions.csv --rejects rejects.csv --refresh`,
	RunE: runLoad,
}

func init() {
	loadCmd.Flags().StringVar(&loadFile, "file", "",
		"raw transaction CSV to load")
	loadCmd.Flags().StringVar(&loadRejectsFile, "rejects", "",
		"write the rejection report to this CSV file")
	loadCmd.Flags().Float64Var(&loadMaxRejectRatio, "max-reject-ratio", 0,
		"abort when rejected/total exceeds this ratio (default: 0.5)")
	loadCmd.Flags().IntVar(&loadBatchSize, "batch-size", 0,
		"fact rows per insert batch (default: 1000)")
	loadCmd.Flags().BoolVar(&loadRefresh, "refresh", false,
		"rebuild monthly metrics after a successful load")
}

func runLoad(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	if loadFile != "" {
		cfg.Load.File = loadFile
	}
	if loadRejectsFile != "" {
		cfg.Load.RejectsFile = loadRejectsFile
	}
	if loadMaxRejectRatio > 0 {
		cfg.Load.MaxRejectRatio = loadMaxRejectRatio
	}
	if loadBatchSize > 0 {
		cfg.Load.BatchSize = loadBatchSize
	}
	if loadRefresh {
		cfg.Load.Refresh = true
	}

	// Validate configuration
	if err := cfg.ValidateLoad(); err != nil {
		return err
	}

	f, err := os.Open(cfg.Load.File)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	reader, err := etl.NewReader(f)
	if err != nil {
		return fmt.Errorf("invalid input file: %w", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Connection)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	store := warehouse.NewPGStore(pool)
	pipeline := etl.NewPipeline(store, etl.Config{
		MaxRejectRatio: cfg.Load.MaxRejectRatio,
		BatchSize:      cfg.Load.BatchSize,
	})

	logging.Info().
		Str("file", cfg.Load.File).
		Msg("Loading transactions")

	result, err := pipeline.Run(ctx, reader)
	if err != nil {
		if errors.Is(err, etl.ErrRejectRatioExceeded) {
			return fmt.Errorf("load aborted: %w", err)
		}
		return err
	}

	if cfg.Load.RejectsFile != "" && len(result.Report.Rejections) > 0 {
		if err := writeRejects(cfg.Load.RejectsFile, result.Report); err != nil {
			return err
		}
		logging.Info().
			Str("file", cfg.Load.RejectsFile).
			Int("rejections", len(result.Report.Rejections)).
			Msg("Rejection report written")
	}

	err = db.SaveLoadMetadata(ctx, pool,
		result.BatchID.String(), cfg.Load.File,
		result.Report.Accepted, result.Report.Rejected(),
		result.Report.RetentionRatio())
	if err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}

	if cfg.Load.Refresh {
		logging.Info().Msg("Refreshing monthly metrics")
		if err := store.RefreshMonthlyMetrics(ctx); err != nil {
			return fmt.Errorf("failed to refresh monthly metrics: %w", err)
		}
		if err := db.SaveRefreshMetadata(ctx, pool); err != nil {
			return fmt.Errorf("failed to save metadata: %w", err)
		}
	}

	logging.Info().
		Str("batch_id", result.BatchID.String()).
		Int64("facts", result.FactsInserted).
		Int64("rejected", result.Report.Rejected()).
		Float64("retention", result.Report.RetentionRatio()).
		Msg("Load complete")

	return nil
}

func writeRejects(path string, report *etl.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create rejects file: %w", err)
	}

	if err := report.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write rejects file: %w", err)
	}
	return f.Close()
}
