package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shopmetrics/warehousectl/internal/db"
	"github.com/shopmetrics/warehousectl/internal/warehouse"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Reconcile derived values against the fact table",
	Long: `Re-derive every stored derived value from the fact table and
compare: fact amounts against quantity times unit price, and customer
lifetime values against the sum of their fact amounts. Exits non-zero
if any mismatch is found.`,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Connection)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	store := warehouse.NewPGStore(pool)
	report, err := store.CheckConsistency(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
	fmt.Fprintf(w, "Facts\t%d\n", report.Facts)
	fmt.Fprintf(w, "Customers\t%d\n", report.Customers)
	fmt.Fprintf(w, "Products\t%d\n", report.Products)
	fmt.Fprintf(w, "Dates\t%d\n", report.Dates)
	fmt.Fprintf(w, "Total revenue\t%s\n", report.TotalRevenue.StringFixed(2))
	if !report.FirstInvoice.IsZero() {
		fmt.Fprintf(w, "First invoice\t%s\n", report.FirstInvoice.Format("2006-01-02"))
		fmt.Fprintf(w, "Last invoice\t%s\n", report.LastInvoice.Format("2006-01-02"))
	}
	fmt.Fprintf(w, "Amount mismatches\t%d\n", report.AmountMismatches)
	fmt.Fprintf(w, "Lifetime value mismatches\t%d\n", report.LifetimeValueMismatches)
	if err := w.Flush(); err != nil {
		return err
	}

	return report.Err()
}
