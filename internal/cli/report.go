package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/shopmetrics/warehousectl/internal/db"
	"github.com/shopmetrics/warehousectl/internal/reports"
)

var (
	reportTop         int
	reportFrom        string
	reportTo          string
	reportSegmentLow  float64
	reportSegmentHigh float64
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Run analytical reports over the warehouse",
	Long: `Run one of the standard analytical reports over the finished
warehouse. All reports are read-only.

Available reports:
  revenue-trend      monthly revenue with MoM and YoY comparisons
  top-products       top products by revenue with share of total
  customer-segments  customers banded by lifetime value
  countries          per-country revenue and customers
  category-trend     top categories by quarter
  weekday-profile    transaction volume by day of week

Example:
  warehousectl report top-products --top 20`,
}

func init() {
	reportCmd.PersistentFlags().IntVar(&reportTop, "top", 0,
		"row limit for top-N reports (default: 10)")
	reportCmd.PersistentFlags().StringVar(&reportFrom, "from", "",
		"start month for trend reports (YYYY-MM-DD)")
	reportCmd.PersistentFlags().StringVar(&reportTo, "to", "",
		"end month for trend reports (YYYY-MM-DD)")
	reportCmd.PersistentFlags().Float64Var(&reportSegmentLow, "segment-low", 0,
		"lifetime value threshold between low and mid segments (default: 1000)")
	reportCmd.PersistentFlags().Float64Var(&reportSegmentHigh, "segment-high", 0,
		"lifetime value threshold between mid and high segments (default: 5000)")

	reportCmd.AddCommand(revenueTrendCmd)
	reportCmd.AddCommand(topProductsCmd)
	reportCmd.AddCommand(customerSegmentsCmd)
	reportCmd.AddCommand(countriesCmd)
	reportCmd.AddCommand(categoryTrendCmd)
	reportCmd.AddCommand(weekdayProfileCmd)
}

// reportSetup applies flag overrides, validates, and connects.
func reportSetup(ctx context.Context) (*pgxpool.Pool, error) {
	if reportTop > 0 {
		cfg.Report.Top = reportTop
	}
	if reportSegmentLow > 0 {
		cfg.Report.SegmentLow = reportSegmentLow
	}
	if reportSegmentHigh > 0 {
		cfg.Report.SegmentHigh = reportSegmentHigh
	}

	if err := cfg.ValidateReport(); err != nil {
		return nil, err
	}

	pool, err := db.Connect(ctx, cfg.Connection)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}

func parseMonthFlag(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return &t, nil
}

func formatOptional(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.StringFixed(2)
}

var revenueTrendCmd = &cobra.Command{
	Use:   "revenue-trend",
	Short: "Monthly revenue with MoM and YoY comparisons",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		pool, err := reportSetup(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		from, err := parseMonthFlag(reportFrom)
		if err != nil {
			return err
		}
		to, err := parseMonthFlag(reportTo)
		if err != nil {
			return err
		}

		rows, err := reports.RevenueTrend(ctx, pool, from, to)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "MONTH\tREVENUE\tMOM%\tPRIOR YEAR\tYOY%")
		for _, r := range rows {
			fmt.Fprintf(w, "%d-%02d\t%s\t%s\t%s\t%s\n",
				r.Year, r.Month,
				r.Revenue.StringFixed(2),
				formatOptional(r.MoMPct),
				formatOptional(r.PriorYearRevenue),
				formatOptional(r.YoYPct))
		}
		return w.Flush()
	},
}

var topProductsCmd = &cobra.Command{
	Use:   "top-products",
	Short: "Top products by revenue with share of total",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		pool, err := reportSetup(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		rows, err := reports.TopProducts(ctx, pool, cfg.Report.Top)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "STOCK CODE\tDESCRIPTION\tUNITS\tREVENUE\tSHARE%")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				r.StockCode, r.Description, r.Units,
				r.Revenue.StringFixed(2), r.PctOfTotalRev.StringFixed(2))
		}
		return w.Flush()
	},
}

var customerSegmentsCmd = &cobra.Command{
	Use:   "customer-segments",
	Short: "Customers banded by lifetime value",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		pool, err := reportSetup(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		low := decimal.NewFromFloat(cfg.Report.SegmentLow)
		high := decimal.NewFromFloat(cfg.Report.SegmentHigh)
		rows, err := reports.CustomerSegments(ctx, pool, low, high)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "SEGMENT\tCUSTOMERS\tAVG SPEND\tMIN\tMAX")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
				r.Segment, r.Customers,
				r.AvgSpend.StringFixed(2),
				r.MinSpend.StringFixed(2),
				r.MaxSpend.StringFixed(2))
		}
		return w.Flush()
	},
}

var countriesCmd = &cobra.Command{
	Use:   "countries",
	Short: "Per-country revenue and customers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		pool, err := reportSetup(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		rows, err := reports.CountryPerformance(ctx, pool)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "COUNTRY\tCUSTOMERS\tORDERS\tREVENUE\tREV/CUSTOMER")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n",
				r.Country, r.Customers, r.Orders,
				r.Revenue.StringFixed(2),
				r.RevenuePerCustomer.StringFixed(2))
		}
		return w.Flush()
	},
}

var categoryTrendCmd = &cobra.Command{
	Use:   "category-trend",
	Short: "Top categories by quarter",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		pool, err := reportSetup(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		rows, err := reports.CategoryTrend(ctx, pool, cfg.Report.Top)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "QUARTER\tCATEGORY\tREVENUE")
		for _, r := range rows {
			fmt.Fprintf(w, "%dQ%d\t%s\t%s\n",
				r.Year, r.Quarter, r.Category, r.Revenue.StringFixed(2))
		}
		return w.Flush()
	},
}

var weekdayProfileCmd = &cobra.Command{
	Use:   "weekday-profile",
	Short: "Transaction volume by day of week",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		pool, err := reportSetup(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		rows, err := reports.WeekdayProfile(ctx, pool)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "DAY\tLINE ITEMS\tORDERS\tREVENUE")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\n",
				r.DayName, r.LineItems, r.Orders, r.Revenue.StringFixed(2))
		}
		return w.Flush()
	},
}
