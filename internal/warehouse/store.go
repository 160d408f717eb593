package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the persisted warehouse handle passed to each pipeline stage.
// The pgx-backed implementation is the real warehouse; the in-memory
// implementation serves as a unit-test double with the same semantics.
//
// Upserts are commutative where the policy allows (price last-write-wins,
// country first-seen, purchase dates min/max) so batches can be replayed.
type Store interface {
	// EnsureDates inserts the given date rows, skipping dates already
	// present. Idempotent, keyed by the calendar date.
	EnsureDates(ctx context.Context, rows []DateRow) error

	// DateKeys resolves calendar dates to date dimension surrogate keys.
	DateKeys(ctx context.Context, dates []time.Time) (map[time.Time]int32, error)

	// UpsertProducts creates or updates product rows keyed by stock code.
	// Description and category stick at first sight; unit price is
	// last-write-wins.
	UpsertProducts(ctx context.Context, rows []ProductRow) error

	// ProductKeys resolves stock codes to product surrogate keys.
	ProductKeys(ctx context.Context, stockCodes []string) (map[string]int32, error)

	// UpsertCustomers creates or updates customer rows. Country sticks at
	// first sight; first/last purchase dates extend by min/max. The
	// aggregate fields are zeroed on create and left alone on update.
	UpsertCustomers(ctx context.Context, rows []CustomerRow) error

	// AppendFacts appends transaction fact rows, recomputing total_amount
	// from quantity and unit price. Returns the number of rows written.
	AppendFacts(ctx context.Context, rows []FactRow) (int64, error)

	// FinalizeCustomerAggregates recomputes total_orders (distinct
	// invoices) and lifetime_value (sum of fact amounts) for the given
	// customers from the fact table and writes the results back.
	FinalizeCustomerAggregates(ctx context.Context, customerIDs []int64) error

	// RefreshMonthlyMetrics rebuilds the monthly rollup wholesale from the
	// fact and date tables. Readers observe either the old or the new
	// result set, never a partial one.
	RefreshMonthlyMetrics(ctx context.Context) error

	// MonthlyMetrics returns the rollup ordered by (year, month).
	MonthlyMetrics(ctx context.Context) ([]MonthlyMetricsRow, error)

	// Customer returns a customer dimension row, or ErrNotFound.
	Customer(ctx context.Context, id int64) (*CustomerRow, error)

	// CheckConsistency reconciles stored derived values against the fact
	// table.
	CheckConsistency(ctx context.Context) (*ConsistencyReport, error)
}

// ErrNotFound is returned for lookups of absent dimension rows.
var ErrNotFound = fmt.Errorf("warehouse: row not found")

// ConsistencyError signals that a stored derived value disagrees with what
// re-derivation from the fact table produces. It points at a prior write
// bug and is never silently corrected.
type ConsistencyError struct {
	AmountMismatches        int64
	LifetimeValueMismatches int64
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf(
		"warehouse: consistency check failed: %d fact amount mismatches, %d lifetime value mismatches",
		e.AmountMismatches, e.LifetimeValueMismatches)
}

// ConsistencyReport summarizes the post-load reconciliation checks.
type ConsistencyReport struct {
	Facts     int64
	Customers int64
	Products  int64
	Dates     int64

	// AmountMismatches counts fact rows whose total_amount differs from
	// quantity * unit_price.
	AmountMismatches int64

	// LifetimeValueMismatches counts customers whose stored lifetime_value
	// differs from the sum of their fact amounts.
	LifetimeValueMismatches int64

	TotalRevenue decimal.Decimal
	FirstInvoice time.Time
	LastInvoice  time.Time
}

// Err returns a ConsistencyError if the report contains mismatches.
func (r *ConsistencyReport) Err() error {
	if r.AmountMismatches > 0 || r.LifetimeValueMismatches > 0 {
		return &ConsistencyError{
			AmountMismatches:        r.AmountMismatches,
			LifetimeValueMismatches: r.LifetimeValueMismatches,
		}
	}
	return nil
}
