package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shopmetrics/warehousectl/internal/logging"
)

// PGStore is the PostgreSQL-backed warehouse store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a store over an existing connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Pool exposes the underlying pool for the report queries.
func (s *PGStore) Pool() *pgxpool.Pool {
	return s.pool
}

// EnsureDates inserts date rows, skipping dates already present.
func (s *PGStore) EnsureDates(ctx context.Context, rows []DateRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
            INSERT INTO dim_dates (full_date, year, quarter, month, month_name,
                                   week, day_of_month, day_of_week, day_name, is_weekend)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
            ON CONFLICT (full_date) DO NOTHING
        `, r.FullDate, r.Year, r.Quarter, r.Month, r.MonthName,
			r.Week, r.DayOfMonth, r.DayOfWeek, r.DayName, r.IsWeekend)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("ensuring dates: %w", err)
	}
	return nil
}

// DateKeys resolves calendar dates to surrogate keys.
func (s *PGStore) DateKeys(ctx context.Context, dates []time.Time) (map[time.Time]int32, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT full_date, date_id FROM dim_dates WHERE full_date = ANY($1)
    `, dates)
	if err != nil {
		return nil, fmt.Errorf("resolving date keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[time.Time]int32, len(dates))
	for rows.Next() {
		var d time.Time
		var id int32
		if err := rows.Scan(&d, &id); err != nil {
			return nil, err
		}
		keys[Day(d)] = id
	}
	return keys, rows.Err()
}

// UpsertProducts creates or updates product rows keyed by stock code.
// Description and category stick at first sight; unit price follows the
// last batch written.
func (s *PGStore) UpsertProducts(ctx context.Context, rows []ProductRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
            INSERT INTO dim_products (stock_code, description, category, unit_price)
            VALUES ($1, $2, $3, $4)
            ON CONFLICT (stock_code) DO UPDATE SET
                unit_price = EXCLUDED.unit_price
        `, r.StockCode, r.Description, r.Category, r.UnitPrice.StringFixed(2))
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting products: %w", err)
	}
	return nil
}

// ProductKeys resolves stock codes to surrogate keys.
func (s *PGStore) ProductKeys(ctx context.Context, stockCodes []string) (map[string]int32, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT stock_code, product_id FROM dim_products WHERE stock_code = ANY($1)
    `, stockCodes)
	if err != nil {
		return nil, fmt.Errorf("resolving product keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]int32, len(stockCodes))
	for rows.Next() {
		var code string
		var id int32
		if err := rows.Scan(&code, &id); err != nil {
			return nil, err
		}
		keys[code] = id
	}
	return keys, rows.Err()
}

// UpsertCustomers creates or updates customer rows. Country is never
// changed once set; purchase dates extend by LEAST/GREATEST so replaying a
// batch is a no-op.
func (s *PGStore) UpsertCustomers(ctx context.Context, rows []CustomerRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
            INSERT INTO dim_customers (customer_id, country, first_purchase_date,
                                       last_purchase_date, total_orders, lifetime_value)
            VALUES ($1, $2, $3, $4, 0, 0)
            ON CONFLICT (customer_id) DO UPDATE SET
                first_purchase_date = LEAST(dim_customers.first_purchase_date, EXCLUDED.first_purchase_date),
                last_purchase_date  = GREATEST(dim_customers.last_purchase_date, EXCLUDED.last_purchase_date),
                updated_at = NOW()
        `, r.CustomerID, r.Country, r.FirstPurchaseDate, r.LastPurchaseDate)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting customers: %w", err)
	}
	return nil
}

// AppendFacts bulk-loads fact rows with COPY. total_amount is a generated
// column, so it is never part of the column list.
func (s *PGStore) AppendFacts(ctx context.Context, rows []FactRow) (int64, error) {
	columns := []string{
		"invoice_no", "customer_id", "product_id", "date_id",
		"invoice_date", "quantity", "unit_price",
	}

	n, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"fact_transactions"},
		columns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{
				r.InvoiceNo, r.CustomerID, r.ProductID, r.DateID,
				r.InvoiceDate, r.Quantity, r.UnitPrice.StringFixed(2),
			}, nil
		}),
	)
	if err != nil {
		return n, fmt.Errorf("appending facts: %w", err)
	}
	return n, nil
}

// FinalizeCustomerAggregates recomputes total_orders and lifetime_value for
// the given customers from their fact rows. A single statement keeps the
// write-back serialized, so concurrent batches cannot lose updates.
func (s *PGStore) FinalizeCustomerAggregates(ctx context.Context, customerIDs []int64) error {
	if len(customerIDs) == 0 {
		return nil
	}

	tag, err := s.pool.Exec(ctx, `
        UPDATE dim_customers c SET
            total_orders   = agg.orders,
            lifetime_value = agg.value,
            updated_at     = NOW()
        FROM (
            SELECT customer_id,
                   COUNT(DISTINCT invoice_no) AS orders,
                   SUM(total_amount)          AS value
            FROM fact_transactions
            WHERE customer_id = ANY($1)
            GROUP BY customer_id
        ) agg
        WHERE c.customer_id = agg.customer_id
    `, customerIDs)
	if err != nil {
		return fmt.Errorf("finalizing customer aggregates: %w", err)
	}

	logging.Debug().
		Int64("customers", tag.RowsAffected()).
		Msg("Finalized customer aggregates")

	return nil
}

// RefreshMonthlyMetrics rebuilds monthly_metrics inside one transaction:
// readers see either the previous or the new rollup.
func (s *PGStore) RefreshMonthlyMetrics(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting refresh transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM monthly_metrics`); err != nil {
		return fmt.Errorf("clearing monthly metrics: %w", err)
	}

	if _, err := tx.Exec(ctx, `
        INSERT INTO monthly_metrics (year, month, unique_customers, total_orders,
                                     total_line_items, total_revenue,
                                     avg_transaction_value, total_quantity)
        SELECT d.year,
               d.month,
               COUNT(DISTINCT f.customer_id),
               COUNT(DISTINCT f.invoice_no),
               COUNT(*),
               SUM(f.total_amount),
               ROUND(AVG(f.total_amount), 2),
               SUM(f.quantity)
        FROM fact_transactions f
        JOIN dim_dates d ON d.date_id = f.date_id
        GROUP BY d.year, d.month
    `); err != nil {
		return fmt.Errorf("rebuilding monthly metrics: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing refresh: %w", err)
	}
	return nil
}

// MonthlyMetrics returns the rollup ordered by (year, month).
func (s *PGStore) MonthlyMetrics(ctx context.Context) ([]MonthlyMetricsRow, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT year, month, unique_customers, total_orders, total_line_items,
               total_revenue::text, avg_transaction_value::text, total_quantity
        FROM monthly_metrics
        ORDER BY year, month
    `)
	if err != nil {
		return nil, fmt.Errorf("reading monthly metrics: %w", err)
	}
	defer rows.Close()

	var out []MonthlyMetricsRow
	for rows.Next() {
		var m MonthlyMetricsRow
		var revenue, avg string
		if err := rows.Scan(&m.Year, &m.Month, &m.UniqueCustomers, &m.TotalOrders,
			&m.TotalLineItems, &revenue, &avg, &m.TotalQuantity); err != nil {
			return nil, err
		}
		if m.TotalRevenue, err = decimal.NewFromString(revenue); err != nil {
			return nil, fmt.Errorf("parsing total_revenue: %w", err)
		}
		if m.AvgTransactionValue, err = decimal.NewFromString(avg); err != nil {
			return nil, fmt.Errorf("parsing avg_transaction_value: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Customer returns one customer dimension row.
func (s *PGStore) Customer(ctx context.Context, id int64) (*CustomerRow, error) {
	var c CustomerRow
	var ltv string
	err := s.pool.QueryRow(ctx, `
        SELECT customer_id, country, first_purchase_date, last_purchase_date,
               total_orders, lifetime_value::text
        FROM dim_customers WHERE customer_id = $1
    `, id).Scan(&c.CustomerID, &c.Country, &c.FirstPurchaseDate,
		&c.LastPurchaseDate, &c.TotalOrders, &ltv)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading customer %d: %w", id, err)
	}
	if c.LifetimeValue, err = decimal.NewFromString(ltv); err != nil {
		return nil, fmt.Errorf("parsing lifetime_value: %w", err)
	}
	return &c, nil
}

// CheckConsistency reconciles stored derived values against the fact table.
func (s *PGStore) CheckConsistency(ctx context.Context) (*ConsistencyReport, error) {
	r := &ConsistencyReport{TotalRevenue: decimal.Zero}

	err := s.pool.QueryRow(ctx, `
        SELECT (SELECT COUNT(*) FROM fact_transactions),
               (SELECT COUNT(*) FROM dim_customers),
               (SELECT COUNT(*) FROM dim_products),
               (SELECT COUNT(*) FROM dim_dates)
    `).Scan(&r.Facts, &r.Customers, &r.Products, &r.Dates)
	if err != nil {
		return nil, fmt.Errorf("counting rows: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
        SELECT COUNT(*) FROM fact_transactions
        WHERE total_amount <> quantity * unit_price
    `).Scan(&r.AmountMismatches)
	if err != nil {
		return nil, fmt.Errorf("checking fact amounts: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
        SELECT COUNT(*)
        FROM dim_customers c
        JOIN (
            SELECT customer_id, SUM(total_amount) AS value
            FROM fact_transactions
            GROUP BY customer_id
        ) agg ON agg.customer_id = c.customer_id
        WHERE c.lifetime_value <> agg.value
    `).Scan(&r.LifetimeValueMismatches)
	if err != nil {
		return nil, fmt.Errorf("checking lifetime values: %w", err)
	}

	if r.Facts > 0 {
		var revenue string
		err = s.pool.QueryRow(ctx, `
            SELECT COALESCE(SUM(total_amount), 0)::text,
                   MIN(invoice_date), MAX(invoice_date)
            FROM fact_transactions
        `).Scan(&revenue, &r.FirstInvoice, &r.LastInvoice)
		if err != nil {
			return nil, fmt.Errorf("summarizing facts: %w", err)
		}
		if r.TotalRevenue, err = decimal.NewFromString(revenue); err != nil {
			return nil, fmt.Errorf("parsing total revenue: %w", err)
		}
	}

	return r, nil
}
