// Package reports holds the read-only analytical query library over the
// finished star schema. Every query is a pure read returning a flat,
// deterministically ordered result set.
package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// DB is satisfied by *pgxpool.Pool and *pgx.Conn.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// RevenueTrendRow is one month of the revenue trend, with month-over-month
// and prior-year comparisons. The comparison fields are nil when no prior
// period exists.
type RevenueTrendRow struct {
	Year             int
	Month            int
	Revenue          decimal.Decimal
	MoMPct           *decimal.Decimal
	PriorYearRevenue *decimal.Decimal
	YoYPct           *decimal.Decimal
}

const revenueTrendSQL = `
SELECT m.year,
       m.month,
       m.total_revenue::text,
       ROUND(100 * (m.total_revenue - LAG(m.total_revenue) OVER w)
             / NULLIF(LAG(m.total_revenue) OVER w, 0), 2)::text AS mom_pct,
       prior.total_revenue::text AS prior_year_revenue,
       ROUND(100 * (m.total_revenue - prior.total_revenue)
             / NULLIF(prior.total_revenue, 0), 2)::text AS yoy_pct
FROM monthly_metrics m
LEFT JOIN monthly_metrics prior
       ON prior.year = m.year - 1 AND prior.month = m.month
WHERE ($1::date IS NULL OR make_date(m.year, m.month, 1) >= date_trunc('month', $1::date))
  AND ($2::date IS NULL OR make_date(m.year, m.month, 1) <= date_trunc('month', $2::date))
WINDOW w AS (ORDER BY m.year, m.month)
ORDER BY m.year, m.month
`

// RevenueTrend returns monthly revenue with MoM and YoY comparisons,
// optionally restricted to [from, to].
func RevenueTrend(ctx context.Context, db DB, from, to *time.Time) ([]RevenueTrendRow, error) {
	rows, err := db.Query(ctx, revenueTrendSQL, from, to)
	if err != nil {
		return nil, fmt.Errorf("revenue trend query: %w", err)
	}
	defer rows.Close()

	var out []RevenueTrendRow
	for rows.Next() {
		var r RevenueTrendRow
		var revenue string
		var mom, prior, yoy *string
		if err := rows.Scan(&r.Year, &r.Month, &revenue, &mom, &prior, &yoy); err != nil {
			return nil, err
		}
		if r.Revenue, err = decimal.NewFromString(revenue); err != nil {
			return nil, err
		}
		if r.MoMPct, err = optionalDecimal(mom); err != nil {
			return nil, err
		}
		if r.PriorYearRevenue, err = optionalDecimal(prior); err != nil {
			return nil, err
		}
		if r.YoYPct, err = optionalDecimal(yoy); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TopProductRow is one product of the top-N revenue ranking.
type TopProductRow struct {
	StockCode     string
	Description   string
	Units         int64
	Revenue       decimal.Decimal
	PctOfTotalRev decimal.Decimal
}

const topProductsSQL = `
SELECT p.stock_code,
       p.description,
       SUM(f.quantity) AS units,
       SUM(f.total_amount)::text AS revenue,
       ROUND(100 * SUM(f.total_amount) / SUM(SUM(f.total_amount)) OVER (), 2)::text AS pct_of_total
FROM fact_transactions f
JOIN dim_products p USING (product_id)
GROUP BY p.stock_code, p.description
ORDER BY SUM(f.total_amount) DESC, p.stock_code
LIMIT $1
`

// TopProducts returns the top-N products by total revenue, with each
// product's share of overall revenue.
func TopProducts(ctx context.Context, db DB, limit int) ([]TopProductRow, error) {
	rows, err := db.Query(ctx, topProductsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("top products query: %w", err)
	}
	defer rows.Close()

	var out []TopProductRow
	for rows.Next() {
		var r TopProductRow
		var revenue, pct string
		if err := rows.Scan(&r.StockCode, &r.Description, &r.Units, &revenue, &pct); err != nil {
			return nil, err
		}
		if r.Revenue, err = decimal.NewFromString(revenue); err != nil {
			return nil, err
		}
		if r.PctOfTotalRev, err = decimal.NewFromString(pct); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SegmentRow is one lifetime-value band of the customer segmentation.
type SegmentRow struct {
	Segment   string
	Customers int64
	AvgSpend  decimal.Decimal
	MinSpend  decimal.Decimal
	MaxSpend  decimal.Decimal
}

const customerSegmentsSQL = `
WITH banded AS (
    SELECT lifetime_value,
           CASE WHEN lifetime_value >= $2 THEN 'high'
                WHEN lifetime_value >= $1 THEN 'mid'
                ELSE 'low'
           END AS segment
    FROM dim_customers
)
SELECT segment,
       COUNT(*) AS customers,
       ROUND(AVG(lifetime_value), 2)::text AS avg_spend,
       MIN(lifetime_value)::text AS min_spend,
       MAX(lifetime_value)::text AS max_spend
FROM banded
GROUP BY segment
ORDER BY CASE segment WHEN 'high' THEN 1 WHEN 'mid' THEN 2 ELSE 3 END
`

// CustomerSegments bands customers by lifetime value at the low/high
// thresholds and summarizes spend per band.
func CustomerSegments(ctx context.Context, db DB, low, high decimal.Decimal) ([]SegmentRow, error) {
	rows, err := db.Query(ctx, customerSegmentsSQL, low.StringFixed(2), high.StringFixed(2))
	if err != nil {
		return nil, fmt.Errorf("customer segments query: %w", err)
	}
	defer rows.Close()

	var out []SegmentRow
	for rows.Next() {
		var r SegmentRow
		var avg, min, max string
		if err := rows.Scan(&r.Segment, &r.Customers, &avg, &min, &max); err != nil {
			return nil, err
		}
		if r.AvgSpend, err = decimal.NewFromString(avg); err != nil {
			return nil, err
		}
		if r.MinSpend, err = decimal.NewFromString(min); err != nil {
			return nil, err
		}
		if r.MaxSpend, err = decimal.NewFromString(max); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountryRow is one country's rollup.
type CountryRow struct {
	Country            string
	Customers          int64
	Orders             int64
	Revenue            decimal.Decimal
	RevenuePerCustomer decimal.Decimal
}

const countryPerformanceSQL = `
SELECT c.country,
       COUNT(DISTINCT f.customer_id) AS customers,
       COUNT(DISTINCT f.invoice_no) AS orders,
       SUM(f.total_amount)::text AS revenue,
       ROUND(SUM(f.total_amount) / COUNT(DISTINCT f.customer_id), 2)::text AS revenue_per_customer
FROM fact_transactions f
JOIN dim_customers c USING (customer_id)
GROUP BY c.country
ORDER BY SUM(f.total_amount) DESC, c.country
`

// CountryPerformance returns per-country revenue, unique customers, and
// revenue per customer, highest revenue first.
func CountryPerformance(ctx context.Context, db DB) ([]CountryRow, error) {
	rows, err := db.Query(ctx, countryPerformanceSQL)
	if err != nil {
		return nil, fmt.Errorf("country performance query: %w", err)
	}
	defer rows.Close()

	var out []CountryRow
	for rows.Next() {
		var r CountryRow
		var revenue, perCustomer string
		if err := rows.Scan(&r.Country, &r.Customers, &r.Orders, &revenue, &perCustomer); err != nil {
			return nil, err
		}
		if r.Revenue, err = decimal.NewFromString(revenue); err != nil {
			return nil, err
		}
		if r.RevenuePerCustomer, err = decimal.NewFromString(perCustomer); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CategoryTrendRow is one (category, quarter) cell of the cross-tab.
type CategoryTrendRow struct {
	Year     int
	Quarter  int
	Category string
	Revenue  decimal.Decimal
}

const categoryTrendSQL = `
WITH top_categories AS (
    SELECT p.category
    FROM fact_transactions f
    JOIN dim_products p USING (product_id)
    GROUP BY p.category
    ORDER BY SUM(f.total_amount) DESC
    LIMIT $1
)
SELECT d.year,
       d.quarter,
       p.category,
       SUM(f.total_amount)::text AS revenue
FROM fact_transactions f
JOIN dim_products p USING (product_id)
JOIN dim_dates d ON d.date_id = f.date_id
WHERE p.category IN (SELECT category FROM top_categories)
GROUP BY d.year, d.quarter, p.category
ORDER BY d.year, d.quarter, SUM(f.total_amount) DESC, p.category
`

// CategoryTrend cross-tabulates revenue of the top-N product categories by
// quarter.
func CategoryTrend(ctx context.Context, db DB, topCategories int) ([]CategoryTrendRow, error) {
	rows, err := db.Query(ctx, categoryTrendSQL, topCategories)
	if err != nil {
		return nil, fmt.Errorf("category trend query: %w", err)
	}
	defer rows.Close()

	var out []CategoryTrendRow
	for rows.Next() {
		var r CategoryTrendRow
		var revenue string
		if err := rows.Scan(&r.Year, &r.Quarter, &r.Category, &revenue); err != nil {
			return nil, err
		}
		if r.Revenue, err = decimal.NewFromString(revenue); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// WeekdayRow is one day of the week's transaction profile.
type WeekdayRow struct {
	DayOfWeek int
	DayName   string
	LineItems int64
	Orders    int64
	Revenue   decimal.Decimal
}

const weekdayProfileSQL = `
SELECT d.day_of_week,
       d.day_name,
       COUNT(*) AS line_items,
       COUNT(DISTINCT f.invoice_no) AS orders,
       SUM(f.total_amount)::text AS revenue
FROM fact_transactions f
JOIN dim_dates d ON d.date_id = f.date_id
GROUP BY d.day_of_week, d.day_name
ORDER BY d.day_of_week
`

// WeekdayProfile returns the day-of-week transaction profile ordered
// Monday through Sunday (day_of_week is ISO numbered).
func WeekdayProfile(ctx context.Context, db DB) ([]WeekdayRow, error) {
	rows, err := db.Query(ctx, weekdayProfileSQL)
	if err != nil {
		return nil, fmt.Errorf("weekday profile query: %w", err)
	}
	defer rows.Close()

	var out []WeekdayRow
	for rows.Next() {
		var r WeekdayRow
		var revenue string
		if err := rows.Scan(&r.DayOfWeek, &r.DayName, &r.LineItems, &r.Orders, &revenue); err != nil {
			return nil, err
		}
		if r.Revenue, err = decimal.NewFromString(revenue); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func optionalDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
