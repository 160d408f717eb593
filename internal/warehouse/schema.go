package warehouse

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema SQL for the e-commerce star schema: three dimensions, one fact
// table, and the materialized monthly rollup. total_amount is a generated
// column so the quantity * unit_price invariant survives any UPDATE, not
// just the initial insert.
const createSchemaSQL = `
-- Date dimension: one row per calendar date referenced by a transaction.
CREATE TABLE IF NOT EXISTS dim_dates (
    date_id      SERIAL PRIMARY KEY,
    full_date    DATE NOT NULL UNIQUE,
    year         INTEGER NOT NULL,
    quarter      INTEGER NOT NULL,
    month        INTEGER NOT NULL,
    month_name   VARCHAR(9) NOT NULL,
    week         INTEGER NOT NULL,
    day_of_month INTEGER NOT NULL,
    day_of_week  INTEGER NOT NULL,
    day_name     VARCHAR(9) NOT NULL,
    is_weekend   BOOLEAN NOT NULL
);

-- Customer dimension, keyed by the natural customer identifier.
CREATE TABLE IF NOT EXISTS dim_customers (
    customer_id         BIGINT PRIMARY KEY,
    country             VARCHAR(64) NOT NULL,
    first_purchase_date DATE NOT NULL,
    last_purchase_date  DATE NOT NULL,
    total_orders        INTEGER NOT NULL DEFAULT 0,
    lifetime_value      NUMERIC(14,2) NOT NULL DEFAULT 0,
    updated_at          TIMESTAMP NOT NULL DEFAULT NOW()
);

-- Product dimension with a surrogate key over the natural stock code.
CREATE TABLE IF NOT EXISTS dim_products (
    product_id  SERIAL PRIMARY KEY,
    stock_code  VARCHAR(32) NOT NULL UNIQUE,
    description TEXT NOT NULL,
    category    VARCHAR(32) NOT NULL,
    unit_price  NUMERIC(10,2) NOT NULL
);

-- Transaction fact table: one row per invoice line item, append-only.
CREATE TABLE IF NOT EXISTS fact_transactions (
    transaction_id BIGSERIAL PRIMARY KEY,
    invoice_no     VARCHAR(20) NOT NULL,
    customer_id    BIGINT NOT NULL REFERENCES dim_customers(customer_id),
    product_id     INTEGER NOT NULL REFERENCES dim_products(product_id),
    date_id        INTEGER NOT NULL REFERENCES dim_dates(date_id),
    invoice_date   TIMESTAMP NOT NULL,
    quantity       INTEGER NOT NULL CHECK (quantity > 0),
    unit_price     NUMERIC(10,2) NOT NULL CHECK (unit_price > 0),
    total_amount   NUMERIC(14,2) GENERATED ALWAYS AS (quantity * unit_price) STORED
);

-- Monthly rollup, rebuilt wholesale by refresh; a cache, not a source of
-- truth.
CREATE TABLE IF NOT EXISTS monthly_metrics (
    year                  INTEGER NOT NULL,
    month                 INTEGER NOT NULL,
    unique_customers      INTEGER NOT NULL,
    total_orders          INTEGER NOT NULL,
    total_line_items      BIGINT NOT NULL,
    total_revenue         NUMERIC(16,2) NOT NULL,
    avg_transaction_value NUMERIC(14,2) NOT NULL,
    total_quantity        BIGINT NOT NULL,
    PRIMARY KEY (year, month)
);

-- Indexes for the analytical query library.
CREATE INDEX IF NOT EXISTS idx_fact_customer ON fact_transactions(customer_id);
CREATE INDEX IF NOT EXISTS idx_fact_product ON fact_transactions(product_id);
CREATE INDEX IF NOT EXISTS idx_fact_date ON fact_transactions(date_id);
CREATE INDEX IF NOT EXISTS idx_fact_invoice ON fact_transactions(invoice_no);
CREATE INDEX IF NOT EXISTS idx_customers_country ON dim_customers(country);
`

const dropSchemaSQL = `
DROP TABLE IF EXISTS monthly_metrics CASCADE;
DROP TABLE IF EXISTS fact_transactions CASCADE;
DROP TABLE IF EXISTS dim_products CASCADE;
DROP TABLE IF EXISTS dim_customers CASCADE;
DROP TABLE IF EXISTS dim_dates CASCADE;
`

// CreateSchema creates the star schema.
func CreateSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, createSchemaSQL)
	return err
}

// DropSchema drops the star schema.
func DropSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, dropSchemaSQL)
	return err
}
