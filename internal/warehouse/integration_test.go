//go:build integration
// +build integration

// Integration tests for the PostgreSQL-backed warehouse store.
// Run with: go test -tags=integration ./internal/warehouse/...
// Requires PostgreSQL to be available.
// Set WAREHOUSE_TEST_CONN environment variable to override connection string.

package warehouse_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopmetrics/warehousectl/internal/etl"
	"github.com/shopmetrics/warehousectl/internal/reports"
	"github.com/shopmetrics/warehousectl/internal/testutil"
	"github.com/shopmetrics/warehousectl/internal/warehouse"
)

type sliceSource struct {
	records []etl.RawRecord
	pos     int
}

func (s *sliceSource) Next() (etl.RawRecord, error) {
	if s.pos >= len(s.records) {
		return etl.RawRecord{}, io.EOF
	}
	r := s.records[s.pos]
	s.pos++
	return r, nil
}

func TestWarehouseIntegration(t *testing.T) {
	baseConnStr := testutil.SkipIfNoPostgres(t)

	connStr := testutil.CreateTestDB(t, baseConnStr, "warehouse")
	dbName := testutil.GetDBNameFromConnStr(connStr)
	cleanup := testutil.NewTestCleanup(t, baseConnStr, dbName)
	defer cleanup.Cleanup()

	pool := testutil.ConnectTestDB(t, connStr)
	cleanup.SetPool(pool)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	require.NoError(t, warehouse.CreateSchema(ctx, pool))

	store := warehouse.NewPGStore(pool)
	pipeline := etl.NewPipeline(store, etl.DefaultConfig())

	src := &sliceSource{records: []etl.RawRecord{
		{
			Line: 2, InvoiceNo: "A1", StockCode: "X", Description: "widget",
			Quantity: "2", InvoiceDate: "2023-03-01 10:00", UnitPrice: "10.00",
			CustomerID: "1", Country: "United Kingdom",
		},
		{
			Line: 3, InvoiceNo: "A2", StockCode: "X", Description: "widget",
			Quantity: "1", InvoiceDate: "2023-03-05 11:00", UnitPrice: "10.00",
			CustomerID: "1", Country: "United Kingdom",
		},
		{
			Line: 4, InvoiceNo: "A2", StockCode: "X", Description: "widget",
			Quantity: "0", InvoiceDate: "2023-03-05 11:00", UnitPrice: "10.00",
			CustomerID: "1", Country: "United Kingdom",
		},
	}}

	result, err := pipeline.Run(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.FactsInserted)
	assert.Equal(t, int64(1), result.Report.Rejected())

	// Customer aggregates are finalized from the fact table.
	customer, err := store.Customer(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), customer.TotalOrders)
	assert.True(t, customer.LifetimeValue.Equal(decimal.RequireFromString("30.00")),
		"expected lifetime value 30.00, got %s", customer.LifetimeValue)

	// Rollup refresh is idempotent.
	require.NoError(t, store.RefreshMonthlyMetrics(ctx))
	first, err := store.MonthlyMetrics(ctx)
	require.NoError(t, err)
	require.NoError(t, store.RefreshMonthlyMetrics(ctx))
	second, err := store.MonthlyMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.Len(t, first, 1)
	assert.Equal(t, 2023, first[0].Year)
	assert.Equal(t, 3, first[0].Month)
	assert.Equal(t, int64(1), first[0].UniqueCustomers)
	assert.Equal(t, int64(2), first[0].TotalOrders)
	assert.Equal(t, int64(3), first[0].TotalQuantity)
	assert.True(t, first[0].TotalRevenue.Equal(decimal.RequireFromString("30.00")))

	// A single product owns the whole revenue share.
	top, err := reports.TopProducts(ctx, pool, 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "X", top[0].StockCode)
	assert.True(t, top[0].PctOfTotalRev.Equal(decimal.RequireFromString("100.00")),
		"expected share 100.00, got %s", top[0].PctOfTotalRev)

	trend, err := reports.RevenueTrend(ctx, pool, nil, nil)
	require.NoError(t, err)
	require.Len(t, trend, 1)
	assert.Nil(t, trend[0].MoMPct, "first month has no prior month")
	assert.Nil(t, trend[0].YoYPct, "first year has no prior year")

	weekdays, err := reports.WeekdayProfile(ctx, pool)
	require.NoError(t, err)
	require.Len(t, weekdays, 2)
	assert.Equal(t, "Wednesday", weekdays[0].DayName)
	assert.Equal(t, "Sunday", weekdays[1].DayName)

	// Consistency check is clean after a normal load.
	report, err := store.CheckConsistency(ctx)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	assert.Equal(t, int64(2), report.Facts)
}

func TestSchemaRecreate(t *testing.T) {
	baseConnStr := testutil.SkipIfNoPostgres(t)

	connStr := testutil.CreateTestDB(t, baseConnStr, "schema")
	dbName := testutil.GetDBNameFromConnStr(connStr)
	cleanup := testutil.NewTestCleanup(t, baseConnStr, dbName)
	defer cleanup.Cleanup()

	pool := testutil.ConnectTestDB(t, connStr)
	cleanup.SetPool(pool)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	require.NoError(t, warehouse.CreateSchema(ctx, pool))
	require.NoError(t, warehouse.DropSchema(ctx, pool))
	require.NoError(t, warehouse.CreateSchema(ctx, pool))
}
