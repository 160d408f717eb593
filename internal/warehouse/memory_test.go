package warehouse

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dateRowsFor(days ...time.Time) []DateRow {
	rows := make([]DateRow, 0, len(days))
	for _, d := range days {
		rows = append(rows, DateRow{
			FullDate: d,
			Year:     d.Year(),
			Month:    int(d.Month()),
		})
	}
	return rows
}

// seedStore populates dimensions for one customer, one product, one date and
// returns the resolved surrogate keys.
func seedStore(t *testing.T, s *MemStore) (dateID int32, productID int32) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.EnsureDates(ctx, dateRowsFor(day(2023, 3, 1))))
	require.NoError(t, s.UpsertProducts(ctx, []ProductRow{{
		StockCode:   "X",
		Description: "WIDGET",
		Category:    "X",
		UnitPrice:   decimal.RequireFromString("10.00"),
	}}))
	require.NoError(t, s.UpsertCustomers(ctx, []CustomerRow{{
		CustomerID:        1,
		Country:           "United Kingdom",
		FirstPurchaseDate: day(2023, 3, 1),
		LastPurchaseDate:  day(2023, 3, 1),
	}}))

	dates, err := s.DateKeys(ctx, []time.Time{day(2023, 3, 1)})
	require.NoError(t, err)
	products, err := s.ProductKeys(ctx, []string{"X"})
	require.NoError(t, err)

	return dates[day(2023, 3, 1)], products["X"]
}

func TestEnsureDatesIdempotent(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	rows := dateRowsFor(day(2023, 3, 1), day(2023, 3, 2))
	require.NoError(t, s.EnsureDates(ctx, rows))

	keys, err := s.DateKeys(ctx, []time.Time{day(2023, 3, 1), day(2023, 3, 2)})
	require.NoError(t, err)
	require.Len(t, keys, 2)

	// A second pass must not reassign keys.
	require.NoError(t, s.EnsureDates(ctx, rows))
	again, err := s.DateKeys(ctx, []time.Time{day(2023, 3, 1), day(2023, 3, 2)})
	require.NoError(t, err)
	assert.Equal(t, keys, again)
}

func TestUpsertProductsPriceLastWriteWins(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.UpsertProducts(ctx, []ProductRow{{
		StockCode:   "X",
		Description: "WIDGET",
		Category:    "X",
		UnitPrice:   decimal.RequireFromString("10.00"),
	}}))
	require.NoError(t, s.UpsertProducts(ctx, []ProductRow{{
		StockCode:   "X",
		Description: "SOMETHING ELSE",
		Category:    "OTHER",
		UnitPrice:   decimal.RequireFromString("12.50"),
	}}))

	p, ok := s.Product("X")
	require.True(t, ok)
	assert.Equal(t, "WIDGET", p.Description, "description sticks at first sight")
	assert.Equal(t, "X", p.Category, "category sticks at first sight")
	assert.True(t, p.UnitPrice.Equal(decimal.RequireFromString("12.50")),
		"expected updated price 12.50, got %s", p.UnitPrice)
}

func TestUpsertCustomersExtendsSpan(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.UpsertCustomers(ctx, []CustomerRow{{
		CustomerID:        1,
		Country:           "United Kingdom",
		FirstPurchaseDate: day(2023, 3, 10),
		LastPurchaseDate:  day(2023, 3, 10),
	}}))
	require.NoError(t, s.UpsertCustomers(ctx, []CustomerRow{{
		CustomerID:        1,
		Country:           "France",
		FirstPurchaseDate: day(2023, 3, 1),
		LastPurchaseDate:  day(2023, 3, 20),
	}}))

	c, err := s.Customer(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "United Kingdom", c.Country, "country sticks at first sight")
	assert.Equal(t, day(2023, 3, 1), c.FirstPurchaseDate)
	assert.Equal(t, day(2023, 3, 20), c.LastPurchaseDate)
	assert.Equal(t, int64(0), c.TotalOrders, "upsert must not touch aggregates")
	assert.True(t, c.LifetimeValue.IsZero())
}

func TestCustomerNotFound(t *testing.T) {
	s := NewMemStore()
	_, err := s.Customer(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendFactsRecomputesAmount(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	dateID, productID := seedStore(t, s)

	n, err := s.AppendFacts(ctx, []FactRow{{
		InvoiceNo:   "A1",
		CustomerID:  1,
		ProductID:   productID,
		DateID:      dateID,
		InvoiceDate: day(2023, 3, 1),
		Quantity:    3,
		UnitPrice:   decimal.RequireFromString("2.50"),
		TotalAmount: decimal.RequireFromString("999.99"),
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	facts := s.Facts()
	require.Len(t, facts, 1)
	assert.True(t, facts[0].TotalAmount.Equal(decimal.RequireFromString("7.50")),
		"expected recomputed amount 7.50, got %s", facts[0].TotalAmount)
}

func TestAppendFactsReferentialChecks(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	dateID, productID := seedStore(t, s)

	base := FactRow{
		InvoiceNo:   "A1",
		CustomerID:  1,
		ProductID:   productID,
		DateID:      dateID,
		InvoiceDate: day(2023, 3, 1),
		Quantity:    1,
		UnitPrice:   decimal.RequireFromString("1.00"),
	}

	unknownCustomer := base
	unknownCustomer.CustomerID = 99
	_, err := s.AppendFacts(ctx, []FactRow{unknownCustomer})
	assert.Error(t, err)

	unknownProduct := base
	unknownProduct.ProductID = 99
	_, err = s.AppendFacts(ctx, []FactRow{unknownProduct})
	assert.Error(t, err)

	unknownDate := base
	unknownDate.DateID = 99
	_, err = s.AppendFacts(ctx, []FactRow{unknownDate})
	assert.Error(t, err)

	zeroQuantity := base
	zeroQuantity.Quantity = 0
	_, err = s.AppendFacts(ctx, []FactRow{zeroQuantity})
	assert.Error(t, err)
}

func TestRefreshMonthlyMetricsIdempotent(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	dateID, productID := seedStore(t, s)

	_, err := s.AppendFacts(ctx, []FactRow{
		{
			InvoiceNo: "A1", CustomerID: 1, ProductID: productID, DateID: dateID,
			InvoiceDate: day(2023, 3, 1), Quantity: 2,
			UnitPrice: decimal.RequireFromString("10.00"),
		},
		{
			InvoiceNo: "A2", CustomerID: 1, ProductID: productID, DateID: dateID,
			InvoiceDate: day(2023, 3, 1), Quantity: 1,
			UnitPrice: decimal.RequireFromString("10.00"),
		},
	})
	require.NoError(t, err)

	require.NoError(t, s.RefreshMonthlyMetrics(ctx))
	first, err := s.MonthlyMetrics(ctx)
	require.NoError(t, err)

	require.NoError(t, s.RefreshMonthlyMetrics(ctx))
	second, err := s.MonthlyMetrics(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second, "refresh without new loads must reproduce the rollup")

	require.Len(t, first, 1)
	assert.Equal(t, int64(2), first[0].TotalOrders)
	assert.Equal(t, int64(2), first[0].TotalLineItems)
	assert.Equal(t, int64(3), first[0].TotalQuantity)
	assert.True(t, first[0].TotalRevenue.Equal(decimal.RequireFromString("30.00")))
	assert.True(t, first[0].AvgTransactionValue.Equal(decimal.RequireFromString("15.00")))
}

func TestCheckConsistencyDetectsCorruption(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	dateID, productID := seedStore(t, s)

	_, err := s.AppendFacts(ctx, []FactRow{{
		InvoiceNo: "A1", CustomerID: 1, ProductID: productID, DateID: dateID,
		InvoiceDate: day(2023, 3, 1), Quantity: 2,
		UnitPrice: decimal.RequireFromString("10.00"),
	}})
	require.NoError(t, err)
	require.NoError(t, s.FinalizeCustomerAggregates(ctx, []int64{1}))

	report, err := s.CheckConsistency(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.AmountMismatches)
	assert.Equal(t, int64(0), report.LifetimeValueMismatches)
	require.NoError(t, report.Err())

	facts := s.Facts()
	require.Len(t, facts, 1)
	s.CorruptFactAmount(facts[0].TransactionID, decimal.RequireFromString("999.99"))

	report, err = s.CheckConsistency(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.AmountMismatches)
	assert.Equal(t, int64(1), report.LifetimeValueMismatches,
		"corrupted amount also breaks the stored lifetime value")

	var cerr *ConsistencyError
	require.ErrorAs(t, report.Err(), &cerr)
}

func TestFinalizeCustomerAggregates(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	dateID, productID := seedStore(t, s)

	_, err := s.AppendFacts(ctx, []FactRow{
		{
			InvoiceNo: "A1", CustomerID: 1, ProductID: productID, DateID: dateID,
			InvoiceDate: day(2023, 3, 1), Quantity: 1,
			UnitPrice: decimal.RequireFromString("10.00"),
		},
		{
			InvoiceNo: "A1", CustomerID: 1, ProductID: productID, DateID: dateID,
			InvoiceDate: day(2023, 3, 1), Quantity: 2,
			UnitPrice: decimal.RequireFromString("5.00"),
		},
	})
	require.NoError(t, err)
	require.NoError(t, s.FinalizeCustomerAggregates(ctx, []int64{1}))

	c, err := s.Customer(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.TotalOrders, "two line items on one invoice are one order")
	assert.True(t, c.LifetimeValue.Equal(decimal.RequireFromString("20.00")),
		"expected lifetime value 20.00, got %s", c.LifetimeValue)

	// Finalizing again is a no-op.
	require.NoError(t, s.FinalizeCustomerAggregates(ctx, []int64{1}))
	again, err := s.Customer(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, c, again)
}
