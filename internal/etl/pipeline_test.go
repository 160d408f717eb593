package etl

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopmetrics/warehousectl/internal/warehouse"
)

// sliceSource yields raw records from a slice.
type sliceSource struct {
	records []RawRecord
	pos     int
}

func (s *sliceSource) Next() (RawRecord, error) {
	if s.pos >= len(s.records) {
		return RawRecord{}, io.EOF
	}
	r := s.records[s.pos]
	s.pos++
	return r, nil
}

func raw(line int, invoice, code, desc, qty, date, price, customer, country string) RawRecord {
	return RawRecord{
		Line: line, InvoiceNo: invoice, StockCode: code, Description: desc,
		Quantity: qty, InvoiceDate: date, UnitPrice: price,
		CustomerID: customer, Country: country,
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	store := warehouse.NewMemStore()
	p := NewPipeline(store, DefaultConfig())

	src := &sliceSource{records: []RawRecord{
		raw(2, "A1", "X", "widget", "2", "2023-03-01 10:00", "10.00", "1", "United Kingdom"),
		raw(3, "A2", "X", "widget", "1", "2023-03-05 11:00", "10.00", "1", "United Kingdom"),
	}}

	result, err := p.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.FactsInserted)
	assert.Equal(t, int64(0), result.ReferentialSkips)
	assert.Equal(t, int64(2), result.Report.Accepted)
	assert.Equal(t, int64(0), result.Report.Rejected())

	require.NoError(t, store.RefreshMonthlyMetrics(context.Background()))

	metrics, err := store.MonthlyMetrics(context.Background())
	require.NoError(t, err)
	require.Len(t, metrics, 1)

	m := metrics[0]
	assert.Equal(t, 2023, m.Year)
	assert.Equal(t, 3, m.Month)
	assert.Equal(t, int64(1), m.UniqueCustomers)
	assert.Equal(t, int64(2), m.TotalOrders)
	assert.Equal(t, int64(2), m.TotalLineItems)
	assert.Equal(t, int64(3), m.TotalQuantity)
	assert.True(t, m.TotalRevenue.Equal(decimal.RequireFromString("30.00")),
		"expected revenue 30.00, got %s", m.TotalRevenue)
	assert.True(t, m.AvgTransactionValue.Equal(decimal.RequireFromString("15.00")),
		"expected avg 15.00, got %s", m.AvgTransactionValue)

	customer, err := store.Customer(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), customer.TotalOrders)
	assert.True(t, customer.LifetimeValue.Equal(decimal.RequireFromString("30.00")),
		"expected lifetime value 30.00, got %s", customer.LifetimeValue)
	assert.Equal(t, time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC), customer.FirstPurchaseDate)
	assert.Equal(t, time.Date(2023, 3, 5, 0, 0, 0, 0, time.UTC), customer.LastPurchaseDate)
	assert.Equal(t, "United Kingdom", customer.Country)
}

func TestPipelineRejectsWithoutTouchingAggregates(t *testing.T) {
	store := warehouse.NewMemStore()
	p := NewPipeline(store, DefaultConfig())

	src := &sliceSource{records: []RawRecord{
		raw(2, "A1", "X", "widget", "2", "2023-03-01 10:00", "10.00", "1", "United Kingdom"),
		raw(3, "A2", "X", "widget", "0", "2023-03-05 11:00", "10.00", "1", "United Kingdom"),
	}}

	result, err := p.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.FactsInserted)
	require.Equal(t, int64(1), result.Report.Rejected())
	assert.Equal(t, ReasonNonPositiveQuantity, result.Report.Rejections[0].Reason)

	customer, err := store.Customer(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), customer.TotalOrders)
	assert.True(t, customer.LifetimeValue.Equal(decimal.RequireFromString("20.00")),
		"expected lifetime value 20.00, got %s", customer.LifetimeValue)
	assert.Equal(t, time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC), customer.LastPurchaseDate,
		"rejected row must not extend the purchase span")
}

func TestPipelineRejectRatioAborts(t *testing.T) {
	store := warehouse.NewMemStore()
	p := NewPipeline(store, Config{MaxRejectRatio: 0.5, BatchSize: 100})

	src := &sliceSource{records: []RawRecord{
		raw(2, "A1", "X", "widget", "2", "2023-03-01 10:00", "10.00", "1", "United Kingdom"),
		raw(3, "C99", "X", "widget", "1", "2023-03-02 10:00", "10.00", "1", "United Kingdom"),
		raw(4, "", "X", "widget", "1", "2023-03-03 10:00", "10.00", "1", "United Kingdom"),
	}}

	_, err := p.Run(context.Background(), src)
	require.ErrorIs(t, err, ErrRejectRatioExceeded)

	// Nothing was loaded.
	_, err = store.Customer(context.Background(), 1)
	assert.ErrorIs(t, err, warehouse.ErrNotFound)
}

func TestPipelineDeduplicates(t *testing.T) {
	store := warehouse.NewMemStore()
	p := NewPipeline(store, DefaultConfig())

	rec := raw(2, "A1", "X", "widget", "2", "2023-03-01 10:00", "10.00", "1", "United Kingdom")
	dup := rec
	dup.Line = 3

	result, err := p.Run(context.Background(), &sliceSource{records: []RawRecord{rec, dup}})
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.Report.Total)
	assert.Equal(t, int64(1), result.Report.Duplicates)
	assert.Equal(t, int64(1), result.FactsInserted)
}

func TestPipelinePriceLastWriteWins(t *testing.T) {
	store := warehouse.NewMemStore()
	p := NewPipeline(store, DefaultConfig())

	src := &sliceSource{records: []RawRecord{
		raw(2, "A1", "X", "widget", "1", "2023-03-01 10:00", "10.00", "1", "United Kingdom"),
		raw(3, "A2", "X", "widget", "1", "2023-03-02 10:00", "12.50", "1", "United Kingdom"),
	}}

	_, err := p.Run(context.Background(), src)
	require.NoError(t, err)

	product, ok := store.Product("X")
	require.True(t, ok)
	assert.True(t, product.UnitPrice.Equal(decimal.RequireFromString("12.50")),
		"expected last-seen price 12.50, got %s", product.UnitPrice)
	assert.Equal(t, "WIDGET", product.Description)

	// Each fact keeps its transaction-time price.
	facts := store.Facts()
	require.Len(t, facts, 2)
	assert.True(t, facts[0].TotalAmount.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, facts[1].TotalAmount.Equal(decimal.RequireFromString("12.50")))
}

func TestPipelineCancelledInvoicesFiltered(t *testing.T) {
	store := warehouse.NewMemStore()
	p := NewPipeline(store, DefaultConfig())

	src := &sliceSource{records: []RawRecord{
		raw(2, "A1", "X", "widget", "2", "2023-03-01 10:00", "10.00", "1", "United Kingdom"),
		raw(3, "CA1", "X", "widget", "2", "2023-03-01 10:00", "10.00", "1", "United Kingdom"),
		raw(4, "A2", "Y", "gadget", "1", "2023-03-02 10:00", "5.00", "2", "France"),
	}}

	result, err := p.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.FactsInserted)
	require.Equal(t, int64(1), result.Report.Rejected())
	assert.Equal(t, ReasonCancelledInvoice, result.Report.Rejections[0].Reason)
}

func TestPipelineEmptyInput(t *testing.T) {
	store := warehouse.NewMemStore()
	p := NewPipeline(store, DefaultConfig())

	result, err := p.Run(context.Background(), &sliceSource{})
	require.NoError(t, err)

	assert.Equal(t, int64(0), result.Report.Total)
	assert.Equal(t, int64(0), result.FactsInserted)
}

func TestPipelineSmallBatches(t *testing.T) {
	store := warehouse.NewMemStore()
	p := NewPipeline(store, Config{MaxRejectRatio: 0.5, BatchSize: 1})

	src := &sliceSource{records: []RawRecord{
		raw(2, "A1", "X", "widget", "1", "2023-03-01 10:00", "10.00", "1", "United Kingdom"),
		raw(3, "A1", "Y", "gadget", "2", "2023-03-01 10:05", "5.00", "1", "United Kingdom"),
		raw(4, "A2", "X", "widget", "3", "2023-03-02 10:00", "10.00", "2", "France"),
	}}

	result, err := p.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.FactsInserted)

	customer, err := store.Customer(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), customer.TotalOrders, "two line items on one invoice are one order")
	assert.True(t, customer.LifetimeValue.Equal(decimal.RequireFromString("20.00")),
		"expected lifetime value 20.00, got %s", customer.LifetimeValue)
}
