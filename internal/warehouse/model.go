// Package warehouse defines the star-schema model and the store handles
// that the ETL pipeline, the aggregator, and the report queries operate on.
package warehouse

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateRow is one row of the date dimension, keyed by the calendar date.
// Day-of-week is ISO numbered: 1=Monday .. 7=Sunday.
type DateRow struct {
	DateID     int32
	FullDate   time.Time
	Year       int
	Quarter    int
	Month      int
	MonthName  string
	Week       int
	DayOfMonth int
	DayOfWeek  int
	DayName    string
	IsWeekend  bool
}

// CustomerRow is one row of the customer dimension, keyed by the natural
// customer identifier. Country is fixed at first sight; purchase dates
// extend as new batches arrive; the aggregates are finalized from the fact
// table after each load.
type CustomerRow struct {
	CustomerID        int64
	Country           string
	FirstPurchaseDate time.Time
	LastPurchaseDate  time.Time
	TotalOrders       int64
	LifetimeValue     decimal.Decimal
}

// ProductRow is one row of the product dimension. StockCode is the natural
// key; ProductID is the surrogate assigned by the store. UnitPrice holds the
// most recently seen price; each fact row keeps its own transaction-time
// price.
type ProductRow struct {
	ProductID   int32
	StockCode   string
	Description string
	Category    string
	UnitPrice   decimal.Decimal
}

// FactRow is one transaction line item. TotalAmount always equals
// Quantity * UnitPrice; stores recompute it on every write.
type FactRow struct {
	TransactionID int64
	InvoiceNo     string
	CustomerID    int64
	ProductID     int32
	DateID        int32
	InvoiceDate   time.Time
	Quantity      int64
	UnitPrice     decimal.Decimal
	TotalAmount   decimal.Decimal
}

// MonthlyMetricsRow is the materialized monthly rollup, keyed (year, month).
// It is a cache over the fact table, rebuilt wholesale on refresh.
type MonthlyMetricsRow struct {
	Year                int
	Month               int
	UniqueCustomers     int64
	TotalOrders         int64
	TotalLineItems      int64
	TotalRevenue        decimal.Decimal
	AvgTransactionValue decimal.Decimal
	TotalQuantity       int64
}

// Amount computes the derived line total for a quantity and unit price.
func Amount(quantity int64, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(quantity))
}

// Day truncates a timestamp to its calendar date in UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
