package warehouse

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemStore is an in-memory Store used as a test double. It mirrors the
// PostgreSQL store's semantics, including total_amount recomputation on
// write and referential checks on fact append.
type MemStore struct {
	mu sync.RWMutex

	dates      map[time.Time]*DateRow
	datesByID  map[int32]*DateRow
	nextDateID int32

	products      map[string]*ProductRow
	nextProductID int32

	customers map[int64]*CustomerRow

	facts      []FactRow
	nextFactID int64

	metrics []MonthlyMetricsRow
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		dates:     make(map[time.Time]*DateRow),
		datesByID: make(map[int32]*DateRow),
		products:  make(map[string]*ProductRow),
		customers: make(map[int64]*CustomerRow),
	}
}

// EnsureDates inserts date rows, skipping dates already present.
func (s *MemStore) EnsureDates(_ context.Context, rows []DateRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		key := Day(r.FullDate)
		if _, ok := s.dates[key]; ok {
			continue
		}
		s.nextDateID++
		row := r
		row.DateID = s.nextDateID
		row.FullDate = key
		s.dates[key] = &row
		s.datesByID[row.DateID] = &row
	}
	return nil
}

// DateKeys resolves calendar dates to surrogate keys.
func (s *MemStore) DateKeys(_ context.Context, dates []time.Time) (map[time.Time]int32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make(map[time.Time]int32, len(dates))
	for _, d := range dates {
		if row, ok := s.dates[Day(d)]; ok {
			keys[Day(d)] = row.DateID
		}
	}
	return keys, nil
}

// UpsertProducts creates or updates product rows keyed by stock code.
func (s *MemStore) UpsertProducts(_ context.Context, rows []ProductRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		if existing, ok := s.products[r.StockCode]; ok {
			existing.UnitPrice = r.UnitPrice
			continue
		}
		s.nextProductID++
		row := r
		row.ProductID = s.nextProductID
		s.products[r.StockCode] = &row
	}
	return nil
}

// ProductKeys resolves stock codes to surrogate keys.
func (s *MemStore) ProductKeys(_ context.Context, stockCodes []string) (map[string]int32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make(map[string]int32, len(stockCodes))
	for _, code := range stockCodes {
		if row, ok := s.products[code]; ok {
			keys[code] = row.ProductID
		}
	}
	return keys, nil
}

// UpsertCustomers creates or updates customer rows.
func (s *MemStore) UpsertCustomers(_ context.Context, rows []CustomerRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		existing, ok := s.customers[r.CustomerID]
		if !ok {
			row := CustomerRow{
				CustomerID:        r.CustomerID,
				Country:           r.Country,
				FirstPurchaseDate: Day(r.FirstPurchaseDate),
				LastPurchaseDate:  Day(r.LastPurchaseDate),
				LifetimeValue:     decimal.Zero,
			}
			s.customers[r.CustomerID] = &row
			continue
		}
		if d := Day(r.FirstPurchaseDate); d.Before(existing.FirstPurchaseDate) {
			existing.FirstPurchaseDate = d
		}
		if d := Day(r.LastPurchaseDate); d.After(existing.LastPurchaseDate) {
			existing.LastPurchaseDate = d
		}
	}
	return nil
}

// AppendFacts appends fact rows, recomputing total_amount and enforcing
// referential integrity against the dimensions.
func (s *MemStore) AppendFacts(_ context.Context, rows []FactRow) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var productIDs map[int32]bool
	if len(rows) > 0 {
		productIDs = make(map[int32]bool, len(s.products))
		for _, p := range s.products {
			productIDs[p.ProductID] = true
		}
	}

	var n int64
	for _, r := range rows {
		if _, ok := s.customers[r.CustomerID]; !ok {
			return n, fmt.Errorf("appending facts: unknown customer %d", r.CustomerID)
		}
		if !productIDs[r.ProductID] {
			return n, fmt.Errorf("appending facts: unknown product key %d", r.ProductID)
		}
		if _, ok := s.datesByID[r.DateID]; !ok {
			return n, fmt.Errorf("appending facts: unknown date key %d", r.DateID)
		}
		if r.Quantity <= 0 {
			return n, fmt.Errorf("appending facts: non-positive quantity %d", r.Quantity)
		}

		s.nextFactID++
		row := r
		row.TransactionID = s.nextFactID
		row.TotalAmount = Amount(r.Quantity, r.UnitPrice)
		s.facts = append(s.facts, row)
		n++
	}
	return n, nil
}

// FinalizeCustomerAggregates recomputes per-customer aggregates from facts.
func (s *MemStore) FinalizeCustomerAggregates(_ context.Context, customerIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[int64]bool, len(customerIDs))
	for _, id := range customerIDs {
		wanted[id] = true
	}

	invoices := make(map[int64]map[string]bool)
	values := make(map[int64]decimal.Decimal)
	for _, f := range s.facts {
		if !wanted[f.CustomerID] {
			continue
		}
		if invoices[f.CustomerID] == nil {
			invoices[f.CustomerID] = make(map[string]bool)
		}
		invoices[f.CustomerID][f.InvoiceNo] = true
		values[f.CustomerID] = values[f.CustomerID].Add(f.TotalAmount)
	}

	for id := range wanted {
		c, ok := s.customers[id]
		if !ok {
			return fmt.Errorf("finalizing aggregates: unknown customer %d", id)
		}
		c.TotalOrders = int64(len(invoices[id]))
		c.LifetimeValue = values[id]
	}
	return nil
}

// RefreshMonthlyMetrics rebuilds the rollup and swaps it in atomically.
func (s *MemStore) RefreshMonthlyMetrics(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	type bucket struct {
		customers map[int64]bool
		invoices  map[string]bool
		lineItems int64
		revenue   decimal.Decimal
		quantity  int64
	}
	type key struct{ year, month int }

	buckets := make(map[key]*bucket)
	for _, f := range s.facts {
		d, ok := s.datesByID[f.DateID]
		if !ok {
			return fmt.Errorf("refreshing metrics: fact %d references unknown date key %d",
				f.TransactionID, f.DateID)
		}
		k := key{d.Year, d.Month}
		b := buckets[k]
		if b == nil {
			b = &bucket{
				customers: make(map[int64]bool),
				invoices:  make(map[string]bool),
				revenue:   decimal.Zero,
			}
			buckets[k] = b
		}
		b.customers[f.CustomerID] = true
		b.invoices[f.InvoiceNo] = true
		b.lineItems++
		b.revenue = b.revenue.Add(f.TotalAmount)
		b.quantity += f.Quantity
	}

	next := make([]MonthlyMetricsRow, 0, len(buckets))
	for k, b := range buckets {
		next = append(next, MonthlyMetricsRow{
			Year:                k.year,
			Month:               k.month,
			UniqueCustomers:     int64(len(b.customers)),
			TotalOrders:         int64(len(b.invoices)),
			TotalLineItems:      b.lineItems,
			TotalRevenue:        b.revenue,
			AvgTransactionValue: b.revenue.Div(decimal.NewFromInt(b.lineItems)).Round(2),
			TotalQuantity:       b.quantity,
		})
	}
	sort.Slice(next, func(i, j int) bool {
		if next[i].Year != next[j].Year {
			return next[i].Year < next[j].Year
		}
		return next[i].Month < next[j].Month
	})

	s.metrics = next
	return nil
}

// MonthlyMetrics returns a copy of the rollup ordered by (year, month).
func (s *MemStore) MonthlyMetrics(_ context.Context) ([]MonthlyMetricsRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]MonthlyMetricsRow, len(s.metrics))
	copy(out, s.metrics)
	return out, nil
}

// Customer returns one customer dimension row.
func (s *MemStore) Customer(_ context.Context, id int64) (*CustomerRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	row := *c
	return &row, nil
}

// Product returns one product dimension row by stock code. Test helper not
// part of the Store interface.
func (s *MemStore) Product(stockCode string) (*ProductRow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[stockCode]
	if !ok {
		return nil, false
	}
	row := *p
	return &row, true
}

// Facts returns a copy of all fact rows. Test helper not part of the Store
// interface.
func (s *MemStore) Facts() []FactRow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]FactRow, len(s.facts))
	copy(out, s.facts)
	return out
}

// CorruptFactAmount overwrites a stored total_amount, bypassing the write
// path. Test helper for exercising consistency detection.
func (s *MemStore) CorruptFactAmount(transactionID int64, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.facts {
		if s.facts[i].TransactionID == transactionID {
			s.facts[i].TotalAmount = amount
			return
		}
	}
}

// CheckConsistency reconciles stored derived values against the fact rows.
func (s *MemStore) CheckConsistency(_ context.Context) (*ConsistencyReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := &ConsistencyReport{
		Facts:        int64(len(s.facts)),
		Customers:    int64(len(s.customers)),
		Products:     int64(len(s.products)),
		Dates:        int64(len(s.dates)),
		TotalRevenue: decimal.Zero,
	}

	values := make(map[int64]decimal.Decimal)
	for i, f := range s.facts {
		if !f.TotalAmount.Equal(Amount(f.Quantity, f.UnitPrice)) {
			r.AmountMismatches++
		}
		values[f.CustomerID] = values[f.CustomerID].Add(f.TotalAmount)
		r.TotalRevenue = r.TotalRevenue.Add(f.TotalAmount)
		if i == 0 || f.InvoiceDate.Before(r.FirstInvoice) {
			r.FirstInvoice = f.InvoiceDate
		}
		if i == 0 || f.InvoiceDate.After(r.LastInvoice) {
			r.LastInvoice = f.InvoiceDate
		}
	}

	for id, c := range s.customers {
		if v, ok := values[id]; ok && !c.LifetimeValue.Equal(v) {
			r.LifetimeValueMismatches++
		}
	}

	return r, nil
}
