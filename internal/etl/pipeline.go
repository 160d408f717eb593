// Package etl implements the two-pass batch pipeline that turns raw
// transaction exports into the star schema: validate and clean, upsert
// dimensions, append facts, then finalize the customer aggregates that
// depend on fact-derived amounts.
package etl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/shopmetrics/warehousectl/internal/datagen"
	"github.com/shopmetrics/warehousectl/internal/logging"
	"github.com/shopmetrics/warehousectl/internal/warehouse"
)

// RecordSource yields raw records until io.EOF. *Reader satisfies it; tests
// use in-memory slices.
type RecordSource interface {
	Next() (RawRecord, error)
}

// Config holds pipeline tuning knobs.
type Config struct {
	// MaxRejectRatio aborts the load when rejected/total exceeds it.
	MaxRejectRatio float64

	// BatchSize is the number of fact rows per append batch.
	BatchSize int
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		MaxRejectRatio: 0.5,
		BatchSize:      1000,
	}
}

// Result summarizes one completed load batch.
type Result struct {
	BatchID          uuid.UUID
	FactsInserted    int64
	ReferentialSkips int64
	Report           *Report
}

// Pipeline loads one batch of raw records into a warehouse store.
type Pipeline struct {
	store warehouse.Store
	cfg   Config
}

// NewPipeline creates a pipeline over the given store.
func NewPipeline(store warehouse.Store, cfg Config) *Pipeline {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.MaxRejectRatio <= 0 {
		cfg.MaxRejectRatio = DefaultConfig().MaxRejectRatio
	}
	return &Pipeline{store: store, cfg: cfg}
}

// Run executes the full load: validation, dimension pass, fact pass,
// aggregate finalization. Row-level failures are collected in the report
// and never abort the batch; crossing the reject-ratio threshold does.
func (p *Pipeline) Run(ctx context.Context, src RecordSource) (*Result, error) {
	result := &Result{
		BatchID: uuid.New(),
		Report:  &Report{},
	}
	report := result.Report

	logging.Info().
		Str("batch_id", result.BatchID.String()).
		Msg("Starting load batch")

	records, err := p.collect(src, report)
	if err != nil {
		return nil, err
	}

	if report.Total > 0 && report.RejectRatio() > p.cfg.MaxRejectRatio {
		return nil, fmt.Errorf(
			"%d of %d rows rejected (max ratio %.2f): %w",
			report.Rejected(), report.Total, p.cfg.MaxRejectRatio, ErrRejectRatioExceeded)
	}

	logging.Info().
		Int64("total", report.Total).
		Int64("accepted", report.Accepted).
		Int64("rejected", report.Rejected()).
		Int64("duplicates", report.Duplicates).
		Float64("retention", report.RetentionRatio()).
		Msg("Validation complete")

	if len(records) == 0 {
		return result, nil
	}

	// Pass 1: dimensions. Must fully complete before facts resolve keys
	// against them.
	if err := p.loadDimensions(ctx, records); err != nil {
		return nil, err
	}

	// Pass 2: facts, then the customer aggregates that depend on them.
	if err := p.loadFacts(ctx, records, result); err != nil {
		return nil, err
	}

	logging.Info().
		Str("batch_id", result.BatchID.String()).
		Int64("facts", result.FactsInserted).
		Int64("referential_skips", result.ReferentialSkips).
		Msg("Load batch complete")

	return result, nil
}

// collect drains the source, deduplicates, validates, and cleans.
func (p *Pipeline) collect(src RecordSource, report *Report) ([]Record, error) {
	var records []Record
	seen := make(map[string]struct{})

	for {
		raw, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading records: %w", err)
		}

		report.Total++

		key := raw.dedupeKey()
		if _, dup := seen[key]; dup {
			report.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		rec, rej := raw.Clean()
		if rej != nil {
			report.Rejections = append(report.Rejections, *rej)
			logging.Debug().
				Int("line", rej.Line).
				Str("reason", rej.Reason).
				Msg("Rejected record")
			continue
		}

		report.Accepted++
		records = append(records, rec)
	}

	return records, nil
}

// loadDimensions derives and upserts the three dimensions from the cleaned
// batch. Products take the last-seen price; customers keep their first-seen
// country and extend their purchase-date span; customer aggregates stay
// untouched here because lifetime value is only known once facts exist.
func (p *Pipeline) loadDimensions(ctx context.Context, records []Record) error {
	dates := make(map[time.Time]warehouse.DateRow)
	products := make(map[string]warehouse.ProductRow)
	customers := make(map[int64]warehouse.CustomerRow)

	for _, rec := range records {
		day := rec.Day()
		if _, ok := dates[day]; !ok {
			dates[day] = DateRowFor(day)
		}

		if existing, ok := products[rec.StockCode]; ok {
			existing.UnitPrice = rec.UnitPrice
			products[rec.StockCode] = existing
		} else {
			products[rec.StockCode] = warehouse.ProductRow{
				StockCode:   rec.StockCode,
				Description: rec.Description,
				Category:    Category(rec.StockCode),
				UnitPrice:   rec.UnitPrice,
			}
		}

		if existing, ok := customers[rec.CustomerID]; ok {
			if day.Before(existing.FirstPurchaseDate) {
				existing.FirstPurchaseDate = day
			}
			if day.After(existing.LastPurchaseDate) {
				existing.LastPurchaseDate = day
			}
			customers[rec.CustomerID] = existing
		} else {
			customers[rec.CustomerID] = warehouse.CustomerRow{
				CustomerID:        rec.CustomerID,
				Country:           rec.Country,
				FirstPurchaseDate: day,
				LastPurchaseDate:  day,
			}
		}
	}

	dateRows := make([]warehouse.DateRow, 0, len(dates))
	for _, row := range dates {
		dateRows = append(dateRows, row)
	}
	sort.Slice(dateRows, func(i, j int) bool {
		return dateRows[i].FullDate.Before(dateRows[j].FullDate)
	})
	if err := p.store.EnsureDates(ctx, dateRows); err != nil {
		return err
	}

	productRows := make([]warehouse.ProductRow, 0, len(products))
	for _, row := range products {
		productRows = append(productRows, row)
	}
	sort.Slice(productRows, func(i, j int) bool {
		return productRows[i].StockCode < productRows[j].StockCode
	})
	if err := p.store.UpsertProducts(ctx, productRows); err != nil {
		return err
	}

	customerRows := make([]warehouse.CustomerRow, 0, len(customers))
	for _, row := range customers {
		customerRows = append(customerRows, row)
	}
	sort.Slice(customerRows, func(i, j int) bool {
		return customerRows[i].CustomerID < customerRows[j].CustomerID
	})
	if err := p.store.UpsertCustomers(ctx, customerRows); err != nil {
		return err
	}

	logging.Info().
		Int("dates", len(dateRows)).
		Int("products", len(productRows)).
		Int("customers", len(customerRows)).
		Msg("Dimensions loaded")

	return nil
}

// loadFacts resolves surrogate keys, appends fact rows in batches, and then
// recomputes the touched customers' aggregates from the fact table.
func (p *Pipeline) loadFacts(ctx context.Context, records []Record, result *Result) error {
	days := make(map[time.Time]struct{})
	codes := make(map[string]struct{})
	for _, rec := range records {
		days[rec.Day()] = struct{}{}
		codes[rec.StockCode] = struct{}{}
	}

	dayList := make([]time.Time, 0, len(days))
	for d := range days {
		dayList = append(dayList, d)
	}
	dateKeys, err := p.store.DateKeys(ctx, dayList)
	if err != nil {
		return err
	}

	codeList := make([]string, 0, len(codes))
	for c := range codes {
		codeList = append(codeList, c)
	}
	productKeys, err := p.store.ProductKeys(ctx, codeList)
	if err != nil {
		return err
	}

	facts := make([]warehouse.FactRow, 0, len(records))
	customerIDs := make(map[int64]struct{})
	for _, rec := range records {
		productID, ok := productKeys[rec.StockCode]
		if !ok {
			result.ReferentialSkips++
			logging.Warn().
				Err(&ReferentialError{Dimension: "product", Key: rec.StockCode}).
				Msg("Skipping fact row")
			continue
		}
		dateID, ok := dateKeys[rec.Day()]
		if !ok {
			result.ReferentialSkips++
			logging.Warn().
				Err(&ReferentialError{Dimension: "date", Key: rec.Day().Format("2006-01-02")}).
				Msg("Skipping fact row")
			continue
		}

		facts = append(facts, warehouse.FactRow{
			InvoiceNo:   rec.InvoiceNo,
			CustomerID:  rec.CustomerID,
			ProductID:   productID,
			DateID:      dateID,
			InvoiceDate: rec.InvoiceDate,
			Quantity:    rec.Quantity,
			UnitPrice:   rec.UnitPrice,
			TotalAmount: warehouse.Amount(rec.Quantity, rec.UnitPrice),
		})
		customerIDs[rec.CustomerID] = struct{}{}
	}

	progress := datagen.NewProgressReporter("fact_transactions", int64(len(facts)), 100000)
	for start := 0; start < len(facts); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(facts))
		n, err := p.store.AppendFacts(ctx, facts[start:end])
		result.FactsInserted += n
		if err != nil {
			return err
		}
		progress.Update(n)
	}
	progress.Done()

	ids := make([]int64, 0, len(customerIDs))
	for id := range customerIDs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return p.store.FinalizeCustomerAggregates(ctx, ids)
}
