package datagen

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"
)

// Countries weighted roughly like a UK-based online retailer's order book.
var sampleCountries = []string{
	"United Kingdom", "United Kingdom", "United Kingdom", "United Kingdom",
	"United Kingdom", "United Kingdom", "Germany", "France", "Netherlands",
	"Ireland", "Spain", "Belgium", "Switzerland", "Portugal", "Australia",
}

var sampleHeader = []string{
	"InvoiceNo", "StockCode", "Description", "Quantity",
	"InvoiceDate", "UnitPrice", "CustomerID", "Country",
}

type sampleProduct struct {
	stockCode   string
	description string
	unitPrice   float64
}

type sampleCustomer struct {
	id      int
	country string
}

// SampleWriter generates synthetic raw transaction CSV exports in the shape
// the loader expects: repeat customers, a stable product catalog, a few line
// items per invoice, and a sprinkling of dirty rows so the validation path
// has something to reject.
type SampleWriter struct {
	faker *Faker
}

// NewSampleWriter creates a sample writer. A non-zero seed makes the output
// reproducible.
func NewSampleWriter(seed uint64) *SampleWriter {
	if seed == 0 {
		return &SampleWriter{faker: NewFaker()}
	}
	return &SampleWriter{faker: NewFakerWithSeed(seed)}
}

// WriteCSV writes approximately the requested number of line items.
func (s *SampleWriter) WriteCSV(w io.Writer, rows int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(sampleHeader); err != nil {
		return fmt.Errorf("writing sample header: %w", err)
	}

	products := s.catalog(max(20, rows/50))
	customers := s.customers(max(10, rows/25))

	invoiceNo := 536365
	cursor := time.Date(2023, 1, 4, 8, 0, 0, 0, time.UTC)

	written := 0
	for written < rows {
		invoiceNo++
		cursor = cursor.Add(time.Duration(s.faker.Number(5, 180)) * time.Minute)
		// Trading day ends at 20:00; roll over to the next morning.
		if cursor.Hour() >= 20 {
			cursor = time.Date(cursor.Year(), cursor.Month(), cursor.Day(),
				8, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
		}

		customer := customers[s.faker.Number(0, len(customers)-1)]
		items := s.faker.Number(1, 5)

		for i := 0; i < items && written < rows; i++ {
			product := products[s.faker.Number(0, len(products)-1)]
			record := []string{
				fmt.Sprintf("%d", invoiceNo),
				product.stockCode,
				product.description,
				fmt.Sprintf("%d", s.faker.Number(1, 48)),
				cursor.Format("2006-01-02 15:04"),
				fmt.Sprintf("%.2f", product.unitPrice),
				fmt.Sprintf("%d", customer.id),
				customer.country,
			}
			s.dirty(record)

			if err := cw.Write(record); err != nil {
				return fmt.Errorf("writing sample row: %w", err)
			}
			written++
		}
	}

	cw.Flush()
	return cw.Error()
}

func (s *SampleWriter) catalog(size int) []sampleProduct {
	products := make([]sampleProduct, 0, size)
	for i := 0; i < size; i++ {
		code := fmt.Sprintf("%d", 10000+i*7)
		// Variant suffix letter for roughly a third of the catalog, the
		// way colour variants share a numeric family in retail exports.
		if s.faker.Number(0, 2) == 0 {
			code += strings.ToUpper(s.faker.Letter())
		}
		products = append(products, sampleProduct{
			stockCode:   code,
			description: strings.ToUpper(s.faker.ProductName()),
			unitPrice:   s.faker.Price(0.49, 95),
		})
	}
	return products
}

func (s *SampleWriter) customers(size int) []sampleCustomer {
	customers := make([]sampleCustomer, 0, size)
	for i := 0; i < size; i++ {
		customers = append(customers, sampleCustomer{
			id:      12000 + i*3,
			country: s.faker.Pick(sampleCountries),
		})
	}
	return customers
}

// dirty corrupts roughly 2% of rows with the defects the loader is expected
// to reject: missing customers, zero quantities, cancellations, bad dates.
func (s *SampleWriter) dirty(record []string) {
	if s.faker.Number(1, 100) > 2 {
		return
	}
	switch s.faker.Number(0, 3) {
	case 0:
		record[6] = "" // CustomerID
	case 1:
		record[3] = "0" // Quantity
	case 2:
		record[0] = "C" + record[0] // cancelled invoice
	case 3:
		record[4] = "not a date"
	}
}
