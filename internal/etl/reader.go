package etl

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Source column names, as exported by the transactional system.
var requiredColumns = []string{
	"InvoiceNo", "StockCode", "Description", "Quantity",
	"InvoiceDate", "UnitPrice", "CustomerID", "Country",
}

// Reader streams raw records from a transaction CSV export. The header row
// is mapped by name, so column order does not matter and extra columns are
// ignored.
type Reader struct {
	csv  *csv.Reader
	cols map[string]int
	line int
}

// NewReader wraps a CSV stream, consuming and validating the header row.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}

	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("missing columns: %s", strings.Join(missing, ", ")),
		}
	}

	return &Reader{csv: cr, cols: cols, line: 1}, nil
}

// Next returns the next raw record, or io.EOF at end of input.
func (r *Reader) Next() (RawRecord, error) {
	row, err := r.csv.Read()
	if err != nil {
		if err == io.EOF {
			return RawRecord{}, io.EOF
		}
		return RawRecord{}, fmt.Errorf("reading csv row: %w", err)
	}
	r.line++

	cell := func(name string) string {
		idx := r.cols[name]
		if idx >= len(row) {
			return ""
		}
		return row[idx]
	}

	return RawRecord{
		Line:        r.line,
		InvoiceNo:   cell("InvoiceNo"),
		StockCode:   cell("StockCode"),
		Description: cell("Description"),
		Quantity:    cell("Quantity"),
		InvoiceDate: cell("InvoiceDate"),
		UnitPrice:   cell("UnitPrice"),
		CustomerID:  cell("CustomerID"),
		Country:     cell("Country"),
	}, nil
}
