package etl

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Rejection reasons. The strings appear verbatim in the rejection report.
const (
	ReasonMissingInvoice      = "missing invoice no"
	ReasonCancelledInvoice    = "cancelled invoice"
	ReasonMissingCustomerID   = "missing customer id"
	ReasonMalformedCustomerID = "malformed customer id"
	ReasonMissingDescription  = "missing description"
	ReasonMalformedQuantity   = "unparseable quantity"
	ReasonNonPositiveQuantity = "non-positive quantity"
	ReasonQuantityOutlier     = "quantity above limit"
	ReasonMalformedPrice      = "unparseable unit price"
	ReasonNonPositivePrice    = "non-positive unit price"
	ReasonMalformedDate       = "unparseable date"
)

// maxQuantity filters order quantities that are almost certainly data entry
// errors in the source system.
const maxQuantity = 10000

// Timestamp layouts seen in raw exports, tried in order.
var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
}

// RawRecord is one unvalidated line item as read from the source file. All
// fields are raw strings; Clean performs the conversions.
type RawRecord struct {
	Line        int
	InvoiceNo   string
	StockCode   string
	Description string
	Quantity    string
	InvoiceDate string
	UnitPrice   string
	CustomerID  string
	Country     string
}

// dedupeKey identifies exact duplicate rows within a batch.
func (r RawRecord) dedupeKey() string {
	return strings.Join([]string{
		r.InvoiceNo, r.StockCode, r.Description, r.Quantity,
		r.InvoiceDate, r.UnitPrice, r.CustomerID, r.Country,
	}, "\x1f")
}

// Record is a validated, cleaned line item ready for loading.
type Record struct {
	InvoiceNo   string
	CustomerID  int64
	StockCode   string
	Description string
	Quantity    int64
	UnitPrice   decimal.Decimal
	InvoiceDate time.Time
	Country     string
}

// Day returns the record's invoice date truncated to the calendar day.
func (r Record) Day() time.Time {
	return time.Date(r.InvoiceDate.Year(), r.InvoiceDate.Month(), r.InvoiceDate.Day(),
		0, 0, 0, 0, time.UTC)
}

// Rejection is one skipped row with the reason it was skipped.
type Rejection struct {
	Line   int
	Reason string
	Raw    RawRecord
}

// Clean validates and converts a raw record. On failure it returns a
// Rejection; the row is skipped and the batch continues.
func (r RawRecord) Clean() (Record, *Rejection) {
	reject := func(reason string) (Record, *Rejection) {
		return Record{}, &Rejection{Line: r.Line, Reason: reason, Raw: r}
	}

	invoiceNo := strings.TrimSpace(r.InvoiceNo)
	if invoiceNo == "" {
		return reject(ReasonMissingInvoice)
	}
	// Invoice numbers starting with C mark cancellations in the source
	// system.
	if strings.HasPrefix(invoiceNo, "C") || strings.HasPrefix(invoiceNo, "c") {
		return reject(ReasonCancelledInvoice)
	}

	customerRaw := strings.TrimSpace(r.CustomerID)
	if customerRaw == "" {
		return reject(ReasonMissingCustomerID)
	}
	customerID, err := strconv.ParseInt(customerRaw, 10, 64)
	if err != nil || customerID <= 0 {
		return reject(ReasonMalformedCustomerID)
	}

	description := strings.ToUpper(strings.TrimSpace(r.Description))
	if description == "" {
		return reject(ReasonMissingDescription)
	}

	quantity, err := strconv.ParseInt(strings.TrimSpace(r.Quantity), 10, 64)
	if err != nil {
		return reject(ReasonMalformedQuantity)
	}
	if quantity <= 0 {
		return reject(ReasonNonPositiveQuantity)
	}
	if quantity > maxQuantity {
		return reject(ReasonQuantityOutlier)
	}

	unitPrice, err := decimal.NewFromString(strings.TrimSpace(r.UnitPrice))
	if err != nil {
		return reject(ReasonMalformedPrice)
	}
	if unitPrice.Sign() <= 0 {
		return reject(ReasonNonPositivePrice)
	}

	invoiceDate, ok := parseTimestamp(strings.TrimSpace(r.InvoiceDate))
	if !ok {
		return reject(ReasonMalformedDate)
	}

	return Record{
		InvoiceNo:   invoiceNo,
		CustomerID:  customerID,
		StockCode:   strings.TrimSpace(r.StockCode),
		Description: description,
		Quantity:    quantity,
		UnitPrice:   unitPrice.Round(2),
		InvoiceDate: invoiceDate,
		Country:     strings.TrimSpace(r.Country),
	}, nil
}

func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Category derives the product family from a stock code: the leading digit
// run groups variants (85123A and 85123B are the same design in different
// colours); codes without leading digits (POST, DOT) stand alone.
func Category(stockCode string) string {
	code := strings.TrimSpace(stockCode)
	for i, c := range code {
		if c < '0' || c > '9' {
			if i == 0 {
				return code
			}
			return code[:i]
		}
	}
	return code
}

// Report accumulates rejection details and batch counters for one load.
type Report struct {
	Total      int64
	Accepted   int64
	Duplicates int64
	Rejections []Rejection
}

// Rejected returns the number of rejected rows.
func (r *Report) Rejected() int64 {
	return int64(len(r.Rejections))
}

// RetentionRatio returns accepted / total rows seen.
func (r *Report) RetentionRatio() float64 {
	if r.Total == 0 {
		return 1
	}
	return float64(r.Accepted) / float64(r.Total)
}

// RejectRatio returns rejected / total rows seen.
func (r *Report) RejectRatio() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Rejected()) / float64(r.Total)
}

// WriteCSV writes the rejection report with one row per rejected record.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"line", "reason", "invoice_no", "stock_code", "description",
		"quantity", "invoice_date", "unit_price", "customer_id", "country",
	}); err != nil {
		return fmt.Errorf("writing rejection report header: %w", err)
	}

	for _, rej := range r.Rejections {
		raw := rej.Raw
		if err := cw.Write([]string{
			strconv.Itoa(rej.Line), rej.Reason, raw.InvoiceNo, raw.StockCode,
			raw.Description, raw.Quantity, raw.InvoiceDate, raw.UnitPrice,
			raw.CustomerID, raw.Country,
		}); err != nil {
			return fmt.Errorf("writing rejection report row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
