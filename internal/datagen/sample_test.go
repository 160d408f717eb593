package datagen

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
)

func TestSampleWriterShape(t *testing.T) {
	var buf bytes.Buffer
	w := NewSampleWriter(42)
	if err := w.WriteCSV(&buf, 200); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := csv.NewReader(&buf)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 201 {
		t.Fatalf("expected header plus 200 rows, got %d", len(rows))
	}

	header := strings.Join(rows[0], ",")
	want := "InvoiceNo,StockCode,Description,Quantity,InvoiceDate,UnitPrice,CustomerID,Country"
	if header != want {
		t.Errorf("expected header %q, got %q", want, header)
	}

	for i, row := range rows[1:] {
		if len(row) != 8 {
			t.Fatalf("row %d: expected 8 fields, got %d", i+1, len(row))
		}
	}
}

func TestSampleWriterDeterministic(t *testing.T) {
	var a, b bytes.Buffer

	if err := NewSampleWriter(7).WriteCSV(&a, 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := NewSampleWriter(7).WriteCSV(&b, 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("expected identical output for identical seeds")
	}

	var c bytes.Buffer
	if err := NewSampleWriter(8).WriteCSV(&c, 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bytes.Equal(a.Bytes(), c.Bytes()) {
		t.Error("expected different output for different seeds")
	}
}

func TestSampleWriterMostRowsValid(t *testing.T) {
	var buf bytes.Buffer
	if err := NewSampleWriter(42).WriteCSV(&buf, 500); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := csv.NewReader(&buf)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dirty := 0
	for _, row := range rows[1:] {
		if row[6] == "" || row[3] == "0" ||
			strings.HasPrefix(row[0], "C") || row[4] == "not a date" {
			dirty++
		}
	}

	// Roughly 2% of rows are corrupted; anything above 10% means the
	// generator is broken.
	if dirty > len(rows)/10 {
		t.Errorf("too many dirty rows: %d of %d", dirty, len(rows)-1)
	}
	if dirty == len(rows)-1 {
		t.Error("expected at least some clean rows")
	}
}
