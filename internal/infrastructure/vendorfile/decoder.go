package vendorfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/shopspring/decimal"
)

// Columns recognized in vendor CSV files. Any other column becomes an
// attribute of the record.
var (
	keyColumns       = []string{"business_key", "sku", "order_number", "key"}
	nameColumns      = []string{"name", "title", "description"}
	quantityColumns  = []string{"quantity", "qty", "stock"}
	priceColumns     = []string{"price", "unit_price", "amount"}
	currencyColumns  = []string{"currency"}
	statusColumns    = []string{"status"}
	versionColumns   = []string{"version"}
	updatedAtColumns = []string{"updated_at", "last_modified"}
)

var knownColumns = func() map[string]bool {
	m := make(map[string]bool)
	for _, set := range [][]string{keyColumns, nameColumns, quantityColumns, priceColumns,
		currencyColumns, statusColumns, versionColumns, updatedAtColumns, {"id", "vendor_id"}} {
		for _, c := range set {
			m[c] = true
		}
	}
	return m
}()

// Result holds the decoded records and any rows that were skipped
type Result struct {
	Records []vendorsync.VendorRecord
	Skipped RowErrors
}

// Decode parses data in the given format into records stamped with the
// vendor id, domain and vendor source.
func Decode(data []byte, format, vendorID string, domain vendorsync.SyncType) (*Result, error) {
	switch strings.ToLower(format) {
	case vendorsync.FormatJSON:
		records, err := DecodeJSON(data)
		if err != nil {
			return nil, err
		}
		stamp(records, vendorID, domain)
		return &Result{Records: records}, nil
	case vendorsync.FormatCSV:
		res, err := DecodeCSV(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		stamp(res.Records, vendorID, domain)
		return res, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func stamp(records []vendorsync.VendorRecord, vendorID string, domain vendorsync.SyncType) {
	for i := range records {
		if records[i].VendorID == "" {
			records[i].VendorID = vendorID
		}
		records[i].Domain = domain
		records[i].Source = vendorsync.SourceVendor
	}
}

// DecodeJSON accepts either a bare array of records or an object with a
// "data" or "records" array.
func DecodeJSON(data []byte) ([]vendorsync.VendorRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrEmptyFile
	}

	var records []vendorsync.VendorRecord
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("failed to decode records: %w", err)
		}
		return records, nil
	}

	var envelope struct {
		Data    []vendorsync.VendorRecord `json:"data"`
		Records []vendorsync.VendorRecord `json:"records"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	if envelope.Data != nil {
		return envelope.Data, nil
	}
	if envelope.Records != nil {
		return envelope.Records, nil
	}
	return []vendorsync.VendorRecord{}, nil
}

// DecodeCSV reads a header-driven CSV document. Rows with malformed numeric
// or time values are skipped and reported; rows without a business key are
// kept so validation can report them against their batch index.
func DecodeCSV(r io.Reader) (*Result, error) {
	parser, err := newCSVParser(r, ',')
	if err != nil {
		return nil, err
	}

	res := &Result{Records: []vendorsync.VendorRecord{}}
	for {
		rw, err := parser.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			res.Skipped = append(res.Skipped, RowError{
				Row:     parser.line,
				Code:    ErrCodeMalformedRow,
				Message: err.Error(),
			})
			continue
		}

		rec, rowErr := recordFromRow(rw)
		if rowErr != nil {
			res.Skipped = append(res.Skipped, *rowErr)
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func recordFromRow(r row) (vendorsync.VendorRecord, *RowError) {
	rec := vendorsync.VendorRecord{}
	_, rec.BusinessKey = r.get(keyColumns...)
	_, rec.Name = r.get(nameColumns...)
	_, rec.Status = r.get(statusColumns...)
	_, rec.ID = r.get("id")
	_, rec.VendorID = r.get("vendor_id")
	if _, c := r.get(currencyColumns...); c != "" {
		rec.Currency = strings.ToUpper(c)
	}

	if col, v := r.get(quantityColumns...); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return rec, typeError(r.line, col, "decimal", v)
		}
		rec.Quantity = &d
	}
	if col, v := r.get(priceColumns...); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return rec, typeError(r.line, col, "decimal", v)
		}
		rec.Price = &d
	}
	if col, v := r.get(versionColumns...); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return rec, typeError(r.line, col, "integer", v)
		}
		rec.Version = n
	}
	if col, v := r.get(updatedAtColumns...); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return rec, typeError(r.line, col, "RFC3339 timestamp", v)
		}
		rec.UpdatedAt = ts
	}

	for k, v := range r.fields {
		if knownColumns[k] || v == "" {
			continue
		}
		if rec.Attributes == nil {
			rec.Attributes = make(map[string]string)
		}
		rec.Attributes[k] = v
	}
	return rec, nil
}

func typeError(line int, column, expected, value string) *RowError {
	return &RowError{
		Row:     line,
		Column:  column,
		Code:    ErrCodeInvalidType,
		Message: fmt.Sprintf("expected %s", expected),
		Value:   value,
	}
}

// EncodeJSON renders records as an indented JSON array
func EncodeJSON(records ...vendorsync.VendorRecord) ([]byte, error) {
	return json.MarshalIndent(records, "", "  ")
}
