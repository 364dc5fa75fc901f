package vendorfile

import (
	"errors"
	"fmt"
	"strings"
)

// Row error codes
const (
	ErrCodeRequiredField = "ERR_FILE_REQUIRED_FIELD"
	ErrCodeInvalidType   = "ERR_FILE_INVALID_TYPE"
	ErrCodeMalformedRow  = "ERR_FILE_MALFORMED_ROW"
)

var (
	// ErrEmptyFile is returned when the file has no content
	ErrEmptyFile = errors.New("vendor file is empty")

	// ErrInvalidEncoding is returned when the file is not valid UTF-8
	ErrInvalidEncoding = errors.New("invalid file encoding")

	// ErrMissingHeader is returned when a CSV file has no header row
	ErrMissingHeader = errors.New("CSV file missing header row")

	// ErrUnsupportedFormat is returned for formats other than json and csv
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// RowError describes a row that could not be decoded
type RowError struct {
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// Error implements the error interface
func (e RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("row %d, column '%s': %s", e.Row, e.Column, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// RowErrors is the list of rows skipped while decoding
type RowErrors []RowError

// String summarizes the row errors
func (re RowErrors) String() string {
	if len(re) == 0 {
		return "no errors"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d row(s) skipped:", len(re))
	for _, e := range re {
		sb.WriteString("\n  - ")
		sb.WriteString(e.Error())
	}
	return sb.String()
}
