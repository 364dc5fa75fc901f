// Package vendorfile decodes vendor file drops (CSV and JSON) into
// vendor records.
package vendorfile

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// csvParser reads a header-driven CSV document
type csvParser struct {
	reader  *csv.Reader
	headers []string
	line    int
}

// newCSVParser strips a UTF-8 BOM, checks the encoding and reads the header
func newCSVParser(r io.Reader, delimiter rune) (*csvParser, error) {
	br := bufio.NewReader(r)

	// UTF-8 BOM: 0xEF, 0xBB, 0xBF
	if bom, err := br.Peek(3); err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		_, _ = br.Discard(3)
	}

	head, err := br.Peek(4096)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(strings.TrimSpace(string(head))) == 0 {
		return nil, ErrEmptyFile
	}
	if !utf8.Valid(trimPartialRune(head)) {
		return nil, ErrInvalidEncoding
	}

	p := &csvParser{reader: csv.NewReader(br)}
	p.reader.Comma = delimiter
	p.reader.LazyQuotes = true
	p.reader.TrimLeadingSpace = true
	p.reader.FieldsPerRecord = -1

	record, err := p.reader.Read()
	if err == io.EOF {
		return nil, ErrMissingHeader
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	p.headers = make([]string, len(record))
	for i, h := range record {
		p.headers[i] = normalizeHeader(h)
	}
	p.line = 1
	return p, nil
}

// trimPartialRune drops a multi-byte rune cut off by the peek window
func trimPartialRune(b []byte) []byte {
	for i := 0; i < utf8.UTFMax && len(b) > 0; i++ {
		r, size := utf8.DecodeLastRune(b)
		if r != utf8.RuneError || size != 1 {
			break
		}
		b = b[:len(b)-1]
	}
	return b
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.ReplaceAll(h, " ", "_")
}

// row is one data line keyed by normalized header
type row struct {
	line   int
	fields map[string]string
}

func (r row) get(names ...string) (string, string) {
	for _, n := range names {
		if v, ok := r.fields[n]; ok && v != "" {
			return n, v
		}
	}
	return "", ""
}

func (r row) empty() bool {
	for _, v := range r.fields {
		if v != "" {
			return false
		}
	}
	return true
}

// next returns the next non-empty row or io.EOF
func (p *csvParser) next() (row, error) {
	for {
		record, err := p.reader.Read()
		if err == io.EOF {
			return row{}, io.EOF
		}
		p.line++
		if err != nil {
			return row{}, fmt.Errorf("error reading row %d: %w", p.line, err)
		}

		r := row{line: p.line, fields: make(map[string]string, len(p.headers))}
		for i, h := range p.headers {
			if i < len(record) {
				r.fields[h] = strings.TrimSpace(record[i])
			}
		}
		if r.empty() {
			continue
		}
		return r, nil
	}
}
