package services

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"sales-dashboard/internal/models"
)

// Delimiter selects how raw text is split into columns.
type Delimiter string

const (
	DelimiterAuto  Delimiter = "auto"
	DelimiterComma Delimiter = "comma"
	DelimiterTab   Delimiter = "tab"
)

// Rune returns the separator character; auto resolves to comma.
func (d Delimiter) Rune() rune {
	if d == DelimiterTab {
		return '\t'
	}
	return ','
}

// ParseDelimiter accepts the names used by the HTTP layer and config.
func ParseDelimiter(s string) (Delimiter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return DelimiterAuto, nil
	case "comma", "csv", ",":
		return DelimiterComma, nil
	case "tab", "tsv", "\t":
		return DelimiterTab, nil
	default:
		return "", fmt.Errorf("unsupported delimiter %q", s)
	}
}

// LoadError reports raw input that cannot be read as a table. No partial
// dataset is produced when it is returned.
type LoadError struct {
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load: %s: %v", e.Reason, e.Err)
	}
	return "load: " + e.Reason
}

func (e *LoadError) Unwrap() error { return e.Err }

var (
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
	zipMagic = []byte("PK\x03\x04")
)

// RawInput is what the presentation layer hands to the loader.
type RawInput struct {
	Data      []byte
	Filename  string
	Delimiter Delimiter
}

// IsWorkbook reports whether the input looks like an xlsx workbook.
func (in RawInput) IsWorkbook() bool {
	return strings.HasSuffix(strings.ToLower(in.Filename), ".xlsx") || bytes.HasPrefix(in.Data, zipMagic)
}

// ReadTable parses raw bytes into a header plus rows.
func ReadTable(in RawInput) (models.Table, error) {
	if in.IsWorkbook() {
		return readWorkbook(in.Data)
	}
	return readDelimited(in.Data, in.Delimiter)
}

func readDelimited(data []byte, delim Delimiter) (models.Table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return models.Table{}, &LoadError{Reason: "input is not valid UTF-8 text"}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return models.Table{}, &LoadError{Reason: "input is empty"}
	}

	if delim == DelimiterAuto {
		delim = sniffDelimiter(data)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delim.Rune()
	reader.FieldsPerRecord = -1
	// Spreadsheet exports leave stray quotes in names like `Skirt 12" midi`.
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return models.Table{}, &LoadError{Reason: "cannot read header row", Err: err}
	}
	header = trimAll(header)

	table := models.Table{Header: header}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return models.Table{}, &LoadError{Reason: "malformed row", Err: err}
		}
		if isBlankRow(row) {
			continue
		}
		if len(row) > len(header) {
			line, _ := reader.FieldPos(0)
			return models.Table{}, &LoadError{
				Reason: fmt.Sprintf("line %d has %d fields, header has %d", line, len(row), len(header)),
			}
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

// sniffDelimiter picks tab when the header line holds at least as many tabs
// as commas.
func sniffDelimiter(data []byte) Delimiter {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	tabs := bytes.Count(line, []byte{'\t'})
	commas := bytes.Count(line, []byte{','})
	if tabs > 0 && tabs >= commas {
		return DelimiterTab
	}
	return DelimiterComma
}

func readWorkbook(data []byte) (models.Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return models.Table{}, &LoadError{Reason: "cannot open workbook", Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return models.Table{}, &LoadError{Reason: "workbook has no sheets"}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return models.Table{}, &LoadError{Reason: "cannot read sheet " + sheets[0], Err: err}
	}
	if len(rows) == 0 {
		return models.Table{}, &LoadError{Reason: "sheet " + sheets[0] + " is empty"}
	}

	table := models.Table{Header: trimAll(rows[0])}
	for _, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		if len(row) > len(table.Header) {
			row = row[:len(table.Header)]
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func trimAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
