package services

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"sales-dashboard/internal/models"
)

// ErrUnknownColumn is returned when an export names a non-canonical column.
var ErrUnknownColumn = errors.New("unknown export column")

// ExportFormat is the artifact type produced by Export.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatTSV  ExportFormat = "tsv"
	FormatXLSX ExportFormat = "xlsx"
)

// ContentType returns the MIME type for the format.
func (f ExportFormat) ContentType() string {
	switch f {
	case FormatTSV:
		return "text/tab-separated-values"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv"
	}
}

// Filename returns the download name for the format.
func (f ExportFormat) Filename() string {
	return "filtered_sales." + string(f)
}

// ExportOptions selects columns and row order. Zero value exports every
// canonical column plus Revenue in view order.
type ExportOptions struct {
	Columns    []string
	SortBy     models.Measure
	Descending bool
}

// Validate reports ErrUnknownColumn for any column outside the export
// schema.
func (o ExportOptions) Validate() error {
	_, err := o.columns()
	return err
}

func (o ExportOptions) columns() ([]string, error) {
	if len(o.Columns) == 0 {
		return models.ExportColumns, nil
	}
	for _, c := range o.Columns {
		if !slices.Contains(models.ExportColumns, c) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, c)
		}
	}
	return o.Columns, nil
}

func (o ExportOptions) rows(v *View) []models.Record {
	if o.SortBy == "" {
		return v.Records()
	}
	return SortRecords(v, o.SortBy, o.Descending)
}

// Export writes the view as delimited text with a header of canonical names.
// Numbers use the shortest decimal text that reads back to the same value,
// so the output loads into an equivalent dataset.
func Export(w io.Writer, v *View, delim Delimiter, opts ExportOptions) error {
	cols, err := opts.columns()
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	writer.Comma = delim.Rune()

	if err := writer.Write(cols); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range opts.rows(v) {
		if err := writer.Write(formatRow(r, cols)); err != nil {
			return fmt.Errorf("write record %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// TableRows returns the detailed table: the selected columns and up to
// limit rows as export text. limit <= 0 returns every row.
func TableRows(v *View, opts ExportOptions, limit int) ([]string, [][]string, error) {
	cols, err := opts.columns()
	if err != nil {
		return nil, nil, err
	}
	records := opts.rows(v)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = formatRow(r, cols)
	}
	return cols, rows, nil
}

// ExportText is Export into a string.
func ExportText(v *View, delim Delimiter, opts ExportOptions) (string, error) {
	var buf bytes.Buffer
	if err := Export(&buf, v, delim, opts); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ExportWorkbook writes the view as a single-sheet xlsx workbook. Numeric
// columns are stored as numbers.
func ExportWorkbook(w io.Writer, v *View, opts ExportOptions) error {
	cols, err := opts.columns()
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range opts.rows(v) {
		cellName, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := make([]any, len(cols))
		for j, c := range cols {
			row[j] = cellValue(r, c)
		}
		if err := f.SetSheetRow(sheet, cellName, &row); err != nil {
			return fmt.Errorf("write record %d: %w", i, err)
		}
	}

	_, err = f.WriteTo(w)
	return err
}

func formatRow(r models.Record, cols []string) []string {
	row := make([]string, len(cols))
	for i, c := range cols {
		switch c {
		case models.ColumnPrice:
			row[i] = decimalString(r.Price)
		case models.ColumnSalesVolume:
			row[i] = strconv.FormatInt(r.SalesVolume, 10)
		case models.ColumnRevenue:
			row[i] = decimalString(r.Revenue)
		default:
			row[i] = textField(r, c)
		}
	}
	return row
}

func cellValue(r models.Record, column string) any {
	switch column {
	case models.ColumnPrice:
		return r.Price
	case models.ColumnSalesVolume:
		return r.SalesVolume
	case models.ColumnRevenue:
		return r.Revenue
	default:
		return textField(r, column)
	}
}

func textField(r models.Record, column string) string {
	if column == models.ColumnName {
		return r.Name
	}
	if d, ok := models.DimensionForColumn(column); ok {
		return r.Dimension(d)
	}
	return ""
}

// decimalString prints v exactly as typed; decimal cannot hold NaN or
// infinities, so those fall back to strconv.
func decimalString(v float64) string {
	if !isFinite(v) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return decimal.NewFromFloat(v).String()
}

func isFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

// FormatCurrency renders an amount as whole dollars with thousands
// separators, e.g. "$12,345".
func FormatCurrency(amount float64) string {
	if !isFinite(amount) {
		return "$" + strconv.FormatFloat(amount, 'f', 0, 64)
	}
	return "$" + groupThousands(decimal.NewFromFloat(amount).Round(0).String())
}

// FormatPrice renders an amount with two decimals, e.g. "$29.90".
func FormatPrice(amount float64) string {
	if !isFinite(amount) {
		return "$" + strconv.FormatFloat(amount, 'f', 2, 64)
	}
	return "$" + decimal.NewFromFloat(amount).StringFixed(2)
}

// FormatUnits renders an integer with thousands separators.
func FormatUnits(n int64) string {
	return groupThousands(strconv.FormatInt(n, 10))
}

func groupThousands(digits string) string {
	sign := ""
	if len(digits) > 0 && digits[0] == '-' {
		sign, digits = "-", digits[1:]
	}
	if len(digits) <= 3 {
		return sign + digits
	}
	var out []byte
	lead := len(digits) % 3
	if lead > 0 {
		out = append(out, digits[:lead]...)
	}
	for i := lead; i < len(digits); i += 3 {
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, digits[i:i+3]...)
	}
	return sign + string(out)
}
