package services

import (
	"fmt"
	"strconv"
	"strings"

	"sales-dashboard/internal/models"
)

// columnAliases maps lowercased source headers to canonical column names.
// Built once; lookups are O(1) per header.
var columnAliases = buildAliasTable(map[string][]string{
	models.ColumnName:            {"name", "product_name", "productname", "product name", "item", "item_name", "product"},
	models.ColumnPrice:           {"price", "unit_price", "unitprice", "unit price", "price_usd"},
	models.ColumnSalesVolume:     {"sales volume", "sales_volume", "salesvolume", "units_sold", "units sold", "quantity", "qty"},
	models.ColumnPromotion:       {"promotion", "promo", "on_promotion"},
	models.ColumnProductPosition: {"product position", "product_position", "productposition", "position", "placement"},
	models.ColumnSeasonal:        {"seasonal", "is_seasonal"},
	models.ColumnSection:         {"section", "gender", "department"},
	models.ColumnSeason:          {"season"},
	models.ColumnMaterial:        {"material", "fabric"},
	models.ColumnOrigin:          {"origin", "country", "origin_country", "country_of_origin", "country of origin"},
})

func buildAliasTable(groups map[string][]string) map[string]string {
	table := make(map[string]string)
	for canonical, aliases := range groups {
		for _, alias := range aliases {
			table[alias] = canonical
		}
	}
	return table
}

// categoricalColumns are filled with models.Unknown when absent.
var categoricalColumns = []string{
	models.ColumnPromotion,
	models.ColumnProductPosition,
	models.ColumnSeasonal,
	models.ColumnSection,
	models.ColumnSeason,
	models.ColumnMaterial,
	models.ColumnOrigin,
}

// WarningKind classifies non-fatal load findings.
type WarningKind string

const (
	WarnSchemaGap           WarningKind = "schema_gap"
	WarnNumericCoercionLoss WarningKind = "numeric_coercion_loss"
	WarnNumericOutOfRange   WarningKind = "numeric_out_of_range"
	WarnEmptyResult         WarningKind = "empty_result"
	WarnInvalidFilter       WarningKind = "invalid_filter"
)

// Warning is a non-blocking finding surfaced next to the data.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Column  string      `json:"column,omitempty"`
	Count   int         `json:"count,omitempty"`
	Message string      `json:"message"`
}

// NormalizeTable renames source columns to the canonical schema and
// materializes missing columns. The input is never modified.
//
// The first source column matching a canonical name wins; later matches and
// unrecognised columns keep their original header and are ignored
// downstream. A missing name column is synthesized as "Product <row index>"
// and a missing categorical column is filled with models.Unknown.
func NormalizeTable(raw models.Table) (models.Table, []Warning) {
	table := raw.Clone()
	var warnings []Warning

	present := make(map[string]int, len(table.Header))
	for i, h := range table.Header {
		canonical, ok := columnAliases[strings.ToLower(strings.TrimSpace(h))]
		if !ok {
			continue
		}
		if _, taken := present[canonical]; taken {
			continue
		}
		present[canonical] = i
		table.Header[i] = canonical
	}

	if _, ok := present[models.ColumnName]; !ok {
		appendColumn(&table, models.ColumnName, func(row int) string {
			return "Product " + strconv.Itoa(row)
		})
	}

	for _, col := range []string{models.ColumnPrice, models.ColumnSalesVolume} {
		if _, ok := present[col]; !ok {
			warnings = append(warnings, Warning{
				Kind:    WarnSchemaGap,
				Column:  col,
				Message: fmt.Sprintf("column %q not found; no record has a usable value", col),
			})
		}
	}

	for _, col := range categoricalColumns {
		if _, ok := present[col]; ok {
			continue
		}
		appendColumn(&table, col, func(int) string { return models.Unknown })
		warnings = append(warnings, Warning{
			Kind:    WarnSchemaGap,
			Column:  col,
			Message: fmt.Sprintf("column %q not found; filled with %q", col, models.Unknown),
		})
	}

	return table, warnings
}

func appendColumn(t *models.Table, name string, value func(row int) string) {
	t.Header = append(t.Header, name)
	for i := range t.Rows {
		// pad short rows so the new column lines up with the header
		for len(t.Rows[i]) < len(t.Header)-1 {
			t.Rows[i] = append(t.Rows[i], "")
		}
		t.Rows[i] = append(t.Rows[i], value(i))
	}
}

// columnIndex returns the position of each canonical column in a
// normalized header.
func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(models.CanonicalColumns))
	for i, h := range header {
		if _, seen := idx[h]; seen {
			continue
		}
		idx[h] = i
	}
	return idx
}

// cell is the single get-or-default accessor for a row value.
func cell(row []string, idx map[string]int, column string) (string, bool) {
	i, ok := idx[column]
	if !ok || i >= len(row) {
		return "", false
	}
	return strings.TrimSpace(row[i]), true
}

// categorical reads a categorical cell, mapping absent or blank values
// (including pandas-style "nan") to models.Unknown.
func categorical(row []string, idx map[string]int, column string) string {
	v, ok := cell(row, idx, column)
	if !ok || v == "" || strings.EqualFold(v, "nan") {
		return models.Unknown
	}
	return v
}
