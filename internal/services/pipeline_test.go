package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-dashboard/internal/models"
)

const salesCSV = `product_name,Price,units_sold,Promotion,Product Position,Seasonal,gender,season,fabric,Origin
Jacket A,10,5,Yes,Aisle,Yes,MAN,Summer,cotton,Spain
Coat B,20,2,No,End-cap,No,WOMAN,Winter,wool,China
Parka C,abc,3,No,Aisle,Yes,MAN,Winter,wool,China
Shirt D,15.5,,Yes,Front,No,WOMAN,Spring,linen,Portugal
Vest E,30,4,,Front,No,MAN,Autumn,wool,
`

func loadFixture(t *testing.T) *Dataset {
	t.Helper()
	ds, err := Load(RawInput{Data: []byte(salesCSV), Delimiter: DelimiterAuto})
	require.NoError(t, err)
	return ds
}

func TestNormalizeTable_Aliases(t *testing.T) {
	raw := models.Table{
		Header: []string{"Item", "PRICE", "Quantity", "Gender", "Fabric", "notes"},
		Rows:   [][]string{{"Tee", "9.99", "3", "MAN", "cotton", "x"}},
	}

	table, warnings := NormalizeTable(raw)

	assert.Equal(t, []string{"name", "price", "Sales Volume", "section", "material", "notes",
		"Promotion", "Product Position", "Seasonal", "season", "origin"}, table.Header)
	assert.Equal(t, []string{"Tee", "9.99", "3", "MAN", "cotton", "x",
		"Unknown", "Unknown", "Unknown", "Unknown", "Unknown"}, table.Rows[0])
	assert.Equal(t, "Item", raw.Header[0], "raw input must not be modified")
	assert.Len(t, raw.Rows[0], 6)

	var gaps []string
	for _, w := range warnings {
		assert.Equal(t, WarnSchemaGap, w.Kind)
		gaps = append(gaps, w.Column)
	}
	assert.ElementsMatch(t, []string{"Promotion", "Product Position", "Seasonal", "season", "origin"}, gaps)
}

func TestNormalizeTable_FirstAliasWins(t *testing.T) {
	raw := models.Table{
		Header: []string{"item", "name", "price", "sales_volume"},
		Rows:   [][]string{{"first", "second", "1", "1"}},
	}

	ds := BuildDataset(raw)

	require.Equal(t, 1, ds.Len())
	assert.Equal(t, "first", ds.Record(0).Name)
}

func TestNormalizeTable_SynthesizesNames(t *testing.T) {
	raw := models.Table{
		Header: []string{"price", "Sales Volume"},
		Rows:   [][]string{{"1", "1"}, {"x", "1"}, {"3", "2"}},
	}

	ds := BuildDataset(raw)

	require.Equal(t, 2, ds.Len())
	assert.Equal(t, "Product 0", ds.Record(0).Name)
	assert.Equal(t, "Product 2", ds.Record(1).Name, "names follow the raw row index, not the surviving position")
}

func TestBuildDataset_DropsNonNumericRecords(t *testing.T) {
	ds := loadFixture(t)

	assert.Equal(t, 3, ds.Len())
	assert.Equal(t, 2, ds.Dropped())

	var loss *Warning
	for _, w := range ds.Warnings() {
		if w.Kind == WarnNumericCoercionLoss {
			loss = &w
		}
	}
	require.NotNil(t, loss)
	assert.Equal(t, 2, loss.Count)

	vest := ds.Record(2)
	assert.Equal(t, "Vest E", vest.Name)
	assert.Equal(t, models.Unknown, vest.Promotion)
	assert.Equal(t, models.Unknown, vest.Origin)
}

func TestBuildDataset_MissingNumericColumns(t *testing.T) {
	ds := BuildDataset(models.Table{
		Header: []string{"name", "season"},
		Rows:   [][]string{{"A", "Summer"}},
	})

	assert.Equal(t, 0, ds.Len())
	assert.Equal(t, 1, ds.Dropped())

	bounds, ok := ds.ObservedPriceBounds()
	assert.False(t, ok)
	assert.Equal(t, DefaultPriceBounds, bounds)

	spec := ds.DefaultFilterSpec()
	assert.Equal(t, 0.0, spec.PriceMin)
	assert.Equal(t, 1000.0, spec.PriceMax)
}

func TestParseVolume(t *testing.T) {
	tests := []struct {
		in     string
		want   int64
		result coercion
	}{
		{"12", 12, coerced},
		{"12.0", 12, coerced},
		{" 7 ", 7, coerced},
		{"9223372036854774784", 9223372036854774784, coerced},
		{"1.5", 0, outOfRange},
		{"-1", 0, outOfRange},
		{"9223372036854775807", 0, outOfRange},
		{"1e19", 0, outOfRange},
		{"1e400", 0, outOfRange},
		{"NaN", 0, notNumeric},
		{"", 0, notNumeric},
		{"ten", 0, notNumeric},
	}
	for _, tt := range tests {
		got, result := parseVolume(tt.in)
		assert.Equal(t, tt.result, result, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		result coercion
	}{
		{"29.90", 29.9, coerced},
		{"0", 0, coerced},
		{"1e308", 1e308, coerced},
		{"-5", 0, outOfRange},
		{"Inf", 0, outOfRange},
		{"abc", 0, notNumeric},
		{" ", 0, notNumeric},
	}
	for _, tt := range tests {
		got, result := parsePrice(tt.in)
		assert.Equal(t, tt.result, result, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestBuildDataset_HugeVolumesAreDropped(t *testing.T) {
	ds, err := Load(RawInput{Data: []byte("name,price,Sales Volume\nA,1,9223372036854775807\nB,2,3\n")})
	require.NoError(t, err)

	require.Equal(t, 1, ds.Len())
	assert.Equal(t, "B", ds.Record(0).Name)
	assert.Equal(t, 1, ds.Dropped())
	for i := 0; i < ds.Len(); i++ {
		assert.GreaterOrEqual(t, ds.Record(i).SalesVolume, int64(0))
	}
}

func TestBuildDataset_OverflowingRevenueIsDropped(t *testing.T) {
	ds, err := Load(RawInput{Data: []byte("name,price,Sales Volume\nA,1e308,10\nB,2,3\n")})
	require.NoError(t, err)

	require.Equal(t, 1, ds.Len())
	assert.Equal(t, "B", ds.Record(0).Name)

	var outside *Warning
	for _, w := range ds.Warnings() {
		if w.Kind == WarnNumericOutOfRange {
			outside = &w
		}
	}
	require.NotNil(t, outside)
	assert.Equal(t, 1, outside.Count)

	out, err := ExportText(ds.All(), DelimiterComma, ExportOptions{})
	require.NoError(t, err)
	assert.NotContains(t, out, "1e308")
}

func TestSummary_SaturatesHugeTotals(t *testing.T) {
	data := "name,price,Sales Volume\n" +
		"A,1e308,1\n" +
		"B,1e308,1\n" +
		"C,1,9223372036854774784\n" +
		"D,1,9223372036854774784\n"
	ds, err := Load(RawInput{Data: []byte(data)})
	require.NoError(t, err)
	require.Equal(t, 4, ds.Len())

	m := Summary(ds.All())
	assert.Equal(t, int64(math.MaxInt64), m.TotalUnits)
	assert.Equal(t, math.MaxFloat64, m.TotalRevenue)
	assert.False(t, math.IsInf(m.AvgPrice.Value, 0))
	assert.Equal(t, math.MaxFloat64, SumMeasure(ds.All(), models.MeasureRevenue))

	snap, err := BuildSnapshot(context.Background(), ds.All(), 5)
	require.NoError(t, err)
	_, err = json.Marshal(snap)
	assert.NoError(t, err, "totals must stay JSON-encodable")

	assert.NotPanics(t, func() {
		FormatCurrency(m.TotalRevenue)
		FormatPrice(m.AvgPrice.Value)
	})
	_, err = ExportText(ds.All(), DelimiterTab, ExportOptions{})
	assert.NoError(t, err)
}

func TestFormatNonFinite(t *testing.T) {
	assert.Equal(t, "$+Inf", FormatCurrency(math.Inf(1)))
	assert.Equal(t, "$NaN", FormatPrice(math.NaN()))
	assert.Equal(t, "-Inf", decimalString(math.Inf(-1)))
	assert.Equal(t, "$1,235", FormatCurrency(1234.5))
}

func TestBuildDataset_SeparatesOutOfRangeFromMissing(t *testing.T) {
	ds := BuildDataset(models.Table{
		Header: []string{"name", "price", "Sales Volume"},
		Rows: [][]string{
			{"A", "", "1"},
			{"B", "-3", "1"},
			{"C", "3", "1.5"},
			{"D", "3", "2"},
		},
	})

	require.Equal(t, 1, ds.Len())
	assert.Equal(t, 3, ds.Dropped())

	counts := make(map[WarningKind]int)
	for _, w := range ds.Warnings() {
		counts[w.Kind] = w.Count
	}
	assert.Equal(t, 1, counts[WarnNumericCoercionLoss])
	assert.Equal(t, 2, counts[WarnNumericOutOfRange])
}

func TestDeriveRevenue(t *testing.T) {
	ds := loadFixture(t)

	var direct float64
	for i := 0; i < ds.Len(); i++ {
		r := ds.Record(i)
		assert.Equal(t, r.Price*float64(r.SalesVolume), r.Revenue)
		direct += r.Price * float64(r.SalesVolume)
	}
	assert.Equal(t, direct, SumMeasure(ds.All(), models.MeasureRevenue))
	assert.Equal(t, direct, Summary(ds.All()).TotalRevenue)
}

func TestReadTable_Delimiters(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		delim Delimiter
		want  []string
	}{
		{"auto comma", "a,b\n1,2\n", DelimiterAuto, []string{"a", "b"}},
		{"auto tab", "a\tb\n1\t2\n", DelimiterAuto, []string{"a", "b"}},
		{"forced tab", "a,b\tc\n1,2\t3\n", DelimiterTab, []string{"a,b", "c"}},
		{"bom stripped", "\xEF\xBB\xBFname,price\nx,1\n", DelimiterAuto, []string{"name", "price"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := ReadTable(RawInput{Data: []byte(tt.data), Delimiter: tt.delim})
			require.NoError(t, err)
			assert.Equal(t, tt.want, table.Header)
			assert.Len(t, table.Rows, 1)
		})
	}
}

func TestReadTable_LoadErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"whitespace", "  \n\n"},
		{"invalid utf8", "name,price\n\xff\xfe,1\n"},
		{"too many fields", "name,price\nA,1,extra\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := Load(RawInput{Data: []byte(tt.data), Delimiter: DelimiterAuto})
			require.Error(t, err)
			assert.Nil(t, ds)

			var loadErr *LoadError
			assert.True(t, errors.As(err, &loadErr), "got %T", err)
		})
	}
}

func TestReadTable_StrayQuotes(t *testing.T) {
	data := "name,price,Sales Volume\nSkirt 12\" midi,10,5\n\"Coat, long\",20,1\n"

	ds, err := Load(RawInput{Data: []byte(data), Delimiter: DelimiterAuto})
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())
	assert.Equal(t, `Skirt 12" midi`, ds.Record(0).Name)
	assert.Equal(t, "Coat, long", ds.Record(1).Name)
}

func TestReadTable_ShortRowsArePadded(t *testing.T) {
	ds, err := Load(RawInput{Data: []byte("name,price,Sales Volume,season\nA,1,2\n"), Delimiter: DelimiterComma})
	require.NoError(t, err)
	require.Equal(t, 1, ds.Len())
	assert.Equal(t, models.Unknown, ds.Record(0).Season)
}

func TestParseDelimiter(t *testing.T) {
	for in, want := range map[string]Delimiter{"": DelimiterAuto, "TAB": DelimiterTab, "csv": DelimiterComma, "tsv": DelimiterTab} {
		got, err := ParseDelimiter(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseDelimiter("pipe")
	assert.Error(t, err)
}

func TestDistinctValues(t *testing.T) {
	ds := loadFixture(t)

	assert.Equal(t, []string{"Summer", "Autumn", "Winter"}, ds.DistinctValues(models.DimSeason))
	assert.Equal(t, []string{"China", "Spain", "Unknown"}, ds.DistinctValues(models.DimOrigin))
	assert.Equal(t, []string{"MAN", "WOMAN"}, ds.DistinctValues(models.DimSection))

	vals := ds.DistinctValues(models.DimOrigin)
	vals[0] = "mutated"
	assert.Equal(t, "China", ds.DistinctValues(models.DimOrigin)[0], "callers get a copy")
}

func TestCompareSeason(t *testing.T) {
	values := []string{"Winter", "Monsoon", "Spring", "Unknown", "Autumn", "Summer"}
	sortCategories(models.DimSeason, values)
	assert.Equal(t, []string{"Spring", "Summer", "Autumn", "Winter", "Monsoon", "Unknown"}, values)
}

func TestObservedPriceBounds(t *testing.T) {
	ds := loadFixture(t)

	bounds, ok := ds.ObservedPriceBounds()
	require.True(t, ok)
	assert.Equal(t, models.PriceBounds{Min: 10, Max: 30}, bounds)
}

func TestExportRoundTrip(t *testing.T) {
	ds := loadFixture(t)
	spec := ds.DefaultFilterSpec()
	spec.Selections[models.DimSection] = []string{"MAN"}
	view := ApplyFilters(ds, spec)
	require.Equal(t, 2, view.Len())

	for _, delim := range []Delimiter{DelimiterComma, DelimiterTab} {
		text, err := ExportText(view, delim, ExportOptions{})
		require.NoError(t, err)

		header := strings.SplitN(text, "\n", 2)[0]
		assert.Equal(t, strings.Join(models.ExportColumns, string(delim.Rune())), header)

		reloaded, err := Load(RawInput{Data: []byte(text), Delimiter: DelimiterAuto})
		require.NoError(t, err)
		assert.Equal(t, view.Records(), reloaded.All().Records())
		assert.Zero(t, reloaded.Dropped())
	}
}

func TestExport_QuotesAndPrecision(t *testing.T) {
	ds := BuildDataset(models.Table{
		Header: []string{"name", "price", "Sales Volume"},
		Rows:   [][]string{{"Coat, long", "0.1", "3"}},
	})

	text, err := ExportText(ds.All(), DelimiterComma, ExportOptions{Columns: []string{"name", "price", "Revenue"}})
	require.NoError(t, err)
	assert.Equal(t, "name,price,Revenue\n\"Coat, long\",0.1,0.30000000000000004\n", text)

	reloaded, err := Load(RawInput{Data: []byte(text)})
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.Len(), "a subset without Sales Volume cannot rebuild records")
}

func TestExport_SortAndUnknownColumn(t *testing.T) {
	ds := loadFixture(t)

	text, err := ExportText(ds.All(), DelimiterComma, ExportOptions{
		Columns:    []string{"name", "Sales Volume"},
		SortBy:     models.MeasureSalesVolume,
		Descending: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "name,Sales Volume\nJacket A,5\nVest E,4\nCoat B,2\n", text)

	_, err = ExportText(ds.All(), DelimiterComma, ExportOptions{Columns: []string{"stock"}})
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestExportWorkbookRoundTrip(t *testing.T) {
	ds := loadFixture(t)

	var buf bytes.Buffer
	require.NoError(t, ExportWorkbook(&buf, ds.All(), ExportOptions{}))

	reloaded, err := Load(RawInput{Data: buf.Bytes(), Filename: "sales.xlsx"})
	require.NoError(t, err)
	assert.Equal(t, ds.All().Records(), reloaded.All().Records())
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "$1,234,568", FormatCurrency(1234567.5))
	assert.Equal(t, "$50", FormatCurrency(50))
	assert.Equal(t, "$10.00", FormatPrice(10))
	assert.Equal(t, "12,345", FormatUnits(12345))
	assert.Equal(t, "999", FormatUnits(999))
}
