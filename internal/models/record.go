package models

// Canonical column names produced by schema normalization.
const (
	ColumnName            = "name"
	ColumnPrice           = "price"
	ColumnSalesVolume     = "Sales Volume"
	ColumnPromotion       = "Promotion"
	ColumnProductPosition = "Product Position"
	ColumnSeasonal        = "Seasonal"
	ColumnSection         = "section"
	ColumnSeason          = "season"
	ColumnMaterial        = "material"
	ColumnOrigin          = "origin"
	ColumnRevenue         = "Revenue"
)

// Unknown fills categorical values that are absent or blank.
const Unknown = "Unknown"

// CanonicalColumns is the normalized column set in output order.
var CanonicalColumns = []string{
	ColumnName,
	ColumnPrice,
	ColumnSalesVolume,
	ColumnPromotion,
	ColumnProductPosition,
	ColumnSeasonal,
	ColumnSection,
	ColumnSeason,
	ColumnMaterial,
	ColumnOrigin,
}

// ExportColumns is the canonical set plus the derived revenue column.
var ExportColumns = append(append([]string(nil), CanonicalColumns...), ColumnRevenue)

// SeasonOrder is the ordinal sequence used when season is a grouping key.
var SeasonOrder = []string{"Spring", "Summer", "Autumn", "Winter"}

// Record is one sale line item after normalization.
type Record struct {
	Name            string  `json:"name"`
	Price           float64 `json:"price"`
	SalesVolume     int64   `json:"sales_volume"`
	Promotion       string  `json:"promotion"`
	ProductPosition string  `json:"product_position"`
	Seasonal        string  `json:"seasonal"`
	Section         string  `json:"section"`
	Season          string  `json:"season"`
	Material        string  `json:"material"`
	Origin          string  `json:"origin"`
	Revenue         float64 `json:"revenue"`
}

// Dimension returns the record's value for a categorical dimension, or
// Unknown when the dimension is not recognised or the value is blank.
func (r Record) Dimension(d Dimension) string {
	var v string
	switch d {
	case DimPromotion:
		v = r.Promotion
	case DimPosition:
		v = r.ProductPosition
	case DimSeasonal:
		v = r.Seasonal
	case DimSection:
		v = r.Section
	case DimSeason:
		v = r.Season
	case DimMaterial:
		v = r.Material
	case DimOrigin:
		v = r.Origin
	}
	if v == "" {
		return Unknown
	}
	return v
}

// Measure returns the record's value for a numeric measure; unknown
// measures read as zero.
func (r Record) Measure(m Measure) float64 {
	switch m {
	case MeasurePrice:
		return r.Price
	case MeasureSalesVolume:
		return float64(r.SalesVolume)
	case MeasureRevenue:
		return r.Revenue
	default:
		return 0
	}
}

// Table is a raw delimited table: one header row and zero or more data rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// Clone returns a deep copy so callers can normalize without touching the
// original input.
func (t Table) Clone() Table {
	out := Table{
		Header: append([]string(nil), t.Header...),
		Rows:   make([][]string, len(t.Rows)),
	}
	for i, row := range t.Rows {
		out.Rows[i] = append([]string(nil), row...)
	}
	return out
}
