package models

import (
	"encoding/json"
	"strconv"
)

// Dimension identifies a categorical attribute by its URL/JSON slug.
type Dimension string

const (
	DimPromotion Dimension = "promotion"
	DimPosition  Dimension = "position"
	DimSeasonal  Dimension = "seasonal"
	DimSection   Dimension = "section"
	DimSeason    Dimension = "season"
	DimMaterial  Dimension = "material"
	DimOrigin    Dimension = "origin"
)

// Dimensions lists every filterable categorical dimension.
var Dimensions = []Dimension{
	DimPromotion,
	DimPosition,
	DimSeasonal,
	DimSection,
	DimSeason,
	DimMaterial,
	DimOrigin,
}

var dimensionColumns = map[Dimension]string{
	DimPromotion: ColumnPromotion,
	DimPosition:  ColumnProductPosition,
	DimSeasonal:  ColumnSeasonal,
	DimSection:   ColumnSection,
	DimSeason:    ColumnSeason,
	DimMaterial:  ColumnMaterial,
	DimOrigin:    ColumnOrigin,
}

var dimensionLabels = map[Dimension]string{
	DimPromotion: "Promotion",
	DimPosition:  "Product Position",
	DimSeasonal:  "Seasonal",
	DimSection:   "Section (Gender)",
	DimSeason:    "Season",
	DimMaterial:  "Material",
	DimOrigin:    "Country of Origin",
}

// Column returns the canonical column backing the dimension.
func (d Dimension) Column() string { return dimensionColumns[d] }

// Label returns a display label.
func (d Dimension) Label() string { return dimensionLabels[d] }

// Valid reports whether d is a known dimension.
func (d Dimension) Valid() bool {
	_, ok := dimensionColumns[d]
	return ok
}

// DimensionForColumn maps a canonical column name back to its dimension.
func DimensionForColumn(column string) (Dimension, bool) {
	for d, c := range dimensionColumns {
		if c == column {
			return d, true
		}
	}
	return "", false
}

// Measure identifies a numeric attribute by its URL/JSON slug.
type Measure string

const (
	MeasurePrice       Measure = "price"
	MeasureSalesVolume Measure = "sales_volume"
	MeasureRevenue     Measure = "revenue"
)

var measureColumns = map[Measure]string{
	MeasurePrice:       ColumnPrice,
	MeasureSalesVolume: ColumnSalesVolume,
	MeasureRevenue:     ColumnRevenue,
}

// Column returns the canonical column backing the measure.
func (m Measure) Column() string { return measureColumns[m] }

// Valid reports whether m is a known measure.
func (m Measure) Valid() bool {
	_, ok := measureColumns[m]
	return ok
}

// NullableFloat is a metric that may be undefined, such as the mean of an
// empty view. Undefined values render and marshal as "N/A".
type NullableFloat struct {
	Value float64
	Valid bool
}

// NA is the textual form of an undefined metric.
const NA = "N/A"

func (n NullableFloat) String() string {
	if !n.Valid {
		return NA
	}
	return strconv.FormatFloat(n.Value, 'f', 2, 64)
}

func (n NullableFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return json.Marshal(NA)
	}
	return json.Marshal(n.Value)
}

// NullableString is a categorical result that may be undefined.
type NullableString struct {
	Value string
	Valid bool
}

func (n NullableString) String() string {
	if !n.Valid {
		return NA
	}
	return n.Value
}

func (n NullableString) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.String())
}
