package models

// FilterSpec is the user's current selection. Every dimension missing from
// Selections, or mapped to an empty list, matches no records.
type FilterSpec struct {
	Selections map[Dimension][]string `json:"selections"`
	PriceMin   float64                `json:"price_min"`
	PriceMax   float64                `json:"price_max"`
}

// Clone returns a deep copy of the spec.
func (f FilterSpec) Clone() FilterSpec {
	out := FilterSpec{
		Selections: make(map[Dimension][]string, len(f.Selections)),
		PriceMin:   f.PriceMin,
		PriceMax:   f.PriceMax,
	}
	for d, values := range f.Selections {
		out.Selections[d] = append([]string{}, values...)
	}
	return out
}

// PriceBounds is the observed closed price interval of a dataset.
type PriceBounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// SummaryMetrics holds the headline figures for a filtered view.
type SummaryMetrics struct {
	TotalProducts int           `json:"total_products"`
	TotalUnits    int64         `json:"total_units"`
	TotalRevenue  float64       `json:"total_revenue"`
	AvgPrice      NullableFloat `json:"avg_price"`
}

// GroupTotal is one bucket of a grouped aggregation.
type GroupTotal struct {
	Key      string       `json:"key"`
	Value    float64      `json:"value"`
	Count    int          `json:"count"`
	Children []GroupTotal `json:"children,omitempty"`
}

// ScatterPoint is one record projected for the price/volume chart.
type ScatterPoint struct {
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	SalesVolume int64   `json:"sales_volume"`
	Revenue     float64 `json:"revenue"`
	Promotion   string  `json:"promotion"`
}

// DimensionValues is the ordered set of observed categories for a dimension.
type DimensionValues struct {
	Dimension Dimension `json:"dimension"`
	Label     string    `json:"label"`
	Values    []string  `json:"values"`
}
