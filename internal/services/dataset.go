package services

import (
	"fmt"
	"math"
	"slices"
	"time"

	"sales-dashboard/internal/models"
)

// DefaultPriceBounds is used when a dataset has no valid prices.
var DefaultPriceBounds = models.PriceBounds{Min: 0, Max: 1000}

// Dataset is the normalized, revenue-augmented table of one session. It has
// no mutators after construction, so it can be read from any goroutine.
type Dataset struct {
	records  []models.Record
	dropped  int
	warnings []Warning
	distinct map[models.Dimension][]string
	bounds   models.PriceBounds
	hasPrice bool
	loadedAt time.Time
}

// Load runs the full ingestion pipeline: parse, normalize, coerce, derive.
func Load(in RawInput) (*Dataset, error) {
	table, err := ReadTable(in)
	if err != nil {
		return nil, err
	}
	return BuildDataset(table), nil
}

// BuildDataset normalizes a raw table and drops records whose price or
// sales volume cannot be used. Missing and non-numeric values are reported
// as a NumericCoercionLoss warning; numbers outside the usable range,
// including records whose revenue overflows, as NumericOutOfRange.
func BuildDataset(raw models.Table) *Dataset {
	table, warnings := NormalizeTable(raw)
	idx := columnIndex(table.Header)

	records := make([]models.Record, 0, len(table.Rows))
	var missing, outside int
	for _, row := range table.Rows {
		rec, result := recordFromRow(row, idx)
		switch result {
		case notNumeric:
			missing++
			continue
		case outOfRange:
			outside++
			continue
		}
		records = append(records, rec)
	}
	DeriveRevenue(records)

	finite := records[:0]
	for _, r := range records {
		if math.IsInf(r.Revenue, 0) {
			outside++
			continue
		}
		finite = append(finite, r)
	}
	records = finite

	if missing > 0 {
		warnings = append(warnings, Warning{
			Kind:    WarnNumericCoercionLoss,
			Count:   missing,
			Message: fmt.Sprintf("%d record(s) dropped: price or sales volume is missing or not numeric", missing),
		})
	}
	if outside > 0 {
		warnings = append(warnings, Warning{
			Kind:    WarnNumericOutOfRange,
			Count:   outside,
			Message: fmt.Sprintf("%d record(s) dropped: negative price, negative or fractional sales volume, or a value too large to total", outside),
		})
	}

	return newDataset(records, missing+outside, warnings)
}

func newDataset(records []models.Record, dropped int, warnings []Warning) *Dataset {
	ds := &Dataset{
		records:  records,
		dropped:  dropped,
		warnings: warnings,
		loadedAt: time.Now(),
	}
	ds.index()
	return ds
}

func recordFromRow(row []string, idx map[string]int) (models.Record, coercion) {
	priceText, _ := cell(row, idx, models.ColumnPrice)
	price, result := parsePrice(priceText)
	if result != coerced {
		return models.Record{}, result
	}
	volumeText, _ := cell(row, idx, models.ColumnSalesVolume)
	volume, result := parseVolume(volumeText)
	if result != coerced {
		return models.Record{}, result
	}

	name, _ := cell(row, idx, models.ColumnName)
	return models.Record{
		Name:            name,
		Price:           price,
		SalesVolume:     volume,
		Promotion:       categorical(row, idx, models.ColumnPromotion),
		ProductPosition: categorical(row, idx, models.ColumnProductPosition),
		Seasonal:        categorical(row, idx, models.ColumnSeasonal),
		Section:         categorical(row, idx, models.ColumnSection),
		Season:          categorical(row, idx, models.ColumnSeason),
		Material:        categorical(row, idx, models.ColumnMaterial),
		Origin:          categorical(row, idx, models.ColumnOrigin),
	}, coerced
}

// index precomputes distinct values and price bounds once per load.
func (d *Dataset) index() {
	d.distinct = make(map[models.Dimension][]string, len(models.Dimensions))
	for _, dim := range models.Dimensions {
		seen := make(map[string]struct{})
		values := make([]string, 0)
		for _, r := range d.records {
			v := r.Dimension(dim)
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			values = append(values, v)
		}
		sortCategories(dim, values)
		d.distinct[dim] = values
	}

	d.bounds = DefaultPriceBounds
	d.hasPrice = false
	for i, r := range d.records {
		if i == 0 {
			d.bounds = models.PriceBounds{Min: r.Price, Max: r.Price}
			d.hasPrice = true
			continue
		}
		d.bounds.Min = min(d.bounds.Min, r.Price)
		d.bounds.Max = max(d.bounds.Max, r.Price)
	}
}

// sortCategories orders values alphabetically, except season which follows
// models.SeasonOrder with any other labels after it alphabetically.
func sortCategories(dim models.Dimension, values []string) {
	if dim != models.DimSeason {
		slices.Sort(values)
		return
	}
	slices.SortFunc(values, compareSeason)
}

func compareSeason(a, b string) int {
	ra, rb := seasonRank(a), seasonRank(b)
	if ra != rb {
		return ra - rb
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func seasonRank(s string) int {
	if i := slices.Index(models.SeasonOrder, s); i >= 0 {
		return i
	}
	return len(models.SeasonOrder)
}

// Len returns the number of valid records.
func (d *Dataset) Len() int { return len(d.records) }

// Dropped returns how many input rows had an unusable price or sales volume.
func (d *Dataset) Dropped() int { return d.dropped }

// Warnings returns the non-fatal findings of the load.
func (d *Dataset) Warnings() []Warning { return slices.Clone(d.warnings) }

// LoadedAt returns when the dataset was built.
func (d *Dataset) LoadedAt() time.Time { return d.loadedAt }

// Record returns the i-th record by value.
func (d *Dataset) Record(i int) models.Record { return d.records[i] }

// DistinctValues returns the ordered set of observed values for a dimension.
func (d *Dataset) DistinctValues(dim models.Dimension) []string {
	return slices.Clone(d.distinct[dim])
}

// ObservedPriceBounds returns the min and max price, or false when the
// dataset holds no valid price.
func (d *Dataset) ObservedPriceBounds() (models.PriceBounds, bool) {
	return d.bounds, d.hasPrice
}

// DefaultFilterSpec selects every observed value in every dimension and the
// full observed price range, falling back to DefaultPriceBounds.
func (d *Dataset) DefaultFilterSpec() models.FilterSpec {
	spec := models.FilterSpec{
		Selections: make(map[models.Dimension][]string, len(models.Dimensions)),
		PriceMin:   d.bounds.Min,
		PriceMax:   d.bounds.Max,
	}
	for _, dim := range models.Dimensions {
		spec.Selections[dim] = d.DistinctValues(dim)
	}
	return spec
}

// All returns a view over every record.
func (d *Dataset) All() *View {
	indices := make([]int, len(d.records))
	for i := range indices {
		indices[i] = i
	}
	return &View{dataset: d, indices: indices}
}
