package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-dashboard/internal/models"
)

func twoRecordDataset() *Dataset {
	return BuildDataset(models.Table{
		Header: []string{"name", "price", "Sales Volume", "season", "section"},
		Rows: [][]string{
			{"A", "10", "5", "Summer", "MAN"},
			{"B", "20", "2", "Winter", "WOMAN"},
		},
	})
}

func TestApplyFilters_SeasonExample(t *testing.T) {
	ds := twoRecordDataset()
	spec := ds.DefaultFilterSpec()
	spec.Selections[models.DimSeason] = []string{"Summer"}

	view := ApplyFilters(ds, spec)

	require.Equal(t, 1, view.Len())
	assert.Equal(t, "A", view.At(0).Name)

	summary := Summary(view)
	assert.Equal(t, 1, summary.TotalProducts)
	assert.Equal(t, int64(5), summary.TotalUnits)
	assert.Equal(t, 50.0, summary.TotalRevenue)
	assert.Equal(t, "10.00", summary.AvgPrice.String())
}

func TestApplyFilters_DefaultSpecKeepsEverything(t *testing.T) {
	ds := loadFixture(t)

	view := ApplyFilters(ds, ds.DefaultFilterSpec())

	assert.Equal(t, ds.All().Records(), view.Records())
}

func TestApplyFilters_FullSelectionEqualsPriceSubset(t *testing.T) {
	ds := loadFixture(t)
	spec := ds.DefaultFilterSpec()
	spec.PriceMin, spec.PriceMax = 10, 20

	view := ApplyFilters(ds, spec)

	names := make([]string, 0, view.Len())
	for _, r := range view.Records() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"Jacket A", "Coat B"}, names, "bounds are inclusive at both ends")
}

func TestApplyFilters_EmptySelectionMatchesNothing(t *testing.T) {
	ds := loadFixture(t)

	for _, dim := range models.Dimensions {
		t.Run(string(dim), func(t *testing.T) {
			spec := ds.DefaultFilterSpec()
			spec.Selections[dim] = nil
			assert.Zero(t, ApplyFilters(ds, spec).Len())

			delete(spec.Selections, dim)
			assert.Zero(t, ApplyFilters(ds, spec).Len())
		})
	}
}

func TestApplyFilters_DoesNotMutateDataset(t *testing.T) {
	ds := loadFixture(t)
	before := ds.All().Records()

	spec := ds.DefaultFilterSpec()
	spec.Selections[models.DimOrigin] = []string{"China"}
	_ = ApplyFilters(ds, spec)

	assert.Equal(t, before, ds.All().Records())
}

func TestValidateFilterSpec(t *testing.T) {
	ds := loadFixture(t)

	assert.NoError(t, ValidateFilterSpec(ds, ds.DefaultFilterSpec()))

	inverted := ds.DefaultFilterSpec()
	inverted.PriceMin, inverted.PriceMax = 50, 10
	var filterErr *FilterError
	require.ErrorAs(t, ValidateFilterSpec(ds, inverted), &filterErr)
	assert.Empty(t, filterErr.Dimension)

	unobserved := ds.DefaultFilterSpec()
	unobserved.Selections[models.DimOrigin] = []string{"China", "Atlantis"}
	require.ErrorAs(t, ValidateFilterSpec(ds, unobserved), &filterErr)
	assert.Equal(t, models.DimOrigin, filterErr.Dimension)
	assert.Equal(t, "Atlantis", filterErr.Value)

	bogus := ds.DefaultFilterSpec()
	bogus.Selections["colour"] = []string{"red"}
	assert.Error(t, ValidateFilterSpec(ds, bogus))
}

func TestSummary_EmptyView(t *testing.T) {
	ds := loadFixture(t)
	spec := ds.DefaultFilterSpec()
	spec.Selections[models.DimSeason] = []string{}

	summary := Summary(ApplyFilters(ds, spec))

	assert.Zero(t, summary.TotalProducts)
	assert.Zero(t, summary.TotalUnits)
	assert.Zero(t, summary.TotalRevenue)
	assert.False(t, summary.AvgPrice.Valid)
	assert.Equal(t, "N/A", summary.AvgPrice.String())

	out, err := json.Marshal(summary)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_products":0,"total_units":0,"total_revenue":0,"avg_price":"N/A"}`, string(out))
}

func TestGroupAndSum(t *testing.T) {
	ds := twoRecordDataset()

	byValue := GroupAndSum(ds.All(), models.DimSeason, models.MeasureSalesVolume, OrderValueDesc)
	assert.Equal(t, []models.GroupTotal{
		{Key: "Summer", Value: 5, Count: 1},
		{Key: "Winter", Value: 2, Count: 1},
	}, byValue)

	ordinal := BuildDataset(models.Table{
		Header: []string{"name", "price", "Sales Volume", "season"},
		Rows: [][]string{
			{"W", "1", "9", "Winter"},
			{"S", "1", "1", "Spring"},
			{"A", "1", "4", "Autumn"},
			{"W2", "1", "1", "Winter"},
		},
	})
	byCategory := GroupAndSum(ordinal.All(), models.DimSeason, models.MeasureSalesVolume, OrderCategory)
	keys := make([]string, len(byCategory))
	for i, g := range byCategory {
		keys[i] = g.Key
	}
	assert.Equal(t, []string{"Spring", "Autumn", "Winter"}, keys)
	assert.Equal(t, 10.0, byCategory[2].Value)
	assert.Equal(t, 2, byCategory[2].Count)

	firstSeen := GroupAndSum(ordinal.All(), models.DimSeason, models.MeasureSalesVolume, OrderFirstSeen)
	assert.Equal(t, "Winter", firstSeen[0].Key)
}

func TestGroupAndSum_TotalsMatchSum(t *testing.T) {
	ds := loadFixture(t)
	view := ds.All()

	for _, dim := range models.Dimensions {
		var total float64
		for _, g := range GroupAndSum(view, dim, models.MeasureRevenue, OrderValueDesc) {
			total += g.Value
		}
		assert.InDelta(t, SumMeasure(view, models.MeasureRevenue), total, 1e-9, dim)
	}
}

func TestGroupBy2(t *testing.T) {
	ds := loadFixture(t)

	groups := GroupBy2(ds.All(), models.DimSeason, models.DimMaterial, models.MeasureSalesVolume)

	require.Len(t, groups, 3)
	assert.Equal(t, "Summer", groups[0].Key)
	assert.Equal(t, []models.GroupTotal{{Key: "cotton", Value: 5, Count: 1}}, groups[0].Children)
	assert.Equal(t, "Autumn", groups[1].Key)
	assert.Equal(t, "Winter", groups[2].Key)
	assert.Equal(t, []models.GroupTotal{{Key: "wool", Value: 2, Count: 1}}, groups[2].Children)
}

func TestParseGroupOrder(t *testing.T) {
	order, err := ParseGroupOrder("")
	require.NoError(t, err)
	assert.Equal(t, OrderValueDesc, order)

	order, err = ParseGroupOrder("category")
	require.NoError(t, err)
	assert.Equal(t, OrderCategory, order)

	_, err = ParseGroupOrder("random")
	assert.Error(t, err)
}

func TestTopN(t *testing.T) {
	ds := BuildDataset(models.Table{
		Header: []string{"name", "price", "Sales Volume"},
		Rows: [][]string{
			{"a", "1", "3"},
			{"b", "1", "7"},
			{"c", "1", "3"},
			{"d", "1", "1"},
		},
	})
	view := ds.All()

	names := func(records []models.Record) []string {
		out := make([]string, len(records))
		for i, r := range records {
			out[i] = r.Name
		}
		return out
	}

	assert.Equal(t, []string{"b", "a", "c"}, names(TopN(view, models.MeasureSalesVolume, 3)), "ties keep view order")
	assert.Len(t, TopN(view, models.MeasureSalesVolume, 10), 4)
	assert.Empty(t, TopN(view, models.MeasureSalesVolume, 0))
	assert.Empty(t, TopN(view, models.MeasureSalesVolume, -2))
	assert.Equal(t, []string{"d", "a", "c", "b"}, names(SortRecords(view, models.MeasureSalesVolume, false)))
}

func TestMode(t *testing.T) {
	ds := loadFixture(t)

	mode := Mode(ds.All(), models.DimMaterial)
	assert.Equal(t, models.NullableString{Value: "wool", Valid: true}, mode)

	tie := Mode(ds.All(), models.DimPromotion)
	assert.Equal(t, "No", tie.Value, "Yes, No and Unknown all appear once")

	spec := ds.DefaultFilterSpec()
	spec.Selections[models.DimMaterial] = nil
	empty := Mode(ApplyFilters(ds, spec), models.DimMaterial)
	assert.False(t, empty.Valid)
	assert.Equal(t, "N/A", empty.String())
}

func TestScatter(t *testing.T) {
	ds := twoRecordDataset()

	points := Scatter(ds.All())

	require.Len(t, points, 2)
	assert.Equal(t, models.ScatterPoint{Name: "A", Price: 10, SalesVolume: 5, Revenue: 50, Promotion: models.Unknown}, points[0])
}
