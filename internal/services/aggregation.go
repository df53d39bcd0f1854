package services

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"sales-dashboard/internal/models"
)

// GroupOrder selects how grouped results are sorted.
type GroupOrder string

const (
	// OrderValueDesc sorts by the summed measure, largest first. Ties keep
	// first-seen order.
	OrderValueDesc GroupOrder = "value_desc"
	// OrderCategory sorts by the dimension's natural order: the season
	// sequence for season, alphabetical otherwise.
	OrderCategory GroupOrder = "category"
	// OrderFirstSeen keeps the order in which categories first appear.
	OrderFirstSeen GroupOrder = "first_seen"
)

// ParseGroupOrder validates an order name; empty means OrderValueDesc.
func ParseGroupOrder(s string) (GroupOrder, error) {
	switch GroupOrder(s) {
	case "":
		return OrderValueDesc, nil
	case OrderValueDesc, OrderCategory, OrderFirstSeen:
		return GroupOrder(s), nil
	}
	return "", fmt.Errorf("unsupported group order %q", s)
}

// Summary computes the headline metrics. The mean price of an empty view is
// undefined rather than zero.
func Summary(v *View) models.SummaryMetrics {
	var m models.SummaryMetrics
	var priceSum float64
	for i := 0; i < v.Len(); i++ {
		r := v.At(i)
		m.TotalUnits = addUnits(m.TotalUnits, r.SalesVolume)
		m.TotalRevenue = addFinite(m.TotalRevenue, r.Revenue)
		priceSum = addFinite(priceSum, r.Price)
	}
	m.TotalProducts = v.Len()
	if m.TotalProducts > 0 {
		m.AvgPrice = models.NullableFloat{Value: priceSum / float64(m.TotalProducts), Valid: true}
	}
	return m
}

// addUnits adds a non-negative volume, saturating at math.MaxInt64.
func addUnits(total, n int64) int64 {
	if total > math.MaxInt64-n {
		return math.MaxInt64
	}
	return total + n
}

// addFinite adds two finite values, saturating at ±math.MaxFloat64 so
// totals stay finite and JSON-encodable.
func addFinite(a, b float64) float64 {
	sum := a + b
	switch {
	case math.IsInf(sum, 1):
		return math.MaxFloat64
	case math.IsInf(sum, -1):
		return -math.MaxFloat64
	}
	return sum
}

// SumMeasure sums a measure across the view.
func SumMeasure(v *View, measure models.Measure) float64 {
	var total float64
	for i := 0; i < v.Len(); i++ {
		total = addFinite(total, v.At(i).Measure(measure))
	}
	return total
}

// GroupAndSum sums a measure per category of dim.
func GroupAndSum(v *View, dim models.Dimension, measure models.Measure, order GroupOrder) []models.GroupTotal {
	groups := make([]models.GroupTotal, 0)
	pos := make(map[string]int)
	for i := 0; i < v.Len(); i++ {
		r := v.At(i)
		key := r.Dimension(dim)
		j, ok := pos[key]
		if !ok {
			j = len(groups)
			pos[key] = j
			groups = append(groups, models.GroupTotal{Key: key})
		}
		groups[j].Value = addFinite(groups[j].Value, r.Measure(measure))
		groups[j].Count++
	}
	sortGroups(groups, dim, order)
	return groups
}

// GroupBy2 sums a measure per outer category and, within each, per inner
// category. Outer groups use OrderCategory; inner groups OrderValueDesc.
func GroupBy2(v *View, outer, inner models.Dimension, measure models.Measure) []models.GroupTotal {
	top := GroupAndSum(v, outer, measure, OrderCategory)
	members := make(map[string][]int, len(top))
	for i := 0; i < v.Len(); i++ {
		key := v.At(i).Dimension(outer)
		members[key] = append(members[key], v.indices[i])
	}
	for i := range top {
		sub := &View{dataset: v.dataset, indices: members[top[i].Key]}
		top[i].Children = GroupAndSum(sub, inner, measure, OrderValueDesc)
	}
	return top
}

func sortGroups(groups []models.GroupTotal, dim models.Dimension, order GroupOrder) {
	switch order {
	case OrderValueDesc:
		slices.SortStableFunc(groups, func(a, b models.GroupTotal) int {
			return cmp.Compare(b.Value, a.Value)
		})
	case OrderCategory:
		if dim == models.DimSeason {
			slices.SortStableFunc(groups, func(a, b models.GroupTotal) int {
				return compareSeason(a.Key, b.Key)
			})
			return
		}
		slices.SortStableFunc(groups, func(a, b models.GroupTotal) int {
			return cmp.Compare(a.Key, b.Key)
		})
	}
}

// TopN returns up to n records with the largest measure, largest first.
// Ties keep view order.
func TopN(v *View, measure models.Measure, n int) []models.Record {
	if n <= 0 || v.Len() == 0 {
		return []models.Record{}
	}
	records := SortRecords(v, measure, true)
	return records[:min(n, len(records))]
}

// SortRecords returns the view's records sorted by measure. The sort is
// stable, so equal values keep view order in either direction.
func SortRecords(v *View, measure models.Measure, descending bool) []models.Record {
	records := v.Records()
	slices.SortStableFunc(records, func(a, b models.Record) int {
		if descending {
			return cmp.Compare(b.Measure(measure), a.Measure(measure))
		}
		return cmp.Compare(a.Measure(measure), b.Measure(measure))
	})
	return records
}

// Mode returns the most frequent category of dim. Ties resolve to the
// alphabetically smallest value; an empty view has no mode.
func Mode(v *View, dim models.Dimension) models.NullableString {
	if v.Len() == 0 {
		return models.NullableString{}
	}
	counts := make(map[string]int)
	for i := 0; i < v.Len(); i++ {
		counts[v.At(i).Dimension(dim)]++
	}
	var best string
	bestCount := 0
	for value, c := range counts {
		if c > bestCount || (c == bestCount && value < best) {
			best, bestCount = value, c
		}
	}
	return models.NullableString{Value: best, Valid: true}
}

// Scatter projects the view for the price versus volume chart.
func Scatter(v *View) []models.ScatterPoint {
	points := make([]models.ScatterPoint, v.Len())
	for i := range points {
		r := v.At(i)
		points[i] = models.ScatterPoint{
			Name:        r.Name,
			Price:       r.Price,
			SalesVolume: r.SalesVolume,
			Revenue:     r.Revenue,
			Promotion:   r.Promotion,
		}
	}
	return points
}
