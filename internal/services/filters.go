package services

import (
	"fmt"
	"slices"
	"strings"

	"sales-dashboard/internal/models"
)

// View is an ordered subset of a Dataset held as indices into it. It never
// copies or mutates the underlying records.
type View struct {
	dataset *Dataset
	indices []int
}

// Len returns the number of records in the view.
func (v *View) Len() int { return len(v.indices) }

// At returns the i-th record of the view.
func (v *View) At(i int) models.Record { return v.dataset.records[v.indices[i]] }

// Records copies the view's records in dataset order.
func (v *View) Records() []models.Record {
	out := make([]models.Record, len(v.indices))
	for i, idx := range v.indices {
		out[i] = v.dataset.records[idx]
	}
	return out
}

// Dataset returns the dataset the view reads from.
func (v *View) Dataset() *Dataset { return v.dataset }

// ApplyFilters returns the records matching every predicate of spec, in
// dataset order. Price bounds are inclusive; a dimension with no selected
// values matches nothing.
func ApplyFilters(ds *Dataset, spec models.FilterSpec) *View {
	sets := make(map[models.Dimension]map[string]struct{}, len(models.Dimensions))
	for _, dim := range models.Dimensions {
		selected := spec.Selections[dim]
		if len(selected) == 0 {
			return &View{dataset: ds, indices: []int{}}
		}
		set := make(map[string]struct{}, len(selected))
		for _, v := range selected {
			set[v] = struct{}{}
		}
		sets[dim] = set
	}

	indices := make([]int, 0, len(ds.records))
	for i, r := range ds.records {
		if r.Price < spec.PriceMin || r.Price > spec.PriceMax {
			continue
		}
		pass := true
		for dim, set := range sets {
			if _, ok := set[r.Dimension(dim)]; !ok {
				pass = false
				break
			}
		}
		if pass {
			indices = append(indices, i)
		}
	}
	return &View{dataset: ds, indices: indices}
}

// FilterError reports a FilterSpec that does not fit the dataset.
type FilterError struct {
	Dimension models.Dimension
	Value     string
	Reason    string
}

func (e *FilterError) Error() string {
	if e.Dimension != "" {
		return fmt.Sprintf("filter %s: %s", e.Dimension, e.Reason)
	}
	return "filter: " + e.Reason
}

// ValidateFilterSpec checks that every selected value was observed in the
// dataset and that the price interval is not inverted.
func ValidateFilterSpec(ds *Dataset, spec models.FilterSpec) error {
	if spec.PriceMin > spec.PriceMax {
		return &FilterError{Reason: fmt.Sprintf("price_min %.2f exceeds price_max %.2f", spec.PriceMin, spec.PriceMax)}
	}
	for dim, selected := range spec.Selections {
		if !dim.Valid() {
			return &FilterError{Dimension: dim, Reason: "unknown dimension"}
		}
		observed := ds.distinct[dim]
		var unknown []string
		for _, v := range selected {
			if !slices.Contains(observed, v) {
				unknown = append(unknown, v)
			}
		}
		if len(unknown) > 0 {
			return &FilterError{
				Dimension: dim,
				Value:     unknown[0],
				Reason:    "values not present in dataset: " + strings.Join(unknown, ", "),
			}
		}
	}
	return nil
}
