package services

import (
	"context"

	"golang.org/x/sync/errgroup"

	"sales-dashboard/internal/models"
)

const maxWorkers = 4

// Snapshot is every panel of the dashboard computed from one FilteredView.
type Snapshot struct {
	Summary        models.SummaryMetrics `json:"summary"`
	TopMaterial    models.NullableString `json:"top_material"`
	PositionVolume []models.GroupTotal   `json:"position_volume"`
	SeasonRevenue  []models.GroupTotal   `json:"season_revenue"`
	SeasonalVolume []models.GroupTotal   `json:"seasonal_volume"`
	OriginVolume   []models.GroupTotal   `json:"origin_volume"`
	SeasonMaterial []models.GroupTotal   `json:"season_material"`
	TopProducts    []models.Record       `json:"top_products"`
	Scatter        []models.ScatterPoint `json:"scatter"`
	Warnings       []Warning             `json:"warnings,omitempty"`
}

// BuildSnapshot computes all panels. The view is read-only, so panels run
// concurrently; the call returns only once every panel is complete.
func BuildSnapshot(ctx context.Context, v *View, topN int) (*Snapshot, error) {
	snap := &Snapshot{}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	panels := []func(){
		func() { snap.Summary = Summary(v) },
		func() { snap.TopMaterial = Mode(v, models.DimMaterial) },
		func() { snap.PositionVolume = GroupAndSum(v, models.DimPosition, models.MeasureSalesVolume, OrderValueDesc) },
		func() { snap.SeasonRevenue = GroupAndSum(v, models.DimSeason, models.MeasureRevenue, OrderCategory) },
		func() { snap.SeasonalVolume = GroupAndSum(v, models.DimSeasonal, models.MeasureSalesVolume, OrderCategory) },
		func() { snap.OriginVolume = GroupAndSum(v, models.DimOrigin, models.MeasureSalesVolume, OrderValueDesc) },
		func() {
			snap.SeasonMaterial = GroupBy2(v, models.DimSeason, models.DimMaterial, models.MeasureSalesVolume)
		},
		func() { snap.TopProducts = TopN(v, models.MeasureSalesVolume, topN) },
		func() { snap.Scatter = Scatter(v) },
	}

	for _, panel := range panels {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			panel()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap.Warnings = ViewWarnings(v)
	return snap, nil
}

// ViewWarnings reports an empty view so callers can show a notice next to
// the N/A metrics.
func ViewWarnings(v *View) []Warning {
	if v.Len() > 0 {
		return nil
	}
	return []Warning{{
		Kind:    WarnEmptyResult,
		Message: "no records match the current filters",
	}}
}
