package templates

import (
	"context"
	"strings"
	"testing"

	"sales-dashboard/internal/models"
	"sales-dashboard/internal/services"
)

func testData(t *testing.T) DashboardData {
	t.Helper()
	ds, err := services.Load(services.RawInput{Data: []byte(
		"name,price,Sales Volume,Promotion,season,material\n" +
			"<b>Coat</b>,20,2,Yes,Winter,wool\n" +
			"Tee,10,5,No,Summer,cotton\n"),
	})
	if err != nil {
		t.Fatal(err)
	}
	snap, err := services.BuildSnapshot(context.Background(), ds.All(), 5)
	if err != nil {
		t.Fatal(err)
	}
	dims := make([]models.DimensionValues, 0, len(models.Dimensions))
	for _, dim := range models.Dimensions {
		dims = append(dims, models.DimensionValues{Dimension: dim, Label: dim.Label(), Values: ds.DistinctValues(dim)})
	}
	bounds, _ := ds.ObservedPriceBounds()
	return DashboardData{
		SessionID:  "abc",
		Source:     "sales.csv",
		Records:    ds.Len(),
		Dimensions: dims,
		Filters:    ds.DefaultFilterSpec(),
		Bounds:     bounds,
		Snapshot:   snap,
	}
}

func TestDashboard_Render(t *testing.T) {
	html, err := RenderString(context.Background(), Layout("Sales Dashboard", Dashboard(testData(t))))
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	expected := []string{
		`<title>Sales Dashboard</title>`,
		`id="filters"`,
		`data-on:change="@post(&#39;/sse/sessions/abc/filters&#39;)"`,
		`data-bind:season value="Winter" checked`,
		`id="panels"`,
		`Total Revenue`,
		`$90`,
		`$15.00`,
		`Top Material`,
		`/api/sessions/abc/export?format=xlsx`,
		`&lt;b&gt;Coat&lt;/b&gt;`,
		`style="width:100.0%;"`,
		`<title>&lt;b&gt;Coat&lt;/b&gt;: $20.00, 2 units</title>`,
	}
	for _, want := range expected {
		if !strings.Contains(html, want) {
			t.Errorf("rendered page missing %q", want)
		}
	}
	if strings.Contains(html, "<b>Coat</b>") {
		t.Error("product names must be escaped")
	}
}

func TestPanels_EmptySnapshot(t *testing.T) {
	snap := &services.Snapshot{
		Warnings: []services.Warning{{Kind: services.WarnEmptyResult, Message: "no records match the current filters"}},
	}

	html, err := RenderString(context.Background(), Panels(snap))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"no records match", "N/A", `id="season-revenue"`} {
		if !strings.Contains(html, want) {
			t.Errorf("empty panels missing %q", want)
		}
	}
}

func TestFilterSignals(t *testing.T) {
	spec := models.FilterSpec{
		Selections: map[models.Dimension][]string{models.DimSeason: {"Summer"}},
		PriceMin:   1,
		PriceMax:   9.5,
	}

	got, err := FilterSignals(spec)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"season":["Summer"]`, `"origin":[]`, `"priceMax":9.5`} {
		if !strings.Contains(got, want) {
			t.Errorf("signals %s missing %s", got, want)
		}
	}
}

func TestLanding(t *testing.T) {
	html, err := RenderString(context.Background(), Landing(`bad "file"`))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(html, `bad &#34;file&#34;`) {
		t.Errorf("error message not escaped: %s", html)
	}
	if !strings.Contains(html, `name="paste"`) {
		t.Error("paste form missing")
	}
}

func TestPlotScatter_CapsPoints(t *testing.T) {
	points := make([]models.ScatterPoint, maxScatterPoints+10)
	for i := range points {
		points[i] = models.ScatterPoint{Name: "p", Price: float64(i), SalesVolume: 1, Revenue: float64(i), Promotion: "Yes"}
	}

	marks := plotScatter(points)
	if len(marks) != maxScatterPoints {
		t.Fatalf("expected %d marks, got %d", maxScatterPoints, len(marks))
	}
	if marks[0].cx != "40.0" || marks[0].fill != "#6366f1" {
		t.Errorf("unexpected first mark %+v", marks[0])
	}
}

func TestBarWidth(t *testing.T) {
	if got := barWidth(5, 20); got != "width:25.0%;" {
		t.Errorf("barWidth(5, 20) = %q", got)
	}
	if got := barWidth(5, 0); got != "width:0.0%;" {
		t.Errorf("barWidth(5, 0) = %q", got)
	}
}
