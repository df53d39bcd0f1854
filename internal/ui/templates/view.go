package templates

//go:generate go run github.com/a-h/templ/cmd/templ@v0.3.943 generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"

	"github.com/a-h/templ"

	"sales-dashboard/internal/models"
	"sales-dashboard/internal/services"
)

const (
	maxScatterPoints = 2000

	plotWidth  = 640.0
	plotHeight = 320.0
	plotPad    = 40.0
)

var exportFormats = []services.ExportFormat{services.FormatCSV, services.FormatTSV, services.FormatXLSX}

// DashboardData is everything the dashboard page needs for one session.
type DashboardData struct {
	SessionID  string
	Source     string
	Records    int
	Dropped    int
	Dimensions []models.DimensionValues
	Filters    models.FilterSpec
	Bounds     models.PriceBounds
	Snapshot   *services.Snapshot
}

// RenderString renders a component for an SSE element patch.
func RenderString(ctx context.Context, c templ.Component) (string, error) {
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FilterSignals encodes a FilterSpec as the filter panel's datastar signals.
func FilterSignals(spec models.FilterSpec) (string, error) {
	signals := make(map[string]any, len(models.Dimensions)+2)
	for _, dim := range models.Dimensions {
		values := spec.Selections[dim]
		if values == nil {
			values = []string{}
		}
		signals[string(dim)] = values
	}
	signals["priceMin"] = spec.PriceMin
	signals["priceMax"] = spec.PriceMax

	out, err := json.Marshal(signals)
	if err != nil {
		return "", fmt.Errorf("encode filter signals: %w", err)
	}
	return string(out), nil
}

func ssePost(sessionID, action string) string {
	return "@post('/sse/sessions/" + url.PathEscape(sessionID) + "/" + action + "')"
}

func exportPath(sessionID string, f services.ExportFormat) string {
	return "/api/sessions/" + url.PathEscape(sessionID) + "/export?format=" + string(f)
}

func formatUnits(v float64) string {
	return services.FormatUnits(int64(math.Round(v)))
}

type metric struct {
	label string
	value string
}

func headlineMetrics(m models.SummaryMetrics, topMaterial models.NullableString) []metric {
	avg := models.NA
	if m.AvgPrice.Valid {
		avg = services.FormatPrice(m.AvgPrice.Value)
	}
	return []metric{
		{"Total Products", services.FormatUnits(int64(m.TotalProducts))},
		{"Total Units Sold", services.FormatUnits(m.TotalUnits)},
		{"Total Revenue", services.FormatCurrency(m.TotalRevenue)},
		{"Average Price", avg},
		{"Top Material", topMaterial.String()},
	}
}

func peakValue(groups []models.GroupTotal) float64 {
	peak := 0.0
	for _, g := range groups {
		peak = max(peak, g.Value)
	}
	return peak
}

func barWidth(v, peak float64) templ.SafeCSS {
	return templ.SafeCSS(fmt.Sprintf("width:%.1f%%;", 100*scale(v, peak)))
}

// scatterMark is one circle of the scatter plot in SVG coordinates.
type scatterMark struct {
	cx, cy, r string
	fill      string
	label     string
}

func plotScatter(points []models.ScatterPoint) []scatterMark {
	if len(points) > maxScatterPoints {
		points = points[:maxScatterPoints]
	}
	var maxPrice, maxVolume, maxRevenue float64
	for _, p := range points {
		maxPrice = max(maxPrice, p.Price)
		maxVolume = max(maxVolume, float64(p.SalesVolume))
		maxRevenue = max(maxRevenue, p.Revenue)
	}

	marks := make([]scatterMark, 0, len(points))
	for _, p := range points {
		x := plotPad + scale(p.Price, maxPrice)*(plotWidth-2*plotPad)
		y := plotHeight - plotPad - scale(float64(p.SalesVolume), maxVolume)*(plotHeight-2*plotPad)
		r := 3 + 10*math.Sqrt(scale(p.Revenue, maxRevenue))
		marks = append(marks, scatterMark{
			cx:    fmt.Sprintf("%.1f", x),
			cy:    fmt.Sprintf("%.1f", y),
			r:     fmt.Sprintf("%.1f", r),
			fill:  promotionColour(p.Promotion),
			label: fmt.Sprintf("%s: %s, %s units", p.Name, services.FormatPrice(p.Price), services.FormatUnits(p.SalesVolume)),
		})
	}
	return marks
}

func scale(v, peak float64) float64 {
	if peak <= 0 {
		return 0
	}
	return v / peak
}

func promotionColour(promotion string) string {
	switch promotion {
	case "Yes":
		return "#6366f1"
	case "No":
		return "#f59e0b"
	default:
		return "#9ca3af"
	}
}
