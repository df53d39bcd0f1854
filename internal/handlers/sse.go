package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/starfederation/datastar-go/datastar"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/models"
	"sales-dashboard/internal/observability"
	"sales-dashboard/internal/services"
	"sales-dashboard/internal/ui/templates"
)

type SSEHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
	topN      int
}

func NewSSEHandlers(analytics *services.Analytics, logger *slog.Logger, topN int) *SSEHandlers {
	if topN <= 0 {
		topN = 10
	}
	return &SSEHandlers{
		analytics: analytics,
		logger:    logger,
		topN:      topN,
	}
}

// filterSignals mirrors the signals declared by the filter panel.
type filterSignals struct {
	Promotion []string `json:"promotion"`
	Position  []string `json:"position"`
	Seasonal  []string `json:"seasonal"`
	Section   []string `json:"section"`
	Season    []string `json:"season"`
	Material  []string `json:"material"`
	Origin    []string `json:"origin"`
	PriceMin  *float64 `json:"priceMin"`
	PriceMax  *float64 `json:"priceMax"`
}

func (f filterSignals) spec(current models.FilterSpec) models.FilterSpec {
	next := models.FilterSpec{
		Selections: map[models.Dimension][]string{
			models.DimPromotion: f.Promotion,
			models.DimPosition:  f.Position,
			models.DimSeasonal:  f.Seasonal,
			models.DimSection:   f.Section,
			models.DimSeason:    f.Season,
			models.DimMaterial:  f.Material,
			models.DimOrigin:    f.Origin,
		},
		PriceMin: current.PriceMin,
		PriceMax: current.PriceMax,
	}
	if f.PriceMin != nil {
		next.PriceMin = *f.PriceMin
	}
	if f.PriceMax != nil {
		next.PriceMax = *f.PriceMax
	}
	return next
}

func (h *SSEHandlers) session(w http.ResponseWriter, r *http.Request) (*services.Session, context.Context, bool) {
	id := r.PathValue("id")
	ctx := observability.WithSessionID(r.Context(), id)
	s, err := h.analytics.Session(id)
	if err != nil {
		errors.WriteError(w, observability.LoggerFrom(ctx, h.logger), requestError(err), observability.GetRequestID(ctx))
		return nil, ctx, false
	}
	return s, ctx, true
}

func (h *SSEHandlers) renderPanels(ctx context.Context, s *services.Session) (string, error) {
	snap, err := h.analytics.Snapshot(ctx, s, h.topN)
	if err != nil {
		return "", err
	}
	return templates.RenderString(ctx, templates.Panels(snap))
}

func (h *SSEHandlers) patchPanels(ctx context.Context, sse *datastar.ServerSentEventGenerator, s *services.Session) {
	logger := observability.LoggerFrom(ctx, h.logger)

	html, err := h.renderPanels(ctx, s)
	if err != nil {
		logger.Error("render panels", "error", err)
		return
	}
	if err := sse.PatchElements(html); err != nil {
		logger.Warn("patch panels", "error", err)
	}
}

func (h *SSEHandlers) patchWarning(ctx context.Context, sse *datastar.ServerSentEventGenerator, message string) {
	html, err := templates.RenderString(ctx, templates.Warnings([]services.Warning{{
		Kind:    services.WarnInvalidFilter,
		Message: message,
	}}))
	if err != nil {
		observability.LoggerFrom(ctx, h.logger).Error("render warning", "error", err)
		return
	}
	if err := sse.PatchElements(html); err != nil {
		observability.LoggerFrom(ctx, h.logger).Warn("patch warning", "error", err)
	}
}

// HandleRefresh re-renders every panel for the session's current filters.
func (h *SSEHandlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	s, ctx, ok := h.session(w, r)
	if !ok {
		return
	}

	sse := datastar.NewSSE(w, r)
	h.patchPanels(ctx, sse, s)
}

// HandleFilters applies the filter panel's signals and re-renders the
// panels. An invalid selection leaves the previous filters in place.
func (h *SSEHandlers) HandleFilters(w http.ResponseWriter, r *http.Request) {
	s, ctx, ok := h.session(w, r)
	if !ok {
		return
	}

	var signals filterSignals
	readErr := datastar.ReadSignals(r, &signals)

	sse := datastar.NewSSE(w, r)
	if readErr != nil {
		observability.LoggerFrom(ctx, h.logger).Warn("read filter signals", "error", readErr)
		h.patchWarning(ctx, sse, "could not read the filter selection")
		return
	}

	if err := s.SetFilters(signals.spec(s.Filters())); err != nil {
		h.patchWarning(ctx, sse, err.Error())
		return
	}
	h.patchPanels(ctx, sse, s)
}

// HandleResetFilters restores the default filters, then patches both the
// filter panel signals and the panels.
func (h *SSEHandlers) HandleResetFilters(w http.ResponseWriter, r *http.Request) {
	s, ctx, ok := h.session(w, r)
	if !ok {
		return
	}
	logger := observability.LoggerFrom(ctx, h.logger)

	spec := s.ResetFilters()
	signals, err := templates.FilterSignals(spec)
	if err != nil {
		logger.Error("encode filter signals", "error", err)
		return
	}

	sse := datastar.NewSSE(w, r)
	if err := sse.PatchSignals([]byte(signals)); err != nil {
		logger.Warn("patch signals", "error", err)
		return
	}
	h.patchPanels(ctx, sse, s)
}
