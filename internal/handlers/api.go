package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/models"
	"sales-dashboard/internal/observability"
	"sales-dashboard/internal/services"
)

// Options tunes request handling.
type Options struct {
	MaxUploadBytes   int64
	DefaultDelimiter services.Delimiter
	TopN             int
}

func (o Options) withDefaults() Options {
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = 32 << 20
	}
	if o.DefaultDelimiter == "" {
		o.DefaultDelimiter = services.DelimiterAuto
	}
	if o.TopN <= 0 {
		o.TopN = 10
	}
	return o
}

type APIHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
	validate  *validator.Validate
	opts      Options
}

func NewAPIHandlers(analytics *services.Analytics, logger *slog.Logger, opts Options) *APIHandlers {
	return &APIHandlers{
		analytics: analytics,
		logger:    logger,
		validate:  newValidator(),
		opts:      opts.withDefaults(),
	}
}

type sessionResponse struct {
	ID          string             `json:"id"`
	Source      string             `json:"source"`
	CreatedAt   time.Time          `json:"created_at"`
	Records     int                `json:"records"`
	Dropped     int                `json:"dropped"`
	PriceBounds models.PriceBounds `json:"price_bounds"`
	Warnings    []services.Warning `json:"warnings"`
}

func newSessionResponse(s *services.Session) sessionResponse {
	ds := s.Dataset()
	bounds, _ := ds.ObservedPriceBounds()
	warnings := ds.Warnings()
	if warnings == nil {
		warnings = []services.Warning{}
	}
	return sessionResponse{
		ID:          s.ID,
		Source:      s.Source,
		CreatedAt:   s.CreatedAt,
		Records:     ds.Len(),
		Dropped:     ds.Dropped(),
		PriceBounds: bounds,
		Warnings:    warnings,
	}
}

type filtersResponse struct {
	Filters models.FilterSpec `json:"filters"`
	Matched int               `json:"matched"`
}

func (h *APIHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	errors.WriteError(w, observability.LoggerFrom(r.Context(), h.logger), requestError(err), observability.GetRequestID(r.Context()))
}

// session resolves the {id} path value and tags the request context with it.
func (h *APIHandlers) session(r *http.Request) (*services.Session, *http.Request, error) {
	id := r.PathValue("id")
	s, err := h.analytics.Session(id)
	if err != nil {
		return nil, r, err
	}
	return s, r.WithContext(observability.WithSessionID(r.Context(), id)), nil
}

func (h *APIHandlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := observability.StartSpan(r.Context(), "load")
	defer span.End(h.logger)

	in, err := readUpload(w, r, h.opts.MaxUploadBytes, h.opts.DefaultDelimiter)
	if err != nil {
		span.SetError(err)
		h.fail(w, r, err)
		return
	}
	span.SetTag("bytes", fmt.Sprint(len(in.Data)))

	s, err := h.analytics.Upload(in)
	if err != nil {
		span.SetError(err)
		h.fail(w, r, err)
		return
	}

	observability.LoggerFrom(observability.WithSessionID(ctx, s.ID), h.logger).Info("dataset uploaded",
		"source", s.Source,
		"records", s.Dataset().Len(),
		"dropped", s.Dataset().Dropped(),
	)
	errors.WriteSuccessStatus(w, http.StatusCreated, newSessionResponse(s))
}

func (h *APIHandlers) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.analytics.Sessions().Delete(r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	s, r, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccess(w, newSessionResponse(s))
}

func (h *APIHandlers) HandleDimensions(w http.ResponseWriter, r *http.Request) {
	s, r, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ds := s.Dataset()
	bounds, observed := ds.ObservedPriceBounds()
	errors.WriteSuccess(w, map[string]any{
		"dimensions":            dimensionValues(ds),
		"price_bounds":          bounds,
		"price_bounds_observed": observed,
	})
}

func dimensionValues(ds *services.Dataset) []models.DimensionValues {
	out := make([]models.DimensionValues, 0, len(models.Dimensions))
	for _, dim := range models.Dimensions {
		out = append(out, models.DimensionValues{
			Dimension: dim,
			Label:     dim.Label(),
			Values:    ds.DistinctValues(dim),
		})
	}
	return out
}

func (h *APIHandlers) HandleGetFilters(w http.ResponseWriter, r *http.Request) {
	s, r, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccess(w, filtersResponse{Filters: s.Filters(), Matched: h.analytics.FilteredView(s).Len()})
}

func (h *APIHandlers) HandlePutFilters(w http.ResponseWriter, r *http.Request) {
	s, r, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var update filterUpdate
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFilterBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&update); err != nil {
		h.fail(w, r, errors.BadRequestWrap(err, "invalid filter body").WithDetails(err.Error()))
		return
	}
	if err := h.validate.Struct(update); err != nil {
		h.fail(w, r, validationError(err))
		return
	}

	if err := s.SetFilters(update.apply(s.Filters())); err != nil {
		h.fail(w, r, err)
		return
	}
	view := h.analytics.FilteredView(s)
	observability.LoggerFrom(r.Context(), h.logger).Debug("filters updated", "matched", view.Len())
	errors.WriteSuccess(w, filtersResponse{Filters: s.Filters(), Matched: view.Len()})
}

func (h *APIHandlers) HandleResetFilters(w http.ResponseWriter, r *http.Request) {
	s, r, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	spec := s.ResetFilters()
	errors.WriteSuccess(w, filtersResponse{Filters: spec, Matched: h.analytics.FilteredView(s).Len()})
}

func (h *APIHandlers) HandleSummary(w http.ResponseWriter, r *http.Request) {
	s, r, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view := h.analytics.FilteredView(s)
	errors.WriteSuccess(w, map[string]any{
		"summary":      services.Summary(view),
		"top_material": services.Mode(view, models.DimMaterial),
		"warnings":     nonNil(services.ViewWarnings(view)),
	})
}

func (h *APIHandlers) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	s, r, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	topN, err := intParam(r.URL.Query(), "n", h.opts.TopN)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	snap, err := h.analytics.Snapshot(r.Context(), s, topN)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccess(w, snap)
}

func (h *APIHandlers) HandleGrouped(w http.ResponseWriter, r *http.Request) {
	s, r, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := parseGroupedQuery(r.URL.Query())
	if err := h.validate.Struct(q); err != nil {
		h.fail(w, r, validationError(err))
		return
	}
	order, err := services.ParseGroupOrder(q.Order)
	if err != nil {
		h.fail(w, r, errors.ValidationWrap(err, err.Error()))
		return
	}

	view := h.analytics.FilteredView(s)
	errors.WriteSuccess(w, map[string]any{
		"dimension": q.Dimension,
		"measure":   measureOr(q.Measure, models.MeasureSalesVolume),
		"groups":    services.GroupAndSum(view, models.Dimension(q.Dimension), measureOr(q.Measure, models.MeasureSalesVolume), order),
		"warnings":  nonNil(services.ViewWarnings(view)),
	})
}

func (h *APIHandlers) HandleGrouped2(w http.ResponseWriter, r *http.Request) {
	s, r, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := parseGrouped2Query(r.URL.Query())
	if err := h.validate.Struct(q); err != nil {
		h.fail(w, r, validationError(err))
		return
	}

	measure := measureOr(q.Measure, models.MeasureSalesVolume)
	view := h.analytics.FilteredView(s)
	errors.WriteSuccess(w, map[string]any{
		"outer":   q.Outer,
		"inner":   q.Inner,
		"measure": measure,
		"groups":  services.GroupBy2(view, models.Dimension(q.Outer), models.Dimension(q.Inner), measure),
	})
}

func (h *APIHandlers) HandleTop(w http.ResponseWriter, r *http.Request) {
	s, r, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := parseTopQuery(r.URL.Query(), h.opts.TopN)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.validate.Struct(q); err != nil {
		h.fail(w, r, validationError(err))
		return
	}

	measure := measureOr(q.Measure, models.MeasureSalesVolume)
	errors.WriteSuccess(w, map[string]any{
		"measure":  measure,
		"n":        q.N,
		"products": services.TopN(h.analytics.FilteredView(s), measure, q.N),
	})
}

func (h *APIHandlers) HandleMode(w http.ResponseWriter, r *http.Request) {
	s, r, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := modeQuery{Dimension: r.URL.Query().Get("dimension")}
	if err := h.validate.Struct(q); err != nil {
		h.fail(w, r, validationError(err))
		return
	}
	errors.WriteSuccess(w, map[string]any{
		"dimension": q.Dimension,
		"mode":      services.Mode(h.analytics.FilteredView(s), models.Dimension(q.Dimension)),
	})
}

func (h *APIHandlers) HandleTable(w http.ResponseWriter, r *http.Request) {
	s, r, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := parseTableQuery(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.validate.Struct(q); err != nil {
		h.fail(w, r, validationError(err))
		return
	}

	view := h.analytics.FilteredView(s)
	columns, rows, err := services.TableRows(view, q.options(models.MeasureSalesVolume), q.Limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccess(w, map[string]any{
		"columns": columns,
		"rows":    rows,
		"total":   view.Len(),
	})
}

func (h *APIHandlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	s, r, err := h.session(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q, err := parseExportQuery(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.validate.Struct(q); err != nil {
		h.fail(w, r, validationError(err))
		return
	}
	opts := q.options("")
	if err := opts.Validate(); err != nil {
		h.fail(w, r, err)
		return
	}

	format := services.ExportFormat(q.Format)
	if format == "" {
		format = services.FormatCSV
	}

	_, span := observability.StartSpan(r.Context(), "export")
	span.SetTag("format", string(format))
	defer span.End(h.logger)

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename()))
	w.Header().Set("Cache-Control", "no-store")
	if err := h.analytics.Export(w, s, format, opts); err != nil {
		// headers are already sent; the client sees a truncated file
		span.SetError(err)
		observability.LoggerFrom(r.Context(), h.logger).Error("export failed", "format", format, "error", err)
	}
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	healthData := map[string]any{
		"status":      "healthy",
		"timestamp":   time.Now().Format(time.RFC3339),
		"version":     "1.0.0",
		"seed_loaded": h.analytics.Seed() != nil,
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := h.analytics.Stats()

	errors.WriteSuccess(w, stats)
}

func nonNil(warnings []services.Warning) []services.Warning {
	if warnings == nil {
		return []services.Warning{}
	}
	return warnings
}
