package handlers

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/a-h/templ"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/observability"
	"sales-dashboard/internal/services"
	"sales-dashboard/internal/ui/templates"
)

const (
	renderTimeout = 10 * time.Second
	pageTitle     = "Sales Dashboard"
	sessionCookie = "sales_dashboard_session"
)

// PageHandlers serve the server-rendered HTML pages.
type PageHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
	opts      Options
}

func NewPageHandlers(analytics *services.Analytics, logger *slog.Logger, opts Options) *PageHandlers {
	return &PageHandlers{
		analytics: analytics,
		logger:    logger,
		opts:      opts.withDefaults(),
	}
}

func (h *PageHandlers) render(w http.ResponseWriter, r *http.Request, status int, body templ.Component) {
	ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
	defer cancel()

	html, err := templates.RenderString(ctx, templates.Layout(pageTitle, body))
	if err != nil {
		observability.LoggerFrom(ctx, h.logger).Error("render page", "error", err)
		http.Error(w, "render error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(html))
}

// HandleHome sends a returning visitor back to their live session. Otherwise
// it opens a session on the sample dataset when one is loaded and shows the
// upload form when not.
func (h *PageHandlers) HandleHome(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if s, err := h.analytics.Session(c.Value); err == nil {
			http.Redirect(w, r, "/dashboard/"+s.ID, http.StatusSeeOther)
			return
		}
	}

	s, err := h.analytics.NewSeedSession()
	switch {
	case err == nil:
		setSessionCookie(w, s.ID)
		http.Redirect(w, r, "/dashboard/"+s.ID, http.StatusSeeOther)
	case stderrors.Is(err, services.ErrNoSeedDataset):
		h.render(w, r, http.StatusOK, templates.Landing(""))
	default:
		mapped := requestError(err)
		h.render(w, r, statusOf(mapped), templates.Landing(userMessage(mapped)))
	}
}

func (h *PageHandlers) HandleUploadForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, templates.Landing(""))
}

// HandleUpload accepts the form post from the landing page.
func (h *PageHandlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	logger := observability.LoggerFrom(r.Context(), h.logger)

	in, err := readUpload(w, r, h.opts.MaxUploadBytes, h.opts.DefaultDelimiter)
	if err == nil {
		var s *services.Session
		if s, err = h.analytics.Upload(in); err == nil {
			logger.Info("dataset uploaded", "session_id", s.ID, "source", s.Source, "records", s.Dataset().Len())
			setSessionCookie(w, s.ID)
			http.Redirect(w, r, "/dashboard/"+s.ID, http.StatusSeeOther)
			return
		}
	}

	mapped := requestError(err)
	logger.Warn("upload rejected", "error", err)
	h.render(w, r, statusOf(mapped), templates.Landing(userMessage(mapped)))
}

// HandleDashboard renders the full dashboard for a session.
func (h *PageHandlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := observability.WithSessionID(r.Context(), id)

	s, err := h.analytics.Session(id)
	if err != nil {
		h.render(w, r, http.StatusNotFound, templates.Landing("That session has expired. Load the data again."))
		return
	}

	snap, err := h.analytics.Snapshot(ctx, s, h.opts.TopN)
	if err != nil {
		observability.LoggerFrom(ctx, h.logger).Error("build snapshot", "error", err)
		http.Error(w, "render error", http.StatusInternalServerError)
		return
	}

	ds := s.Dataset()
	bounds, _ := ds.ObservedPriceBounds()
	h.render(w, r, http.StatusOK, templates.Dashboard(templates.DashboardData{
		SessionID:  s.ID,
		Source:     s.Source,
		Records:    ds.Len(),
		Dropped:    ds.Dropped(),
		Dimensions: dimensionValues(ds),
		Filters:    s.Filters(),
		Bounds:     bounds,
		Snapshot:   snap,
	}))
}

func setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func statusOf(err error) int {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// userMessage is the message plus details of an AppError, safe to show on
// the upload page.
func userMessage(err error) string {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		return "Something went wrong while loading the data."
	}
	if appErr.Details != "" {
		return appErr.Message + ": " + appErr.Details
	}
	return appErr.Message
}
