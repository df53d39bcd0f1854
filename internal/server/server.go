package server

import (
	"log/slog"
	"net/http"

	"sales-dashboard/internal/handlers"
	"sales-dashboard/internal/services"
)

type Server struct {
	analytics    *services.Analytics
	mux          *http.ServeMux
	logger       *slog.Logger
	apiHandlers  *handlers.APIHandlers
	sseHandlers  *handlers.SSEHandlers
	pageHandlers *handlers.PageHandlers
}

// NewServer wires every route. metricsHandler serves GET /metrics and may
// be nil.
func NewServer(analytics *services.Analytics, logger *slog.Logger, opts handlers.Options, metricsHandler http.Handler) *Server {
	s := &Server{
		analytics:    analytics,
		mux:          http.NewServeMux(),
		logger:       logger,
		apiHandlers:  handlers.NewAPIHandlers(analytics, logger, opts),
		sseHandlers:  handlers.NewSSEHandlers(analytics, logger, opts.TopN),
		pageHandlers: handlers.NewPageHandlers(analytics, logger, opts),
	}
	s.setupRoutes(metricsHandler)
	return s
}

func (s *Server) setupRoutes(metricsHandler http.Handler) {
	// Pages
	s.mux.HandleFunc("GET /{$}", s.pageHandlers.HandleHome)
	s.mux.HandleFunc("GET /upload", s.pageHandlers.HandleUploadForm)
	s.mux.HandleFunc("POST /upload", s.pageHandlers.HandleUpload)
	s.mux.HandleFunc("GET /dashboard/{id}", s.pageHandlers.HandleDashboard)

	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)
	if metricsHandler != nil {
		s.mux.Handle("GET /metrics", metricsHandler)
	}

	// REST API endpoints
	s.mux.HandleFunc("POST /api/sessions", s.apiHandlers.HandleCreateSession)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.apiHandlers.HandleGetSession)
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.apiHandlers.HandleDeleteSession)
	s.mux.HandleFunc("GET /api/sessions/{id}/dimensions", s.apiHandlers.HandleDimensions)
	s.mux.HandleFunc("GET /api/sessions/{id}/filters", s.apiHandlers.HandleGetFilters)
	s.mux.HandleFunc("PUT /api/sessions/{id}/filters", s.apiHandlers.HandlePutFilters)
	s.mux.HandleFunc("POST /api/sessions/{id}/filters/reset", s.apiHandlers.HandleResetFilters)
	s.mux.HandleFunc("GET /api/sessions/{id}/summary", s.apiHandlers.HandleSummary)
	s.mux.HandleFunc("GET /api/sessions/{id}/snapshot", s.apiHandlers.HandleSnapshot)
	s.mux.HandleFunc("GET /api/sessions/{id}/grouped", s.apiHandlers.HandleGrouped)
	s.mux.HandleFunc("GET /api/sessions/{id}/grouped2", s.apiHandlers.HandleGrouped2)
	s.mux.HandleFunc("GET /api/sessions/{id}/top", s.apiHandlers.HandleTop)
	s.mux.HandleFunc("GET /api/sessions/{id}/mode", s.apiHandlers.HandleMode)
	s.mux.HandleFunc("GET /api/sessions/{id}/table", s.apiHandlers.HandleTable)
	s.mux.HandleFunc("GET /api/sessions/{id}/export", s.apiHandlers.HandleExport)

	// Datastar SSE endpoints
	s.mux.HandleFunc("GET /sse/sessions/{id}/refresh", s.sseHandlers.HandleRefresh)
	s.mux.HandleFunc("POST /sse/sessions/{id}/filters", s.sseHandlers.HandleFilters)
	s.mux.HandleFunc("POST /sse/sessions/{id}/filters/reset", s.sseHandlers.HandleResetFilters)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
