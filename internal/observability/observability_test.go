package observability

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"sales-dashboard/internal/config"
)

func TestNewLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LoggerConfig{Level: "warn", Format: "text"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "records", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message logged at warn level: %s", out)
	}
	if !strings.Contains(out, "records=3") {
		t.Errorf("expected text attrs, got %s", out)
	}
}

func TestLoggerFrom(t *testing.T) {
	var buf bytes.Buffer
	base := newLogger(config.LoggerConfig{Level: "info", Format: "json"}, &buf)

	ctx := WithSessionID(WithRequestID(context.Background(), "req-7"), "sess-1")
	LoggerFrom(ctx, base).Info("filters applied")

	out := buf.String()
	for _, want := range []string{`"request_id":"req-7"`, `"session_id":"sess-1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %s: %s", want, out)
		}
	}
	if GetSessionID(context.Background()) != "" {
		t.Error("empty context should carry no session id")
	}
}

func TestStartSpan_Nesting(t *testing.T) {
	ctx, parent := StartSpan(context.Background(), "GET /api/sessions/{id}/summary")
	_, child := StartSpan(ctx, "aggregate")

	if child.TraceID != parent.TraceID {
		t.Errorf("child trace %q, want %q", child.TraceID, parent.TraceID)
	}
	if child.ParentID != parent.SpanID {
		t.Errorf("child parent %q, want %q", child.ParentID, parent.SpanID)
	}
	if len(parent.SpanID) != 16 {
		t.Errorf("span id %q should be 16 hex chars", parent.SpanID)
	}

	child.SetError(errors.New("boom"))
	child.End(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if child.Duration == nil || child.Status != SpanStatusError {
		t.Errorf("span not finished correctly: %+v", child)
	}
}

func TestMetrics_Recorder(t *testing.T) {
	m := NewMetrics()

	m.DatasetLoaded("upload", 40, 2)
	m.DatasetLoaded("upload", 10, 0)
	m.FiltersApplied(12)
	m.StageObserved("filter", 3*time.Millisecond)
	m.ExportWritten("csv")

	if got := testutil.ToFloat64(m.datasetsLoaded.WithLabelValues("upload")); got != 2 {
		t.Errorf("datasets_loaded_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.recordsLoaded.WithLabelValues("upload")); got != 50 {
		t.Errorf("records_loaded_total = %v, want 50", got)
	}
	if got := testutil.ToFloat64(m.recordsDropped.WithLabelValues("upload")); got != 2 {
		t.Errorf("records_dropped_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.exports.WithLabelValues("csv")); got != 1 {
		t.Errorf("exports_total = %v, want 1", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	sessions := 3
	m.TrackSessions(func() int { return sessions })
	m.ObserveRequest("GET /health", http.StatusOK, time.Millisecond)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		"sales_dashboard_sessions_active 3",
		`sales_dashboard_http_requests_total{code="200",route="GET /health"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
