package middleware_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/zynqcloud/flatfs/internal/middleware"
)

func TestRequestLogAssignsID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	var scoped *slog.Logger
	h := middleware.RequestLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scoped = middleware.Logger(r.Context(), nil)
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout")) //nolint:errcheck
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/kettle", nil))

	id := rec.Header().Get(middleware.RequestIDHeader)
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("response request id %q: %v", id, err)
	}
	if scoped == nil {
		t.Error("handler did not receive a request-scoped logger")
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("access log is not JSON: %v (%s)", err, buf.String())
	}
	if entry["request_id"] != id || entry["path"] != "/kettle" {
		t.Errorf("entry = %v", entry)
	}
	if entry["status"] != float64(http.StatusTeapot) || entry["response_bytes"] != float64(len("short and stout")) {
		t.Errorf("entry status/bytes = %v/%v", entry["status"], entry["response_bytes"])
	}
}

func TestRequestLogKeepsValidID(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	h := middleware.RequestLog(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	want := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.RequestIDHeader, want)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get(middleware.RequestIDHeader); got != want {
		t.Errorf("request id = %q, want %q", got, want)
	}
}

func TestLoggerFallback(t *testing.T) {
	fallback := slog.Default()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := middleware.Logger(req.Context(), fallback); got != fallback {
		t.Error("Logger without middleware did not return fallback")
	}
}

func TestUploadLimiterRejectsWhenFull(t *testing.T) {
	l := middleware.NewUploadLimiter(1)
	if l.Cap() != 1 {
		t.Fatalf("Cap = %d", l.Cap())
	}

	release := make(chan struct{})
	entered := make(chan struct{})
	h := l.Limit(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(entered)
		<-release
	}))

	done := make(chan struct{})
	go func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/a", nil))
		close(done)
	}()
	<-entered

	if l.Active() != 1 {
		t.Errorf("Active = %d, want 1", l.Active())
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/b", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("second request status = %d, want 503", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" || rec.Header().Get("Connection") != "close" {
		t.Errorf("headers = %v", rec.Header())
	}

	close(release)
	<-done
	if l.Active() != 0 {
		t.Errorf("Active after release = %d", l.Active())
	}
}

func TestUploadLimiterDefault(t *testing.T) {
	if got := middleware.NewUploadLimiter(0).Cap(); got != 256 {
		t.Errorf("default cap = %d, want 256", got)
	}
}
