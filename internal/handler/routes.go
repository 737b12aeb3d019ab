package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	"github.com/zynqcloud/flatfs/internal/config"
	"github.com/zynqcloud/flatfs/internal/middleware"
	"github.com/zynqcloud/flatfs/internal/store"
)

// Handler holds shared dependencies for the file operations.
type Handler struct {
	cfg         config.Config
	files       store.Backend
	public      store.Backend
	logger      *slog.Logger
	metrics     *Metrics
	contentType ContentTypeFunc
}

// Option customises a Handler built by New.
type Option func(*Handler)

// WithContentType replaces the extension → Content-Type lookup.
func WithContentType(fn ContentTypeFunc) Option {
	return func(h *Handler) { h.contentType = fn }
}

// New registers all routes and returns the root http.Handler.
//
// The router never cleans paths: "/a/../b" must reach name validation and
// be answered with 400, not redirected. Operational endpoints live under
// "/-/", which can never collide with a flat file name.
//
// Middleware stack (outer → inner):
//
//	RequestLog → mux → UploadLimiter (POST only) → Handler
func New(cfg config.Config, files, public store.Backend, logger *slog.Logger, opts ...Option) http.Handler {
	h := &Handler{
		cfg:         cfg,
		files:       files,
		public:      public,
		logger:      logger,
		metrics:     &Metrics{},
		contentType: ContentTypeByExtension,
	}
	for _, opt := range opts {
		opt(h)
	}

	limiter := middleware.NewUploadLimiter(cfg.MaxConcurrentUploads)

	r := mux.NewRouter().SkipClean(true)

	// ── Observability ─────────────────────────────────────────────────────────
	//
	// GET /-/health  liveness, fast 200 while the process is alive.
	// GET /-/ready   readiness, storage dirs reachable and enough free disk.
	// GET /-/metrics atomic process counters as flat JSON.
	r.HandleFunc("/-/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/-/ready", h.Readiness).Methods(http.MethodGet)
	r.Handle("/-/metrics", h.metrics.metricsHandler(limiter.Active)).Methods(http.MethodGet)

	// ── Flat file namespace ──────────────────────────────────────────────────
	// Uploads hold a file descriptor and a goroutine for as long as the client
	// keeps sending, so only they go through the limiter.
	r.Methods(http.MethodPost).Handler(limiter.Limit(h))
	r.PathPrefix("/").Handler(h)

	return middleware.RequestLog(logger)(r)
}

// Readiness returns 200 when the service can accept uploads; 503 when it cannot.
// Checks performed:
//  1. Storage and public directories are accessible (os.Stat)
//  2. Free disk space ≥ cfg.MinFreeBytes (Linux only via syscall.Statfs)
func (h *Handler) Readiness(w http.ResponseWriter, _ *http.Request) {
	type check struct {
		Name string `json:"name"`
		OK   bool   `json:"ok"`
		Msg  string `json:"msg,omitempty"`
	}
	var checks []check
	allOK := true

	dirs := []struct {
		name string
		path string
	}{
		{"files_accessible", h.cfg.FilesDir},
		{"public_accessible", h.cfg.PublicDir},
	}
	for _, d := range dirs {
		if info, err := os.Stat(d.path); err != nil || !info.IsDir() {
			checks = append(checks, check{d.name, false, "stat failed"})
			allOK = false
		} else {
			checks = append(checks, check{d.name, true, ""})
		}
	}

	// (0, 0) means "unavailable"; skip the check rather than false-alarm.
	if ls, ok := h.files.(*store.Local); ok {
		avail, total := ls.DiskStats()
		if total > 0 {
			if avail < uint64(h.cfg.MinFreeBytes) {
				checks = append(checks, check{
					"disk_space", false,
					fmt.Sprintf("%s free, need %s", humanize.Bytes(avail), h.cfg.MinFreeBytes),
				})
				allOK = false
			} else {
				checks = append(checks, check{
					"disk_space", true,
					fmt.Sprintf("%s free of %s", humanize.Bytes(avail), humanize.Bytes(total)),
				})
			}
		}
	}

	status := http.StatusOK
	if !allOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"ready": allOK, "checks": checks})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// writeText sends a short plain-text response. It must only be called
// before any body byte has been written.
func writeText(w http.ResponseWriter, status int, msg string) {
	hdr := w.Header()
	hdr.Del("Content-Length")
	hdr.Set("Content-Type", "text/plain; charset=utf-8")
	hdr.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	io.WriteString(w, msg) //nolint:errcheck
}

// closeAfter marks the connection for closure once the response is sent, so a
// straggling request body can never be parsed as the next request.
func closeAfter(w http.ResponseWriter) {
	w.Header().Set("Connection", "close")
}
