package handler

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Metrics holds process-lifetime atomic counters exposed at GET /-/metrics.
// All writes use atomic operations so there is no lock contention on hot paths.
type Metrics struct {
	UploadsTotal     atomic.Int64 // POSTs that passed name validation
	UploadsOK        atomic.Int64 // uploads committed to disk
	UploadsTooLarge  atomic.Int64 // 413s, declared or streamed
	UploadsConflict  atomic.Int64 // 409s: name already taken
	UploadsAborted   atomic.Int64 // client went away mid-body
	UploadsFailed    atomic.Int64 // 500s on the upload path
	BytesWritten     atomic.Int64 // bytes committed by successful uploads
	Downloads        atomic.Int64 // GETs that streamed a complete body
	DownloadsAborted atomic.Int64 // GETs whose client disconnected mid-stream
	BytesServed      atomic.Int64 // bytes written to download responses
	Deletes          atomic.Int64 // files removed
	Rejected         atomic.Int64 // 400s from name validation
}

// metricsHandler returns the http.HandlerFunc that serialises the current counter
// snapshot as a flat JSON object. activeFunc is called at render time to include
// the real-time active-upload count from the limiter without a circular dependency.
func (m *Metrics) metricsHandler(activeFunc func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int64{ //nolint:errcheck
			"uploads_total":     m.UploadsTotal.Load(),
			"uploads_ok":        m.UploadsOK.Load(),
			"uploads_too_large": m.UploadsTooLarge.Load(),
			"uploads_conflict":  m.UploadsConflict.Load(),
			"uploads_aborted":   m.UploadsAborted.Load(),
			"uploads_failed":    m.UploadsFailed.Load(),
			"bytes_written":     m.BytesWritten.Load(),
			"downloads":         m.Downloads.Load(),
			"downloads_aborted": m.DownloadsAborted.Load(),
			"bytes_served":      m.BytesServed.Load(),
			"deletes":           m.Deletes.Load(),
			"rejected_names":    m.Rejected.Load(),
			"active_uploads":    int64(activeFunc()),
		})
	}
}
