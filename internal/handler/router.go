package handler

import (
	"net/http"
	"strings"
)

const (
	indexFile = "index.html"

	msgNesting     = "File name should not include nesting"
	msgEmptyName   = "File name should not be empty"
	msgNotFound    = "File not found"
	msgExists      = "File with this name already exists"
	msgTooBig      = "File is too big"
	msgInterrupted = "Upload was interrupted"
	msgInternal    = "Internal server error"
	msgNotAllowed  = "Method not allowed"
	msgOK          = "OK"
)

// ServeHTTP classifies a request against the flat namespace and dispatches it.
// Name validation happens before any I/O.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// r.URL.Path is already percent-decoded, so %2F and %2E%2E are caught here too.
	name := strings.TrimPrefix(r.URL.Path, "/")
	if !validName(name) {
		h.metrics.Rejected.Add(1)
		writeText(w, http.StatusBadRequest, msgNesting)
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		if name == "" {
			h.download(w, r, h.public, indexFile)
			return
		}
		h.download(w, r, h.files, name)
	case http.MethodPost:
		if name == "" {
			writeText(w, http.StatusNotFound, msgEmptyName)
			return
		}
		h.upload(w, r, name)
	case http.MethodDelete:
		if name == "" {
			writeText(w, http.StatusNotFound, msgEmptyName)
			return
		}
		h.delete(w, r, name)
	default:
		w.Header().Set("Allow", "GET, HEAD, POST, DELETE")
		writeText(w, http.StatusMethodNotAllowed, msgNotAllowed)
	}
}

// validName reports whether name addresses a direct child of a flat
// directory. The empty name is valid: it is the root.
func validName(name string) bool {
	return name != "." &&
		!strings.ContainsAny(name, `/\`) &&
		!strings.Contains(name, "..")
}
