package handler

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/zynqcloud/flatfs/internal/middleware"
	"github.com/zynqcloud/flatfs/internal/store"
	"github.com/zynqcloud/flatfs/internal/transfer"
)

// upload streams the request body into a new file called name.
//
// The destination is created with O_EXCL before the body is read, so an
// existing file is never touched and two racing uploads of one name end as
// one 200 and one 409. Whatever happens after creation, the file either
// reaches Commit or is discarded.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request, name string) {
	log := middleware.Logger(r.Context(), h.logger).With("name", name)
	h.metrics.UploadsTotal.Add(1)

	limit := int64(h.cfg.MaxFileSize)

	// Declared oversize: refuse without reading a byte. Closing the connection
	// keeps net/http from draining the unread body.
	if r.ContentLength > limit {
		h.metrics.UploadsTooLarge.Add(1)
		log.Info("upload rejected: declared size over limit",
			"declared", humanize.Bytes(uint64(r.ContentLength)), "limit", h.cfg.MaxFileSize)
		closeAfter(w)
		writeText(w, http.StatusRequestEntityTooLarge, msgTooBig)
		return
	}

	dst, err := h.files.Create(name)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			h.metrics.UploadsConflict.Add(1)
			writeText(w, http.StatusConflict, msgExists)
			return
		}
		h.metrics.UploadsFailed.Add(1)
		log.Error("upload: create failed", "err", err)
		closeAfter(w)
		writeText(w, http.StatusInternalServerError, msgInternal)
		return
	}

	proc := transfer.NewUpload(limit)
	proc.OnTransition = func(from, to transfer.State) {
		log.Debug("upload state", "from", from, "to", to)
	}
	res := proc.Run(r.Context(), dst, http.MaxBytesReader(w, r.Body, limit))

	switch res.State {
	case transfer.Completed:
		if err := dst.Commit(); err != nil {
			h.discard(log, dst)
			h.metrics.UploadsFailed.Add(1)
			log.Error("upload: commit failed", "err", err)
			closeAfter(w)
			writeText(w, http.StatusInternalServerError, msgInternal)
			return
		}
		h.metrics.UploadsOK.Add(1)
		h.metrics.BytesWritten.Add(res.Bytes)
		log.Info("upload complete", "bytes", res.Bytes, "size", humanize.Bytes(uint64(res.Bytes)))
		writeText(w, http.StatusOK, msgOK)

	case transfer.Failed:
		h.discard(log, dst)
		closeAfter(w)
		if errors.Is(res.Err, transfer.ErrTooLarge) {
			h.metrics.UploadsTooLarge.Add(1)
			log.Info("upload rejected: body over limit", "received", res.Bytes, "limit", h.cfg.MaxFileSize)
			writeText(w, http.StatusRequestEntityTooLarge, msgTooBig)
			return
		}
		h.metrics.UploadsFailed.Add(1)
		log.Error("upload: write failed", "bytes", res.Bytes, "err", res.Err)
		writeText(w, http.StatusInternalServerError, msgInternal)

	default:
		// Aborted: the peer is usually gone and never sees this response.
		h.discard(log, dst)
		h.metrics.UploadsAborted.Add(1)
		log.Warn("upload aborted", "bytes", res.Bytes, "err", res.Err)
		closeAfter(w)
		writeText(w, http.StatusBadRequest, msgInterrupted)
	}
}

// discard removes a partial upload. Failure is logged, never surfaced.
func (h *Handler) discard(log *slog.Logger, dst store.Pending) {
	if err := dst.Discard(); err != nil {
		log.Warn("upload: cleanup failed", "err", err)
	}
}

// download streams name from b. Errors change the status only while nothing
// has been written; after the first byte the body is simply cut short.
func (h *Handler) download(w http.ResponseWriter, r *http.Request, b store.Backend, name string) {
	log := middleware.Logger(r.Context(), h.logger).With("name", name)

	rc, size, err := b.Read(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeText(w, http.StatusNotFound, msgNotFound)
			return
		}
		log.Error("download: open failed", "err", err)
		writeText(w, http.StatusInternalServerError, msgInternal)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", h.contentType(filepath.Ext(name)))
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	if r.Method == http.MethodHead {
		return
	}

	res := transfer.NewDownload().Run(r.Context(), w, rc)
	h.metrics.BytesServed.Add(res.Bytes)
	switch res.State {
	case transfer.Completed:
		h.metrics.Downloads.Add(1)
	case transfer.Aborted:
		h.metrics.DownloadsAborted.Add(1)
		log.Debug("download aborted by client", "bytes", res.Bytes, "err", res.Err)
	default:
		log.Error("download: read failed", "bytes", res.Bytes, "err", res.Err)
		if res.Bytes == 0 {
			writeText(w, http.StatusInternalServerError, msgInternal)
		}
	}
}

// delete removes name. A missing file is 404 every time, never a silent 200.
func (h *Handler) delete(w http.ResponseWriter, r *http.Request, name string) {
	err := h.files.Delete(name)
	switch {
	case err == nil:
		h.metrics.Deletes.Add(1)
		middleware.Logger(r.Context(), h.logger).Info("file deleted", "name", name)
		writeText(w, http.StatusOK, msgOK)
	case errors.Is(err, fs.ErrNotExist):
		writeText(w, http.StatusNotFound, msgNotFound)
	default:
		middleware.Logger(r.Context(), h.logger).Error("delete failed", "name", name, "err", err)
		writeText(w, http.StatusInternalServerError, msgInternal)
	}
}
