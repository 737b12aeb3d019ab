package handler_test

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/zynqcloud/flatfs/internal/config"
	"github.com/zynqcloud/flatfs/internal/handler"
	"github.com/zynqcloud/flatfs/internal/store"
)

var errDisk = errors.New("input/output error")

// faultyBackend injects failures the local filesystem cannot produce on demand.
type faultyBackend struct {
	readBody    io.Reader
	readErr     error
	createErr   error
	writeErr    error
	commitErr   error
	deleteErr   error
	discarded   int
	committed   int
	lastWritten strings.Builder
}

func (b *faultyBackend) Read(string) (io.ReadCloser, int64, error) {
	if b.readErr != nil {
		return nil, 0, b.readErr
	}
	return io.NopCloser(b.readBody), 1 << 10, nil
}

func (b *faultyBackend) Create(string) (store.Pending, error) {
	if b.createErr != nil {
		return nil, b.createErr
	}
	return &faultyPending{b: b}, nil
}

func (b *faultyBackend) Delete(string) error { return b.deleteErr }

type faultyPending struct{ b *faultyBackend }

func (p *faultyPending) Write(data []byte) (int, error) {
	if p.b.writeErr != nil {
		return 0, p.b.writeErr
	}
	return p.b.lastWritten.Write(data)
}

func (p *faultyPending) Commit() error {
	p.b.committed++
	return p.b.commitErr
}

func (p *faultyPending) Discard() error {
	p.b.discarded++
	return nil
}

func newFaultyHandler(t *testing.T, b *faultyBackend) http.Handler {
	t.Helper()
	cfg, err := config.Defaults(config.ProfileTest, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return handler.New(cfg, b, b, logger)
}

func serve(h http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, body))
	return rec
}

func TestUploadWriteFailure(t *testing.T) {
	b := &faultyBackend{writeErr: errDisk}
	rec := serve(newFaultyHandler(t, b), http.MethodPost, "/f.bin", strings.NewReader("data"))

	expect(t, rec, http.StatusInternalServerError, "Internal server error")
	if rec.Header().Get("Connection") != "close" {
		t.Error("500 during upload without Connection: close")
	}
	if b.discarded != 1 || b.committed != 0 {
		t.Errorf("discarded %d committed %d, want 1/0", b.discarded, b.committed)
	}
}

func TestUploadCommitFailure(t *testing.T) {
	b := &faultyBackend{commitErr: errDisk}
	rec := serve(newFaultyHandler(t, b), http.MethodPost, "/f.bin", strings.NewReader("data"))

	expect(t, rec, http.StatusInternalServerError, "Internal server error")
	if b.discarded != 1 {
		t.Errorf("discarded %d times after failed commit", b.discarded)
	}
}

func TestUploadCreateFailure(t *testing.T) {
	b := &faultyBackend{createErr: fs.ErrPermission}
	rec := serve(newFaultyHandler(t, b), http.MethodPost, "/f.bin", strings.NewReader("data"))

	expect(t, rec, http.StatusInternalServerError, "Internal server error")
	if rec.Header().Get("Connection") != "close" {
		t.Error("500 during upload without Connection: close")
	}
}

func TestUploadTooLargeDiscardsOnce(t *testing.T) {
	b := &faultyBackend{}
	body := iotest.OneByteReader(strings.NewReader(strings.Repeat("x", 100_050)))
	req := httptest.NewRequest(http.MethodPost, "/big.bin", body)
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	newFaultyHandler(t, b).ServeHTTP(rec, req)

	expect(t, rec, http.StatusRequestEntityTooLarge, "File is too big")
	if b.discarded != 1 || b.committed != 0 {
		t.Errorf("discarded %d committed %d, want 1/0", b.discarded, b.committed)
	}
}

func TestDownloadFailsBeforeFirstByte(t *testing.T) {
	b := &faultyBackend{readBody: iotest.ErrReader(errDisk)}
	rec := serve(newFaultyHandler(t, b), http.MethodGet, "/f.png", nil)

	expect(t, rec, http.StatusInternalServerError, "Internal server error")
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("error response kept file Content-Type %q", ct)
	}
}

func TestDownloadFailsMidStream(t *testing.T) {
	b := &faultyBackend{readBody: io.MultiReader(strings.NewReader("partial"), iotest.ErrReader(errDisk))}
	rec := serve(newFaultyHandler(t, b), http.MethodGet, "/f.png", nil)

	// Headers are out: the status stays 200 and the body is cut short.
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 once bytes were sent", rec.Code)
	}
	if rec.Body.String() != "partial" {
		t.Errorf("body = %q, want only the bytes read before the failure", rec.Body.String())
	}
}

func TestDownloadOpenFailure(t *testing.T) {
	b := &faultyBackend{readErr: errDisk}
	expect(t, serve(newFaultyHandler(t, b), http.MethodGet, "/f.png", nil), http.StatusInternalServerError, "Internal server error")
}

func TestDeleteFailure(t *testing.T) {
	b := &faultyBackend{deleteErr: fs.ErrPermission}
	expect(t, serve(newFaultyHandler(t, b), http.MethodDelete, "/f.png", nil), http.StatusInternalServerError, "Internal server error")
}
