package store

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrInvalidName is returned for names that are empty or not a single path element.
	ErrInvalidName = errors.New("invalid file name")

	// ErrNotRegular is returned when a name refers to a directory or other non-file.
	ErrNotRegular = errors.New("not a regular file")
)

// Local stores files on the local filesystem directly under one root directory.
type Local struct {
	root string
}

// NewLocal creates a Local backend rooted at root, creating the directory if needed.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root %q: %w", root, err)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	return &Local{root: absRoot}, nil
}

// Root returns the absolute directory backing this store.
func (l *Local) Root() string { return l.root }

// abs resolves name to a path directly inside root. The handler layer
// validates names first; this is the filesystem-level second check.
func (l *Local) abs(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	p := filepath.Join(l.root, name)
	if filepath.Dir(p) != l.root {
		return "", fmt.Errorf("%w: %q escapes storage root", ErrInvalidName, name)
	}
	return p, nil
}

// Read opens name for sequential reading.
func (l *Local) Read(name string) (io.ReadCloser, int64, error) {
	p, err := l.abs(name)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, 0, fmt.Errorf("read %q: %w", name, ErrNotRegular)
	}
	return f, info.Size(), nil
}

// Create opens name with O_EXCL so that concurrent creators race on the
// kernel, not on a stat-then-open window.
func (l *Local) Create(name string) (Pending, error) {
	p, err := l.abs(name)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		os.Remove(p) //nolint:errcheck
		return nil, fmt.Errorf("stat new file %q: %w", name, err)
	}
	return &pendingFile{f: f, path: p, info: info}, nil
}

// Delete removes a single regular file.
func (l *Local) Delete(name string) error {
	p, err := l.abs(name)
	if err != nil {
		return err
	}
	info, err := os.Lstat(p)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("delete %q: %w", name, ErrNotRegular)
	}
	return os.Remove(p)
}

// DiskStats returns available and total bytes for the filesystem holding root.
// (0, 0) means the platform cannot report it.
func (l *Local) DiskStats() (avail, total uint64) {
	return diskStats(l.root)
}

type pendingFile struct {
	f      *os.File
	path   string
	info   fs.FileInfo
	closed bool
}

func (p *pendingFile) Write(b []byte) (int, error) {
	return p.f.Write(b)
}

func (p *pendingFile) Commit() error {
	if p.closed {
		return fmt.Errorf("commit %q: %w", p.path, os.ErrClosed)
	}
	serr := p.f.Sync()
	p.closed = true
	cerr := p.f.Close()
	if serr != nil {
		return fmt.Errorf("sync %q: %w", p.path, serr)
	}
	if cerr != nil {
		return fmt.Errorf("close %q: %w", p.path, cerr)
	}
	return nil
}

func (p *pendingFile) Discard() error {
	if !p.closed {
		p.closed = true
		p.f.Close() //nolint:errcheck
	}
	cur, err := os.Lstat(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	// Someone else deleted and recreated the name; leave their file alone.
	if !os.SameFile(cur, p.info) {
		return nil
	}
	return os.Remove(p.path)
}
