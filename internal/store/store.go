package store

import "io"

// Backend abstracts a flat file namespace. Names are single path elements;
// implementations reject anything that could address another directory.
type Backend interface {
	// Read opens name for streaming. Caller must close the returned ReadCloser.
	// A missing name yields an error matching fs.ErrNotExist.
	Read(name string) (rc io.ReadCloser, size int64, err error)

	// Create reserves name exclusively and returns a writer for its content.
	// If name already exists the error matches fs.ErrExist and nothing is touched.
	Create(name string) (Pending, error)

	// Delete removes name. A missing name yields an error matching fs.ErrNotExist.
	Delete(name string) error
}

// Pending is a file being written. Exactly one of Commit or Discard decides
// its fate; Discard after a failed Commit is allowed.
type Pending interface {
	io.Writer

	// Commit flushes and closes the file, leaving it in place.
	Commit() error

	// Discard closes the file and removes it, but only if the path still
	// refers to the file this Pending created.
	Discard() error
}
