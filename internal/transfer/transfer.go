// Package transfer moves a byte stream between a network peer and a file as
// an explicit state machine.
//
//	Idle ──start──▶ Streaming ──chunk──▶ Streaming
//	                    │ end        ──▶ Completed
//	                    │ disconnect ──▶ Aborted
//	                    │ limit      ──▶ Failed (ErrTooLarge)
//	                    │ ioError    ──▶ Failed
//
// Completed, Aborted and Failed are terminal: later events are ignored, so
// every cleanup action keyed on a transition runs at most once.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// ErrTooLarge is the cause of a Failed upload whose byte count crossed the limit.
var ErrTooLarge = errors.New("transfer: size limit exceeded")

// State is the lifecycle stage of a single transfer.
type State int

const (
	Idle State = iota
	Streaming
	Completed
	Aborted
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Completed || s == Aborted || s == Failed
}

type event int

const (
	evStart event = iota
	evChunk
	evLimit
	evDisconnect
	evIOError
	evEnd
)

// next is the transition table. Unlisted pairs leave the state unchanged.
func next(s State, ev event) State {
	switch s {
	case Idle:
		switch ev {
		case evStart:
			return Streaming
		case evDisconnect:
			return Aborted
		}
	case Streaming:
		switch ev {
		case evChunk:
			return Streaming
		case evEnd:
			return Completed
		case evDisconnect:
			return Aborted
		case evLimit, evIOError:
			return Failed
		}
	}
	return s
}

// Direction tells a Process which side of the copy is the network peer.
// Errors on the peer side mean the client went away; errors on the file
// side are I/O failures.
type Direction int

const (
	// Upload reads from the peer and writes to a file.
	Upload Direction = iota
	// Download reads from a file and writes to the peer.
	Download
)

// Result is the outcome of Process.Run.
type Result struct {
	State State
	// Bytes is the number of bytes successfully written to the destination.
	Bytes int64
	// Err is the cause for Aborted and Failed results.
	Err error
}

const bufSize = 32 << 10

var bufPool = sync.Pool{New: func() any {
	b := make([]byte, bufSize)
	return &b
}}

// Process is one transfer. It is not safe for concurrent use and cannot be
// reused once Run returns.
type Process struct {
	dir   Direction
	limit int64
	state State
	n     int64
	err   error

	// OnTransition, when set, observes every state change.
	OnTransition func(from, to State)
}

// NewUpload returns a process that fails with ErrTooLarge once more than
// limit bytes have been received. A limit <= 0 disables the check.
func NewUpload(limit int64) *Process {
	return &Process{dir: Upload, limit: limit}
}

// NewDownload returns a process that streams a file to a peer.
func NewDownload() *Process {
	return &Process{dir: Download}
}

// State returns the current state.
func (p *Process) State() State { return p.state }

func (p *Process) fire(ev event, cause error) {
	to := next(p.state, ev)
	if to == p.state {
		return
	}
	from := p.state
	p.state = to
	if to == Aborted || to == Failed {
		p.err = cause
	}
	if p.OnTransition != nil {
		p.OnTransition(from, to)
	}
}

// Run copies src to dst chunk by chunk until src is exhausted, ctx is done,
// the limit is crossed or either side fails.
func (p *Process) Run(ctx context.Context, dst io.Writer, src io.Reader) Result {
	bp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bp)
	buf := *bp

	if err := ctx.Err(); err != nil {
		p.fire(evDisconnect, err)
		return p.result()
	}
	p.fire(evStart, nil)

	for !p.state.Terminal() {
		if err := ctx.Err(); err != nil {
			p.fire(evDisconnect, err)
			break
		}

		nr, rerr := src.Read(buf)
		if nr > 0 {
			if p.limit > 0 && p.n+int64(nr) > p.limit {
				p.fire(evLimit, ErrTooLarge)
				break
			}
			nw, werr := dst.Write(buf[:nr])
			p.n += int64(nw)
			if werr == nil && nw != nr {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				p.writeFailed(werr)
				break
			}
			p.fire(evChunk, nil)
		}

		switch {
		case rerr == nil:
		case errors.Is(rerr, io.EOF):
			p.fire(evEnd, nil)
		default:
			p.readFailed(rerr)
		}
	}
	return p.result()
}

func (p *Process) readFailed(err error) {
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &mbe):
		p.fire(evLimit, fmt.Errorf("%w: %w", ErrTooLarge, err))
	case p.dir == Upload:
		p.fire(evDisconnect, err)
	default:
		p.fire(evIOError, err)
	}
}

func (p *Process) writeFailed(err error) {
	if p.dir == Download {
		p.fire(evDisconnect, err)
		return
	}
	p.fire(evIOError, err)
}

func (p *Process) result() Result {
	return Result{State: p.state, Bytes: p.n, Err: p.err}
}
