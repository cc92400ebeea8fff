// Package eventpipe implements the core's cross-thread, cross-process
// wake-up channel: a byte-tagged, non-blocking self-pipe that composes with
// any select/poll/epoll loop without pulling in a higher-level runtime.
//
// A single queued byte is enough to wake a reader, and since every
// AsyncEvent encodes intent rather than payload, coalescing is harmless:
// two consecutive "complete" bytes are indistinguishable from one, and
// callers always re-query authoritative state after waking rather than
// trusting the byte itself.
package eventpipe

import (
	"errors"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/agentcore/agentcore/pkg/models"
)

// Pipe is a non-blocking, single-byte-at-a-time event queue backed by a
// real OS pipe so its read end can be handed to an external select/poll
// loop (e.g. a REPL's stdin multiplexer) as a plain file descriptor.
type Pipe struct {
	r *os.File
	w *os.File
}

// New creates a Pipe with both ends set non-blocking.
func New() (*Pipe, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(int(r.Fd()), true); err != nil {
		r.Close()
		w.Close()
		return nil, err
	}
	if err := unix.SetNonblock(int(w.Fd()), true); err != nil {
		r.Close()
		w.Close()
		return nil, err
	}
	return &Pipe{r: r, w: w}, nil
}

// ReadFD returns the file descriptor an external event loop can register
// for readability.
func (p *Pipe) ReadFD() uintptr { return p.r.Fd() }

// Send writes a single event byte. A "would block" on a full pipe buffer is
// treated as success: a prior identical byte is already queued and the
// reader will wake regardless, so the write is not retried.
func (p *Pipe) Send(event models.AsyncEvent) error {
	_, err := p.w.Write([]byte{byte(event)})
	if err == nil || isWouldBlock(err) {
		return nil
	}
	return err
}

func isWouldBlock(err error) bool {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno == unix.EAGAIN || errno == unix.EWOULDBLOCK
	}
	return errors.Is(err, unix.EAGAIN)
}

// Recv returns the next queued byte, or ok=false if none is available.
func (p *Pipe) Recv() (models.AsyncEvent, bool) {
	buf := make([]byte, 1)
	n, err := p.r.Read(buf)
	if n == 1 {
		return models.AsyncEvent(buf[0]), true
	}
	if err != nil && !isWouldBlock(err) && !errors.Is(err, io.EOF) {
		return 0, false
	}
	return 0, false
}

// Drain reads and discards every queued byte, returning how many it found.
func (p *Pipe) Drain() int {
	n := 0
	buf := make([]byte, 64)
	for {
		read, err := p.r.Read(buf)
		n += read
		if read < len(buf) || err != nil {
			return n
		}
	}
}

// Close closes both ends of the pipe. It is safe to call once; a second
// call returns the underlying close error.
func (p *Pipe) Close() error {
	werr := p.w.Close()
	rerr := p.r.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
