// Package ring provides a bounded, blocking byte FIFO used as network read-ahead.
package ring

import (
	"errors"
	"io"
	"sync"
)

// ErrClosed is returned to writers (and to readers after Abort) once the buffer is shut down.
var ErrClosed = errors.New("ring: buffer closed")

// Buffer is a fixed-size circular byte queue. Writes block while the buffer is full
// and reads block while it is empty, so a slow reader throttles the writer instead of
// losing data.
type Buffer struct {
	buf []byte
	r   int // read position
	n   int // bytes stored

	prebuffer int
	primed    bool

	closed  bool  // writer finished; readers drain remaining bytes
	aborted bool  // torn down; pending bytes are discarded
	err     error // returned to readers once drained

	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
}

// New creates a buffer holding up to size bytes. The first Read waits until at least
// prebuffer bytes are queued or the writer closes; prebuffer is capped at size.
func New(size, prebuffer int) *Buffer {
	if size <= 0 {
		size = 1
	}
	if prebuffer > size {
		prebuffer = size
	}
	b := &Buffer{
		buf:       make([]byte, size),
		prebuffer: prebuffer,
	}
	b.notEmpty = sync.NewCond(&b.mu)
	b.notFull = sync.NewCond(&b.mu)
	return b
}

// Write copies all of p into the buffer, blocking while it is full.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	written := 0
	for len(p) > 0 {
		for b.n == len(b.buf) && !b.closed && !b.aborted {
			b.notFull.Wait()
		}
		if b.closed || b.aborted {
			return written, ErrClosed
		}

		space := len(b.buf) - b.n
		chunk := len(p)
		if chunk > space {
			chunk = space
		}

		end := (b.r + b.n) % len(b.buf)
		right := len(b.buf) - end
		if right > chunk {
			right = chunk
		}

		copy(b.buf[end:end+right], p[:right])
		if right < chunk {
			copy(b.buf[0:chunk-right], p[right:chunk])
		}

		b.n += chunk
		written += chunk
		p = p[chunk:]
		b.notEmpty.Broadcast()
	}

	return written, nil
}

// Read copies queued bytes into p, blocking while the buffer is empty. After the writer
// closes, remaining bytes are returned first, then the close error (io.EOF by default).
func (b *Buffer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for !b.aborted && !b.closed && (b.n == 0 || (!b.primed && b.n < b.prebuffer)) {
		b.notEmpty.Wait()
	}
	b.primed = true

	if b.aborted {
		return 0, b.err
	}
	if b.n == 0 {
		return 0, b.err
	}

	chunk := len(p)
	if chunk > b.n {
		chunk = b.n
	}

	right := len(b.buf) - b.r
	if right > chunk {
		right = chunk
	}
	copy(p[:right], b.buf[b.r:b.r+right])
	if right < chunk {
		copy(p[right:chunk], b.buf[0:chunk-right])
	}

	b.r = (b.r + chunk) % len(b.buf)
	b.n -= chunk
	b.notFull.Broadcast()

	return chunk, nil
}

// CloseWithError marks the end of input. Readers drain what is queued and then
// receive err, or io.EOF when err is nil. Later calls are ignored.
func (b *Buffer) CloseWithError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || b.aborted {
		return
	}
	if err == nil {
		err = io.EOF
	}
	b.closed = true
	b.err = err
	b.notEmpty.Broadcast()
	b.notFull.Broadcast()
}

// Close is CloseWithError(nil).
func (b *Buffer) Close() error {
	b.CloseWithError(nil)
	return nil
}

// Abort discards any queued bytes and wakes all waiters. Readers get err (ErrClosed
// when nil) and writers get ErrClosed. Abort wins over an earlier CloseWithError.
func (b *Buffer) Abort(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.aborted {
		return
	}
	if err == nil {
		err = ErrClosed
	}
	b.aborted = true
	b.err = err
	b.n = 0
	b.notEmpty.Broadcast()
	b.notFull.Broadcast()
}

// Err returns the error readers will see once the buffer is drained, or nil while open.
func (b *Buffer) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

func (b *Buffer) Cap() int {
	return len(b.buf)
}

// Health returns the current fill level as a percentage (0-100).
func (b *Buffer) Health() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return (b.n * 100) / len(b.buf)
}
