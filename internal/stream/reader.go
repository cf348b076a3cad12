package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrStalled is reported when the server sends nothing for longer than the read timeout.
var ErrStalled = errors.New("stream stalled")

type readResult struct {
	n   int
	err error
}

// stallReader bounds each Read by a timeout. A Read that loses the race
// leaves its goroutine behind; it exits once the body is closed.
type stallReader struct {
	reader  io.Reader
	ctx     context.Context
	timeout time.Duration
}

func (sr *stallReader) Read(p []byte) (int, error) {
	if err := sr.ctx.Err(); err != nil {
		return 0, err
	}

	timer := time.NewTimer(sr.timeout)
	defer timer.Stop()

	done := make(chan readResult, 1)
	go func() {
		n, err := sr.reader.Read(p)
		done <- readResult{n, err}
	}()

	select {
	case res := <-done:
		return res.n, res.err
	case <-timer.C:
		return 0, fmt.Errorf("%w: no data received for %v", ErrStalled, sr.timeout)
	case <-sr.ctx.Done():
		return 0, sr.ctx.Err()
	}
}
