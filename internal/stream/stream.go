package stream

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/glebovdev/radio-cli/internal/ring"
	"github.com/rs/zerolog/log"
)

// Stream is an open connection whose body is copied into a read-ahead buffer by a
// background goroutine. Read may be called from one goroutine while Close, Err and
// the metadata getters are called from others.
type Stream struct {
	url         string
	contentType string
	name        string
	bitrate     int
	metaint     int

	body io.ReadCloser
	buf  *ring.Buffer

	title     atomic.Pointer[string]
	failure   atomic.Pointer[Error]
	bytesRead atomic.Int64

	cancel    context.CancelFunc
	stopAbort func() bool
	done      chan struct{}
	closeOnce sync.Once
}

func newStream(parent context.Context, resp *http.Response, rawURL string, cfg Config) *Stream {
	ctx, cancel := context.WithCancel(parent)

	st := &Stream{
		url:         rawURL,
		contentType: resp.Header.Get("Content-Type"),
		name:        strings.TrimSpace(resp.Header.Get("icy-name")),
		body:        resp.Body,
		buf:         ring.New(cfg.ReadAhead, cfg.Prebuffer),
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	if val := resp.Header.Get("icy-br"); val != "" {
		// Some servers send "128,128"
		if br, err := strconv.Atoi(strings.TrimSpace(strings.SplitN(val, ",", 2)[0])); err == nil {
			st.bitrate = br
		}
	}
	if val := resp.Header.Get("icy-metaint"); val != "" {
		if mi, err := strconv.Atoi(strings.TrimSpace(val)); err == nil && mi > 0 {
			st.metaint = mi
			log.Debug().Msgf("ICY metadata interval: %d bytes", mi)
		}
	}

	// Cancellation must wake a reader blocked on an empty buffer and unstick the body.
	st.stopAbort = context.AfterFunc(ctx, func() {
		st.buf.Abort(ctx.Err())
		st.body.Close()
	})

	body := &stallReader{reader: resp.Body, ctx: ctx, timeout: cfg.ReadTimeout}
	go st.pump(ctx, body)

	return st
}

func (st *Stream) pump(ctx context.Context, bodyReader io.Reader) {
	var exitErr error

	defer func() {
		st.body.Close()
		st.buf.CloseWithError(exitErr)
		close(st.done)
		log.Debug().Msg("Network stream reader stopped")
	}()

	interrupted := func(err error) {
		log.Error().Err(err).Msg("Error reading audio data from stream")
		se := &Error{Kind: KindInterrupted, URL: st.url, Err: err}
		st.failure.Store(se)
		exitErr = se
	}

	chunkSize := int64(st.metaint)
	if chunkSize == 0 {
		chunkSize = NetworkReadSize
	}

	bufReader := bufio.NewReaderSize(bodyReader, NetworkReadSize)

	for {
		if ctx.Err() != nil {
			return
		}

		n, err := io.CopyN(st.buf, bufReader, chunkSize)
		st.bytesRead.Add(n)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ring.ErrClosed) {
				return
			}
			if err != io.EOF {
				interrupted(err)
			}
			return
		}

		if st.metaint == 0 {
			continue
		}

		metaLenByte, err := bufReader.ReadByte()
		if err != nil {
			if ctx.Err() != nil || err == io.EOF {
				return
			}
			interrupted(err)
			return
		}

		metaLen := int(metaLenByte) * 16
		if metaLen == 0 {
			continue
		}
		if metaLen > MaxICYMetadataBytes {
			log.Warn().Int("metaLen", metaLen).Msg("ICY metadata too large, skipping")
			if _, err := io.CopyN(io.Discard, bufReader, int64(metaLen)); err != nil {
				if ctx.Err() != nil {
					return
				}
				interrupted(err)
				return
			}
			continue
		}

		metaData := make([]byte, metaLen)
		if _, err := io.ReadFull(bufReader, metaData); err != nil {
			if ctx.Err() != nil {
				return
			}
			interrupted(err)
			return
		}

		if title, ok := parseStreamTitle(string(metaData)); ok {
			st.title.Store(&title)
			log.Debug().Str("title", title).Msg("Track changed")
		}
	}
}

// parseStreamTitle extracts the StreamTitle field from an ICY metadata block.
func parseStreamTitle(meta string) (string, bool) {
	const key = "StreamTitle='"
	start := strings.Index(meta, key)
	if start < 0 {
		return "", false
	}
	start += len(key)
	end := strings.Index(meta[start:], "';")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(meta[start : start+end]), true
}

// Read returns buffered body bytes. It blocks until data is available, the body
// ends (io.EOF) or the stream is cancelled or closed.
func (st *Stream) Read(p []byte) (int, error) {
	return st.buf.Read(p)
}

// Err reports why the body stopped flowing after it started. It is nil while the
// stream is healthy, after a clean end and after cancellation.
func (st *Stream) Err() error {
	if se := st.failure.Load(); se != nil {
		return se
	}
	return nil
}

// Close stops the reader goroutine and releases the connection. It is idempotent.
func (st *Stream) Close() error {
	st.closeOnce.Do(func() {
		st.buf.Abort(ring.ErrClosed)
		st.stopAbort()
		st.cancel()
		st.body.Close()
		<-st.done
	})
	return nil
}

func (st *Stream) URL() string { return st.url }

func (st *Stream) ContentType() string { return st.contentType }

// Name is the icy-name header, if the server sent one.
func (st *Stream) Name() string { return st.name }

// Bitrate is the icy-br header in kbps, or 0.
func (st *Stream) Bitrate() int { return st.bitrate }

// Title returns the most recent StreamTitle, or "" before the first metadata block.
func (st *Stream) Title() string {
	if t := st.title.Load(); t != nil {
		return *t
	}
	return ""
}

// Health returns the read-ahead fill level as a percentage.
func (st *Stream) Health() int {
	return st.buf.Health()
}

// BytesRead counts audio bytes received, excluding ICY metadata.
func (st *Stream) BytesRead() int64 {
	return st.bytesRead.Load()
}
