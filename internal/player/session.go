package player

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebovdev/radio-cli/internal/decoder"
	"github.com/glebovdev/radio-cli/internal/sink"
	"github.com/glebovdev/radio-cli/internal/stream"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Result is the terminal outcome of a session. Err is a *PlaybackError for
// StateFailed and nil otherwise.
type Result struct {
	State State
	Err   error
}

// StreamInfo describes what is playing. Fields fill in as the session progresses.
type StreamInfo struct {
	ContentType string
	Name        string
	Bitrate     int
	Codec       string
	SampleRate  int
	Channels    int
}

// Session is one attempt to play one URL. All methods are safe for concurrent use.
type Session struct {
	id     string
	url    string
	engine *Engine
	gain   *Gain
	token  *Token
	after  <-chan struct{}

	mu       sync.RWMutex
	state    State
	info     StreamInfo
	started  time.Time
	finished time.Time
	result   Result

	stream atomic.Pointer[stream.Stream]
	sink   atomic.Pointer[sink.Sink]

	done chan struct{}
}

func (s *Session) ID() string    { return s.id }
func (s *Session) URL() string   { return s.url }
func (s *Session) Token() *Token { return s.token }
func (s *Session) Gain() *Gain   { return s.gain }

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Info() StreamInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

// Track is the current ICY StreamTitle, or "" if the server sends none.
func (s *Session) Track() string {
	if st := s.stream.Load(); st != nil {
		return st.Title()
	}
	return ""
}

// Duration is the time spent streaming, frozen once the session ends.
func (s *Session) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.started.IsZero() {
		return 0
	}
	if !s.finished.IsZero() {
		return s.finished.Sub(s.started)
	}
	return time.Since(s.started)
}

// BufferHealth is the network read-ahead fill level as a percentage.
func (s *Session) BufferHealth() int {
	if st := s.stream.Load(); st != nil {
		return st.Health()
	}
	return 0
}

// QueueHealth is the sink's block queue fill level as a percentage.
func (s *Session) QueueHealth() int {
	if out := s.sink.Load(); out != nil {
		return out.QueueHealth()
	}
	return 0
}

// Rendered counts frames handed to the output device.
func (s *Session) Rendered() int64 {
	if out := s.sink.Load(); out != nil {
		return out.Rendered()
	}
	return 0
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session ends and returns its result.
func (s *Session) Wait() Result {
	<-s.done
	return s.Result()
}

// Result returns the outcome, or a zero Result while the session is running.
func (s *Session) Result() Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != state {
		log.Debug().Str("session", s.id).Msgf("Session state: %s -> %s", s.state, state)
		s.state = state
	}
	if state == StateStreaming && s.started.IsZero() {
		s.started = time.Now()
	}
}

func (s *Session) updateInfo(fn func(*StreamInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.info)
}

func (s *Session) run() {
	defer close(s.done)

	ctx := s.token.Context()
	if s.after != nil {
		select {
		case <-s.after:
		case <-ctx.Done():
		}
	}

	res := s.play(ctx)

	s.mu.Lock()
	s.result = res
	if !s.started.IsZero() {
		s.finished = time.Now()
	}
	s.mu.Unlock()
	s.setState(res.State)

	switch res.State {
	case StateFailed:
		log.Error().Err(res.Err).Str("session", s.id).Msg("Playback failed")
	default:
		log.Debug().Str("session", s.id).Msgf("Playback finished: %s", res.State)
	}
}

func (s *Session) play(ctx context.Context) Result {
	if ctx.Err() != nil {
		return Result{State: StateCancelled}
	}

	s.setState(StateConnecting)
	st, err := s.engine.src.Open(ctx, s.url)
	if err != nil {
		return s.resolve(StageSource, err, nil)
	}
	s.stream.Store(st)
	s.updateInfo(func(info *StreamInfo) {
		info.ContentType = st.ContentType()
		info.Name = st.Name()
		info.Bitrate = st.Bitrate()
	})

	var (
		dec *decoder.Decoder
		out *sink.Sink
	)
	defer func() {
		s.release(out, dec, st)
	}()

	if ctx.Err() != nil {
		return Result{State: StateCancelled}
	}
	s.setState(StateStreaming)

	dec, err = decoder.New(st, st.ContentType(), s.engine.cfg.BlockSize)
	if err != nil {
		return s.resolve(StageDecoder, err, st)
	}
	format := dec.Format()
	s.updateInfo(func(info *StreamInfo) {
		info.Codec = dec.Codec().String()
		info.SampleRate = int(format.SampleRate)
		info.Channels = format.NumChannels
	})

	if ctx.Err() != nil {
		return Result{State: StateCancelled}
	}

	out, err = sink.Open(s.engine.out, format, s.gain, s.engine.cfg.Sink)
	if err != nil {
		return s.resolve(StageSink, err, st)
	}
	s.sink.Store(out)

	if err := s.pump(ctx, st, dec, out); err != nil {
		return s.resolve(StageDecoder, err, st)
	}
	// A decoder may treat a truncated body as a clean end.
	if err := st.Err(); err != nil {
		return s.resolve(StageSource, err, st)
	}
	if err := out.Drain(ctx); err != nil {
		return s.resolve(StageSink, err, st)
	}

	return Result{State: StateCompleted}
}

// pump decodes on one goroutine and renders on another. The one-slot channel
// keeps block order and bounds how far decoding runs ahead of the device.
func (s *Session) pump(ctx context.Context, st *stream.Stream, dec *decoder.Decoder, out *sink.Sink) error {
	g, gctx := errgroup.WithContext(ctx)
	blocks := make(chan decoder.Block, 1)

	// A render failure must also unblock a decoder waiting on the network.
	stop := context.AfterFunc(gctx, func() {
		if ctx.Err() == nil {
			st.Close()
		}
	})
	defer stop()

	g.Go(func() error {
		defer close(blocks)
		for {
			block, err := dec.Next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if block.Len() == 0 {
				if err := gctx.Err(); err != nil {
					return err
				}
				continue
			}

			select {
			case blocks <- block:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	g.Go(func() error {
		var last uint64
		for block := range blocks {
			if block.Seq <= last {
				log.Warn().Uint64("seq", block.Seq).Uint64("last", last).Msg("Out-of-order block dropped")
				continue
			}
			last = block.Seq
			if err := out.Render(gctx, block.Samples); err != nil {
				return err
			}
		}
		return nil
	})

	return g.Wait()
}

// resolve turns a stage error into a terminal result. Cancellation beats every
// error, and a network failure beats the stage that noticed it.
func (s *Session) resolve(stage Stage, err error, st *stream.Stream) Result {
	if s.token.Cancelled() {
		return Result{State: StateCancelled}
	}
	if st != nil {
		if netErr := st.Err(); netErr != nil {
			err = netErr
			stage = StageSource
		}
	}
	return Result{State: StateFailed, Err: classify(stage, err)}
}

// release closes in reverse order of acquisition. Errors are logged, not returned.
func (s *Session) release(out *sink.Sink, dec *decoder.Decoder, st *stream.Stream) {
	var result *multierror.Error

	if out != nil {
		if err := out.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if dec != nil {
		if err := dec.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := st.Close(); err != nil {
		result = multierror.Append(result, err)
	}

	if err := result.ErrorOrNil(); err != nil {
		log.Debug().Err(err).Str("session", s.id).Msg("Errors while releasing session")
	}
	log.Debug().Str("session", s.id).Msg("Session resources released")
}
