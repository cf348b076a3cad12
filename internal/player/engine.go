// Package player runs playback sessions: one stream, decoder and sink per play
// request, cancelled cooperatively through a Token.
package player

import (
	"context"

	"github.com/glebovdev/radio-cli/internal/decoder"
	"github.com/glebovdev/radio-cli/internal/sink"
	"github.com/glebovdev/radio-cli/internal/stream"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Opener connects to a stream URL. *stream.Source implements it.
type Opener interface {
	Open(ctx context.Context, rawURL string) (*stream.Stream, error)
}

type Config struct {
	// BlockSize is the maximum number of frames decoded per step.
	BlockSize int
	Sink      sink.Config
}

// Engine starts sessions against one source and one output device. It holds no
// per-session state.
type Engine struct {
	src Opener
	out sink.Output
	cfg Config
}

func NewEngine(src Opener, out sink.Output, cfg Config) *Engine {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = decoder.DefaultBlockSize
	}
	return &Engine{src: src, out: out, cfg: cfg}
}

// Play starts a session for url and returns without waiting for the network.
func (e *Engine) Play(url string, gain *Gain, token *Token) *Session {
	return e.start(url, gain, token, nil)
}

// start runs the session once after is closed, so a superseded session has
// released the device before the next one opens it.
func (e *Engine) start(url string, gain *Gain, token *Token, after <-chan struct{}) *Session {
	if gain == nil {
		gain = NewGain(1)
	}
	if token == nil {
		token = NewToken()
	}
	s := &Session{
		id:     uuid.NewString(),
		url:    url,
		engine: e,
		gain:   gain,
		token:  token,
		after:  after,
		done:   make(chan struct{}),
	}

	log.Debug().Str("session", s.id).Msgf("Starting session for %s", url)
	go s.run()

	return s
}
