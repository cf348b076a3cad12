package player

import (
	"sync"

	"github.com/glebovdev/radio-cli/internal/config"
	"github.com/rs/zerolog/log"
)

// Player keeps at most one live session. Play supersedes the current session
// and Stop cancels it; neither waits for the network.
type Player struct {
	engine *Engine
	gain   *Gain

	mu            sync.Mutex
	current       *Session
	token         *Token
	volumePercent int
}

func NewPlayer(engine *Engine, volumePercent int) *Player {
	volumePercent = config.ClampVolume(volumePercent)
	return &Player{
		engine:        engine,
		gain:          NewGain(PercentToGain(volumePercent)),
		volumePercent: volumePercent,
	}
}

// Play cancels the current session and starts a new one for url with a fresh
// token. The new session opens the device only after the old one has ended.
func (p *Player) Play(url string) *Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	var after <-chan struct{}
	if p.current != nil {
		p.token.Cancel()
		after = p.current.Done()
		log.Debug().Str("session", p.current.ID()).Msg("Superseding session")
	}

	token := NewToken()
	s := p.engine.start(url, p.gain, token, after)
	p.current = s
	p.token = token

	return s
}

// Retry replays the current session's URL. It returns nil if nothing was played.
func (p *Player) Retry() *Session {
	p.mu.Lock()
	s := p.current
	p.mu.Unlock()

	if s == nil {
		return nil
	}
	return p.Play(s.URL())
}

// Stop cancels the current session, if any. Repeated calls do nothing.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token == nil || p.token.Cancelled() {
		return
	}
	p.token.Cancel()
	log.Debug().Msg("Playback stopped")
}

// Shutdown stops playback and waits for the session to release its resources.
func (p *Player) Shutdown() {
	p.Stop()
	if s := p.Current(); s != nil {
		<-s.Done()
	}
}

func (p *Player) SetVolume(volumePercent int) {
	volumePercent = config.ClampVolume(volumePercent)

	p.mu.Lock()
	p.volumePercent = volumePercent
	p.mu.Unlock()

	p.gain.Set(PercentToGain(volumePercent))
	log.Debug().Msgf("Volume set to %d%% (%.2f dB)", volumePercent, percentToExponent(float64(volumePercent)))
}

func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volumePercent
}

// SetGain sets a linear gain directly, bypassing the volume curve.
func (p *Player) SetGain(v float64) {
	p.gain.Set(v)
}

func (p *Player) Gain() float64 {
	return p.gain.Load()
}

// Current returns the most recent session, which may already have ended.
func (p *Player) Current() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Player) State() State {
	if s := p.Current(); s != nil {
		return s.State()
	}
	return StateIdle
}

func (p *Player) Track() string {
	if s := p.Current(); s != nil {
		return s.Track()
	}
	return ""
}
