// Package sink feeds decoded PCM blocks to an audio output at the device's pace.
package sink

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSampleRate      = beep.SampleRate(44100)
	DefaultQueueBlocks     = 16
	DefaultFadeIn          = 50 * time.Millisecond
	DefaultResampleQuality = 4
)

var (
	ErrDeviceOpen = errors.New("failed to open audio device")
	ErrClosed     = errors.New("sink closed")
)

// GainReader supplies the linear gain applied to every frame. It is read on the
// audio goroutine, so Load must not block.
type GainReader interface {
	Load() float64
}

type Config struct {
	// SampleRate is the device rate; streams at other rates are resampled.
	SampleRate      beep.SampleRate
	QueueBlocks     int
	FadeIn          time.Duration
	ResampleQuality int
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.QueueBlocks <= 0 {
		c.QueueBlocks = DefaultQueueBlocks
	}
	if c.FadeIn < 0 {
		c.FadeIn = 0
	}
	if c.ResampleQuality <= 0 {
		c.ResampleQuality = DefaultResampleQuality
	}
	return c
}

// Sink owns an open Output for the lifetime of one playback. Render and Drain are
// called by a single producer; Close may be called from anywhere.
type Sink struct {
	cfg    Config
	out    Output
	format beep.Format
	queue  chan [][2]float64
	feed   *feed

	queueOnce sync.Once
	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// Open claims out and starts pulling. Blocks passed to Render are at format's
// sample rate.
func Open(out Output, format beep.Format, gain GainReader, cfg Config) (*Sink, error) {
	cfg = cfg.withDefaults()

	if err := out.Open(cfg.SampleRate); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceOpen, err)
	}

	s := &Sink{
		cfg:    cfg,
		out:    out,
		format: format,
		queue:  make(chan [][2]float64, cfg.QueueBlocks),
		closed: make(chan struct{}),
	}

	fadeIn := int(format.SampleRate.N(cfg.FadeIn))
	s.feed = &feed{
		queue:           s.queue,
		drained:         make(chan struct{}),
		fadeInRemaining: fadeIn,
		fadeInTotal:     fadeIn,
	}

	var chain beep.Streamer = s.feed
	if format.SampleRate != cfg.SampleRate {
		log.Debug().Msgf("Resampling %d Hz -> %d Hz", format.SampleRate, cfg.SampleRate)
		chain = beep.Resample(cfg.ResampleQuality, format.SampleRate, cfg.SampleRate, chain)
	}
	chain = &gainStreamer{
		volume: &effects.Volume{Streamer: chain, Base: 2},
		gain:   gain,
	}

	if err := out.Play(chain); err != nil {
		out.Close()
		return nil, fmt.Errorf("%w: %w", ErrDeviceOpen, err)
	}

	return s, nil
}

// Render queues one block, blocking while the queue is full. It returns ctx.Err()
// on cancellation and ErrClosed once the sink is closed.
func (s *Sink) Render(ctx context.Context, samples [][2]float64) error {
	if len(samples) == 0 {
		return nil
	}

	select {
	case <-s.closed:
		return ErrClosed
	default:
	}

	select {
	case s.queue <- samples:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return ErrClosed
	}
}

// Drain marks the end of input and waits until every queued frame has been
// handed to the output. Render must not be called afterwards.
func (s *Sink) Drain(ctx context.Context) error {
	s.queueOnce.Do(func() { close(s.queue) })

	select {
	case <-s.feed.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return ErrClosed
	}
}

// Close silences and releases the output. Queued frames are dropped. It is
// idempotent and safe to call concurrently with Render.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.closeErr = s.out.Close()
	})
	return s.closeErr
}

// Rendered counts frames, at the stream's rate, handed to the output.
func (s *Sink) Rendered() int64 {
	return s.feed.rendered.Load()
}

// Underruns counts device pulls that found the queue empty.
func (s *Sink) Underruns() int64 {
	return s.feed.underruns.Load()
}

// QueueHealth returns how full the block queue is, as a percentage.
func (s *Sink) QueueHealth() int {
	return len(s.queue) * 100 / cap(s.queue)
}

func (s *Sink) Format() beep.Format { return s.format }

// feed pulls queued blocks without blocking so the device never stalls on the
// network. An empty queue is padded with silence.
type feed struct {
	queue   <-chan [][2]float64
	current [][2]float64
	done    bool
	drained chan struct{}

	fadeInRemaining int
	fadeInTotal     int

	rendered  atomic.Int64
	underruns atomic.Int64
}

func (f *feed) Stream(samples [][2]float64) (int, bool) {
	if f.done {
		return 0, false
	}

	n := 0
fill:
	for n < len(samples) {
		if len(f.current) == 0 {
			select {
			case block, ok := <-f.queue:
				if !ok {
					f.done = true
					close(f.drained)
					break fill
				}
				f.current = block
				continue
			default:
				f.underruns.Add(1)
				break fill
			}
		}
		c := copy(samples[n:], f.current)
		f.current = f.current[c:]
		n += c
	}

	if f.fadeInRemaining > 0 {
		for i := 0; i < n && f.fadeInRemaining > 0; i++ {
			scale := float64(f.fadeInTotal-f.fadeInRemaining) / float64(f.fadeInTotal)
			samples[i][0] *= scale
			samples[i][1] *= scale
			f.fadeInRemaining--
		}
	}

	f.rendered.Add(int64(n))

	if f.done {
		if n == 0 {
			return 0, false
		}
		return n, true
	}

	for i := n; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
	return len(samples), true
}

func (f *feed) Err() error {
	return nil
}

// gainStreamer reapplies the current gain on every pull so changes are heard
// within one device buffer.
type gainStreamer struct {
	volume *effects.Volume
	gain   GainReader
}

func (g *gainStreamer) Stream(samples [][2]float64) (int, bool) {
	v := 1.0
	if g.gain != nil {
		v = g.gain.Load()
	}
	if v <= 0 || math.IsNaN(v) {
		g.volume.Silent = true
	} else {
		g.volume.Silent = false
		g.volume.Volume = math.Log2(v)
	}
	return g.volume.Stream(samples)
}

func (g *gainStreamer) Err() error {
	return g.volume.Err()
}
