package sink

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog/log"
)

// ErrBusy is returned by Output.Open while another sink holds the device.
var ErrBusy = errors.New("audio device busy")

// Output is an audio device. Open claims it at a sample rate, Play hands it the
// streamer to pull from, and Close silences and releases it.
type Output interface {
	Open(rate beep.SampleRate) error
	Play(s beep.Streamer) error
	Close() error
}

const DefaultSpeakerBuffer = 250 * time.Millisecond

// SpeakerOutput plays through the system audio device via beep/speaker.
// The speaker is process-wide, so one SpeakerOutput should be shared.
type SpeakerOutput struct {
	Buffer time.Duration

	mu          sync.Mutex
	rate        beep.SampleRate
	initialized bool
	busy        bool
}

func NewSpeakerOutput(buffer time.Duration) *SpeakerOutput {
	if buffer <= 0 {
		buffer = DefaultSpeakerBuffer
	}
	return &SpeakerOutput{Buffer: buffer}
}

func (o *SpeakerOutput) Open(rate beep.SampleRate) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.busy {
		return ErrBusy
	}

	if !o.initialized || rate != o.rate {
		if err := speaker.Init(rate, rate.N(o.Buffer)); err != nil {
			return fmt.Errorf("failed to initialize speaker: %w", err)
		}
		o.rate = rate
		o.initialized = true
		log.Debug().Msgf("Speaker initialized with sample rate: %d Hz, buffer: %v", rate, o.Buffer)
	}

	o.busy = true
	return nil
}

func (o *SpeakerOutput) Play(s beep.Streamer) error {
	speaker.Play(s)
	return nil
}

func (o *SpeakerOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.initialized {
		speaker.Clear()
	}
	o.busy = false
	return nil
}

// CaptureOutput is an in-memory device for headless runs and tests. A background
// goroutine pulls from the streamer the way a sound card would and keeps every
// non-silent frame.
type CaptureOutput struct {
	// Pace makes the pull loop sleep for the duration of each buffer.
	Pace bool
	// Discard drops audible frames after counting them instead of keeping them.
	Discard bool

	mu      sync.Mutex
	open    bool
	opens   int
	rate    beep.SampleRate
	samples [][2]float64
	frames  int
	stop    chan struct{}
	wg      sync.WaitGroup
}

func NewCaptureOutput() *CaptureOutput {
	return &CaptureOutput{}
}

const captureChunk = 512

func (c *CaptureOutput) Open(rate beep.SampleRate) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open {
		return ErrBusy
	}
	c.open = true
	c.opens++
	c.rate = rate
	c.stop = make(chan struct{})
	return nil
}

func (c *CaptureOutput) Play(s beep.Streamer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return errors.New("capture output not open")
	}

	c.wg.Add(1)
	go c.pull(s, c.stop, c.rate)
	return nil
}

func (c *CaptureOutput) pull(s beep.Streamer, stop <-chan struct{}, rate beep.SampleRate) {
	defer c.wg.Done()

	buf := make([][2]float64, captureChunk)
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, ok := s.Stream(buf)
		audible := c.record(buf[:n])
		if !ok {
			return
		}

		if c.Pace {
			time.Sleep(rate.D(n))
		} else if audible == 0 {
			time.Sleep(time.Millisecond)
		}
	}
}

func (c *CaptureOutput) record(frames [][2]float64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	audible := 0
	for _, f := range frames {
		if f == [2]float64{} {
			continue
		}
		audible++
		if !c.Discard {
			c.samples = append(c.samples, f)
		}
	}
	c.frames += audible
	return audible
}

// Close stops the pull loop and waits for it to exit.
func (c *CaptureOutput) Close() error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return nil
	}
	c.open = false
	stop := c.stop
	c.mu.Unlock()

	close(stop)
	c.wg.Wait()
	return nil
}

// Samples returns a copy of every audible frame received so far.
func (c *CaptureOutput) Samples() [][2]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([][2]float64, len(c.samples))
	copy(out, c.samples)
	return out
}

// Frames counts audible frames received, including discarded ones.
func (c *CaptureOutput) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Opens counts successful Open calls.
func (c *CaptureOutput) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

func (c *CaptureOutput) InUse() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *CaptureOutput) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = nil
	c.frames = 0
}
