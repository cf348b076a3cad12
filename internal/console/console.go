// Package console is a line-oriented shell that drives a player.Player from a
// terminal or any other line source.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/glebovdev/radio-cli/internal/api"
	"github.com/glebovdev/radio-cli/internal/player"
	"github.com/glebovdev/radio-cli/internal/service"
	"github.com/glebovdev/radio-cli/internal/station"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSearchLimit = 10
	statusPollInterval = 200 * time.Millisecond
	prompt             = "> "
)

var ErrNothingToRetry = errors.New("nothing has been played yet")

type Console struct {
	player   *player.Player
	stations *service.StationService

	SearchLimit int
	// OnVolume, if set, is called after every volume change.
	OnVolume func(percent int)

	mu      sync.Mutex
	out     io.Writer
	playing station.Station
}

func New(p *player.Player, stations *service.StationService, out io.Writer) *Console {
	return &Console{
		player:      p,
		stations:    stations,
		out:         out,
		SearchLimit: DefaultSearchLimit,
	}
}

// Run reads commands from in until quit, end of input or ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	c.printf("%s", prompt)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			quit, err := c.Execute(ctx, line)
			if err != nil {
				c.printf("Error: %v\n", err)
			}
			if quit {
				return nil
			}
			c.printf("%s", prompt)
		}
	}
}

// Execute runs one command line. It reports true when the line asks to quit.
func (c *Console) Execute(ctx context.Context, line string) (bool, error) {
	cmd, ok, err := parseCommand(line)
	if err != nil || !ok {
		return false, err
	}

	switch cmd.Action {
	case ActionPlay:
		st, err := c.stations.Resolve(cmd.Arg)
		if err != nil {
			return false, err
		}
		c.Play(st)
	case ActionStop:
		c.player.Stop()
		c.printf("Stopped\n")
	case ActionVolume:
		c.setVolume(cmd.Volume)
	case ActionVolumeUp:
		c.setVolume(c.player.Volume() + VolumeStep)
	case ActionVolumeDown:
		c.setVolume(c.player.Volume() - VolumeStep)
	case ActionInfo:
		c.printInfo()
	case ActionList:
		c.printStations()
	case ActionSearch:
		return false, c.search(ctx, cmd.Arg)
	case ActionTop:
		return false, c.topVoted(ctx)
	case ActionRetry:
		s := c.player.Retry()
		if s == nil {
			return false, ErrNothingToRetry
		}
		name := c.Playing().Name
		c.printf("Retrying %s...\n", name)
		go c.watch(s, name)
	case ActionHelp:
		c.printf("%s\n", helpText)
	case ActionQuit:
		return true, nil
	}

	return false, nil
}

// Play starts st and reports its progress on the console output.
func (c *Console) Play(st station.Station) *player.Session {
	c.mu.Lock()
	c.playing = st
	c.mu.Unlock()

	s := c.player.Play(st.URL)
	c.printf("Connecting to %s...\n", st.Name)
	go c.watch(s, st.Name)
	return s
}

// Playing returns the station most recently started from this console.
func (c *Console) Playing() station.Station {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// watch reports state and track changes for s until it ends or is superseded.
func (c *Console) watch(s *player.Session, name string) {
	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	announced := false
	track := ""

	report := func() {
		if !announced && s.State() == player.StateStreaming {
			announced = true
			c.printf("Playing: %s\n", name)
		}
		if t := s.Track(); t != "" && t != track {
			track = t
			c.printf("Now playing: %s\n", t)
		}
	}

	for {
		select {
		case <-s.Done():
			if c.player.Current() != s {
				return
			}
			res := s.Result()
			switch res.State {
			case player.StateCompleted:
				c.printf("Stream ended: %s\n", name)
			case player.StateFailed:
				c.printf("Playback failed: %v\n", res.Err)
				log.Warn().Err(res.Err).Str("session", s.ID()).Msg("Session failed")
			}
			return
		case <-ticker.C:
			if c.player.Current() != s {
				return
			}
			report()
		}
	}
}

func (c *Console) setVolume(percent int) {
	c.player.SetVolume(percent)
	v := c.player.Volume()
	c.printf("Volume: %d%%\n", v)
	if c.OnVolume != nil {
		c.OnVolume(v)
	}
}

func (c *Console) printInfo() {
	s := c.player.Current()
	if s == nil {
		c.printf("Nothing playing\n")
		return
	}

	info := s.Info()
	var b strings.Builder
	fmt.Fprintf(&b, "State:    %s\n", s.State())
	fmt.Fprintf(&b, "URL:      %s\n", s.URL())
	if info.Name != "" {
		fmt.Fprintf(&b, "Station:  %s\n", info.Name)
	}
	if t := s.Track(); t != "" {
		fmt.Fprintf(&b, "Track:    %s\n", t)
	}
	if info.Codec != "" {
		fmt.Fprintf(&b, "Format:   %s %d Hz, %d ch", info.Codec, info.SampleRate, info.Channels)
		if info.Bitrate > 0 {
			fmt.Fprintf(&b, ", %d kbps", info.Bitrate)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Elapsed:  %s\n", s.Duration().Truncate(time.Second))
	fmt.Fprintf(&b, "Buffer:   %d%% network, %d%% queue\n", s.BufferHealth(), s.QueueHealth())
	fmt.Fprintf(&b, "Volume:   %d%%\n", c.player.Volume())
	if res := s.Result(); res.Err != nil {
		fmt.Fprintf(&b, "Error:    %v\n", res.Err)
	}

	c.printf("%s", b.String())
}

func (c *Console) printStations() {
	results := c.stations.Results()
	if c.stations.StationCount() == 0 && len(results) == 0 {
		c.printf("No stations configured\n")
		return
	}

	current := ""
	if s := c.player.Current(); s != nil && !s.State().Terminal() {
		current = s.URL()
	}

	var b strings.Builder
	for i, st := range c.stations.Stations() {
		marker := " "
		if st.URL == current {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %2d. %s\n", marker, i+1, st.Name)
	}
	if len(results) > 0 {
		b.WriteString("Directory results:\n")
		for _, info := range results {
			marker := " "
			if info.StreamURL() == current {
				marker = "*"
			}
			fmt.Fprintf(&b, "%s  - %s\n", marker, strings.TrimSpace(info.Name))
		}
	}
	c.printf("%s", b.String())
}

func (c *Console) search(ctx context.Context, term string) error {
	results, err := c.stations.Search(ctx, term, c.SearchLimit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		c.printf("No stations found for %q\n", term)
		return nil
	}
	c.printResults(results)
	return nil
}

func (c *Console) topVoted(ctx context.Context) error {
	results, err := c.stations.TopVoted(ctx, c.SearchLimit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		c.printf("The directory returned no stations\n")
		return nil
	}
	c.printResults(results)
	return nil
}

func (c *Console) printResults(results []api.StationInfo) {
	var b strings.Builder
	for _, info := range results {
		fmt.Fprintf(&b, "  - %s", strings.TrimSpace(info.Name))
		if info.Codec != "" {
			fmt.Fprintf(&b, " [%s", info.Codec)
			if info.Bitrate > 0 {
				fmt.Fprintf(&b, " %dk", info.Bitrate)
			}
			b.WriteString("]")
		}
		fmt.Fprintf(&b, " (%d votes)\n", info.Votes)
	}
	b.WriteString("Use \"play <name>\" to listen.\n")
	c.printf("%s", b.String())
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
