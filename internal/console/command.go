package console

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/glebovdev/radio-cli/internal/config"
)

const VolumeStep = 5

var (
	ErrUnknownCommand  = errors.New("unknown command")
	ErrMissingArgument = errors.New("missing argument")
)

type Action int

const (
	ActionPlay Action = iota
	ActionStop
	ActionVolume
	ActionVolumeUp
	ActionVolumeDown
	ActionInfo
	ActionList
	ActionSearch
	ActionTop
	ActionRetry
	ActionHelp
	ActionQuit
)

// Command is one parsed input line.
type Command struct {
	Action Action
	Arg    string
	Volume int
}

var aliases = map[string]Action{
	"play":   ActionPlay,
	"p":      ActionPlay,
	"stop":   ActionStop,
	"s":      ActionStop,
	"vol":    ActionVolume,
	"volume": ActionVolume,
	"+":      ActionVolumeUp,
	"=":      ActionVolumeUp,
	"-":      ActionVolumeDown,
	"_":      ActionVolumeDown,
	"info":   ActionInfo,
	"i":      ActionInfo,
	"list":   ActionList,
	"ls":     ActionList,
	"search": ActionSearch,
	"find":   ActionSearch,
	"top":    ActionTop,
	"retry":  ActionRetry,
	"r":      ActionRetry,
	"help":   ActionHelp,
	"?":      ActionHelp,
	"quit":   ActionQuit,
	"q":      ActionQuit,
	"exit":   ActionQuit,
}

// parseCommand parses a line such as "play 2" or "vol 40". Blank lines return
// ok == false and no error.
func parseCommand(line string) (cmd Command, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, false, nil
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	action, known := aliases[strings.ToLower(name)]
	if !known {
		return Command{}, false, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}

	cmd = Command{Action: action, Arg: arg}

	switch action {
	case ActionPlay, ActionSearch:
		if arg == "" {
			return Command{}, false, fmt.Errorf("%w: %s needs a station", ErrMissingArgument, name)
		}
	case ActionVolume:
		if arg == "" {
			return Command{}, false, fmt.Errorf("%w: vol needs a value 0-100", ErrMissingArgument)
		}
		v, err := strconv.Atoi(strings.TrimSuffix(arg, "%"))
		if err != nil {
			return Command{}, false, fmt.Errorf("invalid volume %q: %w", arg, err)
		}
		cmd.Volume = config.ClampVolume(v)
	}

	return cmd, true, nil
}

const helpText = `Commands:
  play <n|name|url>   play a station by list number, name or URL
  stop                stop playback
  vol <0-100>         set volume
  + / -               volume up / down
  info                show what is playing
  list                list configured stations and the latest results
  search <term>       search the station directory
  top                 show the most voted directory stations
  retry               replay the last station
  help                show this help
  quit                exit`
