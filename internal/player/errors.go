package player

import (
	"errors"
	"fmt"

	"github.com/glebovdev/radio-cli/internal/decoder"
	"github.com/glebovdev/radio-cli/internal/sink"
	"github.com/glebovdev/radio-cli/internal/stream"
)

type Stage string

const (
	StageSource  Stage = "source"
	StageDecoder Stage = "decoder"
	StageSink    Stage = "sink"
)

var (
	ErrConnect           = errors.New("could not connect to stream")
	ErrStreamInterrupted = errors.New("stream interrupted")
	ErrDecode            = errors.New("could not decode stream")
	ErrSink              = errors.New("audio output failed")
)

// PlaybackError is the error of a Failed session. errors.Is matches Kind and
// errors.As reaches the stage's own error type.
type PlaybackError struct {
	Stage Stage
	Kind  error
	Err   error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("%v (%s): %v", e.Kind, e.Stage, e.Err)
}

func (e *PlaybackError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// classify maps a stage failure to its PlaybackError. Network errors win over
// whatever stage noticed them, so a decoder starved by a dropped connection is
// reported as an interruption.
func classify(stage Stage, err error) *PlaybackError {
	var se *stream.Error
	if errors.As(err, &se) {
		if se.Kind == stream.KindInterrupted {
			return &PlaybackError{Stage: StageSource, Kind: ErrStreamInterrupted, Err: err}
		}
		return &PlaybackError{Stage: StageSource, Kind: ErrConnect, Err: err}
	}

	var de *decoder.Error
	switch {
	case errors.As(err, &de):
		return &PlaybackError{Stage: StageDecoder, Kind: ErrDecode, Err: err}
	case errors.Is(err, sink.ErrDeviceOpen), errors.Is(err, sink.ErrClosed):
		return &PlaybackError{Stage: StageSink, Kind: ErrSink, Err: err}
	}

	switch stage {
	case StageSource:
		return &PlaybackError{Stage: stage, Kind: ErrConnect, Err: err}
	case StageDecoder:
		return &PlaybackError{Stage: stage, Kind: ErrDecode, Err: err}
	default:
		return &PlaybackError{Stage: stage, Kind: ErrSink, Err: err}
	}
}
