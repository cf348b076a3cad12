package stream

import (
	"fmt"
)

// ErrorKind tells apart the ways a stream can fail.
type ErrorKind int

const (
	// KindConnect covers invalid URLs and DNS, TCP or TLS failures before a response.
	KindConnect ErrorKind = iota
	// KindStatus is a response outside the 2xx range.
	KindStatus
	// KindInterrupted is a failure after the body started flowing.
	KindInterrupted
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindStatus:
		return "status"
	case KindInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Error is returned by Open and reported by Stream.Err.
type Error struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	Status     string
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("stream %s returned status %d: %s", e.URL, e.StatusCode, e.Status)
	case KindInterrupted:
		return fmt.Sprintf("stream %s interrupted: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("failed to connect to %s: %v", e.URL, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}
