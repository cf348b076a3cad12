package player

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateStreaming:
		return "LIVE"
	case StateCompleted:
		return "COMPLETED"
	case StateCancelled:
		return "STOPPED"
	case StateFailed:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether a session in this state has finished.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}
