package worker

// State is the lifecycle position of a Runner.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StatePolling
	StateProcessing
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StatePolling:
		return "POLLING"
	case StateProcessing:
		return "PROCESSING"
	case StateStopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
