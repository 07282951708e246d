package threadpool

// State is the pool lifecycle phase.
type State int32

// Pool lifecycle: Constructing -> Running -> ShuttingDown -> Stopped.
const (
	StateConstructing State = iota
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConstructing:
		return "constructing"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
