package shmcache

// State represents cache manager lifecycle state
type State int32

const (
	StateNotStarted State = iota
	StateStarting
	StateRunning
	// StateDegraded means the tracker exited without being stopped; reads
	// still work, mutations fail with worker.ErrTrackerUnavailable.
	StateDegraded
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDegraded:
		return "degraded"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}
