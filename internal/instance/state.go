package instance

// State is the exclusive lifecycle state of one instance. It is the single
// source of truth for whether a control operation is legal.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)
