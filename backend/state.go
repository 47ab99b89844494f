package backend

// State is the connection state of one backend, owned exclusively by its
// Supervisor.
type State int

const (
	// StateInitializing is the state before the first handshake completes.
	StateInitializing State = iota

	// StateConnected means the backend is healthy and fully routable.
	StateConnected

	// StateDegraded means recent probes failed but the channel is still
	// usable. Degraded backends stay routable at reduced preference.
	StateDegraded

	// StateError means the channel is down. The supervisor keeps trying to
	// recover in the background.
	StateError

	// StateReconnecting is the transient state during a recovery dial.
	StateReconnecting

	// StateDisconnected is terminal: the backend was shut down on purpose.
	StateDisconnected
)

var stateNames = map[State]string{
	StateInitializing: "initializing",
	StateConnected:    "connected",
	StateDegraded:     "degraded",
	StateError:        "error",
	StateReconnecting: "reconnecting",
	StateDisconnected: "disconnected",
}

// String returns the lowercase state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Routable reports whether a backend in this state may serve calls.
// Only Connected and Degraded backends participate in routing.
func (s State) Routable() bool {
	return s == StateConnected || s == StateDegraded
}
