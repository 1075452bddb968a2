package agent

import "fmt"

// State defines the agent lifecycle state.
type State string

const (
	StateInitializing State = "initializing" // Constructed, start hook not yet run
	StateReady        State = "ready"        // Ready to handle messages
	StateBusy         State = "busy"         // Handling a message
	StatePaused       State = "paused"       // Paused, refusing messages
	StateShuttingDown State = "shutting_down" // Shutdown hook running
	StateStopped      State = "stopped"      // Terminal
	StateError        State = "error"        // Unrecoverable failure
)

// validTransitions defines the legal state transitions.
var validTransitions = map[State][]State{
	StateInitializing: {StateReady, StateError, StateShuttingDown},
	StateReady:        {StateBusy, StatePaused, StateShuttingDown, StateError},
	StateBusy:         {StateReady, StateShuttingDown, StateError},
	StatePaused:       {StateReady, StateShuttingDown},
	StateShuttingDown: {StateStopped},
	StateError:        {StateShuttingDown},
}

// CanTransition checks whether the transition from -> to is legal.
func CanTransition(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition reports an illegal lifecycle transition.
type ErrInvalidTransition struct {
	From State
	To   State
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}
