package server

import "strconv"

// State is a stage of the server lifecycle. A server moves through
// them in order, alternating between StateAccepting and
// StateDispatching while connections arrive. StateStopped is terminal.
type State int32

const (
	StateStarting State = iota
	StateListening
	StateAccepting
	StateDispatching
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateAccepting:
		return "accepting"
	case StateDispatching:
		return "dispatching"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}
