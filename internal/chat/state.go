package chat

import "fmt"

// State is a phase of one turn.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateToolDispatch
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateToolDispatch:
		return "tool_dispatch"
	case StateFinalizing:
		return "finalizing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Idle may jump straight to Finalizing when the turn fails before the
// first provider call (unreadable attachment, provider setup).
var transitions = map[State][]State{
	StateIdle:         {StateStreaming, StateFinalizing},
	StateStreaming:    {StateToolDispatch, StateFinalizing},
	StateToolDispatch: {StateStreaming, StateFinalizing},
	StateFinalizing:   {StateIdle},
}

// CanTransition reports whether a turn may move from one state to another.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
