package core

import "sort"

// Phase is the connection phase of a call session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseDisconnecting
	PhaseDisconnected
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseDisconnecting:
		return "disconnecting"
	case PhaseDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Terminal reports whether no transition leaves p.
func (p Phase) Terminal() bool {
	return p == PhaseDisconnected
}

var transitions = map[Phase][]Phase{
	PhaseIdle:          {PhaseConnecting, PhaseDisconnected},
	PhaseConnecting:    {PhaseConnected, PhaseDisconnecting, PhaseDisconnected},
	PhaseConnected:     {PhaseDisconnecting, PhaseDisconnected},
	PhaseDisconnecting: {PhaseDisconnected},
}

// CanTransition reports whether a session may move from one phase to another.
// Phases only move forward and disconnected is final.
func CanTransition(from, to Phase) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// State is a point-in-time copy of a session's connection state.
type State struct {
	Phase        Phase
	MicEnabled   bool
	Participants []string // sorted identities
	Err          error
}

// HasParticipant reports whether identity is in the room.
func (s State) HasParticipant(identity string) bool {
	i := sort.SearchStrings(s.Participants, identity)
	return i < len(s.Participants) && s.Participants[i] == identity
}

// Info describes who is on the call and where.
type Info struct {
	RoomName     string
	Identity     string
	CallerNumber string
	CallerName   string
}
