package core

// EventKind is a notification the session emits to its owner.
type EventKind int

const (
	// EventPhaseChanged reports a connection phase transition.
	EventPhaseChanged EventKind = iota
	// EventParticipantJoined reports a remote participant entering the room.
	EventParticipantJoined
	// EventParticipantLeft reports a remote participant leaving the room.
	EventParticipantLeft
	// EventMicChanged reports an acknowledged microphone toggle.
	EventMicChanged
	// EventFailed reports a connection failure. It precedes the final phase change.
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventPhaseChanged:
		return "phase_changed"
	case EventParticipantJoined:
		return "participant_joined"
	case EventParticipantLeft:
		return "participant_left"
	case EventMicChanged:
		return "mic_changed"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event describes what happened to a session.
type Event struct {
	Kind       EventKind
	Phase      Phase  // phase after the event
	Identity   string // for participant events
	MicEnabled bool   // for EventMicChanged
	Err        error  // for EventFailed
}

// DefaultEventBuffer is the capacity of the events channel.
const DefaultEventBuffer = 32
