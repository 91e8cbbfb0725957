package callengine

import "context"

// JoinInfo contains information needed to join a call.
type JoinInfo struct {
	URL      string `json:"url"`      // WebSocket URL (e.g., ws://localhost:7880)
	Token    string `json:"token"`    // JWT token for LiveKit
	RoomName string `json:"room"`     // LiveKit room name
	Identity string `json:"identity"` // User identity in the room
}

// EventKind is a callback the media provider delivers for a joined room.
type EventKind int

const (
	// EventConnected fires once the room handshake completes.
	EventConnected EventKind = iota
	// EventDisconnected fires when the provider drops the room.
	EventDisconnected
	// EventParticipantConnected fires for every remote participant present or joining.
	EventParticipantConnected
	// EventParticipantDisconnected fires when a remote participant leaves.
	EventParticipantDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventParticipantConnected:
		return "participant_connected"
	case EventParticipantDisconnected:
		return "participant_disconnected"
	default:
		return "unknown"
	}
}

// Event is a provider notification.
type Event struct {
	Kind     EventKind
	Identity string // remote participant, for participant events
	Reason   string // for EventDisconnected
}

// Handler receives provider events. It may be called from provider goroutines.
type Handler func(Event)

// Room is a joined media room.
type Room interface {
	// SetMicrophoneEnabled publishes or mutes the local microphone and
	// returns once the provider has applied the change.
	SetMicrophoneEnabled(ctx context.Context, enabled bool) error
	// Disconnect leaves the room. It is safe to call more than once.
	Disconnect()
}

// Connector joins media rooms.
type Connector interface {
	// Connect starts joining the room at url with token. Events, including
	// EventConnected, are delivered to h.
	Connect(ctx context.Context, url, token string, h Handler) (Room, error)
}

// TokenIssuer mints join credentials for a room.
type TokenIssuer interface {
	IssueJoinInfo(ctx context.Context, room, identity, name string) (*JoinInfo, error)
}
