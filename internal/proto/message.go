package proto

import (
	"encoding/json"
	"time"
)

// TokenResponse is returned by GET /livekit/token.
type TokenResponse struct {
	Token string `json:"token"`
	Room  string `json:"room"`
	URL   string `json:"url"`
}

// OutboundCallRequest is the body of POST /livekit/calls/outbound.
type OutboundCallRequest struct {
	PhoneNumber   string `json:"phoneNumber"`
	PhoneNumberID string `json:"phoneNumberId"`
	AgentName     string `json:"agentName,omitempty"`
	UserIdentity  string `json:"userIdentity,omitempty"`
	Channel       string `json:"channel,omitempty"`
}

// SIPParticipant describes the PSTN leg the backend dialed into the room.
type SIPParticipant struct {
	ParticipantID       string `json:"participantId,omitempty"`
	ParticipantIdentity string `json:"participantIdentity,omitempty"`
	RoomName            string `json:"roomName,omitempty"`
	SIPCallID           string `json:"sipCallId,omitempty"`
}

// OutboundCallResponse tells the client which room to join and as whom.
type OutboundCallResponse struct {
	Room           string          `json:"room"`
	Participant    string          `json:"participant"`
	SIPParticipant *SIPParticipant `json:"sipParticipant,omitempty"`
}

// CallDirection is inbound or outbound.
type CallDirection string

const (
	DirectionInbound  CallDirection = "inbound"
	DirectionOutbound CallDirection = "outbound"
)

// CallStatus is the server-reported outcome of a call.
type CallStatus string

const (
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusAnswered   CallStatus = "answered"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusMissed     CallStatus = "missed"
	CallStatusFailed     CallStatus = "failed"
)

// CallRecord is a server-owned call history row. Clients never mutate it.
type CallRecord struct {
	ID              string         `json:"id"`
	Direction       CallDirection  `json:"direction"`
	Status          CallStatus     `json:"status"`
	SourceE164      string         `json:"sourceE164"`
	DestinationE164 string         `json:"destinationE164"`
	StartedAt       time.Time      `json:"startedAt"`
	EndedAt         *time.Time     `json:"endedAt,omitempty"`
	DurationSeconds int            `json:"durationSeconds"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// CallFilter holds the query parameters of GET /calls.
type CallFilter struct {
	Direction string
	Status    string
	Limit     int
	Offset    int
}

// TranscriptSegment is one utterance of a call transcript.
// StartTime is an offset in seconds from the start of the call.
type TranscriptSegment struct {
	ID                  string  `json:"id"`
	ParticipantIdentity string  `json:"participantIdentity"`
	StartTime           float64 `json:"startTime"`
	Text                string  `json:"text"`
}

// SessionRequest asks the dev backend for a session cookie.
type SessionRequest struct {
	Identity string `json:"identity"`
}

// ErrorEnvelope covers both error shapes the backend emits:
// {"error":{"code","message","details"}} and {"message"}.
type ErrorEnvelope struct {
	Error   *ErrorBody `json:"error,omitempty"`
	Message string     `json:"message,omitempty"`
}

// ErrorBody is the structured part of an error envelope.
type ErrorBody struct {
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

// SSE event names used by streaming endpoints.
const (
	StreamEventSegment = "segment"
	StreamEventError   = "error"
	StreamEventDone    = "done"
)
