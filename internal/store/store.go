package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientBalance is returned when an account cannot pay for a call.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Account is a caller identity with a prepaid call balance.
type Account struct {
	Identity  string
	Balance   int64
	CreatedAt time.Time
}

// CallDirection defines who placed the call.
type CallDirection string

const (
	CallDirectionInbound  CallDirection = "inbound"
	CallDirectionOutbound CallDirection = "outbound"
)

// CallStatus defines call status.
type CallStatus string

const (
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusAnswered   CallStatus = "answered"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusMissed     CallStatus = "missed"
	CallStatusFailed     CallStatus = "failed"
)

// Call represents a phone call bridged into a media room.
type Call struct {
	ID              string // UUID
	Direction       CallDirection
	Status          CallStatus
	SourceE164      string
	DestinationE164 string
	RoomName        string
	Participant     string
	PhoneNumberID   string
	Identity        string // account that placed or took the call
	StartedAt       time.Time
	EndedAt         *time.Time
	DurationSeconds int
	Metadata        map[string]any
}

// TranscriptSegment is one stored utterance of a call.
type TranscriptSegment struct {
	ID                  string
	CallID              string
	ParticipantIdentity string
	StartTime           float64
	Text                string
	CreatedAt           time.Time
}

// CallFilter narrows ListCalls. Zero values match everything.
type CallFilter struct {
	Direction CallDirection
	Status    CallStatus
	Limit     int
	Offset    int
}

// AccountStore handles account persistence.
type AccountStore interface {
	// EnsureAccount returns the account for identity, creating it with
	// initialBalance when missing.
	EnsureAccount(ctx context.Context, identity string, initialBalance int64) (*Account, error)

	// GetAccount retrieves an account by identity.
	GetAccount(ctx context.Context, identity string) (*Account, error)
}

// CallStore handles call persistence.
type CallStore interface {
	// CreateOutboundCall charges cost to the account and records the call in
	// one transaction. Returns ErrInsufficientBalance when the balance is short.
	CreateOutboundCall(ctx context.Context, call *Call, cost int64) error

	// CreateCall records a call without charging.
	CreateCall(ctx context.Context, call *Call) error

	// UpdateCall updates status, end time and duration of a call.
	UpdateCall(ctx context.Context, call *Call) error

	// GetCall retrieves a call by ID.
	GetCall(ctx context.Context, id string) (*Call, error)

	// ListCalls lists calls newest first with offset pagination.
	ListCalls(ctx context.Context, filter CallFilter) ([]*Call, error)
}

// TranscriptStore handles transcript persistence.
type TranscriptStore interface {
	// AddSegment appends a segment to a call transcript.
	AddSegment(ctx context.Context, seg *TranscriptSegment) error

	// ListSegments returns a call's segments ordered by start time.
	ListSegments(ctx context.Context, callID string) ([]*TranscriptSegment, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	AccountStore
	CallStore
	TranscriptStore

	// Close closes the underlying database connection.
	Close() error
}
