package core

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/calldesk/internal/callengine"
	"github.com/vovakirdan/calldesk/internal/proto"
)

// TokenSource hands out join credentials for a room.
type TokenSource interface {
	JoinToken(ctx context.Context, room, identity string) (*proto.TokenResponse, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context, room, identity string) (*proto.TokenResponse, error)

func (f TokenSourceFunc) JoinToken(ctx context.Context, room, identity string) (*proto.TokenResponse, error) {
	return f(ctx, room, identity)
}

// SessionConfig holds the dependencies of a Session.
type SessionConfig struct {
	Tokens    TokenSource
	Connector callengine.Connector
	Logger    *zerolog.Logger

	CallerNumber string
	CallerName   string

	// EnableMicOnConnect publishes the microphone once the room is connected.
	EnableMicOnConnect bool
	// EventBuffer is the capacity of Events(); DefaultEventBuffer when zero.
	EventBuffer int
}

// Session owns one real-time call connection from Begin to End.
//
// Provider callbacks, user actions and teardown may race; every state change
// happens under one lock and goes through CanTransition, so the session
// reaches PhaseDisconnected exactly once.
type Session struct {
	connector callengine.Connector
	tokens    TokenSource
	log       zerolog.Logger
	autoMic   bool

	// micMu serializes microphone changes; it is taken before mu.
	micMu sync.Mutex

	mu        sync.Mutex
	info      Info
	phase     Phase
	mic       bool
	err       error
	people    *participants
	room      callengine.Room
	started   bool
	ending    bool
	attached  bool
	autoMicOn bool
	events    chan Event
	done      chan struct{}
}

// NewSession creates an idle session.
func NewSession(cfg SessionConfig) *Session {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}

	return &Session{
		connector: cfg.Connector,
		tokens:    cfg.Tokens,
		log:       logger.With().Str("component", "call_session").Logger(),
		autoMic:   cfg.EnableMicOnConnect,
		info: Info{
			CallerNumber: cfg.CallerNumber,
			CallerName:   cfg.CallerName,
		},
		people: newParticipants(),
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
}

// Begin fetches a join token for room and identity and starts connecting.
//
// It returns once the provider accepted or rejected the connect attempt; the
// session becomes connected when the provider reports so. Calling Begin again
// while a connection is outstanding is a no-op. Begin after the session ended
// returns ErrSessionEnded.
func (s *Session) Begin(ctx context.Context, roomName, identity string) error {
	roomName = strings.TrimSpace(roomName)
	identity = strings.TrimSpace(identity)
	if roomName == "" || identity == "" {
		return coreError(ErrCodeInvalidArgument, "room name and identity are required", ErrInvalidArgument)
	}

	s.mu.Lock()
	if s.ending || s.phase.Terminal() {
		s.mu.Unlock()
		return coreError(ErrCodeSessionEnded, "begin", ErrSessionEnded)
	}
	if s.started {
		s.mu.Unlock()
		s.log.Debug().Str("room", roomName).Msg("begin ignored, connection already outstanding")
		return nil
	}
	s.started = true
	s.attached = true
	s.info.RoomName = roomName
	s.info.Identity = identity
	s.mu.Unlock()

	log := s.log.With().Str("room", roomName).Str("identity", identity).Logger()

	tok, err := s.tokens.JoinToken(ctx, roomName, identity)
	if err != nil {
		failure := coreError(ErrCodeTokenFailed, "fetch join token", err)
		s.mu.Lock()
		if !s.ending && !s.phase.Terminal() {
			s.failLocked(failure)
		}
		s.mu.Unlock()
		log.Warn().Err(err).Msg("join token fetch failed")
		return failure
	}

	s.mu.Lock()
	if s.ending || s.phase.Terminal() {
		s.mu.Unlock()
		return coreError(ErrCodeSessionEnded, "begin", ErrSessionEnded)
	}
	s.transitionLocked(PhaseConnecting)
	s.mu.Unlock()

	log.Debug().Str("url", tok.URL).Msg("connecting")
	room, err := s.connector.Connect(ctx, tok.URL, tok.Token, s.handle)

	s.mu.Lock()
	if s.ending || s.phase.Terminal() {
		s.mu.Unlock()
		if room != nil {
			room.Disconnect()
		}
		return coreError(ErrCodeSessionEnded, "begin", ErrSessionEnded)
	}
	if err != nil {
		failure := coreError(ErrCodeConnectFailed, "connect room", err)
		s.failLocked(failure)
		s.mu.Unlock()
		log.Error().Err(err).Msg("connect failed")
		return failure
	}
	s.room = room
	s.maybeEnableMicLocked()
	s.mu.Unlock()
	return nil
}

// handle receives provider callbacks. Callbacks after End are ignored.
func (s *Session) handle(ev callengine.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached || s.ending || s.phase.Terminal() {
		return
	}

	switch ev.Kind {
	case callengine.EventConnected:
		if s.phase == PhaseConnecting {
			s.transitionLocked(PhaseConnected)
			s.maybeEnableMicLocked()
		}
	case callengine.EventDisconnected:
		reason := ev.Reason
		if reason == "" {
			reason = "provider disconnected"
		}
		if s.phase == PhaseConnecting {
			s.failLocked(coreError(ErrCodeConnectFailed, reason, nil))
			return
		}
		s.log.Info().Str("room", s.info.RoomName).Str("reason", reason).Msg("room disconnected by provider")
		s.finishLocked()
	case callengine.EventParticipantConnected:
		if ev.Identity != "" && s.people.Add(ev.Identity) {
			s.emitLocked(Event{Kind: EventParticipantJoined, Phase: s.phase, Identity: ev.Identity})
		}
	case callengine.EventParticipantDisconnected:
		if s.people.Remove(ev.Identity) {
			s.emitLocked(Event{Kind: EventParticipantLeft, Phase: s.phase, Identity: ev.Identity})
		}
	}
}

// ToggleMicrophone flips the microphone and returns the new state once the
// provider acknowledged it. On failure the state is left unchanged.
func (s *Session) ToggleMicrophone(ctx context.Context) (bool, error) {
	s.micMu.Lock()
	defer s.micMu.Unlock()

	s.mu.Lock()
	if s.phase != PhaseConnected || s.ending || s.room == nil {
		enabled := s.mic
		s.mu.Unlock()
		return enabled, coreError(ErrCodeNotConnected, "toggle microphone", ErrNotConnected)
	}
	target := !s.mic
	room := s.room
	s.mu.Unlock()

	return s.setMicrophone(ctx, room, target)
}

func (s *Session) setMicrophone(ctx context.Context, room callengine.Room, enabled bool) (bool, error) {
	err := room.SetMicrophoneEnabled(ctx, enabled)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.log.Warn().Err(err).Bool("enabled", enabled).Msg("microphone toggle failed")
		return s.mic, coreError(ErrCodeMicrophone, "toggle microphone", err)
	}
	if s.ending || s.phase.Terminal() {
		return s.mic, coreError(ErrCodeSessionEnded, "toggle microphone", ErrSessionEnded)
	}
	if s.mic != enabled {
		s.mic = enabled
		s.emitLocked(Event{Kind: EventMicChanged, Phase: s.phase, MicEnabled: enabled})
	}
	return s.mic, nil
}

// maybeEnableMicLocked turns the microphone on once, after the room is both
// returned by the provider and reported connected.
func (s *Session) maybeEnableMicLocked() {
	if !s.autoMic || s.autoMicOn || s.room == nil || s.phase != PhaseConnected {
		return
	}
	s.autoMicOn = true
	room := s.room
	go func() {
		s.micMu.Lock()
		defer s.micMu.Unlock()
		if _, err := s.setMicrophone(context.Background(), room, true); err != nil && !errors.Is(err, ErrSessionEnded) {
			s.log.Warn().Err(err).Msg("enable microphone on connect failed")
		}
	}()
}

// End disconnects and releases the session. It may be called in any phase,
// any number of times and from several goroutines; it returns once the
// session is disconnected.
func (s *Session) End() {
	s.mu.Lock()
	if s.ending || s.phase.Terminal() {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.ending = true
	s.attached = false
	room := s.room
	if room != nil {
		s.transitionLocked(PhaseDisconnecting)
	}
	s.mu.Unlock()

	if room != nil {
		room.Disconnect()
	}

	s.mu.Lock()
	s.finishLocked()
	s.mu.Unlock()
	s.log.Debug().Str("room", s.info.RoomName).Msg("session ended")
}

// failLocked records err and moves to the terminal phase.
func (s *Session) failLocked(err error) {
	s.err = err
	s.emitLocked(Event{Kind: EventFailed, Phase: s.phase, Err: err})
	s.finishLocked()
}

// finishLocked performs the single terminal transition.
func (s *Session) finishLocked() {
	if s.phase.Terminal() {
		return
	}
	s.attached = false
	s.transitionLocked(PhaseDisconnected)
	s.mic = false
	close(s.events)
	close(s.done)
}

func (s *Session) transitionLocked(to Phase) bool {
	if !CanTransition(s.phase, to) {
		s.log.Warn().Str("from", s.phase.String()).Str("to", to.String()).Msg("rejected phase transition")
		return false
	}
	s.log.Debug().Str("from", s.phase.String()).Str("to", to.String()).Msg("phase changed")
	s.phase = to
	s.emitLocked(Event{Kind: EventPhaseChanged, Phase: to})
	return true
}

func (s *Session) emitLocked(ev Event) {
	if s.phase.Terminal() && ev.Kind != EventPhaseChanged {
		return
	}
	select {
	case s.events <- ev:
	default:
		// Drop if slow consumer.
	}
}

// Events returns the session's notifications. The channel is closed after
// the session is disconnected.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Done is closed once the session is disconnected.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Snapshot returns a copy of the current connection state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Phase:        s.phase,
		MicEnabled:   s.mic,
		Participants: s.people.List(),
		Err:          s.err,
	}
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Info returns the room and caller details.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Err returns the failure that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
