package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/calldesk/internal/callengine/enginetest"
	"github.com/vovakirdan/calldesk/internal/proto"
)

func mustEvent(t *testing.T, ch <-chan Event, kind EventKind) Event {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("events closed before %v", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("expected event kind %v not received", kind)
		}
	}
}

func waitPhase(t *testing.T, s *Session, want Phase) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Phase() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected phase %v, got %v", want, s.Phase())
}

// countingTokens counts token requests and returns a fixed response.
type countingTokens struct {
	calls atomic.Int32
	err   error
}

func (c *countingTokens) JoinToken(ctx context.Context, room, identity string) (*proto.TokenResponse, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &proto.TokenResponse{Token: "tok-" + identity, Room: room, URL: "wss://media.test"}, nil
}

func newTestSession(t *testing.T, conn *enginetest.Connector) (*Session, *countingTokens) {
	t.Helper()

	tokens := &countingTokens{}
	disabledLogger := zerolog.New(nil)
	s := NewSession(SessionConfig{Tokens: tokens, Connector: conn, Logger: &disabledLogger})
	t.Cleanup(s.End)
	return s, tokens
}
