package http

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/calldesk/internal/api"
	"github.com/vovakirdan/calldesk/internal/auth"
	"github.com/vovakirdan/calldesk/internal/callengine/livekit"
	"github.com/vovakirdan/calldesk/internal/proto"
	"github.com/vovakirdan/calldesk/internal/store"
	"github.com/vovakirdan/calldesk/internal/utils"
)

func TestHealth(t *testing.T) {
	b := newTestBackend(t, testDevServerConfig())

	resp, err := http.Get(b.server.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("unexpected health response: %d %q", resp.StatusCode, body)
	}
}

func TestSessionMiddleware_RejectsMissingCookie(t *testing.T) {
	b := newTestBackend(t, testDevServerConfig())

	_, err := b.client(t).ListCalls(context.Background(), proto.CallFilter{})
	if !api.IsUnauthorized(err) {
		t.Fatalf("expected 401, got %v", err)
	}
	apiErr, _ := api.AsError(err)
	if apiErr.Code != CodeUnauthorized {
		t.Fatalf("expected code %q, got %q", CodeUnauthorized, apiErr.Code)
	}
}

func TestSessionMiddleware_RejectsForeignSignature(t *testing.T) {
	b := newTestBackend(t, testDevServerConfig())

	forged, err := auth.GenerateToken(&auth.JWTConfig{
		Secret:   []byte("some-other-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}, "mallory")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, b.server.URL+"/calls", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: forged})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestCreateSession_RejectsInvalidIdentity(t *testing.T) {
	b := newTestBackend(t, testDevServerConfig())

	err := b.client(t).CreateSession(context.Background(), "has space")
	if api.StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestToken_DefaultsToSessionIdentity(t *testing.T) {
	b := newTestBackend(t, testDevServerConfig())
	c := b.login(t, "alice")

	tok, err := c.Token(context.Background(), "call-room", "")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if tok.Room != "call-room" || tok.URL != "ws://localhost:7880" {
		t.Fatalf("unexpected token response: %+v", tok)
	}
	identity, _, err := livekit.TokenIdentity(tok.Token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if identity != "alice" {
		t.Fatalf("expected identity alice, got %q", identity)
	}

	if _, err := c.Token(context.Background(), "", ""); api.StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected 400 without room, got %v", err)
	}
}

func TestStartOutboundCall_ChargesAndRecords(t *testing.T) {
	b := newTestBackend(t, testDevServerConfig())
	c := b.login(t, "alice")
	ctx := context.Background()

	resp, err := c.StartOutboundCall(ctx, proto.OutboundCallRequest{
		PhoneNumber:   "+14155551234",
		PhoneNumberID: "pn_1",
		AgentName:     "support",
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if !strings.HasPrefix(resp.Room, utils.RoomPrefix) || resp.Participant != "alice" {
		t.Fatalf("unexpected dial response: %+v", resp)
	}
	if resp.SIPParticipant == nil || resp.SIPParticipant.RoomName != resp.Room {
		t.Fatalf("expected sip participant in room %q, got %+v", resp.Room, resp.SIPParticipant)
	}

	account, err := b.store.GetAccount(ctx, "alice")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.Balance != 4 {
		t.Fatalf("expected balance 4 after one call, got %d", account.Balance)
	}

	records, err := c.ListCalls(ctx, proto.CallFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 call, got %d", len(records))
	}
	got := records[0]
	if got.Direction != proto.DirectionOutbound || got.Status != proto.CallStatusRinging || got.DestinationE164 != "+14155551234" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.Metadata["agentName"] != "support" {
		t.Fatalf("expected agentName metadata, got %v", got.Metadata)
	}
}

func TestStartOutboundCall_RejectsInvalidInput(t *testing.T) {
	b := newTestBackend(t, testDevServerConfig())
	c := b.login(t, "alice")

	tests := []struct {
		name     string
		req      proto.OutboundCallRequest
		wantCode string
	}{
		{"not e164", proto.OutboundCallRequest{PhoneNumber: "4155551234", PhoneNumberID: "pn_1"}, CodeInvalidPhoneNumber},
		{"leading zero", proto.OutboundCallRequest{PhoneNumber: "+04155551234", PhoneNumberID: "pn_1"}, CodeInvalidPhoneNumber},
		{"missing phone number id", proto.OutboundCallRequest{PhoneNumber: "+14155551234"}, CodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.StartOutboundCall(context.Background(), tt.req)
			apiErr, ok := api.AsError(err)
			if !ok || apiErr.Status != http.StatusBadRequest || apiErr.Code != tt.wantCode {
				t.Fatalf("expected 400 %s, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestStartOutboundCall_InsufficientBalance(t *testing.T) {
	cfg := testDevServerConfig()
	cfg.InitialBalance = 1
	b := newTestBackend(t, cfg)
	c := b.login(t, "alice")
	ctx := context.Background()

	req := proto.OutboundCallRequest{PhoneNumber: "+14155551234", PhoneNumberID: "pn_1"}
	if _, err := c.StartOutboundCall(ctx, req); err != nil {
		t.Fatalf("first dial: %v", err)
	}

	_, err := c.StartOutboundCall(ctx, req)
	if !api.IsInsufficientBalance(err) || api.StatusOf(err) != http.StatusPaymentRequired {
		t.Fatalf("expected 402 insufficient_balance, got %v", err)
	}

	records, err := c.ListCalls(ctx, proto.CallFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("rejected call must not be recorded, got %d calls", len(records))
	}
}

func TestStartOutboundCall_RateLimited(t *testing.T) {
	cfg := testDevServerConfig()
	cfg.DialsPerMinute = 1
	b := newTestBackend(t, cfg)
	c := b.login(t, "alice")
	req := proto.OutboundCallRequest{PhoneNumber: "+14155551234", PhoneNumberID: "pn_1"}

	if _, err := c.StartOutboundCall(context.Background(), req); err != nil {
		t.Fatalf("first dial: %v", err)
	}
	_, err := c.StartOutboundCall(context.Background(), req)
	if api.StatusOf(err) != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}

	other := b.login(t, "bob")
	if _, err := other.StartOutboundCall(context.Background(), req); err != nil {
		t.Fatalf("limit must be per identity: %v", err)
	}
}

func seedCalls(t *testing.T, st store.CallStore, n int) []*store.Call {
	t.Helper()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	calls := make([]*store.Call, 0, n)
	for i := 0; i < n; i++ {
		direction := store.CallDirectionInbound
		if i%2 == 1 {
			direction = store.CallDirectionOutbound
		}
		call := &store.Call{
			ID:              utils.NewID(),
			Direction:       direction,
			Status:          store.CallStatusCompleted,
			SourceE164:      "+14155550000",
			DestinationE164: "+14155551111",
			RoomName:        utils.NewRoomName(),
			Identity:        "alice",
			StartedAt:       base.Add(time.Duration(i) * time.Minute),
		}
		if err := st.CreateCall(context.Background(), call); err != nil {
			t.Fatalf("seed call: %v", err)
		}
		calls = append(calls, call)
	}
	return calls
}

func TestListCalls_PaginatesNewestFirst(t *testing.T) {
	b := newTestBackend(t, testDevServerConfig())
	seeded := seedCalls(t, b.store, 5)
	c := b.login(t, "alice")

	page, err := c.ListCalls(context.Background(), proto.CallFilter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(page))
	}
	if page[0].ID != seeded[2].ID || page[1].ID != seeded[1].ID {
		t.Fatalf("unexpected page order: %s, %s", page[0].ID, page[1].ID)
	}

	inbound, err := c.ListCalls(context.Background(), proto.CallFilter{Direction: string(proto.DirectionInbound)})
	if err != nil {
		t.Fatalf("list inbound: %v", err)
	}
	if len(inbound) != 3 {
		t.Fatalf("expected 3 inbound calls, got %d", len(inbound))
	}

	if _, err := c.ListCalls(context.Background(), proto.CallFilter{Status: "exploded"}); api.StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %v", err)
	}
}

func TestTranscript_UnknownCall(t *testing.T) {
	b := newTestBackend(t, testDevServerConfig())
	c := b.login(t, "alice")

	_, err := c.Transcript(context.Background(), "missing")
	if api.StatusOf(err) != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func addSegment(t *testing.T, c *api.Client, callID string, start float64, text string) {
	t.Helper()

	err := c.Post(context.Background(), "/calls/"+callID+"/transcript", AddSegmentRequest{
		ParticipantIdentity: "caller",
		StartTime:           start,
		Text:                text,
	}, nil)
	if err != nil {
		t.Fatalf("add segment: %v", err)
	}
}

func TestStreamTranscript_ReplaysFinishedCall(t *testing.T) {
	b := newTestBackend(t, testDevServerConfig())
	call := seedCalls(t, b.store, 1)[0]
	c := b.login(t, "alice")

	addSegment(t, c, call.ID, 4.5, "second")
	addSegment(t, c, call.ID, 1.0, "first")

	stored, err := c.Transcript(context.Background(), call.ID)
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(stored) != 2 || stored[0].Text != "first" {
		t.Fatalf("expected transcript ordered by start time, got %+v", stored)
	}

	var streamed []string
	err = c.StreamTranscript(context.Background(), call.ID, func(seg proto.TranscriptSegment) error {
		streamed = append(streamed, seg.Text)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if strings.Join(streamed, ",") != "first,second" {
		t.Fatalf("unexpected streamed segments: %v", streamed)
	}
}

func TestStreamTranscript_FollowsLiveCallUntilEnded(t *testing.T) {
	b := newTestBackend(t, testDevServerConfig())
	c := b.login(t, "alice")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := c.StartOutboundCall(ctx, proto.OutboundCallRequest{PhoneNumber: "+14155551234", PhoneNumberID: "pn_1"})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	records, err := c.ListCalls(ctx, proto.CallFilter{})
	if err != nil || len(records) != 1 {
		t.Fatalf("list: %v (%d records)", err, len(records))
	}
	callID := records[0].ID
	if records[0].Status != proto.CallStatusRinging {
		t.Fatalf("expected ringing call for room %s, got %s", resp.Room, records[0].Status)
	}

	first := make(chan struct{})
	var (
		mu       sync.Mutex
		streamed []string
	)
	streamErr := make(chan error, 1)
	go func() {
		var once sync.Once
		streamErr <- c.StreamTranscript(ctx, callID, func(seg proto.TranscriptSegment) error {
			mu.Lock()
			streamed = append(streamed, seg.Text)
			mu.Unlock()
			once.Do(func() { close(first) })
			return nil
		})
	}()

	addSegment(t, c, callID, 0.5, "hello")
	select {
	case <-first:
	case <-ctx.Done():
		t.Fatal("timeout waiting for live segment")
	}
	addSegment(t, c, callID, 2.0, "bye")

	var ended proto.CallRecord
	if err := c.Post(ctx, "/calls/"+callID+"/end", nil, &ended); err != nil {
		t.Fatalf("end call: %v", err)
	}
	if ended.Status != proto.CallStatusCompleted || ended.EndedAt == nil {
		t.Fatalf("unexpected ended call: %+v", ended)
	}

	if err := <-streamErr; err != nil {
		t.Fatalf("stream: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(streamed, ",") != "hello,bye" {
		t.Fatalf("unexpected streamed segments: %v", streamed)
	}
}

func TestStreamTranscript_LiveCallWithoutBalance(t *testing.T) {
	cfg := testDevServerConfig()
	cfg.InitialBalance = 1
	b := newTestBackend(t, cfg)
	c := b.login(t, "alice")
	ctx := context.Background()

	if _, err := c.StartOutboundCall(ctx, proto.OutboundCallRequest{PhoneNumber: "+14155551234", PhoneNumberID: "pn_1"}); err != nil {
		t.Fatalf("dial: %v", err)
	}
	records, err := c.ListCalls(ctx, proto.CallFilter{})
	if err != nil || len(records) != 1 {
		t.Fatalf("list: %v", err)
	}

	err = c.StreamTranscript(ctx, records[0].ID, func(proto.TranscriptSegment) error { return nil })
	if !api.IsInsufficientBalance(err) {
		t.Fatalf("expected streamed insufficient_balance, got %v", err)
	}
}

func TestEndCall_RejectsLiveStatus(t *testing.T) {
	b := newTestBackend(t, testDevServerConfig())
	c := b.login(t, "alice")
	call := seedCalls(t, b.store, 1)[0]

	err := c.Post(context.Background(), "/calls/"+call.ID+"/end", EndCallRequest{Status: "in_progress"}, nil)
	if api.StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestDialLimiter(t *testing.T) {
	l := newDialLimiter(2)
	if !l.allow("a") || !l.allow("a") {
		t.Fatal("first two dials must pass")
	}
	if l.allow("a") {
		t.Fatal("third dial must be limited")
	}
	if !l.allow("b") {
		t.Fatal("other identity must not be limited")
	}
	l.clear()
	if !l.allow("a") {
		t.Fatal("dial must pass after reset")
	}

	unlimited := newDialLimiter(0)
	for i := 0; i < 100; i++ {
		if !unlimited.allow("a") {
			t.Fatal("zero limit must not limit")
		}
	}
}
