package http

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/calldesk/internal/api"
	"github.com/vovakirdan/calldesk/internal/auth"
	"github.com/vovakirdan/calldesk/internal/callengine/livekit"
	"github.com/vovakirdan/calldesk/internal/config"
	"github.com/vovakirdan/calldesk/internal/store/sqlite"
)

const testJWTSecret = "test-secret-change-me"

type testBackend struct {
	server *httptest.Server
	store  *sqlite.SQLiteStore
	auth   *auth.Service
}

// createTestStore creates an in-memory SQLite store with schema applied.
func createTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// createTestAuthService creates an auth service for testing.
func createTestAuthService(t *testing.T, st *sqlite.SQLiteStore, jwtSecret string, balance int64) *auth.Service {
	t.Helper()

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(jwtSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return auth.NewService(st, jwtConfig, balance)
}

// testDevServerConfig returns a config tuned for fast tests.
func testDevServerConfig() config.DevServer {
	cfg := config.Default().DevServer
	cfg.InitialBalance = 5
	cfg.CallCost = 1
	cfg.DialsPerMinute = 0
	cfg.StreamPoll = 10 * time.Millisecond
	return cfg
}

func newTestBackend(t *testing.T, cfg config.DevServer) *testBackend {
	t.Helper()

	st := createTestStore(t)
	authService := createTestAuthService(t, st, testJWTSecret, cfg.InitialBalance)
	disabledLogger := zerolog.New(nil)

	done := make(chan struct{})
	t.Cleanup(func() { close(done) })

	router := NewRouter(Deps{
		Auth:   authService,
		Store:  st,
		Tokens: livekit.NewTokenIssuer("devkey", "devsecret-devsecret-devsecret-00", "ws://localhost:7880"),
		Done:   done,
	}, &cfg, &disabledLogger)

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	return &testBackend{server: ts, store: st, auth: authService}
}

// client returns an API client without a session.
func (b *testBackend) client(t *testing.T) *api.Client {
	t.Helper()

	disabledLogger := zerolog.New(nil)
	c, err := api.New(api.Options{BaseURL: b.server.URL}, &disabledLogger)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

// login returns an API client holding a session cookie for identity.
func (b *testBackend) login(t *testing.T, identity string) *api.Client {
	t.Helper()

	c := b.client(t)
	if err := c.CreateSession(context.Background(), identity); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return c
}
