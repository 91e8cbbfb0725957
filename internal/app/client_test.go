package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/calldesk/internal/api"
	"github.com/vovakirdan/calldesk/internal/config"
	"github.com/vovakirdan/calldesk/internal/service/calls"
)

func TestClientLogsOutOnUnauthorized(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"code":"unauthorized","message":"session expired"}}`)
	}))
	defer ts.Close()

	cfg := config.Default()
	cfg.BaseURL = ts.URL
	cfg.SessionCookie = "stale"
	disabledLogger := zerolog.New(nil)

	cl, err := NewClient(&cfg, &disabledLogger, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if cl.LoggedOut() {
		t.Fatal("fresh client must not be logged out")
	}

	_, err = cl.Calls.RecentCalls(context.Background(), calls.HistoryFilter{}, 10)
	if !api.IsUnauthorized(err) {
		t.Fatalf("expected 401, got %v", err)
	}
	if !cl.LoggedOut() {
		t.Fatal("401 must log the client out")
	}
	if n := requests.Load(); n != 1 {
		t.Fatalf("401 must not be retried, got %d requests", n)
	}

	if _, err := cl.Calls.RecentCalls(context.Background(), calls.HistoryFilter{}, 10); !api.IsUnauthorized(err) {
		t.Fatalf("expected 401 again, got %v", err)
	}
	if n := requests.Load(); n != 2 {
		t.Fatalf("expected a fresh request after logout, got %d requests", n)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	cfg := config.Default()
	cfg.BaseURL = ""
	disabledLogger := zerolog.New(nil)

	if _, err := NewClient(&cfg, &disabledLogger, nil); err == nil {
		t.Fatal("expected error for empty base url")
	}
}
