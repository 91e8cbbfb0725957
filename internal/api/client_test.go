package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/calldesk/internal/proto"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	disabledLogger := zerolog.New(nil)
	c, err := New(Options{BaseURL: ts.URL, SessionCookie: "sess-123"}, &disabledLogger)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, ts
}

func TestDoUnwrapsDataEnvelope(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"token":"tok","room":"r1","url":"wss://lk"}}`)
	})

	resp, err := c.Token(context.Background(), "r1", "alice")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if resp.Token != "tok" || resp.Room != "r1" || resp.URL != "wss://lk" {
		t.Fatalf("unexpected token response: %+v", resp)
	}
}

func TestDoDecodesRawBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("direction"); got != "inbound" {
			t.Errorf("expected direction=inbound, got %q", got)
		}
		if got := r.URL.Query().Get("offset"); got != "25" {
			t.Errorf("expected offset=25, got %q", got)
		}
		_, _ = io.WriteString(w, `[{"id":"c1","direction":"inbound","status":"answered"}]`)
	})

	records, err := c.ListCalls(context.Background(), proto.CallFilter{Direction: "inbound", Limit: 25, Offset: 25})
	if err != nil {
		t.Fatalf("list calls: %v", err)
	}
	if len(records) != 1 || records[0].ID != "c1" || records[0].Status != proto.CallStatusAnswered {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestDoSendsCookiesAndJSONHeaders(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(DefaultSessionCookie)
		if err != nil || cookie.Value != "sess-123" {
			t.Errorf("expected session cookie, got %v, %v", cookie, err)
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("expected json accept header, got %q", r.Header.Get("Accept"))
		}
		if r.Method == http.MethodPost && r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected json content type, got %q", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"phoneNumber":"+14155559999"`) {
			t.Errorf("unexpected body: %s", body)
		}
		_, _ = io.WriteString(w, `{"room":"r1","participant":"p1"}`)
	})

	resp, err := c.StartOutboundCall(context.Background(), proto.OutboundCallRequest{
		PhoneNumber:   "+14155559999",
		PhoneNumberID: "pn_1",
	})
	if err != nil {
		t.Fatalf("start outbound: %v", err)
	}
	if resp.Room != "r1" || resp.Participant != "p1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestErrorEnvelopeMapping(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantCode    string
		wantMessage string
		wantDetails bool
	}{
		{
			name:        "structured envelope",
			status:      http.StatusPaymentRequired,
			body:        `{"error":{"code":"insufficient_balance","message":"Top up to place calls","details":{"balance":0}}}`,
			wantCode:    CodeInsufficientBalance,
			wantMessage: "Top up to place calls",
			wantDetails: true,
		},
		{
			name:        "message only",
			status:      http.StatusBadRequest,
			body:        `{"message":"phone number is invalid"}`,
			wantMessage: "phone number is invalid",
		},
		{
			name:        "no body falls back to status text",
			status:      http.StatusInternalServerError,
			body:        ``,
			wantMessage: "Internal Server Error",
		},
		{
			name:        "non json body",
			status:      http.StatusBadGateway,
			body:        `<html>bad gateway</html>`,
			wantMessage: "Bad Gateway",
		},
		{
			name:        "unauthorized gets code",
			status:      http.StatusUnauthorized,
			body:        `{}`,
			wantCode:    CodeUnauthorized,
			wantMessage: "Unauthorized",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			err := c.Get(context.Background(), "/anything", nil)
			apiErr, ok := AsError(err)
			if !ok {
				t.Fatalf("expected *Error, got %T %v", err, err)
			}
			if apiErr.Status != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, apiErr.Status)
			}
			if apiErr.Code != tt.wantCode {
				t.Errorf("expected code %q, got %q", tt.wantCode, apiErr.Code)
			}
			if apiErr.Message != tt.wantMessage {
				t.Errorf("expected message %q, got %q", tt.wantMessage, apiErr.Message)
			}
			if tt.wantDetails && apiErr.Details == nil {
				t.Errorf("expected details to be decoded")
			}
		})
	}
}

func TestTransportErrorIsNormalised(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := ts.URL
	ts.Close()

	c, err := New(Options{BaseURL: url}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	err = c.Get(context.Background(), "/calls", nil)
	apiErr, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if apiErr.Status != 0 || apiErr.Code != CodeNetwork {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
	if errors.Unwrap(apiErr) == nil {
		t.Fatalf("expected transport cause to be preserved")
	}
}

func TestDoDoesNotRetry(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	if err := c.Get(context.Background(), "/calls", nil); err == nil {
		t.Fatalf("expected error")
	}
	if hits.Load() != 1 {
		t.Fatalf("expected exactly one request, got %d", hits.Load())
	}
}

func TestResolveKeepsBasePath(t *testing.T) {
	c, err := New(Options{BaseURL: "https://api.example.com/v1/"}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	got, err := c.resolve("/calls?limit=5")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "https://api.example.com/v1/calls?limit=5" {
		t.Fatalf("unexpected url %q", got)
	}

	got, err = c.resolve("https://other.example.com/x")
	if err != nil {
		t.Fatalf("resolve absolute: %v", err)
	}
	if got != "https://other.example.com/x" {
		t.Fatalf("absolute url changed: %q", got)
	}
}

func TestNewRejectsRelativeBase(t *testing.T) {
	if _, err := New(Options{BaseURL: "/api"}, nil); err == nil {
		t.Fatalf("expected error for relative base url")
	}
}
