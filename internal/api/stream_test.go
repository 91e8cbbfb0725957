package api

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/vovakirdan/calldesk/internal/proto"
)

// chunkReader returns its chunks one Read at a time.
type chunkReader struct {
	chunks []string
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if r.chunks[0] == "" {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func collectEvents(t *testing.T, r io.Reader) []StreamEvent {
	t.Helper()

	var events []StreamEvent
	if err := ReadEvents(r, func(ev StreamEvent) error {
		events = append(events, ev)
		return nil
	}); err != nil {
		t.Fatalf("read events: %v", err)
	}
	return events
}

func TestReadEventsFraming(t *testing.T) {
	stream := ": keepalive\n" +
		"event: segment\n" +
		"id: 1\n" +
		"data: {\"a\":1}\n" +
		"\n" +
		"data: line one\n" +
		"data: line two\n" +
		"\n" +
		"event: done\n" +
		"data:\n" +
		"\n"

	events := collectEvents(t, strings.NewReader(stream))
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(events), events)
	}
	if events[0].Event != "segment" || events[0].ID != "1" || events[0].Data != `{"a":1}` {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].Event != "message" || events[1].Data != "line one\nline two" {
		t.Fatalf("unexpected second event: %+v", events[1])
	}
	if events[2].Event != "done" || events[2].Data != "" {
		t.Fatalf("unexpected third event: %+v", events[2])
	}
}

func TestReadEventsDiscardsBlocksWithoutData(t *testing.T) {
	stream := "event: ping\n" +
		"id: 7\n" +
		"\n" +
		"data: kept\n" +
		"\n" +
		"event: trailing\n"

	events := collectEvents(t, strings.NewReader(stream))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d: %+v", len(events), events)
	}
	if events[0].Event != "message" || events[0].Data != "kept" || events[0].ID != "" {
		t.Fatalf("fields of a discarded block leaked into the next event: %+v", events[0])
	}
}

func TestReadEventsAcrossChunks(t *testing.T) {
	r := &chunkReader{chunks: []string{
		"event: err",
		"or\r\ndata: {\"code\":\"insufficient_balance\"}\r",
		"\n\r\n",
		"data: tail-without-blank-line",
	}}

	events := collectEvents(t, r)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}
	if events[0].Event != "error" || events[0].Data != `{"code":"insufficient_balance"}` {
		t.Fatalf("event split across chunks not reassembled: %+v", events[0])
	}
	if events[1].Data != "tail-without-blank-line" {
		t.Fatalf("unexpected trailing event: %+v", events[1])
	}
}

func TestStreamTranscriptDeliversSegmentsUntilDone(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/calls/c1/transcript/stream" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("unexpected accept header %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event: segment\ndata: {\"id\":\"s1\",\"startTime\":0.5,\"text\":\"hello\"}\n\n")
		_, _ = io.WriteString(w, "event: segment\ndata: {\"id\":\"s2\",\"startTime\":1.5,\"text\":\"world\"}\n\n")
		_, _ = io.WriteString(w, "event: done\ndata: {}\n\n")
		_, _ = io.WriteString(w, "event: segment\ndata: {\"id\":\"ignored\"}\n\n")
	})

	var got []string
	err := c.StreamTranscript(context.Background(), "c1", func(seg proto.TranscriptSegment) error {
		got = append(got, seg.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if strings.Join(got, ",") != "s1,s2" {
		t.Fatalf("unexpected segments: %v", got)
	}
}

func TestStreamTranscriptBillingError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event: error\ndata: {\"code\":\"insufficient_balance\",\"message\":\"Balance exhausted\"}\n\n")
	})

	err := c.StreamTranscript(context.Background(), "c1", func(proto.TranscriptSegment) error { return nil })
	if !IsInsufficientBalance(err) {
		t.Fatalf("expected billing error, got %v", err)
	}
	if err.Error() != "Balance exhausted" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestStreamTranscriptGenericErrorEvent(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event: error\ndata: {\"error\":{\"code\":\"transcriber_down\",\"message\":\"try later\"}}\n\n")
	})

	err := c.StreamTranscript(context.Background(), "c1", func(proto.TranscriptSegment) error { return nil })
	apiErr, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error, got %v", err)
	}
	if IsInsufficientBalance(err) {
		t.Fatalf("generic stream error mistaken for billing error")
	}
	if apiErr.Code != "transcriber_down" || apiErr.Message != "try later" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestStreamNon2xx(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := c.StreamTranscript(context.Background(), "c1", func(proto.TranscriptSegment) error { return nil })
	if !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}
