package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"net/url"
	"strings"

	"github.com/vovakirdan/calldesk/internal/proto"
)

const maxEventLine = 1 << 20

// errStopStream ends ReadEvents without reporting an error.
var errStopStream = errors.New("stop stream")

// StreamEvent is one server-sent event.
//
// Framing: an event is the block of lines up to a blank line. "event:" sets
// Event (default "message"), every "data:" line is appended to Data joined by
// "\n", "id:" sets ID and lines starting with ":" are comments. A block
// without any "data:" line is discarded. One space after the colon is
// dropped. Fields of one event may arrive in separate network reads. A final
// event not followed by a blank line is still delivered when the stream ends.
type StreamEvent struct {
	Event string
	Data  string
	ID    string
}

// ReadEvents parses r as an SSE stream and calls fn for each event.
// fn returning an error stops parsing and that error is returned.
func ReadEvents(r io.Reader, fn func(StreamEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxEventLine)

	var (
		ev      StreamEvent
		data    []string
		pending bool
	)
	dispatch := func() error {
		if !pending {
			ev, data = StreamEvent{}, nil
			return nil
		}
		ev.Data = strings.Join(data, "\n")
		if ev.Event == "" {
			ev.Event = "message"
		}
		out := ev
		ev, data, pending = StreamEvent{}, nil, false
		return fn(out)
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if err := dispatch(); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Event = value
		case "data":
			data = append(data, value)
			pending = true
		case "id":
			ev.ID = value
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return dispatch()
}

// Stream opens an SSE endpoint and feeds events to fn until the stream ends,
// fn fails, or ctx is cancelled.
func (c *Client) Stream(ctx context.Context, path string, fn func(StreamEvent) error) error {
	resp, err := c.send(ctx, stdhttp.MethodGet, path, nil, "text/event-stream")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		return errorFromResponse(resp.StatusCode, payload)
	}

	err = ReadEvents(resp.Body, fn)
	switch {
	case err == nil, errors.Is(err, errStopStream):
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		if _, ok := AsError(err); ok {
			return err
		}
		return &Error{Status: resp.StatusCode, Code: CodeStream, Message: fmt.Sprintf("read stream: %v", err), cause: err}
	}
}

// StreamTranscript follows a call's live transcript.
// GET /calls/{id}/transcript/stream
//
// A streamed "error" event is returned as *Error; the billing rejection keeps
// Code == CodeInsufficientBalance so callers can tell it apart.
func (c *Client) StreamTranscript(ctx context.Context, callID string, fn func(proto.TranscriptSegment) error) error {
	path := "/calls/" + url.PathEscape(callID) + "/transcript/stream"
	return c.Stream(ctx, path, func(ev StreamEvent) error {
		switch ev.Event {
		case proto.StreamEventDone:
			return errStopStream
		case proto.StreamEventError:
			return streamError(ev.Data)
		case proto.StreamEventSegment, "message":
			var seg proto.TranscriptSegment
			if err := json.Unmarshal([]byte(ev.Data), &seg); err != nil {
				return &Error{Code: CodeDecode, Message: fmt.Sprintf("decode segment: %v", err), cause: err}
			}
			return fn(seg)
		default:
			return nil
		}
	})
}

// streamError maps an "error" event payload onto *Error. The payload is
// either a bare {"code","message"} object or a full error envelope.
func streamError(data string) *Error {
	apiErr := &Error{Code: CodeStream, Message: "stream error"}

	var body proto.ErrorBody
	if err := json.Unmarshal([]byte(data), &body); err == nil && (body.Code != "" || body.Message != "") {
		applyEnvelope(apiErr, &proto.ErrorEnvelope{Error: &body})
		return apiErr
	}

	var env proto.ErrorEnvelope
	if err := json.Unmarshal([]byte(data), &env); err == nil {
		applyEnvelope(apiErr, &env)
		return apiErr
	}

	if text := strings.TrimSpace(data); text != "" {
		apiErr.Message = text
	}
	return apiErr
}
