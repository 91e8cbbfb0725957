package api

import (
	"context"
	"net/url"
	"strconv"

	"github.com/vovakirdan/calldesk/internal/proto"
)

// Token fetches a media room credential.
// GET /livekit/token?room=&identity=
func (c *Client) Token(ctx context.Context, room, identity string) (*proto.TokenResponse, error) {
	q := url.Values{}
	q.Set("room", room)
	q.Set("identity", identity)

	var resp proto.TokenResponse
	if err := c.Get(ctx, "/livekit/token?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartOutboundCall asks the backend to dial a PSTN number into a new room.
// POST /livekit/calls/outbound
func (c *Client) StartOutboundCall(ctx context.Context, req proto.OutboundCallRequest) (*proto.OutboundCallResponse, error) {
	var resp proto.OutboundCallResponse
	if err := c.Post(ctx, "/livekit/calls/outbound", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListCalls returns one page of call history.
// GET /calls?direction=&status=&limit=&offset=
func (c *Client) ListCalls(ctx context.Context, filter proto.CallFilter) ([]proto.CallRecord, error) {
	q := url.Values{}
	if filter.Direction != "" {
		q.Set("direction", filter.Direction)
	}
	if filter.Status != "" {
		q.Set("status", filter.Status)
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Offset > 0 {
		q.Set("offset", strconv.Itoa(filter.Offset))
	}

	path := "/calls"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var records []proto.CallRecord
	if err := c.Get(ctx, path, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Transcript returns the stored transcript of a call.
// GET /calls/{id}/transcript
func (c *Client) Transcript(ctx context.Context, callID string) ([]proto.TranscriptSegment, error) {
	var segments []proto.TranscriptSegment
	if err := c.Get(ctx, "/calls/"+url.PathEscape(callID)+"/transcript", &segments); err != nil {
		return nil, err
	}
	return segments, nil
}

// CreateSession exchanges an identity for a session cookie (dev backend only).
// POST /auth/session
func (c *Client) CreateSession(ctx context.Context, identity string) error {
	return c.Post(ctx, "/auth/session", proto.SessionRequest{Identity: identity}, nil)
}
