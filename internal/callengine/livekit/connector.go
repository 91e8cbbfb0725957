package livekit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/calldesk/internal/callengine"
)

// Connector joins LiveKit rooms with the server SDK.
type Connector struct {
	log *zerolog.Logger
}

// NewConnector creates a Connector. A nil logger disables logging.
func NewConnector(logger *zerolog.Logger) *Connector {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Connector{log: logger}
}

type joinResult struct {
	err error
}

// Connect joins the room and reports participants and disconnects to h.
// It returns once the handshake finished; ctx cancellation abandons the join
// and disconnects the room as soon as it completes.
func (c *Connector) Connect(ctx context.Context, url, token string, h callengine.Handler) (callengine.Room, error) {
	if h == nil {
		h = func(callengine.Event) {}
	}

	r := &room{log: c.log}
	r.lk = lksdk.NewRoom(&lksdk.RoomCallback{
		OnParticipantConnected: func(p *lksdk.RemoteParticipant) {
			h(callengine.Event{Kind: callengine.EventParticipantConnected, Identity: p.Identity()})
		},
		OnParticipantDisconnected: func(p *lksdk.RemoteParticipant) {
			h(callengine.Event{Kind: callengine.EventParticipantDisconnected, Identity: p.Identity()})
		},
		OnDisconnected: func() {
			h(callengine.Event{Kind: callengine.EventDisconnected, Reason: "provider disconnected"})
		},
	})

	done := make(chan joinResult, 1)
	go func() {
		done <- joinResult{err: r.lk.JoinWithToken(url, token, lksdk.WithAutoSubscribe(false))}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("join room: %w", res.err)
		}
	case <-ctx.Done():
		go func() {
			if res := <-done; res.err == nil {
				r.lk.Disconnect()
			}
		}()
		return nil, ctx.Err()
	}

	c.log.Debug().Str("room", r.lk.Name()).Msg("livekit room joined")
	h(callengine.Event{Kind: callengine.EventConnected})
	for _, p := range r.lk.GetRemoteParticipants() {
		h(callengine.Event{Kind: callengine.EventParticipantConnected, Identity: p.Identity()})
	}
	return r, nil
}

// room adapts a joined lksdk.Room to callengine.Room.
//
// The published microphone track has no capture source attached: no samples
// are written to it, so an enabled microphone is heard as silence. Audio
// capture needs a sample provider writing Opus frames to the track.
type room struct {
	log *zerolog.Logger
	lk  *lksdk.Room

	mu     sync.Mutex
	mic    *lksdk.LocalTrackPublication
	closed bool
}

// opusMono is the capability of the published microphone track.
var opusMono = webrtc.RTPCodecCapability{
	MimeType:  webrtc.MimeTypeOpus,
	ClockRate: 48000,
	Channels:  1,
}

var errRoomClosed = errors.New("room is disconnected")

// SetMicrophoneEnabled publishes the microphone track on first enable and
// toggles its mute state afterwards. Only the publication and mute state are
// managed here; see room for the missing capture source.
func (r *room) SetMicrophoneEnabled(ctx context.Context, enabled bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errRoomClosed
	}
	if r.mic != nil {
		r.mic.SetMuted(!enabled)
		return nil
	}
	if !enabled {
		return nil
	}

	track, err := lksdk.NewLocalSampleTrack(opusMono)
	if err != nil {
		return fmt.Errorf("create microphone track: %w", err)
	}
	pub, err := r.lk.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   "microphone",
		Source: livekit.TrackSource_MICROPHONE,
	})
	if err != nil {
		return fmt.Errorf("publish microphone: %w", err)
	}
	r.mic = pub
	r.log.Debug().Str("room", r.lk.Name()).Msg("microphone published")
	return nil
}

func (r *room) Disconnect() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.lk.Disconnect()
}

// Ensure Connector implements callengine.Connector
var _ callengine.Connector = (*Connector)(nil)
