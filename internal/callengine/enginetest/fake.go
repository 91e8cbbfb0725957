// Package enginetest provides an in-memory callengine.Connector for tests.
package enginetest

import (
	"context"
	"sync"

	"github.com/vovakirdan/calldesk/internal/callengine"
)

// Connector is a fake callengine.Connector.
//
// By default Connect succeeds immediately and the room reports
// EventConnected right away.
type Connector struct {
	// Err fails every Connect.
	Err error
	// Block, when non-nil, holds Connect until it is closed or ctx ends.
	Block chan struct{}
	// Manual suppresses the automatic EventConnected; call Room.Emit instead.
	Manual bool

	mu      sync.Mutex
	calls   []Call
	rooms   []*Room
	entered chan struct{}
}

// Call records the arguments of one Connect.
type Call struct {
	URL   string
	Token string
}

// Entered returns a channel that receives once per Connect call, before it blocks.
func (c *Connector) Entered() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entered == nil {
		c.entered = make(chan struct{}, 16)
	}
	return c.entered
}

func (c *Connector) Connect(ctx context.Context, url, token string, h callengine.Handler) (callengine.Room, error) {
	c.mu.Lock()
	c.calls = append(c.calls, Call{URL: url, Token: token})
	entered := c.entered
	c.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}

	if c.Block != nil {
		select {
		case <-c.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.Err != nil {
		return nil, c.Err
	}

	r := &Room{handler: h}
	c.mu.Lock()
	c.rooms = append(c.rooms, r)
	c.mu.Unlock()

	if !c.Manual {
		r.Emit(callengine.Event{Kind: callengine.EventConnected})
	}
	return r, nil
}

// Calls returns every Connect invocation so far.
func (c *Connector) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Rooms returns the rooms handed out so far.
func (c *Connector) Rooms() []*Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Room(nil), c.rooms...)
}

// LastRoom returns the most recent room or nil.
func (c *Connector) LastRoom() *Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.rooms) == 0 {
		return nil
	}
	return c.rooms[len(c.rooms)-1]
}

// Room is a fake callengine.Room.
type Room struct {
	handler callengine.Handler

	mu          sync.Mutex
	mic         bool
	micCalls    int
	micErr      error
	disconnects int
	micBlock    chan struct{}
}

// Emit delivers a provider event to the session handler.
func (r *Room) Emit(ev callengine.Event) {
	if r.handler != nil {
		r.handler(ev)
	}
}

// FailMicrophone makes subsequent SetMicrophoneEnabled calls return err.
func (r *Room) FailMicrophone(err error) {
	r.mu.Lock()
	r.micErr = err
	r.mu.Unlock()
}

// BlockMicrophone holds SetMicrophoneEnabled until ch is closed.
func (r *Room) BlockMicrophone(ch chan struct{}) {
	r.mu.Lock()
	r.micBlock = ch
	r.mu.Unlock()
}

func (r *Room) SetMicrophoneEnabled(ctx context.Context, enabled bool) error {
	r.mu.Lock()
	r.micCalls++
	block := r.micBlock
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.micErr != nil {
		return r.micErr
	}
	r.mic = enabled
	return nil
}

func (r *Room) Disconnect() {
	r.mu.Lock()
	r.disconnects++
	r.mu.Unlock()
}

// Microphone reports the last applied microphone state.
func (r *Room) Microphone() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mic
}

// MicrophoneCalls counts SetMicrophoneEnabled calls.
func (r *Room) MicrophoneCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.micCalls
}

// Disconnects counts Disconnect calls.
func (r *Room) Disconnects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnects
}

var (
	_ callengine.Connector = (*Connector)(nil)
	_ callengine.Room      = (*Room)(nil)
)
