package core

import "context"

// WithSession creates a session, runs fn with it and ends the session when
// fn returns or panics.
func WithSession(ctx context.Context, cfg SessionConfig, fn func(context.Context, *Session) error) error {
	s := NewSession(cfg)
	defer s.End()
	return fn(ctx, s)
}
