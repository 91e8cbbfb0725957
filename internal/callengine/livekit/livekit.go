package livekit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/vovakirdan/calldesk/internal/callengine"
)

// DefaultTokenTTL is how long issued join tokens stay valid.
const DefaultTokenTTL = time.Hour

// TokenIssuer implements callengine.TokenIssuer with LiveKit access tokens.
type TokenIssuer struct {
	apiKey    string
	apiSecret string
	wsURL     string
	ttl       time.Duration
}

// NewTokenIssuer creates a new TokenIssuer.
func NewTokenIssuer(apiKey, apiSecret, wsURL string) *TokenIssuer {
	return &TokenIssuer{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		wsURL:     wsURL,
		ttl:       DefaultTokenTTL,
	}
}

// IssueJoinInfo creates join credentials for identity to join room.
func (e *TokenIssuer) IssueJoinInfo(_ context.Context, room, identity, name string) (*callengine.JoinInfo, error) {
	if room == "" || identity == "" {
		return nil, errors.New("room and identity are required")
	}
	if name == "" {
		name = identity
	}

	at := auth.NewAccessToken(e.apiKey, e.apiSecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     room,
	}
	at.SetVideoGrant(grant).
		SetIdentity(identity).
		SetName(name).
		SetValidFor(e.ttl)

	token, err := at.ToJWT()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	return &callengine.JoinInfo{
		URL:      e.wsURL,
		Token:    token,
		RoomName: room,
		Identity: identity,
	}, nil
}

// TokenIdentity extracts the participant identity and API key from a join
// token without verifying its signature.
func TokenIdentity(token string) (identity, apiKey string, err error) {
	v, err := auth.ParseAPIToken(token)
	if err != nil {
		return "", "", fmt.Errorf("parse token: %w", err)
	}
	return v.Identity(), v.APIKey(), nil
}

// Ensure TokenIssuer implements callengine.TokenIssuer
var _ callengine.TokenIssuer = (*TokenIssuer)(nil)
