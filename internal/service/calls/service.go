package calls

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/calldesk/internal/callengine"
	"github.com/vovakirdan/calldesk/internal/core"
	"github.com/vovakirdan/calldesk/internal/phone"
	"github.com/vovakirdan/calldesk/internal/proto"
	"github.com/vovakirdan/calldesk/internal/query"
	"github.com/vovakirdan/calldesk/internal/utils"
)

// Common errors for call operations.
var (
	ErrInvalidNumber       = errors.New("destination is not a valid phone number")
	ErrPhoneNumberRequired = errors.New("caller phone number id is required")
	ErrCallIDRequired      = errors.New("call id is required")
	ErrEmptyDialResponse   = errors.New("backend returned no room for the call")
)

// DefaultPageSize is the number of call records per history page.
const DefaultPageSize = 25

// API is the part of the backend client the service needs.
type API interface {
	Token(ctx context.Context, room, identity string) (*proto.TokenResponse, error)
	StartOutboundCall(ctx context.Context, req proto.OutboundCallRequest) (*proto.OutboundCallResponse, error)
	ListCalls(ctx context.Context, filter proto.CallFilter) ([]proto.CallRecord, error)
	Transcript(ctx context.Context, callID string) ([]proto.TranscriptSegment, error)
	StreamTranscript(ctx context.Context, callID string, fn func(proto.TranscriptSegment) error) error
}

// Options holds the defaults applied to requests that leave them out.
type Options struct {
	DefaultRegion      string
	PhoneNumberID      string
	Identity           string
	PageSize           int
	EnableMicOnConnect bool
}

// Service provides call management on top of the backend client, the query
// cache and the media connector.
type Service struct {
	api       API
	cache     *query.Cache
	connector callengine.Connector
	opts      Options
	log       *zerolog.Logger
}

// New creates a new call Service.
func New(api API, cache *query.Cache, connector callengine.Connector, opts Options, logger *zerolog.Logger) *Service {
	if opts.DefaultRegion == "" {
		opts.DefaultRegion = phone.DefaultRegion
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		api:       api,
		cache:     cache,
		connector: connector,
		opts:      opts,
		log:       logger,
	}
}

// Cache keys. Every history key starts with CallsKey so one invalidation
// refreshes all listings.
var CallsKey = query.NewKey("calls")

// TokenKey is the cache key of a room join token.
func TokenKey(room, identity string) query.Key {
	return query.NewKey("livekit-token", room, identity)
}

// TranscriptKey is the cache key of a call transcript.
func TranscriptKey(callID string) query.Key {
	return query.NewKey("transcript", callID)
}

// JoinToken fetches room credentials through the cache.
func (s *Service) JoinToken(ctx context.Context, room, identity string) (*proto.TokenResponse, error) {
	return query.Fetch(ctx, s.cache, TokenKey(room, identity), func(ctx context.Context) (*proto.TokenResponse, error) {
		return s.api.Token(ctx, room, identity)
	})
}

// NewSession creates an idle call session wired to this service's token
// source and media connector.
func (s *Service) NewSession(callerNumber, callerName string) *core.Session {
	return core.NewSession(core.SessionConfig{
		Tokens:             s,
		Connector:          s.connector,
		Logger:             s.log,
		CallerNumber:       callerNumber,
		CallerName:         callerName,
		EnableMicOnConnect: s.opts.EnableMicOnConnect,
	})
}

// DialRequest is an outbound call to a phone number.
type DialRequest struct {
	Number        string
	PhoneNumberID string
	// Region overrides the default region for national-format numbers.
	Region       string
	AgentName    string
	UserIdentity string
	Channel      string
}

// Dial places an outbound call and joins its room.
//
// The destination is validated before anything is sent. The call is
// requested exactly once; a rejection is returned as the backend's *api.Error
// and no session is created.
func (s *Service) Dial(ctx context.Context, req DialRequest) (*core.Session, error) {
	region := req.Region
	if region == "" {
		region = s.opts.DefaultRegion
	}
	number, err := phone.NormalizeToE164(req.Number, region)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNumber, err)
	}
	phoneID := strings.TrimSpace(req.PhoneNumberID)
	if phoneID == "" {
		phoneID = s.opts.PhoneNumberID
	}
	if phoneID == "" {
		return nil, ErrPhoneNumberRequired
	}
	identity := req.UserIdentity
	if identity == "" {
		identity = s.opts.Identity
	}

	resp, err := query.Mutate(ctx, s.cache, func(ctx context.Context) (*proto.OutboundCallResponse, error) {
		return s.api.StartOutboundCall(ctx, proto.OutboundCallRequest{
			PhoneNumber:   number,
			PhoneNumberID: phoneID,
			AgentName:     req.AgentName,
			UserIdentity:  identity,
			Channel:       req.Channel,
		})
	}, CallsKey)
	if err != nil {
		s.log.Warn().Err(err).Str("number", number).Msg("outbound call rejected")
		return nil, err
	}
	if resp == nil || resp.Room == "" || resp.Participant == "" {
		return nil, ErrEmptyDialResponse
	}

	s.log.Info().Str("room", resp.Room).Str("participant", resp.Participant).Str("number", number).Msg("outbound call started")

	sess := s.NewSession(number, "")
	if err := sess.Begin(ctx, resp.Room, resp.Participant); err != nil {
		sess.End()
		return nil, err
	}
	return sess, nil
}

// AcceptRequest joins an inbound call's room.
type AcceptRequest struct {
	RoomName     string
	Identity     string
	CallerNumber string
	CallerName   string
}

// Accept joins an inbound call. An empty room name gets a generated one.
func (s *Service) Accept(ctx context.Context, req AcceptRequest) (*core.Session, error) {
	room := strings.TrimSpace(req.RoomName)
	if room == "" {
		room = utils.NewRoomName()
	}
	identity := req.Identity
	if identity == "" {
		identity = s.opts.Identity
	}

	caller := req.CallerNumber
	if caller != "" {
		normalized, err := phone.NormalizeToE164(caller, s.opts.DefaultRegion)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidNumber, err)
		}
		caller = normalized
	}

	sess := s.NewSession(caller, req.CallerName)
	if err := sess.Begin(ctx, room, identity); err != nil {
		sess.End()
		return nil, err
	}
	return sess, nil
}

// Ensure Service can serve join tokens to sessions
var _ core.TokenSource = (*Service)(nil)
